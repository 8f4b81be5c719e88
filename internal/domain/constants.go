package domain

import "time"

// Trade actions
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Tournament statuses
const (
	StatusUpcoming  = "upcoming"
	StatusLive      = "live"
	StatusCompleted = "completed"
)

// Market sentiment values reported by the market data provider
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
	SentimentUnknown = "unknown"
)

// Tournament defaults
const (
	DefaultStartingCash   = 500.0
	DefaultRiskScore      = 0.5
	DefaultMaxShortTerm   = 100
	DefaultStaleThreshold = 10 * time.Minute
	InitialDecision       = "Tournament initialized"
)
