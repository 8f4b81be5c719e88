package policy

import "time"

// Policy is the trading policy shared by every agent in the arena.
type Policy struct {
	QuoteToken string `yaml:"quote_token"`
	// SlippageBps is the tolerance passed to the swap executor
	SlippageBps int `yaml:"slippage_bps"`
	// SlippageThreshold is the fill deviation (percent) that gets flagged
	SlippageThreshold float64 `yaml:"slippage_threshold"`
	// MaxPositionFraction caps risk*confidence when sizing a position
	MaxPositionFraction float64                `yaml:"max_position_fraction"`
	StartingCash        float64                `yaml:"starting_cash"`
	Tokens              map[string]Token       `yaml:"tokens"`
	RiskProfiles        map[string]RiskProfile `yaml:"risk_profiles"`
	// PriceCacheTTL bounds how long a fallback price may be served
	PriceCacheTTL time.Duration `yaml:"price_cache_ttl"`
}

// Token describes one asset the arena knows about
type Token struct {
	Decimals    int    `yaml:"decimals"`
	Tradable    bool   `yaml:"tradable"`
	CoinGeckoID string `yaml:"coingecko_id"`
}

// RiskProfile is the default risk appetite for a personality
type RiskProfile struct {
	RiskScore float64 `yaml:"risk_score"`
}
