package domain

// TradeIntent is a trade proposed by the decision engine. Amount is the
// quote currency to spend for BUY and the token quantity for SELL; a BUY
// with no amount is sized by the runtime.
type TradeIntent struct {
	Action     string  `json:"action"`
	Token      string  `json:"token"`
	Amount     float64 `json:"amount"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// Proposal is the decision engine's answer for one cycle. A nil Intent
// means hold.
type Proposal struct {
	Intent    *TradeIntent `json:"trade_intent,omitempty"`
	Narrative string       `json:"narrative"`
}

// DecisionRequest is everything the decision engine sees
type DecisionRequest struct {
	AgentID        string
	TournamentID   string
	Personality    string
	RiskScore      float64
	Portfolio      *Portfolio
	Market         MarketData
	RecentTrades   []Trade
	TradableTokens []string
	Task           string
}
