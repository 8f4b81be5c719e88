package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is the accounting state of one agent in one tournament.
// Money fields are float64 in memory; see AgentState for the persisted form.
type Portfolio struct {
	AgentID          string             `json:"agent_id"`
	Cash             float64            `json:"cash"`
	Holdings         map[string]float64 `json:"holdings"`
	StartingVal      float64            `json:"starting_val"`
	HoldingsVal      float64            `json:"holdings_val"`
	UnrealizedPnL    float64            `json:"unrealized_pnl"`
	RealizedPnL      float64            `json:"realized_pnl"`
	TotalValue       float64            `json:"total_value"`
	NumTrades        int                `json:"num_trades"`
	NumWinningTrades int                `json:"num_winning_trades"`
	NumLosingTrades  int                `json:"num_losing_trades"`
	WinRate          float64            `json:"win_rate"`
	ROI              float64            `json:"roi"`
}

// NewPortfolio returns a fresh portfolio holding only cash.
func NewPortfolio(agentID string, startingCash float64) *Portfolio {
	return &Portfolio{
		AgentID:     agentID,
		Cash:        startingCash,
		Holdings:    make(map[string]float64),
		StartingVal: startingCash,
		TotalValue:  startingCash,
	}
}

// Trade is an executed swap. It is never mutated after creation.
type Trade struct {
	ID          string    `json:"trade_id"`
	Token       string    `json:"token"`
	AgentID     string    `json:"agent_id"`
	Action      string    `json:"action"` // "BUY" or "SELL"
	Qty         float64   `json:"qty"`
	Price       float64   `json:"price"`
	Confidence  float64   `json:"confidence"`
	Summary     string    `json:"summary"`
	Timestamp   time.Time `json:"timestamp"`
	TxHash      string    `json:"tx_hash,omitempty"`
	RealizedPnL *float64  `json:"realized_pnl,omitempty"`
	ROI         *float64  `json:"roi,omitempty"`
}

// Value returns qty * price.
func (t Trade) Value() float64 {
	return t.Qty * t.Price
}

// WithOutcome returns a copy of the trade carrying realized PnL and ROI.
func (t Trade) WithOutcome(pnl, roi float64) Trade {
	t.RealizedPnL = &pnl
	t.ROI = &roi
	return t
}

// Tournament is a time-boxed competition
type Tournament struct {
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	Status        string          `db:"status"` // upcoming, live, completed
	StartDate     time.Time       `db:"start_date"`
	EndDate       time.Time       `db:"end_date"`
	PrizePool     decimal.Decimal `db:"prize_pool"`
	WinnerAgentID string          `db:"winner_agent_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Enrollment is an agent taking part in a tournament
type Enrollment struct {
	TournamentID string  `db:"tournament_id"`
	AgentID      string  `db:"agent_id"`
	Name         string  `db:"name"`
	Personality  string  `db:"personality"`
	RiskScore    float64 `db:"risk_score"`
}

// MarketData is the market context handed to the decision engine
type MarketData struct {
	Prices    map[string]float64 `json:"prices"`
	Sentiment string             `json:"sentiment"`
	Timestamp time.Time          `json:"timestamp"`
}

// Performance is a flat reporting projection of a portfolio
type Performance struct {
	AgentID          string  `json:"agent_id"`
	TournamentID     string  `json:"tournament_id"`
	Cash             float64 `json:"cash"`
	HoldingsValue    float64 `json:"holdings_value"`
	TotalValue       float64 `json:"total_value"`
	StartingValue    float64 `json:"starting_value"`
	RealizedPnL      float64 `json:"realized_pnl"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	ROI              float64 `json:"roi"`
	ROIPercent       float64 `json:"roi_percent"`
	NumTrades        int     `json:"num_trades"`
	NumWinningTrades int     `json:"num_winning_trades"`
	NumLosingTrades  int     `json:"num_losing_trades"`
	WinRate          float64 `json:"win_rate"`
	WinRatePercent   float64 `json:"win_rate_percent"`
}

// SwapRequest asks the swap executor to trade Amount units of FromToken
// (whole units, not smallest units) for ToToken.
type SwapRequest struct {
	AgentID     string  `json:"agent_id"`
	FromToken   string  `json:"from_token"`
	ToToken     string  `json:"to_token"`
	Amount      float64 `json:"amount"`
	SlippageBps int     `json:"slippage_bps"`
}

// SwapResult is a filled swap. AmountOut is in the smallest unit of ToToken.
type SwapResult struct {
	TxHash    string          `json:"tx_hash"`
	AmountOut decimal.Decimal `json:"amount_out"`
}
