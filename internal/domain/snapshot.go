package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentState is the persisted snapshot of one agent in one tournament.
// Money fields are decimals so a save/load round trip is exact.
type AgentState struct {
	AgentID          string                     `json:"agent_id"`
	TournamentID     string                     `json:"tournament_id"`
	Cash             decimal.Decimal            `json:"cash"`
	Holdings         map[string]decimal.Decimal `json:"holdings"`
	StartingVal      decimal.Decimal            `json:"starting_val"`
	HoldingsVal      decimal.Decimal            `json:"holdings_val"`
	TotalValue       decimal.Decimal            `json:"total_value"`
	RealizedPnL      decimal.Decimal            `json:"realized_pnl"`
	UnrealizedPnL    decimal.Decimal            `json:"unrealized_pnl"`
	ROI              decimal.Decimal            `json:"roi"`
	NumTrades        int                        `json:"num_trades"`
	NumWinningTrades int                        `json:"num_winning_trades"`
	NumLosingTrades  int                        `json:"num_losing_trades"`
	WinRate          decimal.Decimal            `json:"win_rate"`
	Rank             int                        `json:"rank"`
	TradesCount      int                        `json:"trades_count"`
	LastDecision     string                     `json:"last_decision"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// NewAgentState converts a live portfolio into its persisted form.
func NewAgentState(tournamentID string, p *Portfolio, rank int, lastDecision string, updatedAt time.Time) *AgentState {
	holdings := make(map[string]decimal.Decimal, len(p.Holdings))
	for symbol, qty := range p.Holdings {
		holdings[symbol] = decimal.NewFromFloat(qty)
	}

	return &AgentState{
		AgentID:          p.AgentID,
		TournamentID:     tournamentID,
		Cash:             decimal.NewFromFloat(p.Cash),
		Holdings:         holdings,
		StartingVal:      decimal.NewFromFloat(p.StartingVal),
		HoldingsVal:      decimal.NewFromFloat(p.HoldingsVal),
		TotalValue:       decimal.NewFromFloat(p.TotalValue),
		RealizedPnL:      decimal.NewFromFloat(p.RealizedPnL),
		UnrealizedPnL:    decimal.NewFromFloat(p.UnrealizedPnL),
		ROI:              decimal.NewFromFloat(p.ROI),
		NumTrades:        p.NumTrades,
		NumWinningTrades: p.NumWinningTrades,
		NumLosingTrades:  p.NumLosingTrades,
		WinRate:          decimal.NewFromFloat(p.WinRate),
		Rank:             rank,
		TradesCount:      p.NumTrades,
		LastDecision:     lastDecision,
		UpdatedAt:        updatedAt.UTC(),
	}
}

// Portfolio rebuilds the in-memory portfolio from the snapshot.
func (s *AgentState) Portfolio() *Portfolio {
	holdings := make(map[string]float64, len(s.Holdings))
	for symbol, qty := range s.Holdings {
		if q := qty.InexactFloat64(); q > 0 {
			holdings[symbol] = q
		}
	}

	return &Portfolio{
		AgentID:          s.AgentID,
		Cash:             s.Cash.InexactFloat64(),
		Holdings:         holdings,
		StartingVal:      s.StartingVal.InexactFloat64(),
		HoldingsVal:      s.HoldingsVal.InexactFloat64(),
		UnrealizedPnL:    s.UnrealizedPnL.InexactFloat64(),
		RealizedPnL:      s.RealizedPnL.InexactFloat64(),
		TotalValue:       s.TotalValue.InexactFloat64(),
		NumTrades:        s.NumTrades,
		NumWinningTrades: s.NumWinningTrades,
		NumLosingTrades:  s.NumLosingTrades,
		WinRate:          s.WinRate.InexactFloat64(),
		ROI:              s.ROI.InexactFloat64(),
	}
}

// IsStale reports whether the snapshot has not been written within threshold.
func (s *AgentState) IsStale(now time.Time, threshold time.Duration) bool {
	return s.UpdatedAt.Before(now.Add(-threshold))
}
