package agent

import (
	"fmt"
	"math"
	"strings"

	"github.com/kirillm/agent-arena/internal/domain"
)

// Performance projects a portfolio into the flat reporting structure
func Performance(tournamentID string, p *domain.Portfolio) domain.Performance {
	return domain.Performance{
		AgentID:          p.AgentID,
		TournamentID:     tournamentID,
		Cash:             p.Cash,
		HoldingsValue:    p.HoldingsVal,
		TotalValue:       p.TotalValue,
		StartingValue:    p.StartingVal,
		RealizedPnL:      p.RealizedPnL,
		UnrealizedPnL:    p.UnrealizedPnL,
		ROI:              p.ROI,
		ROIPercent:       p.ROI * 100,
		NumTrades:        p.NumTrades,
		NumWinningTrades: p.NumWinningTrades,
		NumLosingTrades:  p.NumLosingTrades,
		WinRate:          p.WinRate,
		WinRatePercent:   p.WinRate * 100,
	}
}

// PositionSize returns the quote-currency amount to commit:
// totalValue * min(riskScore*confidence, maxFraction).
func PositionSize(totalValue, riskScore, confidence, maxFraction float64) float64 {
	allocation := math.Min(riskScore*confidence, maxFraction)
	if allocation <= 0 || totalValue <= 0 {
		return 0
	}
	return totalValue * allocation
}

// PersonalityLine is the agent's one-line commentary on a trade
func PersonalityLine(personality string, t domain.Trade) string {
	switch strings.ToLower(personality) {
	case "aggressive":
		return fmt.Sprintf("🚀 Just executed a %s on %s! Going big or going home!", t.Action, t.Token)
	case "conservative":
		return fmt.Sprintf("Carefully executed a %s on %s. Slow and steady wins the race.", t.Action, t.Token)
	default:
		return fmt.Sprintf("Executed %s on %s based on market analysis.", t.Action, t.Token)
	}
}
