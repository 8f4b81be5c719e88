package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirillm/agent-arena/internal/domain"
)

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name                     string
		total, risk, conf, maxFr float64
		want                     float64
	}{
		{"scaled by risk and confidence", 1000, 0.5, 0.6, 0.5, 300},
		{"capped", 1000, 0.9, 0.9, 0.5, 500},
		{"zero confidence", 1000, 0.5, 0, 0.5, 0},
		{"empty portfolio", 0, 0.5, 1, 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PositionSize(tt.total, tt.risk, tt.conf, tt.maxFr), 1e-9)
		})
	}
}

func TestPersonalityLine(t *testing.T) {
	tr := domain.Trade{Action: domain.ActionBuy, Token: "WETH"}

	assert.Contains(t, PersonalityLine("Aggressive", tr), "Going big or going home")
	assert.Contains(t, PersonalityLine("conservative", tr), "Slow and steady")
	assert.Equal(t, "Executed BUY on WETH based on market analysis.", PersonalityLine("balanced", tr))
}

func TestPerformanceProjection(t *testing.T) {
	p := domain.NewPortfolio("agent_7", 500)
	p.TotalValue = 550
	p.ROI = 0.1
	p.NumTrades = 4
	p.NumWinningTrades = 3
	p.WinRate = 0.75

	perf := Performance("tour_9", p)

	assert.Equal(t, "agent_7", perf.AgentID)
	assert.Equal(t, "tour_9", perf.TournamentID)
	assert.InDelta(t, 10.0, perf.ROIPercent, 1e-9)
	assert.InDelta(t, 75.0, perf.WinRatePercent, 1e-9)
	assert.Equal(t, 550.0, perf.TotalValue)
}
