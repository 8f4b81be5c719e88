package cmd

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/scheduler"
)

func TestParseAgent(t *testing.T) {
	tests := []struct {
		name        string
		arg         string
		wantName    string
		personality string
		risk        float64
		wantErr     bool
	}{
		{"name and personality", "Bull:aggressive", "Bull", "aggressive", 0, false},
		{"explicit risk", "Turtle:conservative:0.2", "Turtle", "conservative", 0.2, false},
		{"missing personality", "Bull", "", "", 0, true},
		{"empty name", ":aggressive", "", "", 0, true},
		{"too many parts", "a:b:0.1:x", "", "", 0, true},
		{"risk not a number", "Bull:aggressive:high", "", "", 0, true},
		{"risk above one", "Bull:aggressive:1.5", "", "", 0, true},
		{"zero risk", "Bull:aggressive:0", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := parseAgent("tour_1", tt.arg)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "tour_1", e.TournamentID)
			assert.NotEmpty(t, e.AgentID)
			assert.Equal(t, tt.wantName, e.Name)
			assert.Equal(t, tt.personality, e.Personality)
			assert.Equal(t, tt.risk, e.RiskScore)
		})
	}
}

func TestSortedByRank(t *testing.T) {
	states := []domain.AgentState{
		{AgentID: "a", TotalValue: decimal.NewFromInt(500)},
		{AgentID: "b", TotalValue: decimal.NewFromInt(1500)},
		{AgentID: "c", TotalValue: decimal.NewFromInt(1000)},
	}

	sorted := sortedByRank(states, scheduler.ComputeRanks(states))

	ids := make([]string, len(sorted))
	for i, st := range sorted {
		ids[i] = st.AgentID
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}
