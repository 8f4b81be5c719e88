package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirillm/agent-arena/internal/domain"
)

func buy(token string, qty, price float64) domain.Trade {
	return domain.Trade{Token: token, Action: domain.ActionBuy, Qty: qty, Price: price}
}

func TestAveragePriceAndPnL(t *testing.T) {
	history := []domain.Trade{
		buy("WETH", 1.0, 3000),
		buy("WETH", 2.0, 3300),
		buy("CBBTC", 0.1, 60000),
		{Token: "WETH", Action: domain.ActionSell, Qty: 0.5, Price: 5000},
	}
	sell := domain.Trade{Token: "WETH", Action: domain.ActionSell, Qty: 1.5, Price: 3500}

	assert.Equal(t, 3200.0, AvgBuyPrice("WETH", history))
	assert.Equal(t, 450.0, CalculateRealizedPnL(sell, history))
	assert.InDelta(t, 0.09375, CalculateROI(sell, history), 1e-12)
}

func TestPnLWithoutCostBasis(t *testing.T) {
	sell := domain.Trade{Token: "WETH", Action: domain.ActionSell, Qty: 1, Price: 3500}

	tests := []struct {
		name    string
		history []domain.Trade
	}{
		{"empty history", nil},
		{"other token only", []domain.Trade{buy("CBBTC", 1, 100)}},
		{"zero quantity buys", []domain.Trade{buy("WETH", 0, 100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Zero(t, AvgBuyPrice("WETH", tt.history))
			assert.Zero(t, CalculateRealizedPnL(sell, tt.history))
			assert.Zero(t, CalculateROI(sell, tt.history))
		})
	}
}

func TestLosingSell(t *testing.T) {
	history := []domain.Trade{buy("WETH", 2, 3000)}
	sell := domain.Trade{Token: "WETH", Action: domain.ActionSell, Qty: 1, Price: 2700}

	assert.Equal(t, -300.0, CalculateRealizedPnL(sell, history))
	assert.InDelta(t, -0.1, CalculateROI(sell, history), 1e-12)
}
