package ledger

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/pkg/utils"
)

const eps = 1e-9

func newTestLedger(cash float64) *Ledger {
	return New(domain.NewPortfolio("agent_1", cash), utils.NewLoggerWithWriter("error", &bytes.Buffer{}))
}

func trade(action, token string, qty, price float64) domain.Trade {
	return domain.Trade{
		ID:        "t",
		AgentID:   "agent_1",
		Token:     token,
		Action:    action,
		Qty:       qty,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
}

func assertInvariants(t *testing.T, p *domain.Portfolio) {
	t.Helper()
	assert.InDelta(t, p.Cash+p.HoldingsVal, p.TotalValue, eps, "total_value == cash + holdings_val")
	assert.InDelta(t, (p.TotalValue-p.StartingVal)-p.RealizedPnL, p.UnrealizedPnL, eps)
	assert.LessOrEqual(t, p.NumWinningTrades+p.NumLosingTrades, p.NumTrades)
	if p.NumTrades > 0 {
		assert.InDelta(t, float64(p.NumWinningTrades)/float64(p.NumTrades), p.WinRate, eps)
	} else {
		assert.Zero(t, p.WinRate)
	}
	for symbol, qty := range p.Holdings {
		assert.Greater(t, qty, 0.0, "holding %s must be positive", symbol)
	}
}

func TestApplyTradeBuyAndSell(t *testing.T) {
	l := newTestLedger(10000)

	l.ApplyTrade(trade(domain.ActionBuy, "WETH", 1.0, 3000))
	p := l.Portfolio()
	assert.InDelta(t, 7000.0, p.Cash, eps)
	assert.InDelta(t, 1.0, p.Holdings["WETH"], eps)
	assert.Equal(t, 1, p.NumTrades)
	assertInvariants(t, p)

	l.ApplyTrade(trade(domain.ActionBuy, "WETH", 0.5, 3200))
	assert.InDelta(t, 5400.0, p.Cash, eps)
	assert.InDelta(t, 1.5, p.Holdings["WETH"], eps)

	sell := trade(domain.ActionSell, "WETH", 0.5, 3500).WithOutcome(200, 0.1)
	l.ApplyTrade(sell)
	assert.InDelta(t, 7150.0, p.Cash, eps)
	assert.InDelta(t, 1.0, p.Holdings["WETH"], eps)
	assert.InDelta(t, 200.0, p.RealizedPnL, eps)
	assert.Equal(t, 1, p.NumWinningTrades)
	assert.Equal(t, 0, p.NumLosingTrades)
	assert.Equal(t, 3, p.NumTrades)
	assertInvariants(t, p)
}

func TestApplyTradeSellRemovesEmptyPosition(t *testing.T) {
	tests := []struct {
		name    string
		held    float64
		sellQty float64
	}{
		{"exact close", 2.0, 2.0},
		{"oversell", 1.0, 1.5},
		{"absent symbol", 0, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(1000)
			if tt.held > 0 {
				l.Portfolio().Holdings["CBBTC"] = tt.held
			}

			l.ApplyTrade(trade(domain.ActionSell, "CBBTC", tt.sellQty, 100))

			_, ok := l.Portfolio().Holdings["CBBTC"]
			assert.False(t, ok, "key must be removed")
			assertInvariants(t, l.Portfolio())
		})
	}
}

func TestApplyTradeLosingAndFlatOutcomes(t *testing.T) {
	l := newTestLedger(1000)
	l.Portfolio().Holdings["WETH"] = 3

	l.ApplyTrade(trade(domain.ActionSell, "WETH", 1, 90).WithOutcome(-10, -0.1))
	l.ApplyTrade(trade(domain.ActionSell, "WETH", 1, 100).WithOutcome(0, 0))
	l.ApplyTrade(trade(domain.ActionBuy, "WETH", 1, 100))

	p := l.Portfolio()
	assert.Equal(t, 3, p.NumTrades)
	assert.Equal(t, 0, p.NumWinningTrades)
	assert.Equal(t, 1, p.NumLosingTrades)
	assert.InDelta(t, -10.0, p.RealizedPnL, eps)
	assert.Zero(t, p.WinRate)
	assertInvariants(t, p)
}

func TestApplyTradeForeignAgentIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	l := New(domain.NewPortfolio("agent_1", 500), utils.NewLoggerWithWriter("warn", &buf))
	before := l.Snapshot()

	foreign := trade(domain.ActionBuy, "WETH", 1, 100)
	foreign.AgentID = "agent_2"
	l.ApplyTrade(foreign)

	assert.Equal(t, before, l.Portfolio())
	assert.Contains(t, buf.String(), "doesn't match")
}

func TestRevalue(t *testing.T) {
	var buf bytes.Buffer
	l := New(domain.NewPortfolio("agent_1", 1000), utils.NewLoggerWithWriter("warn", &buf))
	p := l.Portfolio()
	p.Holdings["WETH"] = 2
	p.Holdings["CBBTC"] = 0.1
	p.Holdings["DOGE"] = 100

	l.Revalue(map[string]float64{"weth": 3000, "CbBtc": 60000})

	assert.InDelta(t, 12000.0, p.HoldingsVal, eps)
	assert.InDelta(t, 13000.0, p.TotalValue, eps)
	assert.InDelta(t, 12.0, p.ROI, eps)
	assert.InDelta(t, 100.0, p.Holdings["DOGE"], eps, "unpriced holding is kept")
	assert.Contains(t, buf.String(), "No market price found for DOGE")
	assertInvariants(t, p)
}

func TestRevalueZeroStartingValue(t *testing.T) {
	l := newTestLedger(0)
	l.Portfolio().Holdings["WETH"] = 1

	l.Revalue(map[string]float64{"WETH": 10})

	assert.Zero(t, l.Portfolio().ROI)
	assert.InDelta(t, 10.0, l.TotalValue(), eps)
}

func TestSnapshotIsIndependent(t *testing.T) {
	l := newTestLedger(1000)
	l.ApplyTrade(trade(domain.ActionBuy, "WETH", 1, 100))

	snap := l.Snapshot()
	require.Equal(t, l.Portfolio(), snap)

	snap.Cash = 1
	snap.Holdings["WETH"] = 99
	snap.Holdings["CBBTC"] = 5

	assert.InDelta(t, 900.0, l.Portfolio().Cash, eps)
	assert.InDelta(t, 1.0, l.Portfolio().Holdings["WETH"], eps)
	assert.NotContains(t, l.Portfolio().Holdings, "CBBTC")
}

func TestInvariantsHoldAcrossTradeSequence(t *testing.T) {
	l := newTestLedger(10000)
	prices := []float64{3000, 3100, 2950, 3300, 3050, 3400}

	for i, px := range prices {
		if i%2 == 0 {
			l.ApplyTrade(trade(domain.ActionBuy, "WETH", 0.25, px))
		} else {
			pnl := (px - prices[i-1]) * 0.1
			l.ApplyTrade(trade(domain.ActionSell, "WETH", 0.1, px).WithOutcome(pnl, pnl/(prices[i-1]*0.1)))
		}
		assertInvariants(t, l.Portfolio())

		l.Revalue(map[string]float64{"WETH": px})
		assertInvariants(t, l.Portfolio())
	}

	assert.Equal(t, len(prices), l.Portfolio().NumTrades)
	assert.False(t, math.IsNaN(l.Portfolio().ROI))
}
