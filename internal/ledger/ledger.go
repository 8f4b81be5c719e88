// Package ledger keeps a portfolio's cash, holdings and derived metrics
// consistent as trades are applied and prices move.
package ledger

import (
	"strings"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// Ledger mutates a single portfolio. It does no I/O and trusts its input;
// solvency is checked by the trade gate before a trade reaches here.
type Ledger struct {
	portfolio *domain.Portfolio
	logger    *utils.Logger
}

// New wraps portfolio. A nil logger falls back to the package default.
func New(portfolio *domain.Portfolio, logger *utils.Logger) *Ledger {
	if logger == nil {
		logger = utils.Default()
	}
	if portfolio.Holdings == nil {
		portfolio.Holdings = make(map[string]float64)
	}
	return &Ledger{portfolio: portfolio, logger: logger}
}

// Portfolio returns the live portfolio. Callers outside the owning runtime
// should use Snapshot instead.
func (l *Ledger) Portfolio() *domain.Portfolio {
	return l.portfolio
}

// ApplyTrade books a committed trade. A trade for another agent is skipped
// with a warning.
func (l *Ledger) ApplyTrade(trade domain.Trade) {
	pf := l.portfolio
	if trade.AgentID != pf.AgentID {
		l.logger.Warn("trade agent_id %s doesn't match portfolio agent_id %s, skipping", trade.AgentID, pf.AgentID)
		return
	}

	value := trade.Qty * trade.Price

	switch trade.Action {
	case domain.ActionBuy:
		pf.Cash -= value
		pf.Holdings[trade.Token] += trade.Qty
		l.logger.Debug("BUY: cash -%.6f, %s holdings now %.8f", value, trade.Token, pf.Holdings[trade.Token])
	case domain.ActionSell:
		pf.Cash += value
		remaining := pf.Holdings[trade.Token] - trade.Qty
		if remaining > 0 {
			pf.Holdings[trade.Token] = remaining
			l.logger.Debug("SELL: cash +%.6f, %s holdings now %.8f", value, trade.Token, remaining)
		} else {
			delete(pf.Holdings, trade.Token)
			l.logger.Debug("SELL: cash +%.6f, %s position closed", value, trade.Token)
		}
	}

	if trade.RealizedPnL != nil {
		pnl := *trade.RealizedPnL
		pf.RealizedPnL += pnl
		if pnl > 0 {
			pf.NumWinningTrades++
		} else if pnl < 0 {
			pf.NumLosingTrades++
		}
	}

	pf.NumTrades++
	l.recomputeDerived()

	l.logger.Info("Portfolio %s updated: total_value=%.2f cash=%.2f trades=%d",
		pf.AgentID, pf.TotalValue, pf.Cash, pf.NumTrades)
}

// Revalue prices every holding against prices (symbol lookup is
// case-insensitive). Holdings without a price are left out of the sum.
func (l *Ledger) Revalue(prices map[string]float64) {
	pf := l.portfolio

	normalized := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		normalized[strings.ToUpper(symbol)] = price
	}

	total := 0.0
	for symbol, qty := range pf.Holdings {
		price, ok := normalized[strings.ToUpper(symbol)]
		if !ok {
			l.logger.Warn("No market price found for %s", symbol)
			continue
		}
		total += qty * price
	}

	pf.HoldingsVal = total
	l.recomputeDerived()
}

// Snapshot returns a deep copy of the portfolio.
func (l *Ledger) Snapshot() *domain.Portfolio {
	return Copy(l.portfolio)
}

// TotalValue returns cash plus holdings value.
func (l *Ledger) TotalValue() float64 {
	return l.portfolio.TotalValue
}

func (l *Ledger) recomputeDerived() {
	pf := l.portfolio
	pf.TotalValue = pf.Cash + pf.HoldingsVal

	if pf.StartingVal > 0 {
		pf.ROI = (pf.TotalValue - pf.StartingVal) / pf.StartingVal
	} else {
		pf.ROI = 0
	}

	if pf.NumTrades > 0 {
		pf.WinRate = float64(pf.NumWinningTrades) / float64(pf.NumTrades)
	} else {
		pf.WinRate = 0
	}

	pf.UnrealizedPnL = (pf.TotalValue - pf.StartingVal) - pf.RealizedPnL
}

// Copy returns an independent copy of p.
func Copy(p *domain.Portfolio) *domain.Portfolio {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Holdings = make(map[string]float64, len(p.Holdings))
	for symbol, qty := range p.Holdings {
		cp.Holdings[symbol] = qty
	}
	return &cp
}
