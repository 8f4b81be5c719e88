package execution

import "github.com/kirillm/agent-arena/internal/domain"

// AvgBuyPrice is the volume-weighted average price of BUY trades for token
// in history, or 0 when there are none.
func AvgBuyPrice(token string, history []domain.Trade) float64 {
	var totalQty, totalCost float64
	for _, t := range history {
		if t.Token != token || t.Action != domain.ActionBuy {
			continue
		}
		totalQty += t.Qty
		totalCost += t.Qty * t.Price
	}
	if totalQty == 0 {
		return 0
	}
	return totalCost / totalQty
}

// CalculateRealizedPnL returns (sell price - avg buy price) * qty.
// Without a cost basis the PnL is 0.
func CalculateRealizedPnL(sell domain.Trade, history []domain.Trade) float64 {
	avg := AvgBuyPrice(sell.Token, history)
	if avg == 0 {
		return 0
	}
	return (sell.Price - avg) * sell.Qty
}

// CalculateROI returns realized PnL over the invested amount.
func CalculateROI(sell domain.Trade, history []domain.Trade) float64 {
	avg := AvgBuyPrice(sell.Token, history)
	invested := avg * sell.Qty
	if invested == 0 {
		return 0
	}
	return (sell.Price - avg) * sell.Qty / invested
}
