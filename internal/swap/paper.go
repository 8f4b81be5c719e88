package swap

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/policy"
	"github.com/kirillm/agent-arena/pkg/id"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// PriceSource prices a token in the quote currency
type PriceSource interface {
	Price(ctx context.Context, token string) (float64, error)
}

// Paper fills swaps at the current market price less a pool fee. Nothing
// leaves the process.
type Paper struct {
	prices PriceSource
	policy *policy.Policy
	feeBps int
	logger *utils.Logger
}

// NewPaper creates a simulated executor charging feeBps per swap
func NewPaper(prices PriceSource, p *policy.Policy, feeBps int, logger *utils.Logger) *Paper {
	if logger == nil {
		logger = utils.Default()
	}
	return &Paper{
		prices: prices,
		policy: p,
		feeBps: feeBps,
		logger: logger.Named("paper"),
	}
}

// Swap converts req.Amount of FromToken into ToToken at market prices
func (s *Paper) Swap(ctx context.Context, req domain.SwapRequest) (*domain.SwapResult, error) {
	if req.Amount <= 0 {
		return nil, &Error{Message: fmt.Sprintf("invalid amount %v", req.Amount)}
	}

	fromPrice, err := s.price(ctx, req.FromToken)
	if err != nil {
		return nil, err
	}
	toPrice, err := s.price(ctx, req.ToToken)
	if err != nil {
		return nil, err
	}

	decimals, ok := s.policy.Decimals(req.ToToken)
	if !ok {
		return nil, &Error{Message: "unknown token " + req.ToToken}
	}

	fee := decimal.New(int64(10000-s.feeBps), -4)
	out := decimal.NewFromFloat(req.Amount).
		Mul(decimal.NewFromFloat(fromPrice)).
		Div(decimal.NewFromFloat(toPrice)).
		Mul(fee).
		Shift(int32(decimals)).
		Floor()

	txHash := "paper-" + strings.ToLower(id.New())
	s.logger.Debug("Paper swap %v %s -> %s %s (raw) tx=%s", req.Amount, req.FromToken, out, req.ToToken, txHash)
	return &domain.SwapResult{TxHash: txHash, AmountOut: out}, nil
}

func (s *Paper) price(ctx context.Context, token string) (float64, error) {
	if strings.EqualFold(token, s.policy.QuoteToken) {
		return 1, nil
	}
	price, err := s.prices.Price(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("paper swap has no price for %s: %w", token, err)
	}
	if price <= 0 {
		return 0, &Error{Message: fmt.Sprintf("non-positive price for %s", token)}
	}
	return price, nil
}
