// Package execution is the trade gate: it validates proposed trades,
// executes them through a swap executor and produces Trade records.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/policy"
	"github.com/kirillm/agent-arena/pkg/id"
	"github.com/kirillm/agent-arena/pkg/utils"
)

var (
	ErrKillSwitchActive = fmt.Errorf("kill switch is active: %w", domain.ErrEmergencyStop)
	ErrInvalidAction    = errors.New("invalid action")
	ErrUnsupportedToken = errors.New("unsupported token")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrSlippageTooHigh  = errors.New("slippage exceeds threshold")
	ErrZeroFill         = errors.New("swap filled zero quantity")
)

// ExecutionError wraps any failure between the gate and the swap executor
type ExecutionError struct {
	Action string
	Token  string
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("trade execution failed: %s %s: %v", e.Action, e.Token, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// SwapExecutor performs an on-chain (or simulated) swap
type SwapExecutor interface {
	Swap(ctx context.Context, req domain.SwapRequest) (*domain.SwapResult, error)
}

// Recorder receives execution outcomes, e.g. for metrics
type Recorder interface {
	TradeExecuted(action, token string)
	TradeFailed(action, token string)
	SlippageExceeded(token string)
}

type nopRecorder struct{}

func (nopRecorder) TradeExecuted(string, string) {}
func (nopRecorder) TradeFailed(string, string)   {}
func (nopRecorder) SlippageExceeded(string)      {}

// Order is a trade the gate is asked to execute. Amount is the quote
// currency to spend for BUY and the token quantity for SELL.
type Order struct {
	AgentID     string
	Action      string
	Token       string
	Amount      float64
	QuotedPrice float64
	Confidence  float64
	Summary     string
}

// Gate validates and executes trades. It is safe for concurrent use by
// many agent runtimes; it keeps no per-agent state.
type Gate struct {
	policy     *policy.Policy
	swapper    SwapExecutor
	killSwitch *KillSwitch
	slippage   *SlippageGuard
	recorder   Recorder
	logger     *utils.Logger
	now        func() time.Time
}

// NewGate creates a trade gate. killSwitch may be nil.
func NewGate(p *policy.Policy, swapper SwapExecutor, killSwitch *KillSwitch, logger *utils.Logger) *Gate {
	if logger == nil {
		logger = utils.Default()
	}
	if killSwitch == nil {
		killSwitch = NewKillSwitch(logger)
	}
	return &Gate{
		policy:     p,
		swapper:    swapper,
		killSwitch: killSwitch,
		slippage:   NewSlippageGuard(p.SlippageThreshold),
		recorder:   nopRecorder{},
		logger:     logger,
		now:        time.Now,
	}
}

// SetRecorder installs an outcome recorder
func (g *Gate) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	g.recorder = r
}

// SetClock overrides the trade timestamp source
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

func (g *Gate) KillSwitch() *KillSwitch {
	return g.killSwitch
}

// Validate decides whether a proposed trade may proceed against p.
// For BUY amount is the quote-currency spend; for SELL it is the quantity.
func (g *Gate) Validate(action, token string, amount, price float64, p *domain.Portfolio, riskScore float64) (bool, string) {
	action = strings.ToUpper(action)
	token = strings.ToUpper(token)

	if action != domain.ActionBuy && action != domain.ActionSell {
		return false, fmt.Sprintf("Invalid action: %s", action)
	}
	if !g.policy.IsTradable(token) {
		return false, fmt.Sprintf("Unsupported token: %s. Only %s allowed",
			token, strings.Join(g.policy.TradableTokens(), ", "))
	}
	if !(amount > 0) {
		return false, fmt.Sprintf("Invalid amount: %v. Must be positive", amount)
	}

	switch action {
	case domain.ActionBuy:
		if amount > p.Cash {
			return false, fmt.Sprintf("Insufficient cash: have $%.2f, need $%.2f", p.Cash, amount)
		}
		maxTradeSize := p.TotalValue * riskScore
		if amount > maxTradeSize {
			return false, fmt.Sprintf("Trade size $%.2f exceeds risk limit $%.2f", amount, maxTradeSize)
		}
	case domain.ActionSell:
		held := p.Holdings[token]
		if amount > held {
			return false, fmt.Sprintf("Insufficient %s holdings: have %.8f, need %.8f", token, held, amount)
		}
	}

	return true, fmt.Sprintf("Trade validated: %s %v %s", action, amount, token)
}

// Execute runs the swap for o and returns the resulting trade. Every
// failure comes back as *ExecutionError; nothing is retried here.
func (g *Gate) Execute(ctx context.Context, o Order) (domain.Trade, error) {
	action := strings.ToUpper(o.Action)
	token := strings.ToUpper(o.Token)

	fail := func(cause error) (domain.Trade, error) {
		g.recorder.TradeFailed(action, token)
		g.logger.Error("Trade execution failed for %s: %s %s: %v", o.AgentID, action, token, cause)
		return domain.Trade{}, &ExecutionError{Action: action, Token: token, Cause: cause}
	}

	if action != domain.ActionBuy && action != domain.ActionSell {
		return fail(fmt.Errorf("%w: %s", ErrInvalidAction, action))
	}
	if !g.policy.IsTradable(token) {
		return fail(fmt.Errorf("%w: %s", ErrUnsupportedToken, token))
	}
	if !(o.Amount > 0) {
		return fail(fmt.Errorf("%w: %v", ErrInvalidAmount, o.Amount))
	}
	if g.killSwitch.IsActive() {
		return fail(ErrKillSwitchActive)
	}

	g.logger.Info("Executing %s trade: %v %s for agent %s", action, o.Amount, token, o.AgentID)

	var qty, price float64
	var res *domain.SwapResult
	var err error

	switch action {
	case domain.ActionBuy:
		res, err = g.swap(ctx, o.AgentID, g.policy.QuoteToken, token, o.Amount)
		if err != nil {
			return fail(err)
		}
		qty, err = g.toUnits(token, res)
		if err != nil {
			return fail(err)
		}
		if qty > 0 {
			price = o.Amount / qty
		}
		g.logger.Info("BUY completed: received %.8f %s at %.6f %s/%s", qty, token, price, g.policy.QuoteToken, token)

	case domain.ActionSell:
		res, err = g.swap(ctx, o.AgentID, token, g.policy.QuoteToken, o.Amount)
		if err != nil {
			return fail(err)
		}
		received, err := g.toUnits(g.policy.QuoteToken, res)
		if err != nil {
			return fail(err)
		}
		qty = o.Amount
		price = received / qty
		g.logger.Info("SELL completed: sold %.8f %s for %.6f %s at %.6f", qty, token, received, g.policy.QuoteToken, price)
	}

	if qty <= 0 || price <= 0 {
		return fail(fmt.Errorf("%w (tx %s)", ErrZeroFill, res.TxHash))
	}

	if o.QuotedPrice > 0 {
		if err := g.slippage.CheckSlippage(price, o.QuotedPrice); err != nil {
			g.recorder.SlippageExceeded(token)
			g.logger.Warn("Fill for %s %s deviates from quote %.6f: %v", action, token, o.QuotedPrice, err)
		}
	}

	ts := g.now().UTC()
	trade := domain.Trade{
		ID:         id.NewAt(ts),
		Token:      token,
		AgentID:    o.AgentID,
		Action:     action,
		Qty:        qty,
		Price:      price,
		Confidence: o.Confidence,
		Summary:    o.Summary,
		Timestamp:  ts,
		TxHash:     res.TxHash,
	}

	g.recorder.TradeExecuted(action, token)
	g.logger.Debug("Trade created: trade_id=%s, tx_hash=%s", trade.ID, trade.TxHash)
	return trade, nil
}

func (g *Gate) swap(ctx context.Context, agentID, from, to string, amount float64) (*domain.SwapResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := g.swapper.Swap(ctx, domain.SwapRequest{
		AgentID:     agentID,
		FromToken:   from,
		ToToken:     to,
		Amount:      amount,
		SlippageBps: g.policy.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("swap %s->%s: %w", from, to, err)
	}
	if res == nil {
		return nil, fmt.Errorf("swap %s->%s: empty result", from, to)
	}
	return res, nil
}

// toUnits converts the smallest-unit output amount into whole token units
func (g *Gate) toUnits(token string, res *domain.SwapResult) (float64, error) {
	decimals, ok := g.policy.Decimals(token)
	if !ok {
		return 0, fmt.Errorf("%w: no decimals for %s", ErrUnsupportedToken, token)
	}
	if res.AmountOut.IsNegative() {
		return 0, fmt.Errorf("swap returned negative amount_out %s", res.AmountOut)
	}
	return res.AmountOut.Shift(-int32(decimals)).InexactFloat64(), nil
}
