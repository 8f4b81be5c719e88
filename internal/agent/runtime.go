// Package agent runs one agent's decision cycle: decide, validate,
// execute, apply and persist.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/execution"
	"github.com/kirillm/agent-arena/internal/ledger"
	"github.com/kirillm/agent-arena/internal/memory"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// DefaultTask is handed to the decision engine when a cycle has no task
const DefaultTask = "Analyze current market conditions and portfolio state. " +
	"Decide if any trades should be executed based on your personality and risk tolerance. " +
	"If you decide to trade, execute it. If not, explain why."

// persistTimeout bounds the end-of-cycle write, which runs even after the
// cycle context has expired.
const persistTimeout = 10 * time.Second

// State is a step of the decision cycle
type State string

const (
	StateIdle       State = "IDLE"
	StateRecovering State = "RECOVERING"
	StateDeciding   State = "DECIDING"
	StateValidating State = "VALIDATING"
	StateExecuting  State = "EXECUTING"
	StatePersisting State = "PERSISTING"
)

// TradeGate validates and executes trades
type TradeGate interface {
	Validate(action, token string, amount, price float64, p *domain.Portfolio, riskScore float64) (bool, string)
	Execute(ctx context.Context, o execution.Order) (domain.Trade, error)
}

// DecisionEngine proposes at most one trade per cycle
type DecisionEngine interface {
	Propose(ctx context.Context, req domain.DecisionRequest) (*domain.Proposal, error)
}

// MarketProvider supplies prices and sentiment
type MarketProvider interface {
	Price(ctx context.Context, token string) (float64, error)
	Sentiment(ctx context.Context) (string, error)
}

// Profile identifies an agent in a tournament and its trading temperament
type Profile struct {
	AgentID        string
	TournamentID   string
	Personality    string
	RiskScore      float64
	StartingCash   float64
	TradableTokens []string
	// MaxPositionFraction caps a runtime-sized BUY
	MaxPositionFraction float64
}

// Deps are the collaborators a Runtime is built from
type Deps struct {
	Gate   TradeGate
	Engine DecisionEngine
	Market MarketProvider
	States domain.AgentStateRepository
	Memory *memory.Memory
	Logger *utils.Logger
	Clock  func() time.Time
}

// CycleOptions controls a single RunCycle
type CycleOptions struct {
	// Recover forces rehydration from the durable snapshot first
	Recover bool
	Task    string
}

// CycleResult is what a decision cycle produced
type CycleResult struct {
	AgentID      string             `json:"agent_id"`
	TournamentID string             `json:"tournament_id"`
	Decision     string             `json:"decision"`
	Performance  domain.Performance `json:"performance"`
	Timestamp    time.Time          `json:"timestamp"`
	Recovered    bool               `json:"recovered"`
	Trade        *domain.Trade      `json:"trade,omitempty"`
	Rejection    string             `json:"rejection,omitempty"`
	Commentary   string             `json:"commentary,omitempty"`
	// PartialCostBasis is set when a SELL was priced against the short-term
	// window because the trade log could not be read
	PartialCostBasis bool `json:"partial_cost_basis,omitempty"`
	// Failure is a decision or execution failure; the cycle still persisted
	Failure error `json:"-"`
}

// Runtime owns one agent's ledger, memory and collaborators. A Runtime is
// driven by one goroutine at a time.
type Runtime struct {
	profile Profile
	ledger  *ledger.Ledger
	gate    TradeGate
	engine  DecisionEngine
	market  MarketProvider
	states  domain.AgentStateRepository
	memory  *memory.Memory
	logger  *utils.Logger
	now     func() time.Time

	state        State
	hydrated     bool
	rank         int
	lastDecision string
}

// NewRuntime creates a runtime holding a fresh portfolio of StartingCash
func NewRuntime(profile Profile, deps Deps) *Runtime {
	if profile.StartingCash <= 0 {
		profile.StartingCash = domain.DefaultStartingCash
	}
	if profile.RiskScore <= 0 {
		profile.RiskScore = domain.DefaultRiskScore
	}
	if profile.MaxPositionFraction <= 0 {
		profile.MaxPositionFraction = 0.5
	}
	if deps.Logger == nil {
		deps.Logger = utils.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	logger := deps.Logger.Named(profile.AgentID)
	return &Runtime{
		profile: profile,
		ledger:  ledger.New(domain.NewPortfolio(profile.AgentID, profile.StartingCash), logger),
		gate:    deps.Gate,
		engine:  deps.Engine,
		market:  deps.Market,
		states:  deps.States,
		memory:  deps.Memory,
		logger:  logger,
		now:     deps.Clock,
		state:   StateIdle,
	}
}

func (r *Runtime) State() State {
	return r.state
}

func (r *Runtime) Profile() Profile {
	return r.profile
}

// Portfolio returns a copy of the current portfolio
func (r *Runtime) Portfolio() *domain.Portfolio {
	return r.ledger.Snapshot()
}

func (r *Runtime) Memory() *memory.Memory {
	return r.memory
}

func (r *Runtime) LastDecision() string {
	return r.lastDecision
}

func (r *Runtime) transition(to State) {
	r.logger.Debug("cycle state %s -> %s", r.state, to)
	r.state = to
}

// Recover rehydrates the runtime from the durable snapshot. Trades logged
// after the snapshot was written are replayed through the ledger, and the
// short-term window is rebuilt from the trade log. It reports whether a
// snapshot existed. When the trade log cannot be read the runtime stays
// unhydrated, since the snapshot alone may miss logged trades.
func (r *Runtime) Recover(ctx context.Context) (bool, error) {
	state, err := r.states.LoadAgentState(ctx, r.profile.AgentID, r.profile.TournamentID)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Info("No previous state found in database")
		r.hydrated = true
		return false, nil
	}
	if err != nil {
		return false, r.persistenceError("load_state", err)
	}

	history, err := r.memory.LoadHistory(ctx, 0)
	if err != nil {
		r.hydrated = false
		return true, r.persistenceError("load_trades", err)
	}

	pf := state.Portfolio()
	pf.AgentID = r.profile.AgentID
	r.ledger = ledger.New(pf, r.logger)
	r.rank = state.Rank
	r.lastDecision = state.LastDecision
	r.hydrated = true

	replayed := r.replayAfter(history, state.UpdatedAt)
	r.memory.Restore(history)

	r.logger.Info("State recovered: cash=$%.2f, total_value=$%.2f, trades=%d, replayed=%d, last_decision=%q",
		pf.Cash, pf.TotalValue, pf.NumTrades, replayed, state.LastDecision)
	return true, nil
}

// replayAfter applies trades newer than since, oldest first
func (r *Runtime) replayAfter(newestFirst []domain.Trade, since time.Time) int {
	var pending []domain.Trade
	for _, t := range newestFirst {
		if t.Timestamp.After(since) {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})

	for _, t := range pending {
		r.logger.Warn("Replaying trade %s (%s %s) logged after the snapshot", t.ID, t.Action, t.Token)
		r.ledger.ApplyTrade(t)
	}
	return len(pending)
}

// MarketSnapshot prices every tradable token. Tokens whose price cannot be
// fetched are left out.
func (r *Runtime) MarketSnapshot(ctx context.Context) domain.MarketData {
	md := domain.MarketData{
		Prices:    make(map[string]float64, len(r.profile.TradableTokens)),
		Sentiment: domain.SentimentUnknown,
		Timestamp: r.now().UTC(),
	}

	for _, token := range r.profile.TradableTokens {
		price, err := r.market.Price(ctx, token)
		if err != nil || price <= 0 {
			r.logger.Warn("Could not fetch price for %s: %v", token, err)
			continue
		}
		md.Prices[token] = price
	}

	sentiment, err := r.market.Sentiment(ctx)
	if err != nil {
		r.logger.Warn("Could not fetch market sentiment: %v", err)
	} else if sentiment != "" {
		md.Sentiment = sentiment
	}
	return md
}

// Decide asks the decision engine for a proposal. Engine failures, panics
// included, come back as an error alongside a proposal whose narrative
// describes the failure.
func (r *Runtime) Decide(ctx context.Context, md domain.MarketData, task string) (proposal *domain.Proposal, err error) {
	if task == "" {
		task = DefaultTask
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decision engine panic: %v", rec)
		}
		if err != nil {
			r.logger.Error("Decision-making error: %v", err)
			proposal = &domain.Proposal{Narrative: fmt.Sprintf("Decision-making error: %v", err)}
		}
	}()

	proposal, err = r.engine.Propose(ctx, domain.DecisionRequest{
		AgentID:        r.profile.AgentID,
		TournamentID:   r.profile.TournamentID,
		Personality:    r.profile.Personality,
		RiskScore:      r.profile.RiskScore,
		Portfolio:      r.ledger.Snapshot(),
		Market:         md,
		RecentTrades:   r.memory.ShortTerm(10),
		TradableTokens: r.profile.TradableTokens,
		Task:           task,
	})
	if err == nil && proposal == nil {
		proposal = &domain.Proposal{Narrative: "No decision"}
	}
	return proposal, err
}

// RunCycle executes one full decision cycle. The snapshot is always
// persisted at the end, also when deciding or executing failed. A failed
// recovery ends the cycle before deciding, returning a nil result and
// writing nothing. Otherwise the returned error is a *PersistenceError when
// a durable write failed, or the context error when the cycle ran out of
// time.
func (r *Runtime) RunCycle(ctx context.Context, opts CycleOptions) (*CycleResult, error) {
	res := &CycleResult{
		AgentID:      r.profile.AgentID,
		TournamentID: r.profile.TournamentID,
	}
	var persistErrs []error

	if opts.Recover || !r.hydrated {
		r.transition(StateRecovering)
		recovered, err := r.Recover(ctx)
		if err != nil {
			r.transition(StateIdle)
			return nil, err
		}
		res.Recovered = recovered
	}

	md := r.MarketSnapshot(ctx)
	r.ledger.Revalue(md.Prices)

	r.transition(StateDeciding)
	proposal, err := r.Decide(ctx, md, opts.Task)
	narrative := proposal.Narrative
	if err != nil {
		res.Failure = err
	} else if intent := proposal.Intent; intent != nil {
		narrative = r.trade(ctx, intent, md, res, narrative, &persistErrs)
	}

	r.transition(StatePersisting)
	r.lastDecision = narrative
	res.Decision = narrative

	persistCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := r.SaveState(persistCtx, narrative); err != nil {
		persistErrs = append(persistErrs, err)
	}

	res.Performance = r.EvaluatePerformance()
	res.Timestamp = r.now().UTC()
	r.transition(StateIdle)

	r.logger.Info("Agent decision completed: value=$%.2f, trades=%d",
		res.Performance.TotalValue, res.Performance.NumTrades)

	if ctxErr := ctx.Err(); ctxErr != nil && res.Trade == nil {
		persistErrs = append(persistErrs, fmt.Errorf("decision cycle aborted: %w", ctxErr))
	}
	return res, errors.Join(persistErrs...)
}

// trade validates and executes intent, returning the narrative to record
func (r *Runtime) trade(ctx context.Context, intent *domain.TradeIntent, md domain.MarketData,
	res *CycleResult, narrative string, persistErrs *[]error) string {

	r.transition(StateValidating)

	action := strings.ToUpper(intent.Action)
	token := strings.ToUpper(intent.Token)
	amount := intent.Amount
	pf := r.ledger.Portfolio()

	if action == domain.ActionBuy && amount <= 0 {
		amount = PositionSize(pf.TotalValue, r.profile.RiskScore, intent.Confidence, r.profile.MaxPositionFraction)
		r.logger.Debug("Position sizing: value=$%.2f, risk=%.2f, confidence=%.2f, size=$%.2f",
			pf.TotalValue, r.profile.RiskScore, intent.Confidence, amount)
	}

	price, ok := md.Prices[token]
	if !ok || price <= 0 {
		res.Rejection = fmt.Sprintf("Could not fetch price for %s", token)
		return joinNarrative(narrative, "Trade validation failed: "+res.Rejection)
	}

	if ok, reason := r.gate.Validate(action, token, amount, price, pf, r.profile.RiskScore); !ok {
		res.Rejection = reason
		r.logger.Info("Trade validation failed: %s", reason)
		return joinNarrative(narrative, "Trade validation failed: "+reason)
	}

	r.transition(StateExecuting)
	trade, err := r.gate.Execute(ctx, execution.Order{
		AgentID:     r.profile.AgentID,
		Action:      action,
		Token:       token,
		Amount:      amount,
		QuotedPrice: price,
		Confidence:  intent.Confidence,
		Summary:     intent.Summary,
	})
	if err != nil {
		res.Failure = err
		return joinNarrative(narrative, "Trade execution error: "+err.Error())
	}

	// The swap has settled: from here on the cycle deadline must not keep
	// the trade out of the log.
	persistCtx, cancel := persistContext(ctx)
	defer cancel()

	if trade.Action == domain.ActionSell {
		history := r.costBasisHistory(persistCtx, res)
		trade = trade.WithOutcome(
			execution.CalculateRealizedPnL(trade, history),
			execution.CalculateROI(trade, history),
		)
	}

	r.ledger.ApplyTrade(trade)
	if err := r.memory.Record(persistCtx, trade); err != nil {
		*persistErrs = append(*persistErrs, r.persistenceError("save_trade", err))
	}

	res.Trade = &trade
	res.Commentary = PersonalityLine(r.profile.Personality, trade)
	r.logger.Info("%s", res.Commentary)

	return joinNarrative(narrative, fmt.Sprintf("Trade executed: %s %.6f %s at $%.2f (tx %s)",
		trade.Action, trade.Qty, trade.Token, trade.Price, trade.TxHash))
}

// costBasisHistory prefers the full trade log and falls back to the window,
// flagging the result when the log could not be read
func (r *Runtime) costBasisHistory(ctx context.Context, res *CycleResult) []domain.Trade {
	history, err := r.memory.LoadHistory(ctx, 0)
	if err != nil {
		r.logger.Warn("Cost basis from the last %d trades only, trade log unavailable: %v",
			r.memory.Len(), err)
		res.PartialCostBasis = true
		return r.memory.ShortTerm(0)
	}
	if len(history) == 0 {
		return r.memory.ShortTerm(0)
	}
	return history
}

// persistContext detaches durable writes from the cycle deadline
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// SaveState upserts the current snapshot
func (r *Runtime) SaveState(ctx context.Context, lastDecision string) error {
	state := domain.NewAgentState(r.profile.TournamentID, r.ledger.Snapshot(), r.rank, lastDecision, r.now())
	if err := r.states.SaveAgentState(ctx, state); err != nil {
		r.logger.Error("Failed to save agent state: %v", err)
		return r.persistenceError("save_state", err)
	}
	r.logger.Debug("Agent state saved: value=$%.2f, trades=%d", state.TotalValue.InexactFloat64(), state.NumTrades)
	return nil
}

// EvaluatePerformance reports the current portfolio without mutating it
func (r *Runtime) EvaluatePerformance() domain.Performance {
	return Performance(r.profile.TournamentID, r.ledger.Portfolio())
}

func (r *Runtime) persistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{
		Op:           op,
		AgentID:      r.profile.AgentID,
		TournamentID: r.profile.TournamentID,
		Cause:        err,
	}
}

func joinNarrative(narrative, outcome string) string {
	if narrative == "" {
		return outcome
	}
	return narrative + "\n" + outcome
}
