package scheduler

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/agent-arena/internal/agent"
	"github.com/kirillm/agent-arena/internal/ai"
	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/execution"
	"github.com/kirillm/agent-arena/internal/market"
	"github.com/kirillm/agent-arena/internal/policy"
	"github.com/kirillm/agent-arena/internal/storage"
	"github.com/kirillm/agent-arena/internal/swap"
	"github.com/kirillm/agent-arena/internal/tasks"
	"github.com/kirillm/agent-arena/pkg/utils"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// testStore counts rank writes and can fail snapshot saves and trade
// log reads
type testStore struct {
	*storage.Store

	mu          sync.Mutex
	failSave    bool
	failHistory bool
	rankWrites  int
}

func (s *testStore) LoadAgentTrades(ctx context.Context, agentID, tournamentID string, limit int) ([]domain.Trade, error) {
	s.mu.Lock()
	fail := s.failHistory
	s.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return s.Store.LoadAgentTrades(ctx, agentID, tournamentID, limit)
}

func (s *testStore) SaveAgentState(ctx context.Context, st *domain.AgentState) error {
	s.mu.Lock()
	fail := s.failSave
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.Store.SaveAgentState(ctx, st)
}

func (s *testStore) UpdateRank(ctx context.Context, agentID, tournamentID string, rank int) error {
	s.mu.Lock()
	s.rankWrites++
	s.mu.Unlock()
	return s.Store.UpdateRank(ctx, agentID, tournamentID, rank)
}

func (s *testStore) setFailSave(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave = v
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks map[string]tasks.Task
	order []string
}

func (q *recordingQueue) Enqueue(t tasks.Task) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[t.Key]; ok {
		return false, nil
	}
	q.tasks[t.Key] = t
	q.order = append(q.order, t.Key)
	return true, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) containing(substr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.msgs {
		if strings.Contains(m, substr) {
			count++
		}
	}
	return count
}

type buyEngine struct{}

func (buyEngine) Propose(context.Context, domain.DecisionRequest) (*domain.Proposal, error) {
	return &domain.Proposal{
		Narrative: "ETH looks strong",
		Intent:    &domain.TradeIntent{Action: domain.ActionBuy, Token: "WETH", Amount: 100, Confidence: 0.7, Summary: "buy ETH"},
	}, nil
}

type harness struct {
	sched    *Scheduler
	store    *testStore
	queue    *recordingQueue
	notifier *recordingNotifier
	factory  *agent.Factory
	clock    *time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	st, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "arena.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := utils.NewLoggerWithWriter("error", io.Discard)
	clock := testNow
	now := func() time.Time { return clock }

	pol := policy.Default()
	prices := market.NewStatic(map[string]float64{"WETH": 3000, "CBBTC": 60000}, domain.SentimentNeutral)
	gate := execution.NewGate(pol, swap.NewPaper(prices, pol, 0, logger), nil, logger)
	gate.SetClock(now)

	store := &testStore{Store: st}
	factory := &agent.Factory{
		Gate:   gate,
		Engine: ai.HoldEngine{},
		Market: prices,
		States: store,
		Trades: store,
		Policy: pol,
		Logger: logger,
		Clock:  now,
	}

	h := &harness{
		store:    store,
		queue:    &recordingQueue{tasks: make(map[string]tasks.Task)},
		notifier: &recordingNotifier{},
		factory:  factory,
		clock:    &clock,
	}
	h.sched = New(cfg, Deps{
		Store:    store,
		Factory:  factory,
		Queue:    h.queue,
		Notifier: h.notifier,
		Logger:   logger,
		Clock:    now,
	})
	return h
}

func (h *harness) tournament(t *testing.T, id, status string, start, end time.Time, agents ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.CreateTournament(ctx, &domain.Tournament{
		ID: id, Name: "Cup " + id, Status: status, StartDate: start, EndDate: end,
		PrizePool: decimal.NewFromInt(1000), CreatedAt: start,
	}))
	for _, a := range agents {
		require.NoError(t, h.store.Enroll(ctx, domain.Enrollment{
			TournamentID: id, AgentID: a, Name: a, Personality: "moderate", RiskScore: 0.5,
		}))
	}
}

func (h *harness) snapshot(t *testing.T, tournamentID, agentID string, total float64, rank int, updated time.Time) {
	t.Helper()
	pf := domain.NewPortfolio(agentID, 500)
	pf.Cash = total
	pf.TotalValue = total
	require.NoError(t, h.store.Store.SaveAgentState(context.Background(),
		domain.NewAgentState(tournamentID, pf, rank, "seeded", updated)))
	if rank > 0 {
		require.NoError(t, h.store.Store.UpdateRank(context.Background(), agentID, tournamentID, rank))
	}
}

func state(agentID string, total int64) domain.AgentState {
	return domain.AgentState{AgentID: agentID, TotalValue: decimal.NewFromInt(total)}
}

func TestComputeRanks(t *testing.T) {
	tests := []struct {
		name   string
		states []domain.AgentState
		want   map[string]int
	}{
		{
			name:   "by total value",
			states: []domain.AgentState{state("a1", 500), state("a2", 1500), state("a3", 1000)},
			want:   map[string]int{"a2": 1, "a3": 2, "a1": 3},
		},
		{
			name:   "ties go to the smaller agent id",
			states: []domain.AgentState{state("b", 700), state("a", 700), state("c", 900)},
			want:   map[string]int{"c": 1, "a": 2, "b": 3},
		},
		{
			name:   "empty",
			states: nil,
			want:   map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeRanks(tt.states))
		})
	}
}

func TestWinner(t *testing.T) {
	w, ok := Winner([]domain.AgentState{state("b", 900), state("a", 900), state("c", 100)})
	require.True(t, ok)
	assert.Equal(t, "a", w.AgentID)

	_, ok = Winner(nil)
	assert.False(t, ok)
}

func TestUpdateRanks_WritesOnlyChanged(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.tournament(t, "t1", domain.StatusLive, testNow.Add(-time.Hour), testNow.Add(time.Hour), "a1", "a2", "a3")
	h.snapshot(t, "t1", "a1", 500, 0, testNow)
	h.snapshot(t, "t1", "a2", 1500, 0, testNow)
	h.snapshot(t, "t1", "a3", 1000, 0, testNow)

	written, err := h.sched.UpdateRanks(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	states, err := h.store.ListAgentStates(ctx, "t1")
	require.NoError(t, err)
	got := map[string]int{}
	for _, st := range states {
		got[st.AgentID] = st.Rank
	}
	assert.Equal(t, map[string]int{"a2": 1, "a3": 2, "a1": 3}, got)

	written, err = h.sched.UpdateRanks(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, written, "unchanged ranks are not rewritten")

	// a1 overtakes a3; the snapshot upsert keeps stored ranks
	h.snapshot(t, "t1", "a1", 1200, 0, testNow)
	written, err = h.sched.UpdateRanks(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, 5, h.store.rankWrites)
}

func TestStatusSweep_Lifecycle(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.tournament(t, "t1", domain.StatusUpcoming, testNow.Add(-time.Minute), testNow.Add(time.Hour), "agent_1", "agent_2")
	h.tournament(t, "t2", domain.StatusUpcoming, testNow.Add(time.Hour), testNow.Add(2*time.Hour), "agent_3")

	require.NoError(t, h.sched.StatusSweep(ctx))

	t1, err := h.store.GetTournament(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, t1.Status)

	t2, err := h.store.GetTournament(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUpcoming, t2.Status, "not started yet")

	for _, a := range []string{"agent_1", "agent_2"} {
		st, err := h.store.LoadAgentState(ctx, a, "t1")
		require.NoError(t, err)
		assert.True(t, st.Cash.Equal(decimal.NewFromInt(500)))
		assert.Empty(t, st.Holdings)
		assert.Zero(t, st.Rank)
		assert.Equal(t, domain.InitialDecision, st.LastDecision)
	}
	assert.Equal(t, 1, h.notifier.containing("is live"))

	h.snapshot(t, "t1", "agent_2", 640, 0, testNow)
	*h.clock = testNow.Add(time.Hour)

	require.NoError(t, h.sched.StatusSweep(ctx))

	t1, err = h.store.GetTournament(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, t1.Status)
	assert.Equal(t, "agent_2", t1.WinnerAgentID)
	assert.Equal(t, 1, h.notifier.containing("Winner: agent_2"))

	t2, err = h.store.GetTournament(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, t2.Status)
}

func TestInitializeTournamentAgents_KeepsExistingSnapshots(t *testing.T) {
	h := newHarness(t, Config{StartingCash: 1000})
	ctx := context.Background()
	h.tournament(t, "t1", domain.StatusUpcoming, testNow, testNow.Add(time.Hour), "a1", "a2")
	h.snapshot(t, "t1", "a1", 750, 0, testNow)

	n, err := h.sched.InitializeTournamentAgents(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a1, err := h.store.LoadAgentState(ctx, "a1", "t1")
	require.NoError(t, err)
	assert.True(t, a1.Cash.Equal(decimal.NewFromInt(750)))

	a2, err := h.store.LoadAgentState(ctx, "a2", "t1")
	require.NoError(t, err)
	assert.True(t, a2.Cash.Equal(decimal.NewFromInt(1000)))
	assert.True(t, a2.StartingVal.Equal(decimal.NewFromInt(1000)))
}

func TestDecisionSweep_QueuesLiveAgentsOnly(t *testing.T) {
	h := newHarness(t, Config{})
	h.tournament(t, "t1", domain.StatusLive, testNow.Add(-time.Hour), testNow.Add(time.Hour), "a1", "a2")
	h.tournament(t, "t2", domain.StatusUpcoming, testNow.Add(time.Hour), testNow.Add(2*time.Hour), "a3")

	require.NoError(t, h.sched.DecisionSweep(context.Background()))
	assert.ElementsMatch(t, []string{"t1/a1", "t1/a2"}, h.queue.order)

	// a second sweep while cycles are in flight queues nothing new
	require.NoError(t, h.sched.DecisionSweep(context.Background()))
	assert.Len(t, h.queue.order, 2)
}

func TestRecoverySweep_QueuesStaleAndMissing(t *testing.T) {
	h := newHarness(t, Config{})
	h.tournament(t, "t1", domain.StatusLive, testNow.Add(-time.Hour), testNow.Add(time.Hour), "stale", "fresh", "missing")
	h.snapshot(t, "t1", "stale", 500, 0, testNow.Add(-11*time.Minute))
	h.snapshot(t, "t1", "fresh", 500, 0, testNow.Add(-2*time.Minute))

	require.NoError(t, h.sched.RecoverySweep(context.Background()))
	assert.ElementsMatch(t, []string{"t1/stale", "t1/missing"}, h.queue.order)
}

func TestCycleTask_HoldPersistsAndReleasesLease(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.tournament(t, "t1", domain.StatusLive, testNow.Add(-time.Hour), testNow.Add(time.Hour), "a1")
	h.snapshot(t, "t1", "a1", 500, 0, testNow.Add(-20*time.Minute))

	require.NoError(t, h.sched.RecoverySweep(ctx))
	task := h.queue.tasks["t1/a1"]
	require.NotNil(t, task.Run)
	require.NoError(t, task.Run(ctx))

	st, err := h.store.LoadAgentState(ctx, "a1", "t1")
	require.NoError(t, err)
	assert.Contains(t, st.LastDecision, "Holding")
	assert.True(t, st.UpdatedAt.Equal(testNow))
	assert.False(t, st.IsStale(testNow, DefaultConfig().StaleThreshold))

	acquired, err := h.store.AcquireLease(ctx, "a1", "t1", "someone-else", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "lease is released after the cycle")
}

func TestRunCycle_Trades(t *testing.T) {
	h := newHarness(t, Config{})
	h.factory.Engine = buyEngine{}
	ctx := context.Background()
	e := domain.Enrollment{TournamentID: "t1", AgentID: "a1", Personality: "moderate", RiskScore: 0.5}
	h.tournament(t, "t1", domain.StatusLive, testNow.Add(-time.Hour), testNow.Add(time.Hour), "a1")

	res, err := h.sched.RunCycle(ctx, e, false)
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "traded", cycleOutcome(res, err))

	trades, err := h.store.LoadAgentTrades(ctx, "a1", "t1", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ActionBuy, trades[0].Action)

	st, err := h.store.LoadAgentState(ctx, "a1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.NumTrades)
	assert.InDelta(t, 400, st.Cash.InexactFloat64(), 1e-6)
}

func TestRunCycle_LeaseHeld(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.tournament(t, "t1", domain.StatusLive, testNow.Add(-time.Hour), testNow.Add(time.Hour), "a1")

	acquired, err := h.store.AcquireLease(ctx, "a1", "t1", "other-worker", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	e := domain.Enrollment{TournamentID: "t1", AgentID: "a1"}
	_, err = h.sched.RunCycle(ctx, e, false)
	assert.ErrorIs(t, err, domain.ErrLeaseHeld)

	assert.NoError(t, h.sched.cycleTask(e, false).Run(ctx), "a held lease is not a task failure")

	_, err = h.store.LoadAgentState(ctx, "a1", "t1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no cycle ran")
}

func TestCycleTask_PersistenceFailuresAlert(t *testing.T) {
	h := newHarness(t, Config{AlertThreshold: 2})
	ctx := context.Background()
	e := domain.Enrollment{TournamentID: "t1", AgentID: "a1", Personality: "moderate"}
	h.tournament(t, "t1", domain.StatusLive, testNow.Add(-time.Hour), testNow.Add(time.Hour), "a1")
	h.store.setFailSave(true)

	task := h.sched.cycleTask(e, false)
	for i := 1; i <= 3; i++ {
		err := task.Run(ctx)
		require.Error(t, err)
		assert.True(t, tasks.IsPermanent(err), "a completed cycle is not retried")

		var pe *agent.PersistenceError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "save_state", pe.Op)
		assert.Equal(t, i, h.sched.FailureStreak("a1", "t1"))
	}
	assert.Equal(t, 1, h.notifier.containing("Persistence failing"))

	// exhausted persistence tasks do not raise a second alert
	h.sched.TaskFailed(task, tasks.Permanent(&agent.PersistenceError{Op: "save_state", Cause: errors.New("x")}))
	assert.Equal(t, 0, h.notifier.containing("Task failed"))

	h.store.setFailSave(false)
	require.NoError(t, task.Run(ctx))
	assert.Zero(t, h.sched.FailureStreak("a1", "t1"))
}

func TestCycleTask_UnreadableTradeLogIsRetried(t *testing.T) {
	h := newHarness(t, Config{})
	h.factory.Engine = buyEngine{}
	ctx := context.Background()
	e := domain.Enrollment{TournamentID: "t1", AgentID: "a1", Personality: "moderate", RiskScore: 0.5}
	h.tournament(t, "t1", domain.StatusLive, testNow.Add(-time.Hour), testNow.Add(time.Hour), "a1")
	h.snapshot(t, "t1", "a1", 500, 0, testNow.Add(-20*time.Minute))
	h.store.mu.Lock()
	h.store.failHistory = true
	h.store.mu.Unlock()

	err := h.sched.cycleTask(e, true).Run(ctx)
	require.Error(t, err)
	assert.False(t, tasks.IsPermanent(err), "nothing was decided, the cycle may run again")

	var pe *agent.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "load_trades", pe.Op)

	st, err := h.store.LoadAgentState(ctx, "a1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "seeded", st.LastDecision, "the snapshot is left untouched")
	trades, err := h.store.Store.LoadAgentTrades(ctx, "a1", "t1", 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRetryable(t *testing.T) {
	saveTrade := &agent.PersistenceError{Op: "save_trade", Cause: errors.New("timeout")}
	saveState := &agent.PersistenceError{Op: "save_state", Cause: errors.New("disk full")}
	loadTrades := &agent.PersistenceError{Op: "load_trades", Cause: errors.New("reset")}
	traded := &agent.CycleResult{Trade: &domain.Trade{ID: "tr_1"}}
	held := &agent.CycleResult{}

	tests := []struct {
		name   string
		res    *agent.CycleResult
		err    error
		ctxErr error
		want   bool
	}{
		{"recovery failed before deciding", nil, loadTrades, nil, true},
		{"lease store error", nil, errors.New("acquire cycle lease: db down"), nil, true},
		{"trade logged failure", traded, saveTrade, nil, false},
		{"trade past the deadline", traded, saveTrade, context.DeadlineExceeded, false},
		{"snapshot failed after deciding", held, saveState, nil, false},
		{"snapshot failed past the deadline", held, saveState, context.DeadlineExceeded, true},
		{"aborted hold", held, context.DeadlineExceeded, context.DeadlineExceeded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.res, tt.err, tt.ctxErr))
		})
	}
}

func TestTaskFailed_Alerts(t *testing.T) {
	h := newHarness(t, Config{MaxAttempts: 3})
	task := tasks.Task{Key: "t1/a1", Name: TaskName}

	h.sched.TaskFailed(task, errors.New("llm unreachable"))
	assert.Equal(t, 1, h.notifier.containing("Task failed after 3 attempts"))

	h.sched.TaskFailed(task, tasks.Permanent(errors.New("bad request")))
	assert.Equal(t, 1, h.notifier.containing("Task failed after 1 attempts"))
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, Config{
		DecisionInterval: time.Hour,
		StatusInterval:   time.Hour,
		RankInterval:     time.Hour,
		RecoveryInterval: time.Hour,
	})
	h.tournament(t, "t1", domain.StatusUpcoming, testNow.Add(-time.Minute), testNow.Add(time.Hour), "a1")

	require.NoError(t, h.sched.Start(context.Background()))
	assert.Error(t, h.sched.Start(context.Background()))

	require.Eventually(t, func() bool {
		t1, err := h.store.GetTournament(context.Background(), "t1")
		return err == nil && t1.Status == domain.StatusLive
	}, 2*time.Second, 10*time.Millisecond)

	h.sched.Stop()
	h.sched.Stop()
}
