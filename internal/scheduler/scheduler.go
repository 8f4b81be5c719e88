// Package scheduler drives agent decision cycles across tournaments on a
// timer. Each duty (decision, status, rank, recovery) runs on its own
// ticker; per-agent cycles are handed to the task queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillm/agent-arena/internal/agent"
	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/notify"
	"github.com/kirillm/agent-arena/internal/tasks"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// Store is the durable state the scheduler reads and writes
type Store interface {
	domain.AgentStateRepository
	domain.TournamentRepository
	domain.LeaseRepository
}

// RuntimeFactory builds a fresh runtime for one enrolled agent
type RuntimeFactory interface {
	NewRuntime(e domain.Enrollment) *agent.Runtime
}

// Dispatcher runs tasks in the background
type Dispatcher interface {
	Enqueue(t tasks.Task) (bool, error)
}

// Observer receives scheduler measurements
type Observer interface {
	CycleFinished(outcome string, took time.Duration)
	PortfolioValue(tournamentID, agentID string, value float64)
	Rank(tournamentID, agentID string, rank int)
	ForgetTournament(tournamentID string)
	LiveTournaments(n int)
	TaskRetried()
	TaskFailed()
}

// Config holds the scheduler intervals and thresholds
type Config struct {
	DecisionInterval time.Duration
	StatusInterval   time.Duration
	RankInterval     time.Duration
	RecoveryInterval time.Duration
	// StaleThreshold is how old a snapshot may get before recovery kicks in
	StaleThreshold time.Duration
	// LeaseTTL bounds how long a crashed worker can block an agent
	LeaseTTL time.Duration
	// AlertThreshold is the number of consecutive persistence failures that
	// raises an alert
	AlertThreshold int
	// MaxAttempts is reported in task failure alerts
	MaxAttempts  int
	StartingCash float64
	Task         string
}

// DefaultConfig returns the production intervals
func DefaultConfig() Config {
	return Config{
		DecisionInterval: 5 * time.Minute,
		StatusInterval:   time.Minute,
		RankInterval:     30 * time.Second,
		RecoveryInterval: 2 * time.Minute,
		StaleThreshold:   domain.DefaultStaleThreshold,
		LeaseTTL:         2 * time.Minute,
		AlertThreshold:   3,
		MaxAttempts:      3,
		StartingCash:     domain.DefaultStartingCash,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DecisionInterval <= 0 {
		c.DecisionInterval = d.DecisionInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = d.StatusInterval
	}
	if c.RankInterval <= 0 {
		c.RankInterval = d.RankInterval
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = d.RecoveryInterval
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = d.StaleThreshold
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = d.LeaseTTL
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = d.AlertThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.StartingCash <= 0 {
		c.StartingCash = d.StartingCash
	}
}

// Deps are the collaborators a Scheduler is built from
type Deps struct {
	Store    Store
	Factory  RuntimeFactory
	Queue    Dispatcher
	Notifier notify.Notifier
	Observer Observer
	Logger   *utils.Logger
	Clock    func() time.Time
}

// Scheduler coordinates tournaments and their agents
type Scheduler struct {
	cfg      Config
	store    Store
	factory  RuntimeFactory
	queue    Dispatcher
	notifier notify.Notifier
	observer Observer
	logger   *utils.Logger
	now      func() time.Time

	mu       sync.Mutex
	failures map[string]int

	stopChan  chan struct{}
	done      chan struct{}
	isRunning bool
}

// New creates a scheduler
func New(cfg Config, deps Deps) *Scheduler {
	cfg.applyDefaults()

	s := &Scheduler{
		cfg:      cfg,
		store:    deps.Store,
		factory:  deps.Factory,
		queue:    deps.Queue,
		notifier: deps.Notifier,
		observer: deps.Observer,
		logger:   deps.Logger,
		now:      deps.Clock,
		failures: make(map[string]int),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.logger == nil {
		s.logger = utils.Default()
	}
	s.logger = s.logger.Named("scheduler")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Start runs the beat in the background until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("scheduler already running")
	}
	s.isRunning = true

	go func() {
		defer close(s.done)
		if err := s.Run(ctx); err != nil {
			s.logger.Error("Scheduler stopped: %v", err)
		}
	}()
	return nil
}

// Stop halts the beat and waits for the duty loops to exit. In-flight
// cycles belong to the task queue and are not waited for.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler...")
	close(s.stopChan)
	<-s.done
	s.logger.Info("Scheduler stopped")
}

// Run is the beat: every duty fires once right away, then on its own ticker
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started (decision=%v, status=%v, rank=%v, recovery=%v)",
		s.cfg.DecisionInterval, s.cfg.StatusInterval, s.cfg.RankInterval, s.cfg.RecoveryInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.every(ctx, "status", s.cfg.StatusInterval, s.StatusSweep) })
	g.Go(func() error { return s.every(ctx, "decision", s.cfg.DecisionInterval, s.DecisionSweep) })
	g.Go(func() error { return s.every(ctx, "rank", s.cfg.RankInterval, s.RankSweep) })
	g.Go(func() error { return s.every(ctx, "recovery", s.cfg.RecoveryInterval, s.RecoverySweep) })
	return g.Wait()
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) error) error {
	run := func() {
		if err := sweep(ctx); err != nil {
			s.logger.Error("%s sweep failed: %v", name, err)
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			run()
		case <-s.stopChan:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// TaskFailed is the queue's failure hook
func (s *Scheduler) TaskFailed(t tasks.Task, err error) {
	s.observer.TaskFailed()

	var pe *agent.PersistenceError
	if errors.As(err, &pe) {
		return
	}

	attempts := s.cfg.MaxAttempts
	if tasks.IsPermanent(err) {
		attempts = 1
	}
	s.alert(context.Background(), notify.TaskFailedAlert(t.Name+" "+t.Key, attempts, err))
}

// TaskRetried is the queue's retry hook
func (s *Scheduler) TaskRetried(tasks.Task, error) {
	s.observer.TaskRetried()
}

func (s *Scheduler) alert(ctx context.Context, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("Failed to send alert: %v", err)
	}
}

const alertTimeout = 10 * time.Second

type nopObserver struct{}

func (nopObserver) CycleFinished(string, time.Duration) {}
func (nopObserver) PortfolioValue(string, string, float64) {}
func (nopObserver) Rank(string, string, int) {}
func (nopObserver) ForgetTournament(string) {}
func (nopObserver) LiveTournaments(int) {}
func (nopObserver) TaskRetried() {}
func (nopObserver) TaskFailed() {}
