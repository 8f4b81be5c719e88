package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillm/agent-arena/internal/agent"
	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/metrics"
	"github.com/kirillm/agent-arena/internal/notify"
	"github.com/kirillm/agent-arena/internal/tasks"
)

const leaseReleaseTimeout = 5 * time.Second

// TaskName names decision-cycle tasks in logs and alerts
const TaskName = "decision-cycle"

// DecisionSweep enqueues one decision cycle per agent of every live
// tournament
func (s *Scheduler) DecisionSweep(ctx context.Context) error {
	live, err := s.store.ListTournaments(ctx, domain.StatusLive)
	if err != nil {
		return fmt.Errorf("list live tournaments: %w", err)
	}
	s.observer.LiveTournaments(len(live))

	queued := 0
	var errs []error
	for _, t := range live {
		enrollments, err := s.store.ListEnrollments(ctx, t.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list agents of %s: %w", t.ID, err))
			continue
		}
		for _, e := range enrollments {
			if s.enqueue(e, false) {
				queued++
			}
		}
	}

	s.logger.Info("Decision sweep: %d live tournament(s), %d cycle(s) queued", len(live), queued)
	return errors.Join(errs...)
}

// RecoverySweep re-enqueues agents whose snapshot is missing or older than
// the staleness threshold. Their cycle rehydrates from the store first.
func (s *Scheduler) RecoverySweep(ctx context.Context) error {
	live, err := s.store.ListTournaments(ctx, domain.StatusLive)
	if err != nil {
		return fmt.Errorf("list live tournaments: %w", err)
	}

	now := s.now()
	var errs []error
	for _, t := range live {
		enrollments, err := s.store.ListEnrollments(ctx, t.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list agents of %s: %w", t.ID, err))
			continue
		}
		states, err := s.store.ListAgentStates(ctx, t.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list states of %s: %w", t.ID, err))
			continue
		}

		byAgent := make(map[string]domain.AgentState, len(states))
		for _, st := range states {
			byAgent[st.AgentID] = st
		}

		for _, e := range enrollments {
			st, ok := byAgent[e.AgentID]
			if ok && !st.IsStale(now, s.cfg.StaleThreshold) {
				continue
			}
			if ok {
				s.logger.Warn("Agent %s in %s is stale (last update %s), recovering",
					e.AgentID, t.ID, st.UpdatedAt.Format(time.RFC3339))
			} else {
				s.logger.Warn("Agent %s in %s has no snapshot, recovering", e.AgentID, t.ID)
			}
			s.enqueue(e, true)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) enqueue(e domain.Enrollment, forceRecover bool) bool {
	queued, err := s.queue.Enqueue(s.cycleTask(e, forceRecover))
	if err != nil {
		s.logger.Error("Could not enqueue cycle for %s in %s: %v", e.AgentID, e.TournamentID, err)
		return false
	}
	if !queued {
		s.logger.Debug("Cycle for %s in %s already in flight", e.AgentID, e.TournamentID)
	}
	return queued
}

func cycleKey(agentID, tournamentID string) string {
	return tournamentID + "/" + agentID
}

func (s *Scheduler) cycleTask(e domain.Enrollment, forceRecover bool) tasks.Task {
	return tasks.Task{
		Key:  cycleKey(e.AgentID, e.TournamentID),
		Name: TaskName,
		Run: func(ctx context.Context) error {
			res, err := s.RunCycle(ctx, e, forceRecover)
			if err == nil || errors.Is(err, domain.ErrLeaseHeld) {
				return nil
			}

			if !retryable(res, err, ctx.Err()) {
				return tasks.Permanent(err)
			}
			return err
		},
	}
}

// retryable reports whether a failed cycle may run again. A cycle that
// executed a trade never is, nor one that decided and then failed to persist
// within its budget: running it again would make a second decision. A nil
// result means the cycle stopped before deciding.
func retryable(res *agent.CycleResult, err, ctxErr error) bool {
	if res == nil {
		return true
	}
	if res.Trade != nil {
		return false
	}
	var pe *agent.PersistenceError
	return !errors.As(err, &pe) || ctxErr != nil
}

// RunCycle runs one decision cycle for e under the agent's cycle lease.
// It returns domain.ErrLeaseHeld when another worker owns the agent.
func (s *Scheduler) RunCycle(ctx context.Context, e domain.Enrollment, forceRecover bool) (*agent.CycleResult, error) {
	start := time.Now()
	owner := uuid.NewString()

	acquired, err := s.store.AcquireLease(ctx, e.AgentID, e.TournamentID, owner, s.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lease: %w", err)
	}
	if !acquired {
		s.logger.Info("Skipping cycle for %s in %s: lease held by another worker", e.AgentID, e.TournamentID)
		s.observer.CycleFinished(metrics.OutcomeLeaseHeld, 0)
		return nil, domain.ErrLeaseHeld
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
		defer cancel()
		if err := s.store.ReleaseLease(releaseCtx, e.AgentID, e.TournamentID, owner); err != nil {
			s.logger.Warn("Failed to release lease for %s in %s: %v", e.AgentID, e.TournamentID, err)
		}
	}()

	rt := s.factory.NewRuntime(e)
	res, err := rt.RunCycle(ctx, agent.CycleOptions{Recover: forceRecover, Task: s.cfg.Task})
	s.observe(ctx, e, res, err, time.Since(start))
	return res, err
}

func (s *Scheduler) observe(ctx context.Context, e domain.Enrollment, res *agent.CycleResult, err error, took time.Duration) {
	s.observer.CycleFinished(cycleOutcome(res, err), took)

	if res != nil {
		s.observer.PortfolioValue(e.TournamentID, e.AgentID, res.Performance.TotalValue)
		s.logger.Info("Cycle done for %s in %s: value=$%.2f roi=%.2f%% trades=%d recovered=%t",
			e.AgentID, e.TournamentID, res.Performance.TotalValue, res.Performance.ROIPercent,
			res.Performance.NumTrades, res.Recovered)
		if res.Failure != nil {
			s.logger.Warn("Cycle for %s in %s failed to trade: %v", e.AgentID, e.TournamentID, res.Failure)
		}
	}

	var pe *agent.PersistenceError
	switch {
	case errors.As(err, &pe):
		s.persistenceFailed(ctx, e, err)
	case err == nil:
		s.persistenceSucceeded(e)
	default:
		s.logger.Error("Cycle for %s in %s failed: %v", e.AgentID, e.TournamentID, err)
	}
}

func cycleOutcome(res *agent.CycleResult, err error) string {
	var pe *agent.PersistenceError
	switch {
	case errors.As(err, &pe):
		return metrics.OutcomePersist
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return metrics.OutcomeAborted
	case err != nil || res == nil:
		return metrics.OutcomeFailed
	case res.Trade != nil:
		return metrics.OutcomeTraded
	case res.Rejection != "":
		return metrics.OutcomeRejected
	case res.Failure != nil:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeHold
	}
}

// persistenceFailed counts a consecutive persistence failure and alerts
// every AlertThreshold failures
func (s *Scheduler) persistenceFailed(ctx context.Context, e domain.Enrollment, err error) {
	key := cycleKey(e.AgentID, e.TournamentID)

	s.mu.Lock()
	s.failures[key]++
	streak := s.failures[key]
	s.mu.Unlock()

	s.logger.Error("Persistence failure %d for %s in %s: %v", streak, e.AgentID, e.TournamentID, err)
	if streak%s.cfg.AlertThreshold == 0 {
		s.alert(ctx, notify.PersistenceAlert(e.AgentID, e.TournamentID, streak, err))
	}
}

func (s *Scheduler) persistenceSucceeded(e domain.Enrollment) {
	key := cycleKey(e.AgentID, e.TournamentID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, key)
}

// FailureStreak returns the consecutive persistence failures of an agent
func (s *Scheduler) FailureStreak(agentID, tournamentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[cycleKey(agentID, tournamentID)]
}
