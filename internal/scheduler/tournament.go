package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/notify"
)

// StatusSweep moves tournaments along upcoming -> live -> completed.
// Cycles already queued for a tournament that completes finish normally.
func (s *Scheduler) StatusSweep(ctx context.Context) error {
	now := s.now()
	var errs []error

	upcoming, err := s.store.ListTournaments(ctx, domain.StatusUpcoming)
	if err != nil {
		return fmt.Errorf("list upcoming tournaments: %w", err)
	}
	for _, t := range upcoming {
		if now.Before(t.StartDate) {
			continue
		}
		if err := s.startTournament(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}

	live, err := s.store.ListTournaments(ctx, domain.StatusLive)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("list live tournaments: %w", err))...)
	}
	for _, t := range live {
		if now.Before(t.EndDate) {
			continue
		}
		if err := s.completeTournament(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) startTournament(ctx context.Context, t domain.Tournament) error {
	agents, err := s.InitializeTournamentAgents(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("initialize agents of %s: %w", t.ID, err)
	}
	if err := s.store.UpdateTournamentStatus(ctx, t.ID, domain.StatusLive, ""); err != nil {
		return fmt.Errorf("start tournament %s: %w", t.ID, err)
	}

	s.logger.Info("Tournament %s (%s) is live with %d agent(s)", t.Name, t.ID, agents)
	s.alert(ctx, notify.TournamentStartedAlert(t.Name, agents, t.EndDate.Sub(t.StartDate)))
	return nil
}

func (s *Scheduler) completeTournament(ctx context.Context, t domain.Tournament) error {
	states, err := s.store.ListAgentStates(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("load standings of %s: %w", t.ID, err)
	}

	winner, ok := Winner(states)
	if err := s.store.UpdateTournamentStatus(ctx, t.ID, domain.StatusCompleted, winner.AgentID); err != nil {
		return fmt.Errorf("complete tournament %s: %w", t.ID, err)
	}
	s.observer.ForgetTournament(t.ID)

	if ok {
		s.logger.Info("Tournament %s (%s) completed, winner %s with $%s",
			t.Name, t.ID, winner.AgentID, winner.TotalValue.StringFixed(2))
	} else {
		s.logger.Info("Tournament %s (%s) completed without agents", t.Name, t.ID)
	}
	s.alert(ctx, notify.TournamentCompletedAlert(t.Name, winner.AgentID, winner.TotalValue.InexactFloat64()))
	return nil
}

// InitializeTournamentAgents writes a starting snapshot for every enrolled
// agent that has none yet. It returns the number of enrolled agents.
func (s *Scheduler) InitializeTournamentAgents(ctx context.Context, tournamentID string) (int, error) {
	enrollments, err := s.store.ListEnrollments(ctx, tournamentID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	for _, e := range enrollments {
		_, err := s.store.LoadAgentState(ctx, e.AgentID, tournamentID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}

		pf := domain.NewPortfolio(e.AgentID, s.cfg.StartingCash)
		state := domain.NewAgentState(tournamentID, pf, 0, domain.InitialDecision, now)
		if err := s.store.SaveAgentState(ctx, state); err != nil {
			return 0, err
		}
		s.logger.Debug("Initialized agent %s in %s with $%.2f", e.AgentID, tournamentID, s.cfg.StartingCash)
	}
	return len(enrollments), nil
}

// Winner returns the agent with the highest total value. Ties go to the
// smallest agent id. ok is false when states is empty.
func Winner(states []domain.AgentState) (winner domain.AgentState, ok bool) {
	ranked := sortStandings(states)
	if len(ranked) == 0 {
		return domain.AgentState{}, false
	}
	return ranked[0], true
}

// sortStandings orders by total value descending, then agent id ascending
func sortStandings(states []domain.AgentState) []domain.AgentState {
	ranked := make([]domain.AgentState, len(states))
	copy(ranked, states)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].TotalValue.Cmp(ranked[j].TotalValue); c != 0 {
			return c > 0
		}
		return ranked[i].AgentID < ranked[j].AgentID
	})
	return ranked
}
