package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillm/agent-arena/internal/domain"
)

// ComputeRanks assigns ranks 1..N by total value, highest first
func ComputeRanks(states []domain.AgentState) map[string]int {
	ranks := make(map[string]int, len(states))
	for i, st := range sortStandings(states) {
		ranks[st.AgentID] = i + 1
	}
	return ranks
}

// RankSweep recomputes the standings of every live tournament, writing only
// ranks that changed
func (s *Scheduler) RankSweep(ctx context.Context) error {
	live, err := s.store.ListTournaments(ctx, domain.StatusLive)
	if err != nil {
		return fmt.Errorf("list live tournaments: %w", err)
	}

	var errs []error
	for _, t := range live {
		if _, err := s.UpdateRanks(ctx, t.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UpdateRanks recomputes one tournament's ranks and returns how many rows
// were written
func (s *Scheduler) UpdateRanks(ctx context.Context, tournamentID string) (int, error) {
	states, err := s.store.ListAgentStates(ctx, tournamentID)
	if err != nil {
		return 0, fmt.Errorf("load standings of %s: %w", tournamentID, err)
	}

	ranks := ComputeRanks(states)
	written := 0
	var errs []error
	for _, st := range states {
		rank := ranks[st.AgentID]
		s.observer.Rank(tournamentID, st.AgentID, rank)
		if st.Rank == rank {
			continue
		}
		if err := s.store.UpdateRank(ctx, st.AgentID, tournamentID, rank); err != nil {
			errs = append(errs, fmt.Errorf("update rank of %s in %s: %w", st.AgentID, tournamentID, err))
			continue
		}
		written++
	}

	if written > 0 {
		s.logger.Debug("Ranks updated in %s: %d of %d changed", tournamentID, written, len(states))
	}
	return written, errors.Join(errs...)
}
