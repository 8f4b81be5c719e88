package domain

import (
	"context"
	"time"
)

// AgentStateRepository stores one snapshot per (agent, tournament)
type AgentStateRepository interface {
	// SaveAgentState upserts the snapshot keyed by (agent, tournament)
	SaveAgentState(ctx context.Context, state *AgentState) error
	// LoadAgentState returns ErrNotFound when no snapshot exists
	LoadAgentState(ctx context.Context, agentID, tournamentID string) (*AgentState, error)
	ListAgentStates(ctx context.Context, tournamentID string) ([]AgentState, error)
	UpdateRank(ctx context.Context, agentID, tournamentID string, rank int) error
}

// TradeRepository is the append-only trade log
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade Trade, tournamentID string) error
	// LoadAgentTrades returns trades newest first; limit <= 0 means all
	LoadAgentTrades(ctx context.Context, agentID, tournamentID string, limit int) ([]Trade, error)
}

// TournamentRepository stores tournaments and their enrollments
type TournamentRepository interface {
	CreateTournament(ctx context.Context, t *Tournament) error
	GetTournament(ctx context.Context, id string) (*Tournament, error)
	ListTournaments(ctx context.Context, status string) ([]Tournament, error)
	UpdateTournamentStatus(ctx context.Context, id, status, winnerAgentID string) error
	Enroll(ctx context.Context, e Enrollment) error
	ListEnrollments(ctx context.Context, tournamentID string) ([]Enrollment, error)
	GetEnrollment(ctx context.Context, tournamentID, agentID string) (*Enrollment, error)
}

// LeaseRepository guards a single in-flight decision cycle per agent
type LeaseRepository interface {
	// AcquireLease returns true when owner now holds the lease
	AcquireLease(ctx context.Context, agentID, tournamentID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, agentID, tournamentID, owner string) error
}
