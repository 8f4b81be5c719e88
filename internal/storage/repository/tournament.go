package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
)

// TournamentRepository stores tournaments and their enrolled agents
type TournamentRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewTournamentRepository creates the tournament repository
func NewTournamentRepository(db *sql.DB, dialect Dialect) *TournamentRepository {
	return &TournamentRepository{db: db, dialect: dialect}
}

const tournamentColumns = `id, name, status, start_date, end_date, prize_pool, COALESCE(winner_agent_id, ''), created_at`

// Create inserts a new tournament
func (r *TournamentRepository) Create(ctx context.Context, t *domain.Tournament) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO tournaments (id, name, status, start_date, end_date, prize_pool, winner_agent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		t.ID,
		t.Name,
		t.Status,
		t.StartDate.UTC(),
		t.EndDate.UTC(),
		t.PrizePool,
		nullString(t.WinnerAgentID),
		t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create tournament %s: %w", t.ID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound for an unknown id
func (r *TournamentRepository) Get(ctx context.Context, id string) (*domain.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	t, err := scanTournament(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if err != nil {
		return nil, notFound(err, "get tournament "+id)
	}
	return t, nil
}

// List returns tournaments ordered by start date; an empty status means all
func (r *TournamentRepository) List(ctx context.Context, status string) ([]domain.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY start_date, id`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	defer rows.Close()

	var tournaments []domain.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tournament: %w", err)
		}
		tournaments = append(tournaments, *t)
	}
	return tournaments, rows.Err()
}

// UpdateStatus moves a tournament to status; an empty winner leaves the
// recorded winner untouched
func (r *TournamentRepository) UpdateStatus(ctx context.Context, id, status, winnerAgentID string) error {
	query := `
		UPDATE tournaments
		SET status = $1, winner_agent_id = COALESCE($2, winner_agent_id)
		WHERE id = $3
	`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), status, nullString(winnerAgentID), id)
	if err != nil {
		return fmt.Errorf("update tournament %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update tournament %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Enroll adds an agent to a tournament, updating its profile when already enrolled
func (r *TournamentRepository) Enroll(ctx context.Context, e domain.Enrollment) error {
	query := `
		INSERT INTO tournament_agents (tournament_id, agent_id, name, personality, risk_score)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tournament_id, agent_id) DO UPDATE SET
			name = excluded.name,
			personality = excluded.personality,
			risk_score = excluded.risk_score
	`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		e.TournamentID, e.AgentID, e.Name, e.Personality, e.RiskScore)
	if err != nil {
		return fmt.Errorf("enroll agent %s in %s: %w", e.AgentID, e.TournamentID, err)
	}
	return nil
}

// ListEnrollments returns a tournament's agents ordered by agent id
func (r *TournamentRepository) ListEnrollments(ctx context.Context, tournamentID string) ([]domain.Enrollment, error) {
	query := `
		SELECT tournament_id, agent_id, name, personality, risk_score
		FROM tournament_agents
		WHERE tournament_id = $1
		ORDER BY agent_id
	`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []domain.Enrollment
	for rows.Next() {
		var e domain.Enrollment
		if err := rows.Scan(&e.TournamentID, &e.AgentID, &e.Name, &e.Personality, &e.RiskScore); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// GetEnrollment returns domain.ErrNotFound when the agent is not enrolled
func (r *TournamentRepository) GetEnrollment(ctx context.Context, tournamentID, agentID string) (*domain.Enrollment, error) {
	query := `
		SELECT tournament_id, agent_id, name, personality, risk_score
		FROM tournament_agents
		WHERE tournament_id = $1 AND agent_id = $2
	`
	var e domain.Enrollment
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), tournamentID, agentID).
		Scan(&e.TournamentID, &e.AgentID, &e.Name, &e.Personality, &e.RiskScore)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("get enrollment %s/%s", tournamentID, agentID))
	}
	return &e, nil
}

func scanTournament(row rowScanner) (*domain.Tournament, error) {
	var t domain.Tournament
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Status,
		&t.StartDate,
		&t.EndDate,
		&t.PrizePool,
		&t.WinnerAgentID,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.StartDate = t.StartDate.UTC()
	t.EndDate = t.EndDate.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
