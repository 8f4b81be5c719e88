package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LeaseRepository keeps one cycle lease row per (agent, tournament)
type LeaseRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewLeaseRepository creates the lease repository
func NewLeaseRepository(db *sql.DB, dialect Dialect) *LeaseRepository {
	return &LeaseRepository{db: db, dialect: dialect, now: time.Now}
}

// SetClock replaces the time source used for expiry
func (r *LeaseRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Acquire takes the lease when it is free, expired or already held by
// owner. It reports whether owner holds the lease afterwards.
func (r *LeaseRepository) Acquire(ctx context.Context, agentID, tournamentID, owner string, ttl time.Duration) (bool, error) {
	now := r.now()
	query := `
		INSERT INTO cycle_leases (agent_id, tournament_id, owner, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id, tournament_id) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE cycle_leases.expires_at <= $5 OR cycle_leases.owner = excluded.owner
	`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		agentID, tournamentID, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquire lease %s/%s: %w", tournamentID, agentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s/%s: %w", tournamentID, agentID, err)
	}
	return n > 0, nil
}

// Release drops the lease if owner still holds it
func (r *LeaseRepository) Release(ctx context.Context, agentID, tournamentID, owner string) error {
	query := `DELETE FROM cycle_leases WHERE agent_id = $1 AND tournament_id = $2 AND owner = $3`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), agentID, tournamentID, owner); err != nil {
		return fmt.Errorf("release lease %s/%s: %w", tournamentID, agentID, err)
	}
	return nil
}
