package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/shopspring/decimal"
)

// AgentStateRepository stores one snapshot per (agent, tournament)
type AgentStateRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewAgentStateRepository creates the snapshot repository
func NewAgentStateRepository(db *sql.DB, dialect Dialect) *AgentStateRepository {
	return &AgentStateRepository{db: db, dialect: dialect}
}

const agentStateColumns = `agent_id, tournament_id, cash, holdings, starting_val, holdings_val, total_value,
	realized_pnl, unrealized_pnl, roi, num_trades, num_winning_trades, num_losing_trades,
	win_rate, rank, trades_count, last_decision, updated_at`

// Save upserts the snapshot. An existing row keeps its rank: ranks are
// written by UpdateRank only.
func (r *AgentStateRepository) Save(ctx context.Context, s *domain.AgentState) error {
	holdings, err := json.Marshal(s.Holdings)
	if err != nil {
		return fmt.Errorf("encode holdings: %w", err)
	}

	query := `
		INSERT INTO agent_states (` + agentStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (agent_id, tournament_id) DO UPDATE SET
			cash = excluded.cash,
			holdings = excluded.holdings,
			starting_val = excluded.starting_val,
			holdings_val = excluded.holdings_val,
			total_value = excluded.total_value,
			realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl,
			roi = excluded.roi,
			num_trades = excluded.num_trades,
			num_winning_trades = excluded.num_winning_trades,
			num_losing_trades = excluded.num_losing_trades,
			win_rate = excluded.win_rate,
			trades_count = excluded.trades_count,
			last_decision = excluded.last_decision,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(query),
		s.AgentID,
		s.TournamentID,
		s.Cash,
		string(holdings),
		s.StartingVal,
		s.HoldingsVal,
		s.TotalValue,
		s.RealizedPnL,
		s.UnrealizedPnL,
		s.ROI,
		s.NumTrades,
		s.NumWinningTrades,
		s.NumLosingTrades,
		s.WinRate,
		s.Rank,
		s.TradesCount,
		s.LastDecision,
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save agent state %s/%s: %w", s.TournamentID, s.AgentID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound when the agent has no snapshot yet
func (r *AgentStateRepository) Get(ctx context.Context, agentID, tournamentID string) (*domain.AgentState, error) {
	query := `SELECT ` + agentStateColumns + ` FROM agent_states WHERE agent_id = $1 AND tournament_id = $2`
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), agentID, tournamentID)

	s, err := scanAgentState(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("load agent state %s/%s", tournamentID, agentID))
	}
	return s, nil
}

// ListByTournament returns every snapshot of a tournament ordered by agent id
func (r *AgentStateRepository) ListByTournament(ctx context.Context, tournamentID string) ([]domain.AgentState, error) {
	query := `SELECT ` + agentStateColumns + ` FROM agent_states WHERE tournament_id = $1 ORDER BY agent_id`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list agent states: %w", err)
	}
	defer rows.Close()

	var states []domain.AgentState
	for rows.Next() {
		s, err := scanAgentState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent state: %w", err)
		}
		states = append(states, *s)
	}
	return states, rows.Err()
}

// UpdateRank writes the rank column alone
func (r *AgentStateRepository) UpdateRank(ctx context.Context, agentID, tournamentID string, rank int) error {
	query := `UPDATE agent_states SET rank = $1 WHERE agent_id = $2 AND tournament_id = $3`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), rank, agentID, tournamentID)
	if err != nil {
		return fmt.Errorf("update rank %s/%s: %w", tournamentID, agentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update rank %s/%s: %w", tournamentID, agentID, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentState(row rowScanner) (*domain.AgentState, error) {
	var (
		s        domain.AgentState
		holdings []byte
	)
	err := row.Scan(
		&s.AgentID,
		&s.TournamentID,
		&s.Cash,
		&holdings,
		&s.StartingVal,
		&s.HoldingsVal,
		&s.TotalValue,
		&s.RealizedPnL,
		&s.UnrealizedPnL,
		&s.ROI,
		&s.NumTrades,
		&s.NumWinningTrades,
		&s.NumLosingTrades,
		&s.WinRate,
		&s.Rank,
		&s.TradesCount,
		&s.LastDecision,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Holdings = make(map[string]decimal.Decimal)
	if len(holdings) > 0 {
		if err := json.Unmarshal(holdings, &s.Holdings); err != nil {
			return nil, fmt.Errorf("decode holdings: %w", err)
		}
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
