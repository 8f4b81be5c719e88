// Package storage is the durable store of the arena: agent snapshots, the
// trade log, tournaments and cycle leases, on Postgres or SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/storage/repository"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options selects and configures the database
type Options struct {
	Driver string

	// Postgres
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// SQLite
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a facade over the repositories. It implements every repository
// interface of the domain package.
type Store struct {
	db          *sql.DB
	dialect     repository.Dialect
	states      *repository.AgentStateRepository
	trades      *repository.TradeRepository
	tournaments *repository.TournamentRepository
	leases      *repository.LeaseRepository
}

var (
	_ domain.AgentStateRepository = (*Store)(nil)
	_ domain.TradeRepository      = (*Store)(nil)
	_ domain.TournamentRepository = (*Store)(nil)
	_ domain.LeaseRepository      = (*Store)(nil)
)

// Open connects to the configured database and runs migrations
func Open(opts Options) (*Store, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		return NewPostgresStore(opts.Host, opts.Port, opts.User, opts.Password, opts.DBName, opts.SSLMode,
			opts.MaxOpenConns, opts.MaxIdleConns, opts.ConnMaxLifetime)
	case DriverSQLite:
		return NewSQLiteStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

func newStore(db *sql.DB, dialect repository.Dialect) (*Store, error) {
	s := &Store{
		db:          db,
		dialect:     dialect,
		states:      repository.NewAgentStateRepository(db, dialect),
		trades:      repository.NewTradeRepository(db, dialect),
		tournaments: repository.NewTournamentRepository(db, dialect),
		leases:      repository.NewLeaseRepository(db, dialect),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// columnTypes fills the dialect-specific types of the schema
var columnTypes = map[repository.Dialect]*strings.Replacer{
	repository.Postgres: strings.NewReplacer("{money}", "NUMERIC", "{json}", "JSONB", "{time}", "TIMESTAMPTZ"),
	repository.SQLite:   strings.NewReplacer("{money}", "TEXT", "{json}", "TEXT", "{time}", "TIMESTAMP"),
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tournaments (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(200) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'upcoming',
			start_date {time} NOT NULL,
			end_date {time} NOT NULL,
			prize_pool {money} NOT NULL DEFAULT '0',
			winner_agent_id VARCHAR(64),
			created_at {time} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tournament_agents (
			tournament_id VARCHAR(64) NOT NULL REFERENCES tournaments(id),
			agent_id VARCHAR(64) NOT NULL,
			name VARCHAR(200) NOT NULL DEFAULT '',
			personality VARCHAR(50) NOT NULL DEFAULT '',
			risk_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			PRIMARY KEY (tournament_id, agent_id)
		)`,
		// One snapshot per agent and tournament, upserted after every cycle
		`CREATE TABLE IF NOT EXISTS agent_states (
			agent_id VARCHAR(64) NOT NULL,
			tournament_id VARCHAR(64) NOT NULL,
			cash {money} NOT NULL,
			holdings {json} NOT NULL,
			starting_val {money} NOT NULL,
			holdings_val {money} NOT NULL,
			total_value {money} NOT NULL,
			realized_pnl {money} NOT NULL,
			unrealized_pnl {money} NOT NULL,
			roi {money} NOT NULL,
			num_trades INTEGER NOT NULL DEFAULT 0,
			num_winning_trades INTEGER NOT NULL DEFAULT 0,
			num_losing_trades INTEGER NOT NULL DEFAULT 0,
			win_rate {money} NOT NULL,
			rank INTEGER NOT NULL DEFAULT 0,
			trades_count INTEGER NOT NULL DEFAULT 0,
			last_decision TEXT NOT NULL DEFAULT '',
			updated_at {time} NOT NULL,
			PRIMARY KEY (agent_id, tournament_id)
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			trade_id VARCHAR(64) PRIMARY KEY,
			agent_id VARCHAR(64) NOT NULL,
			tournament_id VARCHAR(64) NOT NULL,
			action VARCHAR(10) NOT NULL,
			token VARCHAR(20) NOT NULL,
			qty {money} NOT NULL,
			price {money} NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT '',
			tx_hash VARCHAR(100) NOT NULL DEFAULT '',
			realized_pnl {money},
			roi {money},
			timestamp {time} NOT NULL
		)`,
		// Expiry is unix milliseconds so both drivers compare it numerically
		`CREATE TABLE IF NOT EXISTS cycle_leases (
			agent_id VARCHAR(64) NOT NULL,
			tournament_id VARCHAR(64) NOT NULL,
			owner VARCHAR(64) NOT NULL,
			expires_at BIGINT NOT NULL,
			PRIMARY KEY (agent_id, tournament_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_agent ON trades(tournament_id, agent_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_states_tournament ON agent_states(tournament_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tournaments_status ON tournaments(status)`,
	}

	types := columnTypes[s.dialect]
	for _, migration := range migrations {
		if _, err := s.db.Exec(types.Replace(migration)); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// ==================== AGENT STATES ====================

func (s *Store) SaveAgentState(ctx context.Context, state *domain.AgentState) error {
	return s.states.Save(ctx, state)
}

func (s *Store) LoadAgentState(ctx context.Context, agentID, tournamentID string) (*domain.AgentState, error) {
	return s.states.Get(ctx, agentID, tournamentID)
}

func (s *Store) ListAgentStates(ctx context.Context, tournamentID string) ([]domain.AgentState, error) {
	return s.states.ListByTournament(ctx, tournamentID)
}

func (s *Store) UpdateRank(ctx context.Context, agentID, tournamentID string, rank int) error {
	return s.states.UpdateRank(ctx, agentID, tournamentID, rank)
}

// ==================== TRADES ====================

func (s *Store) SaveTrade(ctx context.Context, trade domain.Trade, tournamentID string) error {
	return s.trades.Save(ctx, trade, tournamentID)
}

func (s *Store) LoadAgentTrades(ctx context.Context, agentID, tournamentID string, limit int) ([]domain.Trade, error) {
	return s.trades.ListByAgent(ctx, agentID, tournamentID, limit)
}

// ==================== TOURNAMENTS ====================

func (s *Store) CreateTournament(ctx context.Context, t *domain.Tournament) error {
	return s.tournaments.Create(ctx, t)
}

func (s *Store) GetTournament(ctx context.Context, id string) (*domain.Tournament, error) {
	return s.tournaments.Get(ctx, id)
}

func (s *Store) ListTournaments(ctx context.Context, status string) ([]domain.Tournament, error) {
	return s.tournaments.List(ctx, status)
}

func (s *Store) UpdateTournamentStatus(ctx context.Context, id, status, winnerAgentID string) error {
	return s.tournaments.UpdateStatus(ctx, id, status, winnerAgentID)
}

func (s *Store) Enroll(ctx context.Context, e domain.Enrollment) error {
	return s.tournaments.Enroll(ctx, e)
}

func (s *Store) ListEnrollments(ctx context.Context, tournamentID string) ([]domain.Enrollment, error) {
	return s.tournaments.ListEnrollments(ctx, tournamentID)
}

func (s *Store) GetEnrollment(ctx context.Context, tournamentID, agentID string) (*domain.Enrollment, error) {
	return s.tournaments.GetEnrollment(ctx, tournamentID, agentID)
}

// ==================== LEASES ====================

func (s *Store) AcquireLease(ctx context.Context, agentID, tournamentID, owner string, ttl time.Duration) (bool, error) {
	return s.leases.Acquire(ctx, agentID, tournamentID, owner, ttl)
}

func (s *Store) ReleaseLease(ctx context.Context, agentID, tournamentID, owner string) error {
	return s.leases.Release(ctx, agentID, tournamentID, owner)
}

// SetClock replaces the time source of lease expiry
func (s *Store) SetClock(now func() time.Time) {
	s.leases.SetClock(now)
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDatabaseConnection, err)
	}
	return nil
}

// Driver reports the dialect the store speaks
func (s *Store) Driver() string {
	if s.dialect == repository.SQLite {
		return DriverSQLite
	}
	return DriverPostgres
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB
func (s *Store) DB() *sql.DB {
	return s.db
}
