package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/shopspring/decimal"
)

// TradeRepository is the append-only trade log
type TradeRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewTradeRepository creates the trade log repository
func NewTradeRepository(db *sql.DB, dialect Dialect) *TradeRepository {
	return &TradeRepository{db: db, dialect: dialect}
}

// Save appends a trade. Saving the same trade id twice is a no-op.
func (r *TradeRepository) Save(ctx context.Context, trade domain.Trade, tournamentID string) error {
	query := `
		INSERT INTO trades (trade_id, agent_id, tournament_id, action, token, qty, price, confidence,
		                    summary, tx_hash, realized_pnl, roi, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (trade_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		trade.ID,
		trade.AgentID,
		tournamentID,
		trade.Action,
		trade.Token,
		decimal.NewFromFloat(trade.Qty),
		decimal.NewFromFloat(trade.Price),
		trade.Confidence,
		trade.Summary,
		trade.TxHash,
		nullDecimal(trade.RealizedPnL),
		nullDecimal(trade.ROI),
		trade.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", trade.ID, err)
	}
	return nil
}

// ListByAgent returns the agent's trades newest first; limit <= 0 means all
func (r *TradeRepository) ListByAgent(ctx context.Context, agentID, tournamentID string, limit int) ([]domain.Trade, error) {
	query := `
		SELECT trade_id, agent_id, action, token, qty, price, confidence, summary,
		       tx_hash, realized_pnl, roi, timestamp
		FROM trades
		WHERE agent_id = $1 AND tournament_id = $2
		ORDER BY timestamp DESC, trade_id DESC
	`
	args := []any{agentID, tournamentID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	return r.queryTrades(ctx, r.dialect.Rebind(query), args...)
}

// queryTrades runs query and scans the resulting trades
func (r *TradeRepository) queryTrades(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	defer rows.Close()

	trades := []domain.Trade{}
	for rows.Next() {
		var (
			trade      domain.Trade
			qty, price decimal.Decimal
			pnl, roi   decimal.NullDecimal
		)
		err := rows.Scan(
			&trade.ID,
			&trade.AgentID,
			&trade.Action,
			&trade.Token,
			&qty,
			&price,
			&trade.Confidence,
			&trade.Summary,
			&trade.TxHash,
			&pnl,
			&roi,
			&trade.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		trade.Qty = qty.InexactFloat64()
		trade.Price = price.InexactFloat64()
		trade.Timestamp = trade.Timestamp.UTC()
		if pnl.Valid && roi.Valid {
			trade = trade.WithOutcome(pnl.Decimal.InexactFloat64(), roi.Decimal.InexactFloat64())
		}
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

func nullDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}
