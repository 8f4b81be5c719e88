// Package memory keeps an agent's recent trades in a bounded window and
// bridges to the durable trade log.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// Options configures a Memory
type Options struct {
	// MaxShortTerm bounds the recency window; <= 0 means the default
	MaxShortTerm int
	// Recall is the optional semantic recall capability; nil means NoopRecall
	Recall SemanticRecall
	Logger *utils.Logger
}

// Memory is the trade memory of one agent in one tournament. The short-term
// window is a cache; the trade repository is authoritative.
type Memory struct {
	agentID      string
	tournamentID string
	maxShortTerm int

	mu        sync.RWMutex
	shortTerm []domain.Trade

	store  domain.TradeRepository
	recall SemanticRecall
	logger *utils.Logger
}

// New creates the memory for (agentID, tournamentID) backed by store
func New(agentID, tournamentID string, store domain.TradeRepository, opts Options) *Memory {
	if opts.MaxShortTerm <= 0 {
		opts.MaxShortTerm = domain.DefaultMaxShortTerm
	}
	if opts.Recall == nil {
		opts.Recall = NoopRecall{}
	}
	if opts.Logger == nil {
		opts.Logger = utils.Default()
	}
	return &Memory{
		agentID:      agentID,
		tournamentID: tournamentID,
		maxShortTerm: opts.MaxShortTerm,
		store:        store,
		recall:       opts.Recall,
		logger:       opts.Logger,
	}
}

func (m *Memory) MaxShortTerm() int {
	return m.maxShortTerm
}

// AddTrade appends to the window, evicting the oldest entries beyond capacity
func (m *Memory) AddTrade(trade domain.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shortTerm = append(m.shortTerm, trade)
	if over := len(m.shortTerm) - m.maxShortTerm; over > 0 {
		kept := make([]domain.Trade, m.maxShortTerm)
		copy(kept, m.shortTerm[over:])
		m.shortTerm = kept
	}
}

// ShortTerm returns a copy of the n most recent trades in chronological
// order, or the whole window when n <= 0.
func (m *Memory) ShortTerm(n int) []domain.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if n > 0 && n < len(m.shortTerm) {
		start = len(m.shortTerm) - n
	}
	out := make([]domain.Trade, len(m.shortTerm)-start)
	copy(out, m.shortTerm[start:])
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shortTerm)
}

// Reset clears the short-term window. The trade log is untouched.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.shortTerm = nil
	m.mu.Unlock()
}

// Restore replaces the window with history given newest first, as returned
// by LoadHistory. Only the most recent MaxShortTerm trades are kept.
func (m *Memory) Restore(newestFirst []domain.Trade) {
	n := len(newestFirst)
	if n > m.maxShortTerm {
		n = m.maxShortTerm
	}
	window := make([]domain.Trade, n)
	for i := 0; i < n; i++ {
		window[n-1-i] = newestFirst[i]
	}

	m.mu.Lock()
	m.shortTerm = window
	m.mu.Unlock()
}

// Save writes trade to the durable log. A failure is logged and returned
// for the caller to record; it never panics or retries.
func (m *Memory) Save(ctx context.Context, trade domain.Trade) error {
	if err := m.store.SaveTrade(ctx, trade, m.tournamentID); err != nil {
		m.logger.Error("Failed to save trade %s to database: %v", trade.ID, err)
		return fmt.Errorf("save trade %s: %w", trade.ID, err)
	}
	return nil
}

// Record adds trade to the window, the durable log and semantic recall.
// The window is updated even when the durable write fails.
func (m *Memory) Record(ctx context.Context, trade domain.Trade) error {
	m.AddTrade(trade)

	if err := m.recall.Remember(ctx, trade); err != nil && !errors.Is(err, ErrRecallDisabled) {
		m.logger.Warn("Semantic recall rejected trade %s: %v", trade.ID, err)
	}

	return m.Save(ctx, trade)
}

// LoadHistory returns logged trades newest first; limit <= 0 means all.
// On a store failure it returns an empty slice together with the error.
func (m *Memory) LoadHistory(ctx context.Context, limit int) ([]domain.Trade, error) {
	trades, err := m.store.LoadAgentTrades(ctx, m.agentID, m.tournamentID, limit)
	if err != nil {
		m.logger.Error("Failed to load trade history for %s: %v", m.agentID, err)
		return []domain.Trade{}, fmt.Errorf("load trade history: %w", err)
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	return trades, nil
}

// Recall queries semantic memory
func (m *Memory) Recall(ctx context.Context, query string, topK int) ([]Recollection, error) {
	return m.recall.Recall(ctx, query, topK)
}

// RecallEnabled reports whether a semantic recall backend is configured
func (m *Memory) RecallEnabled() bool {
	return m.recall.Enabled()
}
