package memory

import (
	"context"
	"errors"

	"github.com/kirillm/agent-arena/internal/domain"
)

// ErrRecallDisabled is returned by NoopRecall so callers can tell
// "not configured" apart from "no matches".
var ErrRecallDisabled = errors.New("semantic recall is not configured")

// Recollection is a past trade matched by semantic recall
type Recollection struct {
	Trade domain.Trade
	Score float64
}

// SemanticRecall is an optional similarity search over significant trades
type SemanticRecall interface {
	Enabled() bool
	Remember(ctx context.Context, trade domain.Trade) error
	Recall(ctx context.Context, query string, topK int) ([]Recollection, error)
}

// NoopRecall is the SemanticRecall used when no backend is configured
type NoopRecall struct{}

func (NoopRecall) Enabled() bool { return false }

func (NoopRecall) Remember(context.Context, domain.Trade) error {
	return ErrRecallDisabled
}

func (NoopRecall) Recall(context.Context, string, int) ([]Recollection, error) {
	return nil, ErrRecallDisabled
}
