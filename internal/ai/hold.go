package ai

import (
	"context"
	"fmt"

	"github.com/kirillm/agent-arena/internal/domain"
)

// HoldEngine never trades. It stands in for the model in dry runs and when
// no AI provider is configured.
type HoldEngine struct{}

func (HoldEngine) Propose(_ context.Context, req domain.DecisionRequest) (*domain.Proposal, error) {
	return &domain.Proposal{
		Narrative: fmt.Sprintf("Holding: no decision engine configured (market sentiment %s)", req.Market.Sentiment),
	}, nil
}
