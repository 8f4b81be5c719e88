package agent

import (
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/memory"
	"github.com/kirillm/agent-arena/internal/policy"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// Factory builds runtimes for enrolled agents from shared collaborators
type Factory struct {
	Gate         TradeGate
	Engine       DecisionEngine
	Market       MarketProvider
	States       domain.AgentStateRepository
	Trades       domain.TradeRepository
	Policy       *policy.Policy
	Recall       memory.SemanticRecall
	MaxShortTerm int
	Logger       *utils.Logger
	Clock        func() time.Time
}

// NewRuntime returns a fresh, not yet hydrated runtime for e
func (f *Factory) NewRuntime(e domain.Enrollment) *Runtime {
	pol := f.Policy
	if pol == nil {
		pol = policy.Default()
	}

	risk := e.RiskScore
	if risk <= 0 {
		risk = pol.RiskScoreFor(e.Personality, domain.DefaultRiskScore)
	}

	mem := memory.New(e.AgentID, e.TournamentID, f.Trades, memory.Options{
		MaxShortTerm: f.MaxShortTerm,
		Recall:       f.Recall,
		Logger:       f.Logger,
	})

	return NewRuntime(Profile{
		AgentID:             e.AgentID,
		TournamentID:        e.TournamentID,
		Personality:         e.Personality,
		RiskScore:           risk,
		StartingCash:        pol.StartingCash,
		TradableTokens:      pol.TradableTokens(),
		MaxPositionFraction: pol.MaxPositionFraction,
	}, Deps{
		Gate:   f.Gate,
		Engine: f.Engine,
		Market: f.Market,
		States: f.States,
		Memory: mem,
		Logger: f.Logger,
		Clock:  f.Clock,
	})
}
