package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillm/agent-arena/internal/domain"
)

// DecisionError is a decision engine failure: the request failed or the
// answer could not be used
type DecisionError struct {
	AgentID string
	Raw     string
	Cause   error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision engine failed for %s: %v", e.AgentID, e.Cause)
}

func (e *DecisionError) Unwrap() error {
	return e.Cause
}

// DecisionClient asks the model for one trading decision per cycle
type DecisionClient struct {
	baseClient *AIClient
}

// NewDecisionClient creates a new decision client
func NewDecisionClient(baseClient *AIClient) *DecisionClient {
	return &DecisionClient{
		baseClient: baseClient,
	}
}

// DecisionResponse is the JSON the model must answer with
type DecisionResponse struct {
	Narrative   string          `json:"narrative"`
	TradeIntent *IntentResponse `json:"trade_intent"`
}

// IntentResponse is a proposed trade, or HOLD
type IntentResponse struct {
	Action     string  `json:"action"`
	Token      string  `json:"token"`
	Amount     float64 `json:"amount"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// Propose asks the model for a decision
func (dc *DecisionClient) Propose(ctx context.Context, req domain.DecisionRequest) (*domain.Proposal, error) {
	messages := []Message{
		{Role: "system", Content: GetDecisionSystemPrompt()},
		{Role: "user", Content: dc.buildDecisionPrompt(req)},
	}

	response, err := dc.baseClient.chat(ctx, messages)
	if err != nil {
		return nil, &DecisionError{AgentID: req.AgentID, Cause: fmt.Errorf("AI request failed: %w", err)}
	}

	decision, err := parseDecision(response)
	if err != nil {
		return nil, &DecisionError{AgentID: req.AgentID, Raw: response, Cause: err}
	}

	if err := dc.validateDecision(decision, req.TradableTokens); err != nil {
		return nil, &DecisionError{AgentID: req.AgentID, Raw: response, Cause: fmt.Errorf("invalid decision: %w", err)}
	}

	return toProposal(decision), nil
}

// parseDecision reads the answer, also when wrapped in a markdown block
func parseDecision(response string) (*DecisionResponse, error) {
	var decision DecisionResponse
	if err := json.Unmarshal([]byte(response), &decision); err != nil {
		if cleanJSON := extractJSON(response); cleanJSON != "" {
			if err := json.Unmarshal([]byte(cleanJSON), &decision); err != nil {
				return nil, fmt.Errorf("failed to parse AI response: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to parse AI response: %w", err)
		}
	}
	return &decision, nil
}

func toProposal(d *DecisionResponse) *domain.Proposal {
	p := &domain.Proposal{Narrative: strings.TrimSpace(d.Narrative)}
	if d.TradeIntent == nil || strings.EqualFold(d.TradeIntent.Action, "HOLD") {
		return p
	}

	p.Intent = &domain.TradeIntent{
		Action:     strings.ToUpper(d.TradeIntent.Action),
		Token:      strings.ToUpper(d.TradeIntent.Token),
		Amount:     d.TradeIntent.Amount,
		Confidence: d.TradeIntent.Confidence,
		Summary:    d.TradeIntent.Summary,
	}
	if p.Narrative == "" {
		p.Narrative = p.Intent.Summary
	}
	return p
}

// buildDecisionPrompt renders the agent's situation for the model
func (dc *DecisionClient) buildDecisionPrompt(req domain.DecisionRequest) string {
	pf := req.Portfolio
	if pf == nil {
		pf = &domain.Portfolio{Holdings: map[string]float64{}}
	}

	holdingsJSON, _ := json.Marshal(pf.Holdings)
	tradesJSON, _ := json.MarshalIndent(recentTrades(req.RecentTrades), "", "  ")

	return fmt.Sprintf(`You are an AI trading agent with the following characteristics:

Agent ID: %s
Personality: %s
Risk Score: %.2f (0.0 = very conservative, 1.0 = very aggressive)
Current Cash: $%.2f
Current Holdings: %s
Total Portfolio Value: $%.2f
ROI: %.2f%%

Market Context:
%s

Recent Trades (oldest first):
%s

Tradable tokens: %s

Task: %s

Answer with pure JSON (no markdown):
{
  "narrative": "your reasoning in a few sentences",
  "trade_intent": {"action": "BUY|SELL|HOLD", "token": "SYMBOL", "amount": 0, "confidence": 0.0-1.0, "summary": "one line"}
}
Use "trade_intent": null to hold.`,
		req.AgentID,
		req.Personality,
		req.RiskScore,
		pf.Cash,
		string(holdingsJSON),
		pf.TotalValue,
		pf.ROI*100,
		formatMarket(req.Market),
		string(tradesJSON),
		strings.Join(req.TradableTokens, ", "),
		req.Task,
	)
}

func formatMarket(md domain.MarketData) string {
	tokens := make([]string, 0, len(md.Prices))
	for token := range md.Prices {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var b strings.Builder
	for _, token := range tokens {
		fmt.Fprintf(&b, "- %s: $%.2f\n", token, md.Prices[token])
	}
	fmt.Fprintf(&b, "- Sentiment: %s", md.Sentiment)
	return b.String()
}

type tradeLine struct {
	Action string  `json:"action"`
	Token  string  `json:"token"`
	Qty    float64 `json:"qty"`
	Price  float64 `json:"price"`
	PnL    float64 `json:"realized_pnl,omitempty"`
}

func recentTrades(trades []domain.Trade) []tradeLine {
	lines := make([]tradeLine, 0, len(trades))
	for _, t := range trades {
		line := tradeLine{Action: t.Action, Token: t.Token, Qty: t.Qty, Price: t.Price}
		if t.RealizedPnL != nil {
			line.PnL = *t.RealizedPnL
		}
		lines = append(lines, line)
	}
	return lines
}

// validateDecision checks the answer is a usable decision
func (dc *DecisionClient) validateDecision(decision *DecisionResponse, tradable []string) error {
	intent := decision.TradeIntent
	if intent == nil {
		return nil
	}

	action := strings.ToUpper(intent.Action)
	switch action {
	case "HOLD":
		return nil
	case domain.ActionBuy, domain.ActionSell:
	default:
		return fmt.Errorf("invalid action: %s", intent.Action)
	}

	if intent.Confidence < 0.0 || intent.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got: %.2f", intent.Confidence)
	}
	if intent.Amount < 0 {
		return fmt.Errorf("amount must not be negative, got: %v", intent.Amount)
	}
	if action == domain.ActionSell && intent.Amount == 0 {
		return fmt.Errorf("SELL needs a quantity")
	}

	if len(tradable) > 0 {
		token := strings.ToUpper(intent.Token)
		for _, t := range tradable {
			if t == token {
				return nil
			}
		}
		return fmt.Errorf("token %s is not tradable", intent.Token)
	}
	return nil
}

// extractJSON pulls the body out of a ```json ... ``` block
func extractJSON(text string) string {
	start := -1
	end := -1

	for i := 0; i < len(text)-2; i++ {
		if text[i:i+3] == "```" {
			if start == -1 {
				start = i + 3
				if i+7 < len(text) && text[i+3:i+7] == "json" {
					start = i + 7
				}
				if start < len(text) && text[start] == '\n' {
					start++
				}
			} else {
				end = i
				break
			}
		}
	}

	if start > 0 && end > start {
		return text[start:end]
	}

	// Fall back to the outermost braces
	if first, last := strings.Index(text, "{"), strings.LastIndex(text, "}"); first >= 0 && last > first {
		return text[first : last+1]
	}
	return ""
}
