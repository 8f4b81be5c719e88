// Package swap executes token swaps for the trade gate, either through the
// on-chain swap bridge or as simulated paper fills.
package swap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// ErrSwapFailed marks a swap the executor reported as failed
var ErrSwapFailed = errors.New("swap failed")

// Error is a failure reported by the bridge
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("swap failed (HTTP %d): %s", e.Status, e.Message)
	}
	return "swap failed: " + e.Message
}

func (e *Error) Is(target error) bool {
	return target == ErrSwapFailed
}

// Bridge calls the swap bridge service, which holds the agent wallets and
// submits the router transactions.
type Bridge struct {
	client  *resty.Client
	symbols map[string]string
	logger  *utils.Logger
}

// bridgeSymbols maps arena symbols onto the bridge's token names
var bridgeSymbols = map[string]string{
	"CBBTC": "cbBTC",
}

// NewBridge creates a bridge client. The timeout bounds a single swap,
// confirmation included.
func NewBridge(baseURL, apiKey string, timeout time.Duration, logger *utils.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = utils.Default()
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return &Bridge{
		client:  client,
		symbols: bridgeSymbols,
		logger:  logger.Named("swap"),
	}
}

type bridgeRequest struct {
	AgentID     string `json:"agent_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	SlippageBps int    `json:"slippage"`
}

type bridgeResponse struct {
	Success   bool   `json:"success"`
	TxHash    string `json:"txHash"`
	AmountOut string `json:"amountOut"`
	Error     string `json:"error"`
}

// Swap sends one swap and waits for the bridge's result
func (b *Bridge) Swap(ctx context.Context, req domain.SwapRequest) (*domain.SwapResult, error) {
	body := bridgeRequest{
		AgentID:     req.AgentID,
		From:        b.symbol(req.FromToken),
		To:          b.symbol(req.ToToken),
		Amount:      strconv.FormatFloat(req.Amount, 'f', -1, 64),
		SlippageBps: req.SlippageBps,
	}

	b.logger.Info("Executing swap: %s %s -> %s for %s (slippage %d bps)",
		body.Amount, body.From, body.To, req.AgentID, req.SlippageBps)

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/swap")
	if err != nil {
		return nil, fmt.Errorf("swap request failed: %w", err)
	}

	var out bridgeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		if resp.StatusCode() != 200 {
			return nil, &Error{Status: resp.StatusCode(), Message: resp.String()}
		}
		return nil, fmt.Errorf("could not parse swap result: %w", err)
	}
	if resp.StatusCode() != 200 || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &Error{Status: resp.StatusCode(), Message: msg}
	}

	amountOut, err := decimal.NewFromString(out.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("invalid amountOut %q: %w", out.AmountOut, err)
	}

	b.logger.Info("Swap confirmed: tx=%s amount_out=%s", out.TxHash, amountOut)
	return &domain.SwapResult{TxHash: out.TxHash, AmountOut: amountOut}, nil
}

func (b *Bridge) symbol(token string) string {
	token = strings.ToUpper(token)
	if s, ok := b.symbols[token]; ok {
		return s
	}
	return token
}
