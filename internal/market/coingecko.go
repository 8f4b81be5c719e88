// Package market provides prices and market sentiment for the agents.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/policy"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// DefaultCoinGeckoURL is the public API root
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// sentimentBand is the BTC 24h change (percent) beyond which the market
// counts as bullish or bearish
const sentimentBand = 2.0

var (
	// ErrPriceUnavailable is returned when no source could price a token
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrUnsupportedToken is returned for a token without a CoinGecko id
	ErrUnsupportedToken = errors.New("unsupported token")
)

// CoinGecko reads spot prices and 24h change from the simple/price endpoint
type CoinGecko struct {
	client *resty.Client
	ids    map[string]string
	logger *utils.Logger
}

// NewCoinGecko creates a client. Token ids come from the policy; an api key
// is sent as the demo key header when set.
func NewCoinGecko(baseURL, apiKey string, p *policy.Policy, logger *utils.Logger) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if logger == nil {
		logger = utils.Default()
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(15 * time.Second)
	client.SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("x-cg-demo-api-key", apiKey)
	}

	ids := make(map[string]string, len(p.Tokens))
	for symbol, tok := range p.Tokens {
		if tok.CoinGeckoID != "" {
			ids[symbol] = tok.CoinGeckoID
		}
	}

	return &CoinGecko{
		client: client,
		ids:    ids,
		logger: logger.Named("coingecko"),
	}
}

// quote is one entry of a simple/price response
type quote struct {
	USD          float64  `json:"usd"`
	USD24hChange *float64 `json:"usd_24h_change"`
}

// Price returns the USD price of token
func (c *CoinGecko) Price(ctx context.Context, token string) (float64, error) {
	prices, err := c.Prices(ctx, []string{token})
	if err != nil {
		return 0, err
	}
	price, ok := prices[strings.ToUpper(token)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPriceUnavailable, token)
	}
	return price, nil
}

// Prices fetches several tokens in one request. Tokens missing from the
// response are left out of the result.
func (c *CoinGecko) Prices(ctx context.Context, tokens []string) (map[string]float64, error) {
	byID := make(map[string][]string)
	for _, token := range tokens {
		symbol := strings.ToUpper(token)
		id, ok := c.ids[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, token)
		}
		byID[id] = append(byID[id], symbol)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	quotes, err := c.simplePrice(ctx, ids, false)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(tokens))
	for id, symbols := range byID {
		q, ok := quotes[id]
		if !ok || q.USD <= 0 {
			c.logger.Warn("No price in response for %s", id)
			continue
		}
		for _, symbol := range symbols {
			prices[symbol] = q.USD
		}
	}
	return prices, nil
}

// Sentiment classifies the market from BTC's 24h change
func (c *CoinGecko) Sentiment(ctx context.Context) (string, error) {
	quotes, err := c.simplePrice(ctx, []string{"bitcoin"}, true)
	if err != nil {
		return domain.SentimentUnknown, err
	}

	q, ok := quotes["bitcoin"]
	if !ok || q.USD24hChange == nil {
		return domain.SentimentUnknown, nil
	}

	sentiment := Classify(*q.USD24hChange)
	c.logger.Info("Market sentiment: %s (24h change: %.2f%%)", sentiment, *q.USD24hChange)
	return sentiment, nil
}

// Classify maps a 24h percent change onto a sentiment
func Classify(change24h float64) string {
	switch {
	case change24h > sentimentBand:
		return domain.SentimentBullish
	case change24h < -sentimentBand:
		return domain.SentimentBearish
	case change24h == 0:
		return domain.SentimentUnknown
	default:
		return domain.SentimentNeutral
	}
}

func (c *CoinGecko) simplePrice(ctx context.Context, ids []string, withChange bool) (map[string]quote, error) {
	params := map[string]string{
		"ids":           strings.Join(ids, ","),
		"vs_currencies": "usd",
	}
	if withChange {
		params["include_24hr_change"] = "true"
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/simple/price")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
	}

	var quotes map[string]quote
	if err := json.Unmarshal(resp.Body(), &quotes); err != nil {
		return nil, fmt.Errorf("failed to parse price response: %w", err)
	}
	return quotes, nil
}
