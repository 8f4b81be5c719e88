package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kirillm/agent-arena/internal/domain"
)

// Static serves fixed prices. It backs paper runs without network access
// and acts as the last fallback behind CoinGecko.
type Static struct {
	mu        sync.RWMutex
	prices    map[string]float64
	sentiment string
}

// NewStatic creates a static source
func NewStatic(prices map[string]float64, sentiment string) *Static {
	s := &Static{prices: make(map[string]float64, len(prices)), sentiment: sentiment}
	for token, price := range prices {
		s.prices[strings.ToUpper(token)] = price
	}
	if s.sentiment == "" {
		s.sentiment = domain.SentimentNeutral
	}
	return s
}

// ParsePrices reads "WETH=3000,CBBTC=60000"
func ParsePrices(s string) (map[string]float64, error) {
	prices := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid price %q, want TOKEN=PRICE", pair)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid price for %s: %q", token, value)
		}
		prices[strings.ToUpper(strings.TrimSpace(token))] = price
	}
	return prices, nil
}

// Set updates the price of token
func (s *Static) Set(token string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[strings.ToUpper(token)] = price
}

func (s *Static) Price(_ context.Context, token string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[strings.ToUpper(token)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPriceUnavailable, token)
	}
	return price, nil
}

func (s *Static) Sentiment(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sentiment, nil
}
