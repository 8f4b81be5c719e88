package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// Source is anything that can price tokens and read the market mood
type Source interface {
	Price(ctx context.Context, token string) (float64, error)
	Sentiment(ctx context.Context) (string, error)
}

// Failover tries its sources in order and falls back to the last good
// price while it is younger than the cache TTL.
type Failover struct {
	sources []Source
	ttl     time.Duration
	logger  *utils.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price     float64
	timestamp time.Time
}

// NewFailover creates a failover over primary and optional fallbacks
func NewFailover(ttl time.Duration, logger *utils.Logger, primary Source, fallbacks ...Source) *Failover {
	if logger == nil {
		logger = utils.Default()
	}
	return &Failover{
		sources: append([]Source{primary}, fallbacks...),
		ttl:     ttl,
		logger:  logger.Named("market"),
		now:     time.Now,
		cache:   make(map[string]cachedPrice),
	}
}

// SetClock replaces the time source used for cache age
func (f *Failover) SetClock(now func() time.Time) {
	f.now = now
}

// Price returns the first price a source can produce
func (f *Failover) Price(ctx context.Context, token string) (float64, error) {
	symbol := strings.ToUpper(token)

	var errs []error
	for i, source := range f.sources {
		price, err := source.Price(ctx, symbol)
		if err == nil && price > 0 {
			if i > 0 {
				f.logger.Warn("Using fallback source #%d for %s price", i, symbol)
			}
			f.store(symbol, price)
			return price, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive price %v", price)
		}
		errs = append(errs, err)
	}

	f.mu.Lock()
	cached, ok := f.cache[symbol]
	f.mu.Unlock()
	if ok {
		if age := f.now().Sub(cached.timestamp); age < f.ttl {
			f.logger.Warn("Using cached price for %s (age: %v)", symbol, age.Round(time.Second))
			return cached.price, nil
		}
	}

	return 0, fmt.Errorf("%w: %s: %w", ErrPriceUnavailable, symbol, errors.Join(errs...))
}

// Sentiment returns the first sentiment a source can produce
func (f *Failover) Sentiment(ctx context.Context) (string, error) {
	var errs []error
	for _, source := range f.sources {
		sentiment, err := source.Sentiment(ctx)
		if err == nil {
			return sentiment, nil
		}
		errs = append(errs, err)
	}
	return domain.SentimentUnknown, errors.Join(errs...)
}

func (f *Failover) store(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[symbol] = cachedPrice{price: price, timestamp: f.now()}
}
