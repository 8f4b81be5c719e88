package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kirillm/agent-arena/internal/agent"
	"github.com/kirillm/agent-arena/internal/ai"
	"github.com/kirillm/agent-arena/internal/config"
	"github.com/kirillm/agent-arena/internal/execution"
	"github.com/kirillm/agent-arena/internal/market"
	"github.com/kirillm/agent-arena/internal/metrics"
	"github.com/kirillm/agent-arena/internal/notify"
	"github.com/kirillm/agent-arena/internal/policy"
	"github.com/kirillm/agent-arena/internal/scheduler"
	"github.com/kirillm/agent-arena/internal/storage"
	"github.com/kirillm/agent-arena/internal/swap"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// app holds the wired components shared by the commands
type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	store    *storage.Store
	policy   *policy.Policy
	metrics  *metrics.Metrics
	gate     *execution.Gate
	factory  *agent.Factory
	notifier notify.Notifier
}

// openStore loads the configuration and opens the database only
func openStore() (*config.Config, *utils.Logger, *storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	utils.SetDefault(logger)

	store, err := storage.Open(storage.Options{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		Path:            cfg.Database.SQLitePath,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Info("Connected to %s database", store.Driver())
	return cfg, logger, store, nil
}

// newApp wires the full decision pipeline
func newApp() (*app, error) {
	cfg, logger, store, err := openStore()
	if err != nil {
		return nil, err
	}

	pol, err := loadPolicy(cfg.PolicyPath, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	prices, err := buildMarket(cfg, pol, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	m := metrics.New()
	gate := execution.NewGate(pol, buildSwapper(cfg, pol, prices, logger), execution.NewKillSwitch(logger), logger)
	gate.SetRecorder(m)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		policy:  pol,
		metrics: m,
		gate:    gate,
		factory: &agent.Factory{
			Gate:   gate,
			Engine: buildEngine(cfg, logger),
			Market: prices,
			States: store,
			Trades: store,
			Policy: pol,
			Logger: logger,
		},
		notifier: buildNotifier(cfg, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close database: %v", err)
	}
}

// schedulerConfig maps the environment onto the scheduler settings
func (a *app) schedulerConfig() scheduler.Config {
	s := a.cfg.Scheduler
	return scheduler.Config{
		DecisionInterval: s.DecisionInterval,
		StatusInterval:   s.StatusInterval,
		RankInterval:     s.RankInterval,
		RecoveryInterval: s.RecoveryInterval,
		StaleThreshold:   s.StaleThreshold,
		LeaseTTL:         s.CycleBudget + 30*time.Second,
		AlertThreshold:   s.AlertThreshold,
		MaxAttempts:      s.MaxAttempts,
		StartingCash:     a.policy.StartingCash,
	}
}

func loadPolicy(path string, logger *utils.Logger) (*policy.Policy, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warn("Policy file %s not found, using built-in policy", path)
		path = ""
	}
	return policy.Load(path)
}

// buildMarket puts CoinGecko first and the static price list, when
// configured, behind it
func buildMarket(cfg *config.Config, pol *policy.Policy, logger *utils.Logger) (*market.Failover, error) {
	primary := market.NewCoinGecko(cfg.Market.CoinGeckoURL, cfg.Market.CoinGeckoKey, pol, logger)

	var fallbacks []market.Source
	if cfg.Market.StaticPrices != "" {
		prices, err := market.ParsePrices(cfg.Market.StaticPrices)
		if err != nil {
			return nil, fmt.Errorf("invalid MARKET_STATIC_PRICES: %w", err)
		}
		fallbacks = append(fallbacks, market.NewStatic(prices, ""))
	}
	return market.NewFailover(pol.PriceCacheTTL, logger, primary, fallbacks...), nil
}

func buildSwapper(cfg *config.Config, pol *policy.Policy, prices *market.Failover, logger *utils.Logger) execution.SwapExecutor {
	if cfg.Swap.Mode == config.SwapModeBridge {
		logger.Info("Swaps go through the bridge at %s", cfg.Swap.BridgeURL)
		return swap.NewBridge(cfg.Swap.BridgeURL, cfg.Swap.BridgeKey, cfg.Swap.Timeout, logger)
	}
	logger.Info("Paper trading with a %d bps fee", cfg.Swap.FeeBps)
	return swap.NewPaper(prices, pol, cfg.Swap.FeeBps, logger)
}

func buildEngine(cfg *config.Config, logger *utils.Logger) agent.DecisionEngine {
	if !cfg.UsesAI() {
		logger.Warn("AI_API_KEY not set, agents will hold")
		return ai.HoldEngine{}
	}
	client := ai.NewAIClient(cfg.AI.Provider, cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.Timeout)
	logger.Info("Decision engine: %s (%s)", client.Provider(), cfg.AI.Model)
	return ai.NewDecisionClient(client)
}

func buildNotifier(cfg *config.Config, logger *utils.Logger) notify.Notifier {
	if cfg.Telegram.BotToken == "" {
		return notify.Log{Logger: logger}
	}
	tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	if err != nil {
		logger.Error("Telegram alerts disabled: %v", err)
		return notify.Log{Logger: logger}
	}
	return tg
}
