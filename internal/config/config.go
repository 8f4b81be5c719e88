package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillm/agent-arena/pkg/utils"
)

// Config holds all application settings
type Config struct {
	Database    DatabaseConfig
	AI          AIConfig
	Market      MarketConfig
	Swap        SwapConfig
	Telegram    TelegramConfig
	Scheduler   SchedulerConfig
	PolicyPath  string
	MetricsAddr string
	LogLevel    string
}

type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AIConfig configures the decision engine. Without an API key agents hold.
type AIConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

type MarketConfig struct {
	CoinGeckoURL string
	CoinGeckoKey string
	// StaticPrices is a fallback price list, e.g. "WETH=3000,CBBTC=60000"
	StaticPrices string
}

type SwapConfig struct {
	Mode      string // paper or bridge
	BridgeURL string
	BridgeKey string
	FeeBps    int
	Timeout   time.Duration
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

type SchedulerConfig struct {
	DecisionInterval time.Duration
	StatusInterval   time.Duration
	RankInterval     time.Duration
	RecoveryInterval time.Duration
	StaleThreshold   time.Duration
	Workers          int
	MaxAttempts      int
	RetryBaseDelay   time.Duration
	CycleBudget      time.Duration
	AlertThreshold   int
	// DecisionRate caps decision cycle starts per second
	DecisionRate  float64
	DecisionBurst int
}

// Swap modes
const (
	SwapModePaper  = "paper"
	SwapModeBridge = "bridge"
)

// Load reads the configuration from .env and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		utils.LogWarn(".env file not found, using environment variables")
	}

	var p parser

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:          normalizeDriver(getEnv("DB_DRIVER", "postgres")),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            p.intVar("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "agent_arena"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			SQLitePath:      getEnv("SQLITE_PATH", "arena.db"),
			MaxOpenConns:    p.intVar("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.intVar("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.durationVar("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		AI: AIConfig{
			Provider: getEnv("AI_PROVIDER", "openai"),
			APIKey:   getEnv("AI_API_KEY", ""),
			BaseURL:  getEnv("AI_BASE_URL", "https://api.openai.com"),
			Model:    getEnv("AI_MODEL", "gpt-4o-mini"),
			Timeout:  p.durationVar("AI_TIMEOUT", 60*time.Second),
		},
		Market: MarketConfig{
			CoinGeckoURL: getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			CoinGeckoKey: getEnv("COINGECKO_API_KEY", ""),
			StaticPrices: getEnv("MARKET_STATIC_PRICES", ""),
		},
		Swap: SwapConfig{
			Mode:      getEnv("SWAP_MODE", SwapModePaper),
			BridgeURL: getEnv("SWAP_BRIDGE_URL", ""),
			BridgeKey: getEnv("SWAP_BRIDGE_API_KEY", ""),
			FeeBps:    p.intVar("SWAP_FEE_BPS", 30),
			Timeout:   p.durationVar("SWAP_TIMEOUT", 30*time.Second),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   p.int64Var("TELEGRAM_CHAT_ID", 0),
		},
		Scheduler: SchedulerConfig{
			DecisionInterval: p.durationVar("DECISION_INTERVAL", 5*time.Minute),
			StatusInterval:   p.durationVar("STATUS_INTERVAL", time.Minute),
			RankInterval:     p.durationVar("RANK_INTERVAL", 30*time.Second),
			RecoveryInterval: p.durationVar("RECOVERY_INTERVAL", 2*time.Minute),
			StaleThreshold:   p.durationVar("STALE_THRESHOLD", 10*time.Minute),
			Workers:          p.intVar("WORKERS", 4),
			MaxAttempts:      p.intVar("TASK_MAX_ATTEMPTS", 3),
			RetryBaseDelay:   p.durationVar("TASK_RETRY_BASE_DELAY", 5*time.Second),
			CycleBudget:      p.durationVar("CYCLE_BUDGET", 60*time.Second),
			AlertThreshold:   p.intVar("PERSISTENCE_ALERT_THRESHOLD", 3),
			DecisionRate:     p.floatVar("DECISION_RATE", 1),
			DecisionBurst:    p.intVar("DECISION_BURST", 2),
		},
		PolicyPath:  getEnv("POLICY_PATH", "configs/policy.yaml"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.Database.Driver)
	}

	switch c.Swap.Mode {
	case SwapModePaper:
	case SwapModeBridge:
		if c.Swap.BridgeURL == "" {
			return fmt.Errorf("SWAP_BRIDGE_URL is required in bridge mode")
		}
	default:
		return fmt.Errorf("unsupported SWAP_MODE: %s", c.Swap.Mode)
	}
	if c.Swap.FeeBps < 0 || c.Swap.FeeBps >= 10000 {
		return fmt.Errorf("SWAP_FEE_BPS must be within [0, 10000), got %d", c.Swap.FeeBps)
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	s := c.Scheduler
	if s.DecisionInterval <= 0 || s.StatusInterval <= 0 || s.RankInterval <= 0 || s.RecoveryInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	if s.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", s.Workers)
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("TASK_MAX_ATTEMPTS must be at least 1, got %d", s.MaxAttempts)
	}
	if s.CycleBudget <= 0 {
		return fmt.Errorf("CYCLE_BUDGET must be positive")
	}
	if s.DecisionRate < 0 {
		return fmt.Errorf("DECISION_RATE must not be negative")
	}
	return nil
}

// UsesAI reports whether a decision engine is configured
func (c *Config) UsesAI() bool {
	return c.AI.APIKey != ""
}

// normalizeDriver accepts the database/sql name of the SQLite driver too
func normalizeDriver(driver string) string {
	if driver == "sqlite3" {
		return "sqlite"
	}
	return driver
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser reads typed variables, keeping the first error
type parser struct {
	err error
}

func (p *parser) intVar(key string, def int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(def)))
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) int64Var(key string, def int64) int64 {
	v, err := strconv.ParseInt(getEnv(key, strconv.FormatInt(def, 10)), 10, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) floatVar(key string, def float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(def, 'f', -1, 64)), 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, def.String()))
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
