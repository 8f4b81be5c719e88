package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("SQLITE_PATH", t.TempDir()+"/arena.db")
}

func TestLoad_Defaults(t *testing.T) {
	setSQLite(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, SwapModePaper, cfg.Swap.Mode)
	assert.Equal(t, 30, cfg.Swap.FeeBps)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.DecisionInterval)
	assert.Equal(t, time.Minute, cfg.Scheduler.StatusInterval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.RankInterval)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.RecoveryInterval)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.StaleThreshold)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.UsesAI())
}

func TestLoad_Overrides(t *testing.T) {
	setSQLite(t)
	t.Setenv("DECISION_INTERVAL", "90s")
	t.Setenv("WORKERS", "8")
	t.Setenv("DECISION_RATE", "0.5")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200")
	t.Setenv("AI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Scheduler.DecisionInterval)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 0.5, cfg.Scheduler.DecisionRate)
	assert.Equal(t, int64(-100200), cfg.Telegram.ChatID)
	assert.True(t, cfg.UsesAI())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		errText string
	}{
		{"bad duration", map[string]string{"RANK_INTERVAL": "soon"}, "invalid RANK_INTERVAL"},
		{"bad int", map[string]string{"WORKERS": "many"}, "invalid WORKERS"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "unsupported DB_DRIVER"},
		{"postgres without password", map[string]string{"DB_DRIVER": "postgres", "DB_PASSWORD": ""}, "DB_PASSWORD is required"},
		{"bridge without url", map[string]string{"SWAP_MODE": "bridge"}, "SWAP_BRIDGE_URL"},
		{"unknown swap mode", map[string]string{"SWAP_MODE": "live"}, "unsupported SWAP_MODE"},
		{"telegram without chat", map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc", "TELEGRAM_CHAT_ID": ""}, "TELEGRAM_CHAT_ID"},
		{"no workers", map[string]string{"WORKERS": "0"}, "WORKERS must be at least 1"},
		{"fee too high", map[string]string{"SWAP_FEE_BPS": "10000"}, "SWAP_FEE_BPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSQLite(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}
