package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	assert.Equal(t, []string{"CBBTC", "WETH"}, p.TradableTokens())
	assert.False(t, p.IsTradable("USDC"))
	assert.True(t, p.IsTradable("weth"))
	assert.False(t, p.IsTradable("DOGE"))

	dec, ok := p.Decimals("cbbtc")
	assert.True(t, ok)
	assert.Equal(t, 8, dec)
	_, ok = p.Decimals("DOGE")
	assert.False(t, ok)
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestLoadRepositoryPolicy(t *testing.T) {
	p, err := Load(filepath.Join("..", "..", "configs", "policy.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "USDC", p.QuoteToken)
	assert.Equal(t, 50, p.SlippageBps)
	assert.Equal(t, 5*time.Minute, p.PriceCacheTTL)
	assert.Equal(t, []string{"CBBTC", "WETH"}, p.TradableTokens())
}

func TestLoadPolicyFile(t *testing.T) {
	path := writePolicy(t, `
quote_token: usdc
slippage_bps: 30
tokens:
  usdc: {decimals: 6}
  sol: {decimals: 9, tradable: true}
risk_profiles:
  Aggressive: {risk_score: 0.9}
`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "USDC", p.QuoteToken)
	assert.Equal(t, 30, p.SlippageBps)
	assert.Equal(t, []string{"SOL"}, p.TradableTokens())
	assert.Equal(t, 0.9, p.RiskScoreFor("aggressive", 0.5))
	assert.Equal(t, 0.5, p.RiskScoreFor("conservative", 0.5), "file profiles replace defaults")
	assert.Equal(t, 0.5, p.MaxPositionFraction, "unset scalars keep defaults")
}

func TestLoadPolicyRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing quote entry", "quote_token: DAI\n"},
		{"no tradable tokens", "tokens:\n  USDC: {decimals: 6}\n"},
		{"slippage out of range", "slippage_bps: 20000\n"},
		{"bad risk score", "risk_profiles:\n  wild: {risk_score: 1.5}\n"},
		{"malformed yaml", "tokens: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writePolicy(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
