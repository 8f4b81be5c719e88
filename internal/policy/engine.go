package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillm/agent-arena/internal/domain"
)

// Default returns the built-in policy used when no file is configured.
func Default() *Policy {
	return &Policy{
		QuoteToken:          "USDC",
		SlippageBps:         50,
		SlippageThreshold:   1.0,
		MaxPositionFraction: 0.5,
		StartingCash:        domain.DefaultStartingCash,
		Tokens: map[string]Token{
			"USDC":  {Decimals: 6, Tradable: false, CoinGeckoID: "usd-coin"},
			"WETH":  {Decimals: 18, Tradable: true, CoinGeckoID: "ethereum"},
			"CBBTC": {Decimals: 8, Tradable: true, CoinGeckoID: "bitcoin"},
		},
		RiskProfiles: map[string]RiskProfile{
			"aggressive":   {RiskScore: 0.8},
			"moderate":     {RiskScore: 0.5},
			"conservative": {RiskScore: 0.3},
		},
		PriceCacheTTL: 5 * time.Minute,
	}
}

// Load reads a policy file. An empty path yields Default().
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	p, err := loadPolicy(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return p, nil
}

// loadPolicy reads YAML over the defaults
func loadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p := Default()
	// Maps from the file replace the defaults instead of merging into them
	p.Tokens = nil
	p.RiskProfiles = nil

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, err
	}
	if len(p.Tokens) == 0 {
		p.Tokens = Default().Tokens
	}
	if len(p.RiskProfiles) == 0 {
		p.RiskProfiles = Default().RiskProfiles
	}

	p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) normalize() {
	p.QuoteToken = strings.ToUpper(p.QuoteToken)

	tokens := make(map[string]Token, len(p.Tokens))
	for symbol, tok := range p.Tokens {
		tokens[strings.ToUpper(symbol)] = tok
	}
	p.Tokens = tokens

	profiles := make(map[string]RiskProfile, len(p.RiskProfiles))
	for name, rp := range p.RiskProfiles {
		profiles[strings.ToLower(name)] = rp
	}
	p.RiskProfiles = profiles
}

// Validate checks the policy is usable
func (p *Policy) Validate() error {
	if p.QuoteToken == "" {
		return fmt.Errorf("quote_token is required")
	}
	if _, ok := p.Tokens[p.QuoteToken]; !ok {
		return fmt.Errorf("quote token %s has no token entry", p.QuoteToken)
	}
	if len(p.TradableTokens()) == 0 {
		return fmt.Errorf("no tradable tokens configured")
	}
	if p.SlippageBps < 0 || p.SlippageBps > 10000 {
		return fmt.Errorf("slippage_bps must be within 0..10000, got %d", p.SlippageBps)
	}
	if p.MaxPositionFraction <= 0 || p.MaxPositionFraction > 1 {
		return fmt.Errorf("max_position_fraction must be within (0, 1], got %.4f", p.MaxPositionFraction)
	}
	for symbol, tok := range p.Tokens {
		if tok.Decimals < 0 || tok.Decimals > 36 {
			return fmt.Errorf("token %s: invalid decimals %d", symbol, tok.Decimals)
		}
	}
	for name, rp := range p.RiskProfiles {
		if rp.RiskScore <= 0 || rp.RiskScore > 1 {
			return fmt.Errorf("risk profile %s: risk_score must be within (0, 1]", name)
		}
	}
	return nil
}

// IsTradable reports whether agents may buy or sell symbol
func (p *Policy) IsTradable(symbol string) bool {
	tok, ok := p.Tokens[strings.ToUpper(symbol)]
	return ok && tok.Tradable
}

// TradableTokens returns the tradable symbols in sorted order
func (p *Policy) TradableTokens() []string {
	var out []string
	for symbol, tok := range p.Tokens {
		if tok.Tradable {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Decimals returns the on-chain precision of symbol
func (p *Policy) Decimals(symbol string) (int, bool) {
	tok, ok := p.Tokens[strings.ToUpper(symbol)]
	if !ok {
		return 0, false
	}
	return tok.Decimals, true
}

// RiskScoreFor returns the profile risk score for a personality, or
// fallback when the personality has no profile.
func (p *Policy) RiskScoreFor(personality string, fallback float64) float64 {
	if rp, ok := p.RiskProfiles[strings.ToLower(personality)]; ok {
		return rp.RiskScore
	}
	return fallback
}
