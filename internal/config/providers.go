package config

import (
	"fmt"
	"strings"
	"time"
)

type ProvidersConfig struct {
	Upstream UpstreamConfig `yaml:"upstream"`

	// Families maps model-id matchers to provider families, evaluated in
	// declared order, first match wins. Ids matching nothing resolve to
	// DefaultFamily.
	Families      []FamilyRule `yaml:"families"`
	DefaultFamily string       `yaml:"default_family"`
}

// UpstreamConfig describes the OpenAI-compatible endpoint every outbound
// call (vision generation and final forwarding) is sent to.
type UpstreamConfig struct {
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	Timeout       time.Duration     `yaml:"timeout"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

type FamilyRule struct {
	Match  string `yaml:"match"`
	Family string `yaml:"family"`
}

func (p *ProvidersConfig) Validate() error {
	if p.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	for i, rule := range p.Families {
		if rule.Match == "" || rule.Family == "" {
			return fmt.Errorf("families[%d]: match and family are both required", i)
		}
	}
	return nil
}

// Normalize lowercases matchers so resolution is case-insensitive, the way
// model ids are compared everywhere else.
func (p *ProvidersConfig) Normalize() {
	for i := range p.Families {
		p.Families[i].Match = strings.ToLower(p.Families[i].Match)
	}
	if p.DefaultFamily == "" {
		p.DefaultFamily = "generic"
	}
}

func DefaultProviders() *ProvidersConfig {
	return &ProvidersConfig{
		Upstream: UpstreamConfig{
			BaseURL:       "http://localhost:11434/v1",
			Timeout:       120 * time.Second,
			MaxConcurrent: 16,
		},
		Families: []FamilyRule{
			{Match: "deepseek", Family: "deepseek"},
			{Match: "google", Family: "google"},
			{Match: "anthropic", Family: "anthropic"},
			{Match: "openai", Family: "openai"},
			{Match: "mixtral", Family: "ollama"},
			{Match: "llama", Family: "ollama"},
			{Match: "qwen", Family: "qwen"},
		},
		DefaultFamily: "generic",
	}
}
