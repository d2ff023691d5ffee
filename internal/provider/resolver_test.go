package provider

import (
	"testing"

	"github.com/af-corp/iris-gateway/internal/config"
)

func testResolver() *Resolver {
	cfg := config.DefaultProviders()
	cfg.Normalize()
	return NewResolver(cfg)
}

func TestResolve_Table(t *testing.T) {
	r := testResolver()
	tests := []struct {
		modelID string
		want    string
	}{
		{"deepseek.vision", "deepseek"},
		{"openai.gpt-4o-mini", "openai"},
		{"ollama.mixtral", "ollama"}, // substring match on "mixtral"
		{"mixtral-8x7b", "ollama"},
		{"llama3:70b", "ollama"},
		{"Qwen2.5-72B", "qwen"},
		{"totally-unknown", "generic"},
		{"", "generic"},
	}
	for _, tt := range tests {
		if got := r.Resolve(tt.modelID); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.modelID, got, tt.want)
		}
	}
}

func TestResolve_PrefixBeatsSubstring(t *testing.T) {
	cfg := &config.ProvidersConfig{
		Families: []config.FamilyRule{
			{Match: "mixtral", Family: "ollama"},
			{Match: "deepseek", Family: "deepseek"},
		},
		DefaultFamily: "generic",
	}
	cfg.Normalize()
	r := NewResolver(cfg)

	// "deepseek-mixtral" contains "mixtral", but the prefix pass over the
	// whole table runs first and "deepseek" wins.
	if got := r.Resolve("deepseek-mixtral"); got != "deepseek" {
		t.Errorf("Resolve() = %q, want deepseek", got)
	}
}

func TestResolve_DeclaredOrderFirstMatchWins(t *testing.T) {
	cfg := &config.ProvidersConfig{
		Families: []config.FamilyRule{
			{Match: "acme", Family: "first"},
			{Match: "acme-pro", Family: "second"},
		},
		DefaultFamily: "generic",
	}
	cfg.Normalize()
	r := NewResolver(cfg)

	if got := r.Resolve("acme-pro-1"); got != "first" {
		t.Errorf("Resolve() = %q, want first (declared order)", got)
	}
}

func TestResolve_CaseInsensitive(t *testing.T) {
	r := testResolver()
	if got := r.Resolve("DeepSeek.Vision"); got != "deepseek" {
		t.Errorf("Resolve() = %q, want deepseek", got)
	}
}
