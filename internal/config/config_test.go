package config

import (
	"strings"
	"testing"
)

func validEnhance() EnhanceConfig {
	return DefaultConfig().Enhance
}

func TestEnhanceValidate_Defaults(t *testing.T) {
	if err := validEnhance().Validate(); err != nil {
		t.Fatalf("default enhance config must validate: %v", err)
	}
}

func TestEnhanceValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EnhanceConfig)
		wantErr string
	}{
		{
			name:    "negative retry count",
			mutate:  func(e *EnhanceConfig) { e.MaxRetryCount = -1 },
			wantErr: "max_retry_count",
		},
		{
			name:    "zero cache size",
			mutate:  func(e *EnhanceConfig) { e.MaxCacheSize = 0 },
			wantErr: "max_cache_size",
		},
		{
			name:    "zero sessions",
			mutate:  func(e *EnhanceConfig) { e.MaxSessions = 0 },
			wantErr: "max_sessions",
		},
		{
			name: "non-vision models without a vision model",
			mutate: func(e *EnhanceConfig) {
				e.NonVisionModelIDs = []string{"deepseek-chat"}
				e.VisionModelID = ""
			},
			wantErr: "vision_model_id",
		},
		{
			name:    "template without placeholder",
			mutate:  func(e *EnhanceConfig) { e.ImageContextTemplate = "no slot here" },
			wantErr: "image_context_template",
		},
		{
			name: "template with duplicate placeholder",
			mutate: func(e *EnhanceConfig) {
				e.ImageContextTemplate = "{description} and {description}"
			},
			wantErr: "exactly once",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEnhance()
			tt.mutate(&e)
			err := e.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestNonVisionSet(t *testing.T) {
	e := EnhanceConfig{NonVisionModelIDs: []string{"a", "b"}}
	set := e.NonVisionSet()
	if !set["a"] || !set["b"] || set["c"] {
		t.Errorf("unexpected set: %v", set)
	}
}

func TestProvidersValidate(t *testing.T) {
	p := DefaultProviders()
	if err := p.Validate(); err != nil {
		t.Fatalf("default providers config must validate: %v", err)
	}

	p.Upstream.BaseURL = ""
	if err := p.Validate(); err == nil {
		t.Error("expected error for missing base_url")
	}

	p = DefaultProviders()
	p.Families = append(p.Families, FamilyRule{Match: "x"})
	if err := p.Validate(); err == nil {
		t.Error("expected error for rule without family")
	}
}

func TestProvidersNormalize(t *testing.T) {
	p := &ProvidersConfig{
		Families: []FamilyRule{{Match: "DeepSeek", Family: "deepseek"}},
	}
	p.Normalize()
	if p.Families[0].Match != "deepseek" {
		t.Errorf("matcher not lowercased: %q", p.Families[0].Match)
	}
	if p.DefaultFamily != "generic" {
		t.Errorf("default family not applied: %q", p.DefaultFamily)
	}
}
