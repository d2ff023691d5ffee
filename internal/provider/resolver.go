// Package provider maps destination model ids to provider families and
// reshapes outgoing messages to each family's structural convention.
package provider

import (
	"strings"

	"github.com/af-corp/iris-gateway/internal/config"
)

// Resolver evaluates the configured (matcher, family) table in declared
// order. Prefix matches are tried first across the whole table, then
// substring matches; the first hit wins. Unmatched ids resolve to the
// default family.
type Resolver struct {
	rules []config.FamilyRule
	def   string
}

func NewResolver(cfg *config.ProvidersConfig) *Resolver {
	rules := make([]config.FamilyRule, len(cfg.Families))
	copy(rules, cfg.Families)
	def := cfg.DefaultFamily
	if def == "" {
		def = "generic"
	}
	return &Resolver{rules: rules, def: def}
}

func (r *Resolver) Resolve(modelID string) string {
	if modelID == "" {
		return r.def
	}
	id := strings.ToLower(modelID)

	for _, rule := range r.rules {
		if strings.HasPrefix(id, rule.Match) {
			return rule.Family
		}
	}
	for _, rule := range r.rules {
		if strings.Contains(id, rule.Match) {
			return rule.Family
		}
	}
	return r.def
}

// Default returns the family used when nothing matches.
func (r *Resolver) Default() string { return r.def }
