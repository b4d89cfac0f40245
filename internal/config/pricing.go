package config

import (
	"strings"

	"github.com/theirongolddev/burnmeter/internal/model"
)

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPerMTok        float64
	OutputPerMTok       float64
	CacheWrite5mPerMTok float64
	CacheWrite1hPerMTok float64
	CacheReadPerMTok    float64
	// Long context overrides (>200K input tokens)
	LongInputPerMTok  float64
	LongOutputPerMTok float64
}

// DefaultPricing maps model base names to their pricing.
var DefaultPricing = map[string]ModelPricing{
	"claude-opus-4-6": {
		InputPerMTok: 5.00, OutputPerMTok: 25.00,
		CacheWrite5mPerMTok: 6.25, CacheWrite1hPerMTok: 10.00, CacheReadPerMTok: 0.50,
		LongInputPerMTok: 10.00, LongOutputPerMTok: 37.50,
	},
	"claude-opus-4-5": {
		InputPerMTok: 5.00, OutputPerMTok: 25.00,
		CacheWrite5mPerMTok: 6.25, CacheWrite1hPerMTok: 10.00, CacheReadPerMTok: 0.50,
		LongInputPerMTok: 10.00, LongOutputPerMTok: 37.50,
	},
	"claude-opus-4-1": {
		InputPerMTok: 15.00, OutputPerMTok: 75.00,
		CacheWrite5mPerMTok: 18.75, CacheWrite1hPerMTok: 30.00, CacheReadPerMTok: 1.50,
		LongInputPerMTok: 30.00, LongOutputPerMTok: 112.50,
	},
	"claude-opus-4": {
		InputPerMTok: 15.00, OutputPerMTok: 75.00,
		CacheWrite5mPerMTok: 18.75, CacheWrite1hPerMTok: 30.00, CacheReadPerMTok: 1.50,
		LongInputPerMTok: 30.00, LongOutputPerMTok: 112.50,
	},
	"claude-sonnet-4-6": {
		InputPerMTok: 3.00, OutputPerMTok: 15.00,
		CacheWrite5mPerMTok: 3.75, CacheWrite1hPerMTok: 6.00, CacheReadPerMTok: 0.30,
		LongInputPerMTok: 6.00, LongOutputPerMTok: 22.50,
	},
	"claude-sonnet-4-5": {
		InputPerMTok: 3.00, OutputPerMTok: 15.00,
		CacheWrite5mPerMTok: 3.75, CacheWrite1hPerMTok: 6.00, CacheReadPerMTok: 0.30,
		LongInputPerMTok: 6.00, LongOutputPerMTok: 22.50,
	},
	"claude-sonnet-4": {
		InputPerMTok: 3.00, OutputPerMTok: 15.00,
		CacheWrite5mPerMTok: 3.75, CacheWrite1hPerMTok: 6.00, CacheReadPerMTok: 0.30,
		LongInputPerMTok: 6.00, LongOutputPerMTok: 22.50,
	},
	"claude-haiku-4-5": {
		InputPerMTok: 1.00, OutputPerMTok: 5.00,
		CacheWrite5mPerMTok: 1.25, CacheWrite1hPerMTok: 2.00, CacheReadPerMTok: 0.10,
		LongInputPerMTok: 2.00, LongOutputPerMTok: 7.50,
	},
	"claude-haiku-3-5": {
		InputPerMTok: 0.80, OutputPerMTok: 4.00,
		CacheWrite5mPerMTok: 1.00, CacheWrite1hPerMTok: 1.60, CacheReadPerMTok: 0.08,
		LongInputPerMTok: 1.60, LongOutputPerMTok: 6.00,
	},
}

// NormalizeModelName strips date suffixes from model identifiers.
// e.g., "claude-opus-4-5-20251101" -> "claude-opus-4-5"
func NormalizeModelName(raw string) string {
	if _, ok := DefaultPricing[raw]; ok {
		return raw
	}

	parts := strings.Split(raw, "-")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if isAllDigits(last) && len(last) >= 8 {
			candidate := strings.Join(parts[:len(parts)-1], "-")
			if _, ok := DefaultPricing[candidate]; ok {
				return candidate
			}
		}
	}

	return raw
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Pricer prices token usage from DefaultPricing with user overrides applied.
type Pricer struct {
	table map[string]ModelPricing
}

// NewPricer builds a Pricer. Overrides for unknown models start from zero
// prices.
func NewPricer(overrides PricingOverrides) *Pricer {
	table := make(map[string]ModelPricing, len(DefaultPricing)+len(overrides.Overrides))
	for name, p := range DefaultPricing {
		table[name] = p
	}
	for name, o := range overrides.Overrides {
		key := NormalizeModelName(name)
		p := table[key]
		setIf(&p.InputPerMTok, o.InputPerMTok)
		setIf(&p.OutputPerMTok, o.OutputPerMTok)
		setIf(&p.CacheWrite5mPerMTok, o.CacheWrite5mPerMTok)
		setIf(&p.CacheWrite1hPerMTok, o.CacheWrite1hPerMTok)
		setIf(&p.CacheReadPerMTok, o.CacheReadPerMTok)
		table[key] = p
	}
	return &Pricer{table: table}
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// Lookup returns the pricing for a model, normalizing the name first.
// Returns zero pricing and false if the model is unknown.
func (p *Pricer) Lookup(modelName string) (ModelPricing, bool) {
	mp, ok := p.table[NormalizeModelName(modelName)]
	return mp, ok
}

// Cost computes the equivalent API cost in USD of a per-model token
// breakdown. Cache creation is priced at the 5-minute write rate since the
// totals do not keep the TTL split.
func (p *Pricer) Cost(modelName string, t model.ModelTotals) float64 {
	mp, ok := p.Lookup(modelName)
	if !ok {
		return 0
	}

	cost := float64(t.InputTokens) * mp.InputPerMTok / 1_000_000
	cost += float64(t.OutputTokens) * mp.OutputPerMTok / 1_000_000
	cost += float64(t.CacheCreationInputTokens) * mp.CacheWrite5mPerMTok / 1_000_000
	cost += float64(t.CacheReadInputTokens) * mp.CacheReadPerMTok / 1_000_000
	return cost
}

// TotalCost sums Cost across models.
func (p *Pricer) TotalCost(usage map[string]model.ModelTotals) float64 {
	var total float64
	for name, t := range usage {
		total += p.Cost(name, t)
	}
	return total
}

// CacheSavings returns how much cache reads saved against full input pricing.
func (p *Pricer) CacheSavings(modelName string, cacheReadTokens int64) float64 {
	mp, ok := p.Lookup(modelName)
	if !ok {
		return 0
	}
	return float64(cacheReadTokens) * (mp.InputPerMTok - mp.CacheReadPerMTok) / 1_000_000
}
