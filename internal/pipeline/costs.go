package pipeline

import (
	"sort"

	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/model"
)

// ModelCost is the equivalent API cost of one model's usage.
type ModelCost struct {
	Model    string
	Tokens   int64
	CostUSD  float64
	SavedUSD float64
}

// CostBreakdown prices per-model usage, most expensive first. Models without
// a price still appear with zero cost.
func CostBreakdown(pricer *config.Pricer, usage map[string]model.ModelTotals) []ModelCost {
	rows := make([]ModelCost, 0, len(usage))
	for name, t := range usage {
		rows = append(rows, ModelCost{
			Model:    name,
			Tokens:   t.TotalTokens(),
			CostUSD:  pricer.Cost(name, t),
			SavedUSD: pricer.CacheSavings(name, t.CacheReadInputTokens),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CostUSD != rows[j].CostUSD {
			return rows[i].CostUSD > rows[j].CostUSD
		}
		return rows[i].Model < rows[j].Model
	})
	return rows
}

// EquivalentCost sums CostBreakdown.
func EquivalentCost(pricer *config.Pricer, usage map[string]model.ModelTotals) float64 {
	return pricer.TotalCost(usage)
}
