package pipeline

import "github.com/theirongolddev/burnmeter/internal/model"

// Multiplier bounds. Below 1 is impossible; above the cap the input is corrupt.
const (
	MinMultiplier = 1.0
	MaxMultiplier = 10000.0
)

// CacheMultiplier converts IO-token counts into total-token consumption using
// the cumulative per-model breakdown: all tokens / IO tokens, clamped to
// [MinMultiplier, MaxMultiplier]. It is 1 when no IO tokens were recorded.
func CacheMultiplier(usage map[string]model.ModelTotals) float64 {
	var all, io int64
	for _, mt := range usage {
		all += mt.TotalTokens()
		io += mt.IOTokens()
	}
	if io <= 0 {
		return MinMultiplier
	}
	return min(max(float64(all)/float64(io), MinMultiplier), MaxMultiplier)
}

// Inflate applies a multiplier to a raw IO-token sum.
func Inflate(raw int64, multiplier float64) int64 {
	return int64(float64(raw) * multiplier)
}
