package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/theirongolddev/burnmeter/internal/model"
)

// StatsCachePath returns the location of the aggregate statistics document.
func StatsCachePath(claudeDir string) string {
	return filepath.Join(claudeDir, "stats-cache.json")
}

// LoadStatsCache reads the stats cache. A missing file yields an empty cache
// and no error; a file that fails to decode yields an empty cache and the error.
func LoadStatsCache(path string) (model.StatsCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.StatsCache{}, nil
		}
		return model.StatsCache{}, fmt.Errorf("reading stats cache: %w", err)
	}

	var sc model.StatsCache
	if err := json.Unmarshal(data, &sc); err != nil {
		return model.StatsCache{}, fmt.Errorf("decoding stats cache: %w", err)
	}
	return sc, nil
}
