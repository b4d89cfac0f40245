package store

import (
	"time"
)

// LoadDailyWork returns every persisted closed-day work total keyed by
// YYYY-MM-DD.
func (c *Cache) LoadDailyWork() (map[string]float64, error) {
	rows, err := c.db.Query("SELECT day, seconds FROM worktime_daily")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]float64)
	for rows.Next() {
		var day string
		var secs float64
		if err := rows.Scan(&day, &secs); err != nil {
			return nil, err
		}
		out[day] = secs
	}
	return out, rows.Err()
}

// SaveDailyWork stores the work total of a closed day.
func (c *Cache) SaveDailyWork(day string, seconds float64) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO worktime_daily (day, seconds, computed_at)
		VALUES (?, ?, ?)`, day, seconds, time.Now().UTC().Format(time.RFC3339))
	return err
}

// PruneDailyWork deletes totals for days lexically before cutoff (YYYY-MM-DD).
func (c *Cache) PruneDailyWork(cutoff string) (int64, error) {
	res, err := c.db.Exec("DELETE FROM worktime_daily WHERE day < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
