package claudeai

import (
	"encoding/json"
	"time"

	"github.com/theirongolddev/burnmeter/internal/model"
)

// Organization is the account whose quota is read. Usage requests are scoped
// to its UUID.
type Organization struct {
	UUID         string   `json:"uuid"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// UsageResponse is the body of /organizations/{id}/usage. five_hour is the
// session budget and seven_day the weekly one; the per-model weekly windows
// are only shown by the status command.
type UsageResponse struct {
	FiveHour       *UsageWindow `json:"five_hour"`
	SevenDay       *UsageWindow `json:"seven_day"`
	SevenDayOpus   *UsageWindow `json:"seven_day_opus"`
	SevenDaySonnet *UsageWindow `json:"seven_day_sonnet"`
}

// UsageWindow is one budget window as sent on the wire. utilization arrives
// as an int, a float or a string.
type UsageWindow struct {
	Utilization json.RawMessage `json:"utilization"`
	ResetsAt    *string         `json:"resets_at"`
}

// OverageLimit is the extra-usage credit allowance.
type OverageLimit struct {
	IsEnabled          bool    `json:"isEnabled"`
	UsedCredits        float64 `json:"usedCredits"`
	MonthlyCreditLimit float64 `json:"monthlyCreditLimit"`
	Currency           string  `json:"currency"`
}

// SubscriptionData bundles organization, usage and overage for `status`.
// Error holds the first partial failure.
type SubscriptionData struct {
	Org       Organization
	Usage     *ParsedUsage
	Overage   *OverageLimit
	FetchedAt time.Time
	Error     error
}

// ParsedUsage holds the decoded windows; a nil window was absent.
type ParsedUsage struct {
	FiveHour       *ParsedWindow
	SevenDay       *ParsedWindow
	SevenDayOpus   *ParsedWindow
	SevenDaySonnet *ParsedWindow
}

// ParsedWindow is a window with utilization as a 0-1 fraction.
type ParsedWindow struct {
	Pct      float64
	ResetsAt time.Time
}

// Authoritative maps the weekly and session windows onto an authoritative
// reading in percent. A missing window reads as 0%.
func (p *ParsedUsage) Authoritative(fetchedAt time.Time) *model.AuthoritativeUsage {
	u := &model.AuthoritativeUsage{FetchedAt: fetchedAt}
	if w := p.SevenDay; w != nil {
		u.WeeklyPercent = w.Pct * 100
		u.WeeklyResetsAt = w.ResetsAt
	}
	if w := p.FiveHour; w != nil {
		u.SessionPercent = w.Pct * 100
		u.SessionResetsAt = w.ResetsAt
	}
	return u
}
