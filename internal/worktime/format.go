package worktime

import "fmt"

// Format renders seconds as "Xh YYmin", or "Mmin" under an hour.
func Format(seconds float64) string {
	if seconds < 60 {
		return "0min"
	}
	s := int(seconds)
	h, m := s/3600, (s%3600)/60
	if h > 0 {
		return fmt.Sprintf("%dh %02dmin", h, m)
	}
	return fmt.Sprintf("%dmin", m)
}

// FormatCompact renders seconds as "XhYYm", or "Mm" under an hour.
func FormatCompact(seconds float64) string {
	if seconds < 60 {
		return "0m"
	}
	s := int(seconds)
	h, m := s/3600, (s%3600)/60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
