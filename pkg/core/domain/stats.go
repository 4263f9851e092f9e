package domain

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultWindowDays = 30
	MinWindowDays     = 1
	MaxWindowDays     = 365
)

// StatsRow is the canonical per-day, per-slug aggregate consumed by the dashboard.
// Day is kept as the source's string key so the timezone-anchored day
// boundary survives untouched. Uniques counts distinct (truncated IP, user agent)
// pairs and is only an approximation of unique visitors; Uniques <= Scans is
// expected but not enforced.
type StatsRow struct {
	Day     string `json:"day"`
	Slug    string `json:"slug"`
	Scans   int64  `json:"scans"`
	Uniques int64  `json:"uniques"`
}

// StatsQuery selects the aggregation window and an optional slug.
type StatsQuery struct {
	Days int
	Slug string
}

// Since returns the inclusive lower bound of the window ending at now.
func (q StatsQuery) Since(now time.Time) time.Time {
	return now.Add(-time.Duration(q.Days) * 24 * time.Hour)
}

// ClampDays bounds a window length to [MinWindowDays, MaxWindowDays].
func ClampDays(days int) int {
	if days < MinWindowDays {
		return MinWindowDays
	}
	if days > MaxWindowDays {
		return MaxWindowDays
	}
	return days
}

// ParseDays reads the "days" query parameter. Like parseInt, only the leading
// integer counts ("7.5" and "7d" are 7). Input without one yields the default
// window; everything else is clamped.
func ParseDays(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	if end < len(raw) && (raw[end] == '-' || raw[end] == '+') {
		end++
	}
	digits := end
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == digits {
		return DefaultWindowDays
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		// Too many digits for an int: clamp by sign.
		if raw[0] == '-' {
			return MinWindowDays
		}
		return MaxWindowDays
	}
	return ClampDays(n)
}
