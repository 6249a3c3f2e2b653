package analytics

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var recurringSuffix = regexp.MustCompile(`(?i)(\s*-\s*(week|session|part)\s*\d+|\s*\(\s*week\s*\d+\s*\))\s*$`)

// RecurringSeriesName strips trailing occurrence markers such as " - Week 2" or " (Week 2)"
func RecurringSeriesName(title string) string {
	return strings.TrimSpace(recurringSuffix.ReplaceAllString(title, ""))
}

// AttendancePatterns is the historical attendance profile of an organization
type AttendancePatterns struct {
	TotalRecords          int            `json:"totalRecords"`
	WeeklyAverage         float64        `json:"weeklyAverage"`
	MonthlyAverage        float64        `json:"monthlyAverage"`
	EventTypeCounts       map[string]int `json:"eventTypeCounts"`
	EventTitleCounts      map[string]int `json:"eventTitleCounts"`
	RecurringSeriesCounts map[string]int `json:"recurringSeriesCounts"`
}

// WeekBucket returns the approximate week bucket "{year}-W{n}" where
// n = ceil((dayOfMonth + weekdayOfFirst) / 7). It is not an ISO week.
func WeekBucket(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	offset := int(first.Weekday())
	week := (t.Day() + offset + 6) / 7
	return fmt.Sprintf("%d-W%d", t.Year(), week)
}

// MonthBucket returns "{year}-{month}" with an unpadded 1-based month
func MonthBucket(t time.Time) string {
	return fmt.Sprintf("%d-%d", t.Year(), int(t.Month()))
}

// ExtractAttendancePatterns mines attendance history into bucket averages and per-key counts
func ExtractAttendancePatterns(history []AttendanceRecord) AttendancePatterns {
	patterns := AttendancePatterns{
		TotalRecords:          len(history),
		EventTypeCounts:       make(map[string]int),
		EventTitleCounts:      make(map[string]int),
		RecurringSeriesCounts: make(map[string]int),
	}

	weekly := make(map[string]int)
	monthly := make(map[string]int)

	for _, record := range history {
		date := record.Event.EndDate
		if date.IsZero() {
			date = record.Event.Date()
		}
		if !date.IsZero() {
			weekly[WeekBucket(date)]++
			monthly[MonthBucket(date)]++
		}

		if record.Event.EventType != "" {
			patterns.EventTypeCounts[record.Event.EventType]++
		}
		if record.Event.Title != "" {
			patterns.EventTitleCounts[record.Event.Title]++
			if series := RecurringSeriesName(record.Event.Title); series != "" {
				patterns.RecurringSeriesCounts[series]++
			}
		}
	}

	patterns.WeeklyAverage = averageBucket(weekly)
	patterns.MonthlyAverage = averageBucket(monthly)

	return patterns
}

func averageBucket(buckets map[string]int) float64 {
	if len(buckets) == 0 {
		return 0
	}
	total := 0
	for _, count := range buckets {
		total += count
	}
	return float64(total) / float64(len(buckets))
}
