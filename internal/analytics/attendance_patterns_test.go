package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
)

func TestRecurringSeriesName(t *testing.T) {
	tests := map[string]string{
		"Sunday Service - Week 2":   "Sunday Service",
		"Sunday Service (Week 2)":   "Sunday Service",
		"Sunday Service":            "Sunday Service",
		"Alpha Course - Session 3":  "Alpha Course",
		"Book Study - Part 1":       "Book Study",
		"youth night - WEEK 10":     "youth night",
		"  Men's Breakfast  ":       "Men's Breakfast",
		"Week 2 Kickoff":            "Week 2 Kickoff",
		"Sunday Service -Week12":    "Sunday Service",
		"Sunday Service ( week 4 )": "Sunday Service",
	}

	for title, expected := range tests {
		assert.Equal(t, expected, analytics.RecurringSeriesName(title), title)
	}
}

func TestWeekBucket(t *testing.T) {
	// March 2024 starts on a Friday
	assert.Equal(t, "2024-W1", analytics.WeekBucket(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-W1", analytics.WeekBucket(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-W2", analytics.WeekBucket(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-W6", analytics.WeekBucket(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)))
}

func TestMonthBucket(t *testing.T) {
	assert.Equal(t, "2024-3", analytics.MonthBucket(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2023-12", analytics.MonthBucket(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestExtractAttendancePatterns(t *testing.T) {
	worship := analytics.EventRecord{
		ID:        "e1",
		Title:     "Sunday Service - Week 1",
		EventType: "Worship Service",
		StartDate: time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 3, 11, 30, 0, 0, time.UTC),
	}
	study := analytics.EventRecord{
		ID:        "e2",
		Title:     "Bible Study",
		EventType: "Bible Study or Class",
		StartDate: time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC),
	}

	history := []analytics.AttendanceRecord{
		{MemberID: "m1", EventID: "e1", Event: worship},
		{MemberID: "m2", EventID: "e1", Event: worship},
		{MemberID: "m3", EventID: "e1", Event: worship},
		{MemberID: "m1", EventID: "e2", Event: study},
	}

	patterns := analytics.ExtractAttendancePatterns(history)

	assert.Equal(t, 4, patterns.TotalRecords)
	assert.Equal(t, 2.0, patterns.WeeklyAverage)
	assert.Equal(t, 4.0, patterns.MonthlyAverage)
	assert.Equal(t, map[string]int{"Worship Service": 3, "Bible Study or Class": 1}, patterns.EventTypeCounts)
	assert.Equal(t, 3, patterns.EventTitleCounts["Sunday Service - Week 1"])
	assert.Equal(t, 3, patterns.RecurringSeriesCounts["Sunday Service"])
	assert.Equal(t, 1, patterns.RecurringSeriesCounts["Bible Study"])
}

func TestExtractAttendancePatterns_Empty(t *testing.T) {
	patterns := analytics.ExtractAttendancePatterns(nil)

	assert.Equal(t, 0, patterns.TotalRecords)
	assert.Equal(t, 0.0, patterns.WeeklyAverage)
	assert.Equal(t, 0.0, patterns.MonthlyAverage)
	assert.NotNil(t, patterns.EventTypeCounts)
}
