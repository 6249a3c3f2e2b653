package analytics

import (
	"math"
	"sort"
	"strings"
	"time"
)

// ConfidenceLevel is the coarse label derived from a confidence score
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// MatchType is how a historical event was matched to an upcoming one
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchSeries    MatchType = "series"
	MatchEventType MatchType = "type"
	MatchNone      MatchType = "none"
)

const (
	minimumPrediction      = 3
	neutralTrendAdjustment = 1.0
	fallbackAttendance     = 20
)

// defaultAttendanceByType is used when no similar history exists
var defaultAttendanceByType = map[string]float64{
	"Worship Service":      45,
	"Bible Study or Class": 12,
	"Youth Group":          15,
	"Prayer Meeting":       8,
	"Fellowship":           25,
}

// PredictionFactors explains how a prediction was produced
type PredictionFactors struct {
	BaseAttendance     float64   `json:"baseAttendance"`
	SeasonalAdjustment float64   `json:"seasonalAdjustment"`
	TrendAdjustment    float64   `json:"trendAdjustment"`
	SimilarEvents      int       `json:"similarEvents"`
	MatchedRecords     int       `json:"matchedRecords"`
	BestMatch          MatchType `json:"bestMatch"`
	UsedDefault        bool      `json:"usedDefault"`
	Reasons            []string  `json:"reasons"`
}

// Prediction is the attendance forecast for one upcoming event
type Prediction struct {
	EventID             string            `json:"eventId"`
	EventTitle          string            `json:"eventTitle"`
	EventType           string            `json:"eventType"`
	EventDate           time.Time         `json:"eventDate"`
	PredictedAttendance int               `json:"predictedAttendance"`
	ConfidenceLevel     ConfidenceLevel   `json:"confidenceLevel"`
	ConfidenceScore     int               `json:"confidenceScore"`
	Factors             PredictionFactors `json:"factors"`
	Insight             string            `json:"insight,omitempty"`
}

// AttendanceForecast holds predictions for all upcoming events
type AttendanceForecast struct {
	Predictions []Prediction       `json:"predictions"`
	Patterns    AttendancePatterns `json:"patterns"`
}

// SimilarMatch is a historical attendance record scored against an upcoming event
type SimilarMatch struct {
	Record AttendanceRecord
	Score  float64
	Type   MatchType
}

// ConfidenceInputs are the signals feeding the additive confidence score
type ConfidenceInputs struct {
	MatchedEvents int
	HasExact      bool
	HasSeries     bool
	HasAny        bool
	TitleSeen     bool
	SeriesSeen    bool
}

// PredictAttendance predicts attendance for every upcoming event, ordered by event date
func PredictAttendance(upcoming []EventRecord, history []AttendanceRecord) *AttendanceForecast {
	patterns := ExtractAttendancePatterns(history)

	predictions := make([]Prediction, 0, len(upcoming))
	for _, event := range upcoming {
		predictions = append(predictions, PredictEvent(event, history, patterns))
	}

	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].EventDate.Before(predictions[j].EventDate)
	})

	return &AttendanceForecast{
		Predictions: predictions,
		Patterns:    patterns,
	}
}

// PredictEvent produces a single prediction
func PredictEvent(event EventRecord, history []AttendanceRecord, patterns AttendancePatterns) Prediction {
	series := RecurringSeriesName(event.Title)
	matches := FindSimilarAttendance(event, history)

	factors := PredictionFactors{
		TrendAdjustment: neutralTrendAdjustment,
		BestMatch:       MatchNone,
		MatchedRecords:  len(matches),
		Reasons:         []string{},
	}

	inputs := ConfidenceInputs{HasAny: len(matches) > 0}
	matchedEvents := make(map[string]struct{})
	for _, m := range matches {
		matchedEvents[m.Record.EventID] = struct{}{}
		switch m.Type {
		case MatchExact:
			inputs.HasExact = true
		case MatchSeries:
			inputs.HasSeries = true
		}
	}
	inputs.MatchedEvents = len(matchedEvents)
	factors.SimilarEvents = len(matchedEvents)

	switch {
	case inputs.HasExact:
		factors.BestMatch = MatchExact
	case inputs.HasSeries:
		factors.BestMatch = MatchSeries
	case inputs.HasAny:
		factors.BestMatch = MatchEventType
	}

	if len(matches) == 0 {
		factors.BaseAttendance = DefaultAttendance(event.EventType)
		factors.UsedDefault = true
	} else {
		factors.BaseAttendance = float64(len(matches)) / float64(len(matchedEvents))
	}

	seasonal, reasons := SeasonalAdjustment(event.Date())
	factors.SeasonalAdjustment = seasonal
	factors.Reasons = append(factors.Reasons, reasons...)

	predicted := int(math.Round(factors.BaseAttendance * seasonal * factors.TrendAdjustment))
	if predicted < minimumPrediction {
		predicted = minimumPrediction
	}

	_, inputs.TitleSeen = patterns.EventTitleCounts[event.Title]
	_, inputs.SeriesSeen = patterns.RecurringSeriesCounts[series]
	score, level := ScoreConfidence(inputs)

	return Prediction{
		EventID:             event.ID,
		EventTitle:          event.Title,
		EventType:           event.EventType,
		EventDate:           event.Date(),
		PredictedAttendance: predicted,
		ConfidenceLevel:     level,
		ConfidenceScore:     score,
		Factors:             factors,
	}
}

// FindSimilarAttendance scores history against an event: 1.0 exact title, 0.8 same
// recurring series, 0.6 same event type. Non-matching records are dropped.
func FindSimilarAttendance(event EventRecord, history []AttendanceRecord) []SimilarMatch {
	series := RecurringSeriesName(event.Title)
	matches := make([]SimilarMatch, 0)

	for _, record := range history {
		match := SimilarMatch{Record: record}
		switch {
		case event.Title != "" && strings.EqualFold(record.Event.Title, event.Title):
			match.Score, match.Type = 1.0, MatchExact
		case series != "" && strings.EqualFold(RecurringSeriesName(record.Event.Title), series):
			match.Score, match.Type = 0.8, MatchSeries
		case event.EventType != "" && record.Event.EventType == event.EventType:
			match.Score, match.Type = 0.6, MatchEventType
		default:
			continue
		}
		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches
}

// DefaultAttendance is the per-type baseline used without history
func DefaultAttendance(eventType string) float64 {
	if v, ok := defaultAttendanceByType[eventType]; ok {
		return v
	}
	return fallbackAttendance
}

type seasonalFactor struct {
	applies    func(month time.Month, day int, weekday time.Weekday) bool
	multiplier float64
	reason     string
}

var seasonalFactors = []seasonalFactor{
	{
		applies:    func(m time.Month, _ int, _ time.Weekday) bool { return m >= time.June && m <= time.September },
		multiplier: 0.85,
		reason:     "Summer months typically see lower attendance",
	},
	{
		applies:    func(m time.Month, _ int, _ time.Weekday) bool { return m == time.December || m <= time.February },
		multiplier: 0.9,
		reason:     "Winter weather can reduce attendance",
	},
	{
		applies:    func(m time.Month, _ int, _ time.Weekday) bool { return m >= time.March && m <= time.May },
		multiplier: 1.05,
		reason:     "Spring attendance tends to rise",
	},
	{
		applies:    func(m time.Month, _ int, _ time.Weekday) bool { return m == time.September || m == time.October },
		multiplier: 1.02,
		reason:     "Fall ministry season start",
	},
	{
		applies:    func(m time.Month, _ int, _ time.Weekday) bool { return m == time.December || m == time.January },
		multiplier: 0.75,
		reason:     "Holiday season schedules compete for time",
	},
	{
		applies: func(m time.Month, d int, _ time.Weekday) bool {
			return m == time.July || m == time.August || (m == time.December && d >= 20) || (m == time.January && d <= 5)
		},
		multiplier: 0.8,
		reason:     "School break period",
	},
	{
		applies:    isMajorHoliday,
		multiplier: 0.7,
		reason:     "Falls on a major holiday",
	},
	{
		applies:    func(_ time.Month, _ int, wd time.Weekday) bool { return wd == time.Sunday },
		multiplier: 1.1,
		reason:     "Sunday events draw higher attendance",
	},
	{
		applies:    func(_ time.Month, _ int, wd time.Weekday) bool { return wd == time.Saturday },
		multiplier: 0.9,
		reason:     "Saturday events draw slightly lower attendance",
	},
	{
		applies:    func(_ time.Month, _ int, wd time.Weekday) bool { return wd != time.Sunday && wd != time.Saturday },
		multiplier: 0.85,
		reason:     "Weekday events compete with work and school",
	},
	{
		applies: func(m time.Month, d int, _ time.Weekday) bool {
			return (m == time.June && d >= 15) || m == time.July || (m == time.August && d <= 15) ||
				(m == time.November && d >= 20) || m == time.December || (m == time.January && d <= 5) ||
				(m == time.February && d >= 15) || (m == time.March && d <= 15)
		},
		multiplier: 0.8,
		reason:     "Travel season",
	},
}

func isMajorHoliday(m time.Month, d int, _ time.Weekday) bool {
	switch {
	case m == time.January && d == 1,
		m == time.July && d == 4,
		m == time.November && d == 11,
		m == time.December && d == 25,
		m == time.December && d == 31:
		return true
	}
	return false
}

// SeasonalAdjustment compounds every calendar factor that applies to date
func SeasonalAdjustment(date time.Time) (float64, []string) {
	adjustment := 1.0
	reasons := make([]string, 0)
	if date.IsZero() {
		return adjustment, reasons
	}

	month, day, weekday := date.Month(), date.Day(), date.Weekday()
	for _, f := range seasonalFactors {
		if f.applies(month, day, weekday) {
			adjustment *= f.multiplier
			reasons = append(reasons, f.reason)
		}
	}
	return adjustment, reasons
}

// ScoreConfidence computes the additive 0-100 score and its level
func ScoreConfidence(in ConfidenceInputs) (int, ConfidenceLevel) {
	score := 0

	switch {
	case in.MatchedEvents >= 5:
		score += 30
	case in.MatchedEvents >= 3:
		score += 20
	case in.MatchedEvents >= 1:
		score += 10
	}

	switch {
	case in.HasExact:
		score += 40
	case in.HasSeries:
		score += 30
	case in.HasAny:
		score += 15
	}

	if in.TitleSeen {
		score += 20
	}
	if in.SeriesSeen {
		score += 15
	}

	if score > 100 {
		score = 100
	}

	switch {
	case score >= 80:
		return score, ConfidenceHigh
	case score >= 50:
		return score, ConfidenceMedium
	default:
		return score, ConfidenceLow
	}
}
