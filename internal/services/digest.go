package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
)

const (
	digestPeriod        = 7 * 24 * time.Hour
	digestMemberLimit   = 10
	digestUpcomingLimit = 10
)

type DigestPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type DigestAtRisk struct {
	Count    int                      `json:"count"`
	Members  []analytics.AtRiskMember `json:"members"`
	Degraded string                   `json:"degraded,omitempty"`
}

type DigestGiving struct {
	CurrentWeek       analytics.TrendAnalysis    `json:"currentWeek"`
	CurrentMonth      analytics.TrendAnalysis    `json:"currentMonth"`
	MonthlyProjection float64                    `json:"monthlyProjection"`
	Forecast          analytics.DonationForecast `json:"forecast"`
	Recommendations   []string                   `json:"recommendations"`
	Degraded          string                     `json:"degraded,omitempty"`
}

type DigestAttendance struct {
	Upcoming       []analytics.Prediction `json:"upcoming"`
	HighConfidence int                    `json:"highConfidence"`
	ExpectedTotal  int                    `json:"expectedTotal"`
	Degraded       string                 `json:"degraded,omitempty"`
}

// WeeklyDigest is the weekly summary sent to an organization's deacons
type WeeklyDigest struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organizationId"`
	Period         DigestPeriod     `json:"period"`
	AtRisk         DigestAtRisk     `json:"atRisk"`
	Giving         DigestGiving     `json:"giving"`
	Attendance     DigestAttendance `json:"attendance"`
	Highlights     []string         `json:"highlights"`
	Narrative      string           `json:"narrative"`
	GeneratedAt    string           `json:"generatedAt"`
	Error          string           `json:"error,omitempty"`
}

func (d *WeeklyDigest) degraded() bool {
	return d.AtRisk.Degraded != "" || d.Giving.Degraded != "" || d.Attendance.Degraded != ""
}

// GetWeeklyDigest builds the digest for the last seven days. Like the dashboard it
// never fails; degraded sections are flagged and the digest is not cached.
func (s *InsightsService) GetWeeklyDigest(ctx context.Context, organizationID string, forceRefresh bool) *WeeklyDigest {
	ctx, span := startSpan(ctx, "GetWeeklyDigest", organizationID, forceRefresh)
	defer span.End()

	now := s.opts.Now()
	if organizationID == "" {
		return &WeeklyDigest{
			Highlights:  []string{},
			GeneratedAt: now.UTC().Format(time.RFC3339),
			Error:       ErrMissingOrganization.Error(),
		}
	}

	key := s.cache.Key(KindDigest, organizationID)
	if !forceRefresh {
		var cached WeeklyDigest
		if s.cache.Load(ctx, key, &cached) {
			s.monitoring.RecordCacheHit(KindDigest)
			return &cached
		}
	}
	s.monitoring.RecordCacheMiss(KindDigest)

	start := time.Now()
	digest := &WeeklyDigest{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Period: DigestPeriod{
			Start: analytics.FormatDate(now.Add(-digestPeriod)),
			End:   analytics.FormatDate(now),
		},
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}

	if members, err := s.GetAtRiskMembers(ctx, organizationID, forceRefresh); err != nil {
		digest.AtRisk = DigestAtRisk{Members: []analytics.AtRiskMember{}, Degraded: err.Error()}
	} else {
		digest.AtRisk = DigestAtRisk{Count: len(members), Members: limitMembers(members, digestMemberLimit)}
	}

	if insights, err := s.GetDonationInsights(ctx, organizationID, forceRefresh); err != nil {
		digest.Giving = DigestGiving{Recommendations: []string{}, Degraded: err.Error()}
	} else {
		digest.Giving = DigestGiving{
			CurrentWeek:       insights.CurrentWeek,
			CurrentMonth:      insights.CurrentMonth,
			MonthlyProjection: insights.MonthlyProjection,
			Forecast:          insights.Predictions,
			Recommendations:   insights.Recommendations,
		}
	}

	if forecast, err := s.GetAttendancePredictions(ctx, organizationID, forceRefresh); err != nil {
		digest.Attendance = DigestAttendance{Upcoming: []analytics.Prediction{}, Degraded: err.Error()}
	} else {
		digest.Attendance = summarizeAttendance(forecast.Predictions)
	}

	digest.Highlights = digestHighlights(digest)
	digest.Narrative = s.narrator.NarrateDigest(ctx, digest)
	s.monitoring.ObserveComputation(KindDigest, time.Since(start))

	s.logger.Info("Weekly digest generated",
		zap.String("organization_id", organizationID),
		zap.String("digest_id", digest.ID),
		zap.Int("at_risk", digest.AtRisk.Count),
		zap.Int("upcoming_events", len(digest.Attendance.Upcoming)))

	if digest.degraded() {
		s.logger.Warn("Weekly digest has degraded sections", zap.String("organization_id", organizationID))
		return digest
	}

	s.cache.Set(ctx, key, digest)
	return digest
}

func limitMembers(members []analytics.AtRiskMember, limit int) []analytics.AtRiskMember {
	if len(members) <= limit {
		return members
	}
	return members[:limit]
}

func summarizeAttendance(predictions []analytics.Prediction) DigestAttendance {
	summary := DigestAttendance{Upcoming: predictions}
	if len(predictions) > digestUpcomingLimit {
		summary.Upcoming = predictions[:digestUpcomingLimit]
	}
	for _, p := range predictions {
		summary.ExpectedTotal += p.PredictedAttendance
		if p.ConfidenceLevel == analytics.ConfidenceHigh {
			summary.HighConfidence++
		}
	}
	return summary
}

func digestHighlights(d *WeeklyDigest) []string {
	highlights := make([]string, 0, 4)

	switch {
	case d.AtRisk.Degraded != "":
		highlights = append(highlights, "Member engagement data was unavailable this week.")
	case d.AtRisk.Count == 0:
		highlights = append(highlights, "No members are currently at risk.")
	case d.AtRisk.Count == 1:
		highlights = append(highlights, "1 member may need a pastoral check-in.")
	default:
		highlights = append(highlights, fmt.Sprintf("%d members may need a pastoral check-in.", d.AtRisk.Count))
	}

	if d.Giving.Degraded != "" {
		highlights = append(highlights, "Giving data was unavailable this week.")
	} else {
		week := d.Giving.CurrentWeek
		switch week.Trend {
		case analytics.TrendNoData:
			highlights = append(highlights, "No donations were recorded this week.")
		case analytics.TrendNoComparison:
			highlights = append(highlights, fmt.Sprintf("Giving this week totals $%.2f.", week.CurrentAmount))
		case analytics.TrendStable:
			highlights = append(highlights, fmt.Sprintf("Giving this week is steady at $%.2f (%.1f%% vs last week).", week.CurrentAmount, week.PercentChange))
		default:
			highlights = append(highlights, fmt.Sprintf("Giving this week is %s %.1f%% at $%.2f.", week.Trend, math.Abs(week.PercentChange), week.CurrentAmount))
		}
		highlights = append(highlights, fmt.Sprintf("This month is projected to reach $%.2f.", d.Giving.MonthlyProjection))
	}

	switch {
	case d.Attendance.Degraded != "":
		highlights = append(highlights, "Attendance predictions were unavailable this week.")
	case len(d.Attendance.Upcoming) == 0:
		highlights = append(highlights, "No events are scheduled in the coming weeks.")
	default:
		next := d.Attendance.Upcoming[0]
		highlights = append(highlights, fmt.Sprintf("Next up is %s on %s with about %d expected.",
			next.EventTitle, analytics.FormatDate(next.EventDate), next.PredictedAttendance))
	}

	return highlights
}
