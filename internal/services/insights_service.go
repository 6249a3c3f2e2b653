package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
	"github.com/deaconkarim/deacon-insights/internal/cache"
	"github.com/deaconkarim/deacon-insights/internal/store"
)

const (
	KindAtRisk     = "at_risk_members"
	KindDonations  = "donation_insights"
	KindAttendance = "attendance_predictions"
	KindDashboard  = "dashboard_insights"
	KindDigest     = "weekly_digest"

	tracerName = "insights-service"
)

// cachedKinds lists every result kind stored per organization
var cachedKinds = []string{KindAtRisk, KindDonations, KindAttendance, KindDashboard, KindDigest}

// ErrMissingOrganization is returned when no organization id is supplied
var ErrMissingOrganization = errors.New("organization id is required")

// RecordStore is the read-only source of ministry records
type RecordStore interface {
	ListMembers(ctx context.Context, organizationID string, filter store.MemberFilter) ([]analytics.MemberRecord, error)
	ListDonations(ctx context.Context, organizationID string, filter store.DonationFilter) ([]analytics.DonationRecord, error)
	ListEventAttendance(ctx context.Context, organizationID string, filter store.AttendanceFilter) ([]analytics.AttendanceRecord, error)
	ListUpcomingEvents(ctx context.Context, organizationID string, from, until time.Time) ([]analytics.EventRecord, error)
}

// InsightsOptions tunes the windows used by the computations; zero values take the defaults
type InsightsOptions struct {
	AtRiskLookback    time.Duration
	ProfileURLBase    string
	AttendanceHistory time.Duration
	UpcomingHorizon   time.Duration
	Now               func() time.Time
}

// AtRiskSection is the at-risk part of the dashboard
type AtRiskSection struct {
	Data     []analytics.AtRiskMember `json:"data"`
	Summary  string                   `json:"summary"`
	Actions  string                   `json:"actions"`
	Degraded string                   `json:"degraded,omitempty"`
}

// DonationSection is the giving part of the dashboard
type DonationSection struct {
	Data     *analytics.DonationInsights `json:"data"`
	Summary  string                      `json:"summary"`
	Actions  string                      `json:"actions"`
	Degraded string                      `json:"degraded,omitempty"`
}

type AttendanceData struct {
	Predictions []analytics.Prediction `json:"predictions"`
}

// AttendanceSection is the predictive attendance part of the dashboard
type AttendanceSection struct {
	Data     AttendanceData `json:"data"`
	Degraded string         `json:"degraded,omitempty"`
}

type Insights struct {
	AtRisk               *AtRiskSection     `json:"atRisk,omitempty"`
	DonationInsights     *DonationSection   `json:"donationInsights,omitempty"`
	PredictiveAttendance *AttendanceSection `json:"predictiveAttendance,omitempty"`
}

// InsightBundle is the dashboard document
type InsightBundle struct {
	Insights  Insights `json:"insights"`
	Timestamp string   `json:"timestamp"`
	Error     string   `json:"error,omitempty"`
}

func (b *InsightBundle) degraded() bool {
	in := b.Insights
	return (in.AtRisk != nil && in.AtRisk.Degraded != "") ||
		(in.DonationInsights != nil && in.DonationInsights.Degraded != "") ||
		(in.PredictiveAttendance != nil && in.PredictiveAttendance.Degraded != "")
}

// InsightsService composes the analytics into cached, narrated insight documents
type InsightsService struct {
	store      RecordStore
	cache      *cache.ResultCache
	narrator   *Narrator
	monitoring *MonitoringService
	opts       InsightsOptions
	logger     *zap.Logger
}

// NewInsightsService creates the insights service
func NewInsightsService(
	records RecordStore,
	resultCache *cache.ResultCache,
	narrator *Narrator,
	monitoring *MonitoringService,
	opts InsightsOptions,
	logger *zap.Logger,
) *InsightsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if narrator == nil {
		narrator = NewNarrator(nil, monitoring, logger)
	}
	if opts.AtRiskLookback <= 0 {
		opts.AtRiskLookback = analytics.AtRiskLookback
	}
	if opts.AttendanceHistory <= 0 {
		opts.AttendanceHistory = 180 * 24 * time.Hour
	}
	if opts.UpcomingHorizon <= 0 {
		opts.UpcomingHorizon = 30 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &InsightsService{
		store:      records,
		cache:      resultCache,
		narrator:   narrator,
		monitoring: monitoring,
		opts:       opts,
		logger:     logger.Named("insights-service"),
	}
}

// GetAtRiskMembers returns active adult members with no giving and no attendance in the lookback window
func (s *InsightsService) GetAtRiskMembers(ctx context.Context, organizationID string, forceRefresh bool) ([]analytics.AtRiskMember, error) {
	ctx, span := startSpan(ctx, "GetAtRiskMembers", organizationID, forceRefresh)
	defer span.End()

	if organizationID == "" {
		return nil, ErrMissingOrganization
	}

	members, err := cachedResult(ctx, s, KindAtRisk, organizationID, forceRefresh, s.computeAtRisk)
	recordSpanError(span, err)
	return members, err
}

func (s *InsightsService) computeAtRisk(ctx context.Context, organizationID string) ([]analytics.AtRiskMember, error) {
	members, err := s.store.ListMembers(ctx, organizationID, store.MemberFilter{
		Status:     analytics.MemberStatusActive,
		MemberType: analytics.MemberTypeAdult,
	})
	if err != nil {
		return nil, &FetchError{Source: "members", Err: err}
	}

	candidates := make([]analytics.MemberRecord, 0, len(members))
	for _, m := range members {
		if analytics.IsAtRiskCandidate(m) {
			candidates = append(candidates, m)
		}
	}

	cutoff := analytics.AtRiskCutoff(s.opts.Now(), s.opts.AtRiskLookback)
	ids := analytics.MemberIDs(candidates)

	var (
		donations  []analytics.DonationRecord
		attendance []analytics.AttendanceRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := s.store.ListDonations(gctx, organizationID, store.DonationFilter{
			DonorIDs: ids,
			Since:    analytics.FormatDate(cutoff),
		})
		if err != nil {
			return &FetchError{Source: "donations", Err: err}
		}
		donations = records
		return nil
	})
	g.Go(func() error {
		records, err := s.store.ListEventAttendance(gctx, organizationID, store.AttendanceFilter{
			MemberIDs:    ids,
			CreatedSince: cutoff,
		})
		if err != nil {
			return &FetchError{Source: "attendance", Err: err}
		}
		attendance = records
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	atRisk := analytics.DetectAtRiskMembers(candidates, donations, attendance, s.opts.ProfileURLBase)

	s.logger.Info("At-risk members identified",
		zap.String("organization_id", organizationID),
		zap.Int("candidates", len(candidates)),
		zap.Int("at_risk", len(atRisk)))

	return atRisk, nil
}

// GetDonationInsights returns the giving analysis for the organization
func (s *InsightsService) GetDonationInsights(ctx context.Context, organizationID string, forceRefresh bool) (*analytics.DonationInsights, error) {
	ctx, span := startSpan(ctx, "GetDonationInsights", organizationID, forceRefresh)
	defer span.End()

	if organizationID == "" {
		return nil, ErrMissingOrganization
	}

	insights, err := cachedResult(ctx, s, KindDonations, organizationID, forceRefresh, s.computeDonations)
	recordSpanError(span, err)
	return insights, err
}

func (s *InsightsService) computeDonations(ctx context.Context, organizationID string) (*analytics.DonationInsights, error) {
	donations, err := s.store.ListDonations(ctx, organizationID, store.DonationFilter{})
	if err != nil {
		return nil, &FetchError{Source: "donations", Err: err}
	}

	insights := analytics.AnalyzeDonations(donations, analytics.NewReferenceInstants(s.opts.Now()))

	s.logger.Info("Donation insights computed",
		zap.String("organization_id", organizationID),
		zap.Int("donations", insights.TotalDonations),
		zap.String("weekly_trend", string(insights.CurrentWeek.Trend)))

	return insights, nil
}

// GetAttendancePredictions predicts attendance for the organization's upcoming events
func (s *InsightsService) GetAttendancePredictions(ctx context.Context, organizationID string, forceRefresh bool) (*analytics.AttendanceForecast, error) {
	ctx, span := startSpan(ctx, "GetAttendancePredictions", organizationID, forceRefresh)
	defer span.End()

	if organizationID == "" {
		return nil, ErrMissingOrganization
	}

	forecast, err := cachedResult(ctx, s, KindAttendance, organizationID, forceRefresh, s.computeAttendance)
	recordSpanError(span, err)
	return forecast, err
}

func (s *InsightsService) computeAttendance(ctx context.Context, organizationID string) (*analytics.AttendanceForecast, error) {
	now := s.opts.Now()

	var (
		history  []analytics.AttendanceRecord
		upcoming []analytics.EventRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := s.store.ListEventAttendance(gctx, organizationID, store.AttendanceFilter{
			EventsFrom:   now.Add(-s.opts.AttendanceHistory),
			EventsBefore: now,
		})
		if err != nil {
			return &FetchError{Source: "attendance", Err: err}
		}
		history = records
		return nil
	})
	g.Go(func() error {
		events, err := s.store.ListUpcomingEvents(gctx, organizationID, now, now.Add(s.opts.UpcomingHorizon))
		if err != nil {
			return &FetchError{Source: "events", Err: err}
		}
		upcoming = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	forecast := analytics.PredictAttendance(upcoming, history)
	forecast.Predictions = s.narrator.EnhancePredictions(ctx, forecast.Predictions)

	s.logger.Info("Attendance predictions computed",
		zap.String("organization_id", organizationID),
		zap.Int("history_records", len(history)),
		zap.Int("upcoming_events", len(upcoming)))

	return forecast, nil
}

// GetDashboardInsights assembles the narrated dashboard. It never fails: problems
// are reported through the bundle's error field or a section's degraded reason.
func (s *InsightsService) GetDashboardInsights(ctx context.Context, organizationID string, forceRefresh bool) *InsightBundle {
	ctx, span := startSpan(ctx, "GetDashboardInsights", organizationID, forceRefresh)
	defer span.End()

	if organizationID == "" {
		return &InsightBundle{
			Timestamp: s.timestamp(),
			Error:     ErrMissingOrganization.Error(),
		}
	}

	key := s.cache.Key(KindDashboard, organizationID)
	if !forceRefresh {
		var cached InsightBundle
		if s.cache.Load(ctx, key, &cached) {
			s.monitoring.RecordCacheHit(KindDashboard)
			return &cached
		}
	}
	s.monitoring.RecordCacheMiss(KindDashboard)

	start := time.Now()
	bundle := &InsightBundle{}

	var g errgroup.Group
	g.Go(func() error {
		bundle.Insights.AtRisk = s.atRiskSection(ctx, organizationID, forceRefresh)
		return nil
	})
	g.Go(func() error {
		bundle.Insights.DonationInsights = s.donationSection(ctx, organizationID, forceRefresh)
		return nil
	})
	g.Go(func() error {
		bundle.Insights.PredictiveAttendance = s.attendanceSection(ctx, organizationID, forceRefresh)
		return nil
	})
	_ = g.Wait()

	bundle.Timestamp = s.timestamp()
	s.monitoring.ObserveComputation(KindDashboard, time.Since(start))

	if bundle.degraded() {
		span.SetStatus(codes.Error, "dashboard degraded")
		s.logger.Warn("Dashboard assembled with degraded sections", zap.String("organization_id", organizationID))
		return bundle
	}

	s.cache.Set(ctx, key, bundle)
	return bundle
}

func (s *InsightsService) atRiskSection(ctx context.Context, organizationID string, forceRefresh bool) *AtRiskSection {
	members, err := s.GetAtRiskMembers(ctx, organizationID, forceRefresh)
	if err != nil {
		return &AtRiskSection{
			Data:     []analytics.AtRiskMember{},
			Summary:  "Member engagement data is temporarily unavailable.",
			Actions:  "",
			Degraded: err.Error(),
		}
	}

	narration := s.narrator.NarrateAtRisk(ctx, members, s.lookbackDays())
	return &AtRiskSection{
		Data:    members,
		Summary: narration.Summary,
		Actions: narration.Actions,
	}
}

func (s *InsightsService) donationSection(ctx context.Context, organizationID string, forceRefresh bool) *DonationSection {
	insights, err := s.GetDonationInsights(ctx, organizationID, forceRefresh)
	if err != nil {
		return &DonationSection{
			Summary:  "Giving data is temporarily unavailable.",
			Degraded: err.Error(),
		}
	}

	narration := s.narrator.NarrateDonations(ctx, insights)
	return &DonationSection{
		Data:    insights,
		Summary: narration.Summary,
		Actions: narration.Actions,
	}
}

func (s *InsightsService) attendanceSection(ctx context.Context, organizationID string, forceRefresh bool) *AttendanceSection {
	forecast, err := s.GetAttendancePredictions(ctx, organizationID, forceRefresh)
	if err != nil {
		return &AttendanceSection{
			Data:     AttendanceData{Predictions: []analytics.Prediction{}},
			Degraded: err.Error(),
		}
	}
	return &AttendanceSection{Data: AttendanceData{Predictions: forecast.Predictions}}
}

// ClearCache drops cached results for one organization, or every result when organizationID is empty
func (s *InsightsService) ClearCache(ctx context.Context, organizationID string) int {
	var removed int
	if organizationID == "" {
		removed = s.cache.Clear(ctx, "")
	} else {
		removed = s.cache.ClearOrganization(ctx, organizationID, cachedKinds...)
	}

	s.logger.Info("Insights cache cleared",
		zap.String("organization_id", organizationID),
		zap.Int("removed", removed))

	return removed
}

// CacheStats reports the number and size of cached results
func (s *InsightsService) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.Stats(ctx)
}

func (s *InsightsService) lookbackDays() int {
	return int(s.opts.AtRiskLookback / (24 * time.Hour))
}

func (s *InsightsService) timestamp() string {
	return s.opts.Now().UTC().Format(time.RFC3339)
}

// cachedResult serves kind from the result cache, computing and storing it on a
// miss. forceRefresh skips the read only. Failed computations are not stored.
func cachedResult[T any](
	ctx context.Context,
	s *InsightsService,
	kind, organizationID string,
	forceRefresh bool,
	compute func(context.Context, string) (T, error),
) (T, error) {
	key := s.cache.Key(kind, organizationID)

	if !forceRefresh {
		var cached T
		if s.cache.Load(ctx, key, &cached) {
			s.monitoring.RecordCacheHit(kind)
			return cached, nil
		}
	}
	s.monitoring.RecordCacheMiss(kind)

	start := time.Now()
	result, err := compute(ctx, organizationID)
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			s.monitoring.RecordFetchFailure(fetchErr.Source)
		}
		s.logger.Warn("Insight computation failed",
			zap.String("kind", kind),
			zap.String("organization_id", organizationID),
			zap.Error(err))
		return result, err
	}
	s.monitoring.ObserveComputation(kind, time.Since(start))

	s.cache.Set(ctx, key, result)
	return result, nil
}

func startSpan(ctx context.Context, name, organizationID string, forceRefresh bool) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	span.SetAttributes(
		attribute.String("organization_id", organizationID),
		attribute.Bool("force_refresh", forceRefresh),
	)
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
