package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
)

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		current  float64
		previous float64
		expected analytics.TrendDirection
	}{
		{110, 100, analytics.TrendUp},
		{150, 100, analytics.TrendUp},
		{89, 100, analytics.TrendDown},
		{95, 100, analytics.TrendStable},
		{105, 100, analytics.TrendStable},
		{100, 0, analytics.TrendNoComparison},
		{0, 0, analytics.TrendNoComparison},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, analytics.ClassifyTrend(tt.current, tt.previous), "current=%v previous=%v", tt.current, tt.previous)
	}
}

func TestNewTrendAnalysis(t *testing.T) {
	// no current donations wins over the missing comparison
	assert.Equal(t, analytics.TrendNoData, analytics.NewTrendAnalysis(0, 0, 0).Trend)
	assert.Equal(t, analytics.TrendNoData, analytics.NewTrendAnalysis(0, 200, 0).Trend)

	a := analytics.NewTrendAnalysis(150, 200, 2)
	assert.Equal(t, analytics.TrendDown, a.Trend)
	assert.Equal(t, -25.0, a.PercentChange)

	a = analytics.NewTrendAnalysis(350, 75, 3)
	assert.Equal(t, analytics.TrendUp, a.Trend)
	assert.Equal(t, 366.7, a.PercentChange)
}

func TestProjectMonthlyTotal(t *testing.T) {
	assert.Equal(t, 900.0, analytics.ProjectMonthlyTotal(300, 10, 30))
	assert.Equal(t, 543.0, analytics.ProjectMonthlyTotal(350, 20, 31))
	assert.Equal(t, 0.0, analytics.ProjectMonthlyTotal(0, 10, 30))
	assert.Equal(t, 300.0, analytics.ProjectMonthlyTotal(300, 0, 30))
	assert.Equal(t, 300.0, analytics.ProjectMonthlyTotal(300, 30, 30))
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, analytics.DaysInMonth(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 28, analytics.DaysInMonth(time.Date(2023, 2, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 31, analytics.DaysInMonth(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestAnalyzeDonations(t *testing.T) {
	now := time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC)
	donations := []analytics.DonationRecord{
		{ID: "d1", DonorID: "a", DonorName: "Alice Smith", Amount: 100, Date: "2024-03-18", IsRecurring: true, PaymentMethod: "card", FundDesignation: "general"},
		{ID: "d2", DonorID: "b", DonorName: "Bob Jones", Amount: 50, Date: "2024-03-15", PaymentMethod: "cash", FundDesignation: "missions"},
		{ID: "d3", DonorID: "a", DonorName: "Alice Smith", Amount: 200, Date: "2024-03-08T00:00:00Z", PaymentMethod: "card", FundDesignation: "building"},
		{ID: "d4", DonorID: "c", Amount: 50, Date: "2024-02-10", PaymentMethod: "check"},
		{ID: "d5", Amount: 25, Date: "2024-02-20"},
	}

	insights := analytics.AnalyzeDonations(donations, analytics.NewReferenceInstants(now))
	require.NotNil(t, insights)

	assert.Equal(t, 425.0, insights.TotalAmount)
	assert.Equal(t, 5, insights.TotalDonations)
	assert.Equal(t, 85.0, insights.AverageDonation)
	assert.Equal(t, 1, insights.RecurringDonations)
	assert.Equal(t, map[string]float64{"2024-03": 350, "2024-02": 75}, insights.MonthlyTrends)

	assert.Equal(t, analytics.Breakdown{Count: 2, Amount: 300}, insights.PaymentMethodBreakdown["card"])
	assert.Equal(t, analytics.Breakdown{Count: 1, Amount: 25}, insights.PaymentMethodBreakdown["unknown"])
	assert.Equal(t, analytics.Breakdown{Count: 3, Amount: 175}, insights.FundDesignationBreakdown["general"])

	// week window is [03-13, 03-20], previous week [03-06, 03-13)
	assert.Equal(t, 150.0, insights.CurrentWeek.CurrentAmount)
	assert.Equal(t, 200.0, insights.CurrentWeek.PreviousAmount)
	assert.Equal(t, analytics.TrendDown, insights.CurrentWeek.Trend)

	assert.Equal(t, 350.0, insights.CurrentMonth.CurrentAmount)
	assert.Equal(t, 75.0, insights.CurrentMonth.PreviousAmount)
	assert.Equal(t, analytics.TrendUp, insights.CurrentMonth.Trend)

	assert.Equal(t, 543.0, insights.MonthlyProjection)
	assert.Equal(t, 135.0, insights.Predictions.NextWeek)
	assert.Equal(t, 597.0, insights.Predictions.NextMonth)
	assert.Equal(t, analytics.ForecastConfidenceMedium, insights.Predictions.Confidence)

	if assert.Len(t, insights.TopDonors, 3) {
		assert.Equal(t, analytics.DonorTotal{DonorID: "a", Name: "Alice Smith", Total: 300, Donations: 2}, insights.TopDonors[0])
		assert.Equal(t, "b", insights.TopDonors[1].DonorID)
		assert.Equal(t, "Unknown donor", insights.TopDonors[2].Name)
	}

	assert.Equal(t, analytics.GivingPatterns{
		RecentDonations:      4,
		RecurringPercentage:  20,
		UniqueFunds:          3,
		UniquePaymentMethods: 4,
		AverageDonation:      85,
	}, insights.GivingPatterns)

	if assert.Len(t, insights.Recommendations, 4) {
		assert.Contains(t, insights.Recommendations[0], "Weekly giving is down 25.0%")
		assert.Contains(t, insights.Recommendations[1], "Monthly giving is up 366.7%")
		assert.Contains(t, insights.Recommendations[2], "$543.00")
		assert.Contains(t, insights.Recommendations[3], "only 4 donations in the last 30 days")
	}
}

func TestAnalyzeDonations_Empty(t *testing.T) {
	insights := analytics.AnalyzeDonations(nil, analytics.NewReferenceInstants(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, 0.0, insights.AverageDonation)
	assert.Equal(t, 0, insights.TotalDonations)
	assert.Equal(t, analytics.TrendNoData, insights.CurrentWeek.Trend)
	assert.Equal(t, analytics.TrendNoData, insights.CurrentMonth.Trend)
	assert.Equal(t, 0.0, insights.Predictions.NextWeek)
	assert.Equal(t, 0.0, insights.Predictions.NextMonth)
	assert.Equal(t, analytics.ForecastConfidenceLow, insights.Predictions.Confidence)
	assert.NotNil(t, insights.TopDonors)
	assert.Empty(t, insights.TopDonors)

	require.Len(t, insights.Recommendations, 5)
	assert.Contains(t, insights.Recommendations[0], "Only 0.0% of gifts are recurring")
	assert.Contains(t, insights.Recommendations[1], "The average gift is $0.00")
	assert.Contains(t, insights.Recommendations[2], "only 0 donations")
	assert.Contains(t, insights.Recommendations[3], "0 fund(s)")
	assert.Contains(t, insights.Recommendations[4], "0 payment method(s)")
}

func TestAnalyzeDonations_HistoricalFallback(t *testing.T) {
	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	donations := []analytics.DonationRecord{
		{ID: "1", Amount: 1000, Date: "2023-12-31"},
		{ID: "2", Amount: 100, Date: "2024-01-07"},
		{ID: "3", Amount: 50, Date: "2024-01-09"},
		{ID: "4", Amount: 200, Date: "2024-01-14"},
		{ID: "5", Amount: 60, Date: "2024-01-21"},
		{ID: "6", Amount: 40, Date: "2024-01-28"},
	}

	insights := analytics.AnalyzeDonations(donations, analytics.NewReferenceInstants(now))

	// last four Sunday weeks: 40, 60, 200, 150
	assert.Equal(t, 113.0, insights.Predictions.NextWeek)
	// 1450 over two distinct months
	assert.Equal(t, 725.0, insights.Predictions.NextMonth)
	assert.Equal(t, analytics.ForecastConfidenceLow, insights.Predictions.Confidence)
	assert.Equal(t, 0.0, insights.MonthlyProjection)
}

func TestAnalyzeDonations_TopDonorLimit(t *testing.T) {
	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	donations := []analytics.DonationRecord{
		{ID: "1", DonorID: "a", DonorName: "A", Amount: 10, Date: "2024-03-01"},
		{ID: "2", DonorID: "b", DonorName: "B", Amount: 60, Date: "2024-03-01"},
		{ID: "3", DonorID: "c", DonorName: "C", Amount: 30, Date: "2024-03-01"},
		{ID: "4", DonorID: "d", DonorName: "D", Amount: 30, Date: "2024-03-01"},
		{ID: "5", DonorID: "e", DonorName: "E", Amount: 50, Date: "2024-03-01"},
		{ID: "6", DonorID: "f", DonorName: "F", Amount: 5, Date: "2024-03-01"},
		{ID: "7", DonorID: "a", DonorName: "A", Amount: 15, Date: "2024-03-02"},
	}

	insights := analytics.AnalyzeDonations(donations, analytics.NewReferenceInstants(now))

	ids := make([]string, 0, len(insights.TopDonors))
	for _, d := range insights.TopDonors {
		ids = append(ids, d.DonorID)
	}
	assert.Equal(t, []string{"b", "e", "c", "d", "a"}, ids)
}

func TestAnalyzeDonations_HighConfidence(t *testing.T) {
	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	donations := make([]analytics.DonationRecord, 0)
	for i := 0; i < 6; i++ {
		donations = append(donations, analytics.DonationRecord{Amount: 100, Date: "2024-03-08", IsRecurring: true, PaymentMethod: "card", FundDesignation: "general"})
		donations = append(donations, analytics.DonationRecord{Amount: 100, Date: "2024-03-15", IsRecurring: true, PaymentMethod: "ach", FundDesignation: "missions"})
	}
	donations = append(donations, analytics.DonationRecord{Amount: 100, Date: "2024-02-15", FundDesignation: "youth", PaymentMethod: "card"})

	insights := analytics.AnalyzeDonations(donations, analytics.NewReferenceInstants(now))

	assert.Equal(t, 13, insights.TotalDonations)
	assert.Equal(t, analytics.TrendStable, insights.CurrentWeek.Trend)
	assert.Equal(t, analytics.TrendUp, insights.CurrentMonth.Trend)
	assert.Equal(t, analytics.ForecastConfidenceHigh, insights.Predictions.Confidence)
}
