package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// TrendDirection represents the direction of a period-over-period comparison
type TrendDirection string

const (
	TrendUp           TrendDirection = "up"
	TrendDown         TrendDirection = "down"
	TrendStable       TrendDirection = "stable"
	TrendNoData       TrendDirection = "no-data"
	TrendNoComparison TrendDirection = "no-comparison"
)

// ForecastConfidence is a coarse rating of a giving forecast
type ForecastConfidence string

const (
	ForecastConfidenceHigh   ForecastConfidence = "high"
	ForecastConfidenceMedium ForecastConfidence = "medium"
	ForecastConfidenceLow    ForecastConfidence = "low"
)

const (
	defaultPaymentMethod   = "unknown"
	defaultFundDesignation = "general"
	unknownDonorName       = "Unknown donor"
	topDonorLimit          = 5
	forecastWeekWindow     = 4
	recentGivingDays       = 30
	historicalDonationsMin = 10
)

// TrendAnalysis compares a period's giving with the equivalent previous period
type TrendAnalysis struct {
	CurrentAmount  float64        `json:"currentAmount"`
	PreviousAmount float64        `json:"previousAmount"`
	CurrentCount   int            `json:"currentCount"`
	PercentChange  float64        `json:"percentChange"`
	Trend          TrendDirection `json:"trend"`
}

// Breakdown is a count and amount for one bucket
type Breakdown struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// DonorTotal is a donor's lifetime giving
type DonorTotal struct {
	DonorID   string  `json:"donorId"`
	Name      string  `json:"name"`
	Total     float64 `json:"total"`
	Donations int     `json:"donations"`
}

// DonationForecast is the forward-looking giving estimate
type DonationForecast struct {
	NextWeek   float64            `json:"nextWeek"`
	NextMonth  float64            `json:"nextMonth"`
	Confidence ForecastConfidence `json:"confidence"`
}

// GivingPatterns summarises how people give
type GivingPatterns struct {
	RecentDonations      int     `json:"recentDonations"`
	RecurringPercentage  float64 `json:"recurringPercentage"`
	UniqueFunds          int     `json:"uniqueFunds"`
	UniquePaymentMethods int     `json:"uniquePaymentMethods"`
	AverageDonation      float64 `json:"averageDonation"`
}

// DonationInsights is the full donation analysis for an organization
type DonationInsights struct {
	TotalAmount              float64              `json:"totalAmount"`
	TotalDonations           int                  `json:"totalDonations"`
	AverageDonation          float64              `json:"averageDonation"`
	RecurringDonations       int                  `json:"recurringDonations"`
	MonthlyTrends            map[string]float64   `json:"monthlyTrends"`
	PaymentMethodBreakdown   map[string]Breakdown `json:"paymentMethodBreakdown"`
	FundDesignationBreakdown map[string]Breakdown `json:"fundDesignationBreakdown"`
	TopDonors                []DonorTotal         `json:"topDonors"`
	CurrentWeek              TrendAnalysis        `json:"currentWeek"`
	CurrentMonth             TrendAnalysis        `json:"currentMonth"`
	MonthlyProjection        float64              `json:"monthlyProjection"`
	Predictions              DonationForecast     `json:"predictions"`
	GivingPatterns           GivingPatterns       `json:"givingPatterns"`
	Recommendations          []string             `json:"recommendations"`
}

// ReferenceInstants are the caller-supplied anchors for period windows
type ReferenceInstants struct {
	Now          time.Time
	SevenDaysAgo time.Time
	StartOfMonth time.Time
	EndOfMonth   time.Time
}

// NewReferenceInstants derives the standard anchors from now
func NewReferenceInstants(now time.Time) ReferenceInstants {
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return ReferenceInstants{
		Now:          now,
		SevenDaysAgo: now.AddDate(0, 0, -7),
		StartOfMonth: startOfMonth,
		EndOfMonth:   startOfMonth.AddDate(0, 1, -1),
	}
}

// trendTolerance absorbs float error so that exactly +10% classifies as up
const trendTolerance = 1e-9

// ClassifyTrend applies the ±10% rule. A zero previous total yields no-comparison.
func ClassifyTrend(current, previous float64) TrendDirection {
	if previous == 0 {
		return TrendNoComparison
	}
	ratio := current / previous
	switch {
	case ratio >= 1.1-trendTolerance:
		return TrendUp
	case ratio < 0.9-trendTolerance:
		return TrendDown
	default:
		return TrendStable
	}
}

// NewTrendAnalysis builds a comparison; a period without donations is no-data
func NewTrendAnalysis(current, previous float64, currentCount int) TrendAnalysis {
	analysis := TrendAnalysis{
		CurrentAmount:  current,
		PreviousAmount: previous,
		CurrentCount:   currentCount,
	}
	if previous > 0 {
		analysis.PercentChange = math.Round((current-previous)/previous*1000) / 10
	}
	if currentCount == 0 {
		analysis.Trend = TrendNoData
		return analysis
	}
	analysis.Trend = ClassifyTrend(current, previous)
	return analysis
}

// ProjectMonthlyTotal extrapolates the month-to-date amount over the rest of the month
func ProjectMonthlyTotal(currentAmount float64, daysElapsed, daysInMonth int) float64 {
	if currentAmount == 0 {
		return 0
	}
	if daysElapsed <= 0 {
		return currentAmount
	}
	daysRemaining := daysInMonth - daysElapsed
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	return math.Round(currentAmount + (currentAmount/float64(daysElapsed))*float64(daysRemaining))
}

// TrendMultiplier is the forecast adjustment for a trend direction
func TrendMultiplier(trend TrendDirection) float64 {
	switch trend {
	case TrendUp:
		return 1.1
	case TrendDown:
		return 0.9
	default:
		return 1.0
	}
}

// DaysInMonth returns the number of days in t's month
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

type periodTotal struct {
	amount float64
	count  int
}

func (p *periodTotal) add(amount float64) {
	p.amount += amount
	p.count++
}

// AnalyzeDonations computes totals, breakdowns, trends, forecast and recommendations
func AnalyzeDonations(donations []DonationRecord, ref ReferenceInstants) *DonationInsights {
	insights := &DonationInsights{
		MonthlyTrends:            make(map[string]float64),
		PaymentMethodBreakdown:   make(map[string]Breakdown),
		FundDesignationBreakdown: make(map[string]Breakdown),
		TopDonors:                []DonorTotal{},
		Recommendations:          []string{},
	}

	today := FormatDate(ref.Now)
	weekStart := FormatDate(ref.SevenDaysAgo)
	prevWeekStart := FormatDate(ref.SevenDaysAgo.AddDate(0, 0, -7))
	monthStart := FormatDate(ref.StartOfMonth)
	monthEnd := FormatDate(ref.EndOfMonth)
	prevMonthStart := FormatDate(ref.StartOfMonth.AddDate(0, -1, 0))
	prevMonthEnd := FormatDate(ref.StartOfMonth.AddDate(0, 0, -1))
	recentStart := FormatDate(ref.Now.AddDate(0, 0, -recentGivingDays))

	var week, prevWeek, month, prevMonth periodTotal
	recentCount := 0

	donorIndex := make(map[string]int)
	donors := make([]DonorTotal, 0)

	for _, d := range donations {
		date := normalizeDate(d.Date)

		insights.TotalAmount += d.Amount
		insights.TotalDonations++
		if d.IsRecurring {
			insights.RecurringDonations++
		}
		if len(date) >= 7 {
			insights.MonthlyTrends[date[:7]] += d.Amount
		}

		method := d.PaymentMethod
		if method == "" {
			method = defaultPaymentMethod
		}
		pm := insights.PaymentMethodBreakdown[method]
		pm.Count++
		pm.Amount += d.Amount
		insights.PaymentMethodBreakdown[method] = pm

		fund := d.FundDesignation
		if fund == "" {
			fund = defaultFundDesignation
		}
		fd := insights.FundDesignationBreakdown[fund]
		fd.Count++
		fd.Amount += d.Amount
		insights.FundDesignationBreakdown[fund] = fd

		if d.DonorID != "" {
			idx, ok := donorIndex[d.DonorID]
			if !ok {
				idx = len(donors)
				donorIndex[d.DonorID] = idx
				donors = append(donors, DonorTotal{DonorID: d.DonorID})
			}
			donors[idx].Total += d.Amount
			donors[idx].Donations++
			if donors[idx].Name == "" && d.DonorName != "" {
				donors[idx].Name = d.DonorName
			}
		}

		if date >= weekStart && date <= today {
			week.add(d.Amount)
		} else if date >= prevWeekStart && date < weekStart {
			prevWeek.add(d.Amount)
		}
		if date >= monthStart && date <= monthEnd {
			month.add(d.Amount)
		} else if date >= prevMonthStart && date <= prevMonthEnd {
			prevMonth.add(d.Amount)
		}
		if date >= recentStart && date <= today {
			recentCount++
		}
	}

	if insights.TotalDonations > 0 {
		insights.AverageDonation = insights.TotalAmount / float64(insights.TotalDonations)
	}

	insights.TopDonors = topDonors(donors, topDonorLimit)
	insights.CurrentWeek = NewTrendAnalysis(week.amount, prevWeek.amount, week.count)
	insights.CurrentMonth = NewTrendAnalysis(month.amount, prevMonth.amount, month.count)
	insights.MonthlyProjection = ProjectMonthlyTotal(month.amount, ref.Now.Day(), DaysInMonth(ref.Now))

	monthlyAverage := 0.0
	if len(insights.MonthlyTrends) > 0 {
		monthlyAverage = insights.TotalAmount / float64(len(insights.MonthlyTrends))
	}

	insights.Predictions = forecastDonations(insights, donations, monthlyAverage)

	recurringPercentage := 0.0
	if insights.TotalDonations > 0 {
		recurringPercentage = math.Round(float64(insights.RecurringDonations)/float64(insights.TotalDonations)*1000) / 10
	}
	insights.GivingPatterns = GivingPatterns{
		RecentDonations:      recentCount,
		RecurringPercentage:  recurringPercentage,
		UniqueFunds:          len(insights.FundDesignationBreakdown),
		UniquePaymentMethods: len(insights.PaymentMethodBreakdown),
		AverageDonation:      insights.AverageDonation,
	}

	insights.Recommendations = buildRecommendations(insights, monthlyAverage)

	return insights
}

func forecastDonations(insights *DonationInsights, donations []DonationRecord, monthlyAverage float64) DonationForecast {
	var forecast DonationForecast

	if insights.CurrentWeek.CurrentCount > 0 {
		forecast.NextWeek = math.Round(insights.CurrentWeek.CurrentAmount * TrendMultiplier(insights.CurrentWeek.Trend))
	} else {
		forecast.NextWeek = math.Round(recentWeeklyAverage(donations, forecastWeekWindow))
	}

	if insights.CurrentMonth.CurrentCount > 0 {
		forecast.NextMonth = math.Round(insights.MonthlyProjection * TrendMultiplier(insights.CurrentMonth.Trend))
	} else {
		forecast.NextMonth = math.Round(monthlyAverage)
	}

	hasCurrentData := insights.CurrentWeek.CurrentCount > 0 || insights.CurrentMonth.CurrentCount > 0
	hasHistory := insights.TotalDonations > historicalDonationsMin
	trendsResolvable := insights.CurrentWeek.Trend != TrendNoData && insights.CurrentMonth.Trend != TrendNoData

	switch {
	case hasCurrentData && hasHistory && trendsResolvable:
		forecast.Confidence = ForecastConfidenceHigh
	case hasCurrentData != hasHistory:
		forecast.Confidence = ForecastConfidenceMedium
	default:
		forecast.Confidence = ForecastConfidenceLow
	}

	return forecast
}

// recentWeeklyAverage averages the totals of the most recent distinct calendar weeks (Sunday start)
func recentWeeklyAverage(donations []DonationRecord, weeks int) float64 {
	totals := make(map[string]float64)
	for _, d := range donations {
		t, err := time.Parse(DateLayout, normalizeDate(d.Date))
		if err != nil {
			continue
		}
		weekStart := t.AddDate(0, 0, -int(t.Weekday()))
		totals[FormatDate(weekStart)] += d.Amount
	}
	if len(totals) == 0 {
		return 0
	}

	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if len(keys) > weeks {
		keys = keys[:weeks]
	}

	sum := 0.0
	for _, k := range keys {
		sum += totals[k]
	}
	return sum / float64(len(keys))
}

func topDonors(donors []DonorTotal, limit int) []DonorTotal {
	ranked := make([]DonorTotal, len(donors))
	copy(ranked, donors)
	for i := range ranked {
		if ranked[i].Name == "" {
			ranked[i].Name = unknownDonorName
		}
	}

	// stable sort keeps first-appearance order among equal totals
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total > ranked[j].Total
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func buildRecommendations(insights *DonationInsights, monthlyAverage float64) []string {
	recs := make([]string, 0)

	switch insights.CurrentWeek.Trend {
	case TrendDown:
		recs = append(recs, fmt.Sprintf("Weekly giving is down %.1f%% from the previous week. Consider a gentle reminder about giving opportunities in this week's communications.", math.Abs(insights.CurrentWeek.PercentChange)))
	case TrendUp:
		recs = append(recs, fmt.Sprintf("Weekly giving is up %.1f%% over the previous week. Take a moment to thank your donors.", insights.CurrentWeek.PercentChange))
	}

	switch insights.CurrentMonth.Trend {
	case TrendDown:
		recs = append(recs, fmt.Sprintf("Monthly giving is down %.1f%% from last month. Review upcoming ministry needs and share them with the congregation.", math.Abs(insights.CurrentMonth.PercentChange)))
	case TrendUp:
		recs = append(recs, fmt.Sprintf("Monthly giving is up %.1f%% over last month. Celebrate the generosity and share how gifts are being used.", insights.CurrentMonth.PercentChange))
	}

	if prev := insights.CurrentMonth.PreviousAmount; prev > 0 && insights.MonthlyProjection/prev > 1.2 {
		recs = append(recs, fmt.Sprintf("This month is projected to finish at $%.2f, more than 20%% above last month. Share the progress with your congregation.", insights.MonthlyProjection))
	}

	if insights.Predictions.Confidence == ForecastConfidenceHigh && monthlyAverage > 0 && insights.Predictions.NextMonth < monthlyAverage*0.8 {
		recs = append(recs, "The forecast points to a significant drop in giving next month. Plan stewardship outreach before it happens.")
	}

	if insights.GivingPatterns.RecurringPercentage < 20 {
		recs = append(recs, fmt.Sprintf("Only %.1f%% of gifts are recurring. Promote recurring giving to stabilize monthly income.", insights.GivingPatterns.RecurringPercentage))
	}

	if insights.AverageDonation < 50 {
		recs = append(recs, fmt.Sprintf("The average gift is $%.2f. Sharing stories of ministry impact can encourage more generous giving.", insights.AverageDonation))
	}

	if insights.GivingPatterns.RecentDonations < 10 {
		recs = append(recs, fmt.Sprintf("Recent giving activity is low: only %d donations in the last 30 days. Consider a giving campaign or a stewardship message.", insights.GivingPatterns.RecentDonations))
	}

	if insights.GivingPatterns.UniqueFunds < 3 {
		recs = append(recs, fmt.Sprintf("Giving is concentrated in %d fund(s). Highlight other ministry funds donors can support.", insights.GivingPatterns.UniqueFunds))
	}

	if insights.GivingPatterns.UniquePaymentMethods < 2 {
		recs = append(recs, fmt.Sprintf("Donors are using %d payment method(s). Offering online or text giving could make giving easier.", insights.GivingPatterns.UniquePaymentMethods))
	}

	return recs
}

// normalizeDate trims timestamps down to their calendar date
func normalizeDate(date string) string {
	if len(date) > len(DateLayout) {
		return date[:len(DateLayout)]
	}
	return date
}
