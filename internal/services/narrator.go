package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
	"github.com/deaconkarim/deacon-insights/internal/textgen"
)

const (
	SectionAtRisk      = "at_risk"
	SectionDonations   = "donations"
	SectionDigest      = "digest"
	SectionPredictions = "predictions"

	narrationMaxTokens   = 400
	enhancementMaxTokens = 600
	maxNamedMembers      = 3
)

// TextGenerator produces free text for a prompt
type TextGenerator interface {
	Generate(ctx context.Context, req textgen.Request) (string, error)
}

// Narration is the human-readable part of an insight section
type Narration struct {
	Summary string `json:"summary"`
	Actions string `json:"actions"`
}

type generatedNarration struct {
	Summary string   `json:"summary"`
	Actions []string `json:"actions"`
}

type generatedInsights struct {
	Insights []struct {
		EventID string `json:"eventId"`
		Insight string `json:"insight"`
	} `json:"insights"`
}

// Narrator turns computed insights into summaries, asking the text generator first
// and falling back to deterministic wording on any failure.
type Narrator struct {
	generator  TextGenerator
	monitoring *MonitoringService
	logger     *zap.Logger
}

// NewNarrator creates a narrator. A nil generator always uses the fallback wording.
func NewNarrator(generator TextGenerator, monitoring *MonitoringService, logger *zap.Logger) *Narrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Narrator{
		generator:  generator,
		monitoring: monitoring,
		logger:     logger.Named("narrator"),
	}
}

// NarrateAtRisk summarises the at-risk member list
func (n *Narrator) NarrateAtRisk(ctx context.Context, members []analytics.AtRiskMember, lookbackDays int) Narration {
	fallback := atRiskFallback(members, lookbackDays)

	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.FullName())
	}
	prompt := fmt.Sprintf(`You are assisting church deacons with pastoral care.
%d active adult members have neither given nor attended an event in the last %d days: %s.
Respond with only a JSON object of the form {"summary": "<two sentences>", "actions": ["<short action>", ...]} with at most 4 actions.`,
		len(members), lookbackDays, strings.Join(names, ", "))

	return n.narrate(ctx, SectionAtRisk, prompt, fallback)
}

// NarrateDonations summarises the giving analysis
func (n *Narrator) NarrateDonations(ctx context.Context, insights *analytics.DonationInsights) Narration {
	fallback := donationFallback(insights)

	facts, err := json.Marshal(struct {
		TotalAmount       float64                    `json:"totalAmount"`
		TotalDonations    int                        `json:"totalDonations"`
		CurrentWeek       analytics.TrendAnalysis    `json:"currentWeek"`
		CurrentMonth      analytics.TrendAnalysis    `json:"currentMonth"`
		MonthlyProjection float64                    `json:"monthlyProjection"`
		Predictions       analytics.DonationForecast `json:"predictions"`
		GivingPatterns    analytics.GivingPatterns   `json:"givingPatterns"`
	}{
		insights.TotalAmount,
		insights.TotalDonations,
		insights.CurrentWeek,
		insights.CurrentMonth,
		insights.MonthlyProjection,
		insights.Predictions,
		insights.GivingPatterns,
	})
	if err != nil {
		return fallback
	}

	prompt := fmt.Sprintf(`You are assisting church deacons with stewardship.
Here is this month's giving analysis as JSON: %s
Respond with only a JSON object of the form {"summary": "<two sentences>", "actions": ["<short action>", ...]} with at most 4 actions.`, facts)

	return n.narrate(ctx, SectionDonations, prompt, fallback)
}

// NarrateDigest writes the digest's opening paragraph
func (n *Narrator) NarrateDigest(ctx context.Context, digest *WeeklyDigest) string {
	fallback := digestFallback(digest)

	prompt := fmt.Sprintf(`You are writing the weekly update for a church deacon board covering %s to %s.
Highlights:
- %s
Respond with only a JSON object of the form {"summary": "<one short paragraph>", "actions": []}.`,
		digest.Period.Start, digest.Period.End, strings.Join(digest.Highlights, "\n- "))

	return n.narrate(ctx, SectionDigest, prompt, Narration{Summary: fallback}).Summary
}

// EnhancePredictions attaches a one-line insight to each prediction. Any failure
// returns the predictions unchanged.
func (n *Narrator) EnhancePredictions(ctx context.Context, predictions []analytics.Prediction) []analytics.Prediction {
	if len(predictions) == 0 || n.generator == nil {
		return predictions
	}

	var b strings.Builder
	for _, p := range predictions {
		fmt.Fprintf(&b, "%s | %s | %s | %s | predicted %d | %s confidence\n",
			p.EventID, p.EventTitle, p.EventType, analytics.FormatDate(p.EventDate), p.PredictedAttendance, p.ConfidenceLevel)
	}
	prompt := fmt.Sprintf(`You are helping a church plan upcoming events. For each event below (id | title | type | date | prediction | confidence)
give one practical sentence for the organisers.
%s
Respond with only a JSON object of the form {"insights": [{"eventId": "<id>", "insight": "<sentence>"}]}.`, b.String())

	reply, err := n.generator.Generate(ctx, textgen.Request{Prompt: prompt, MaxTokens: enhancementMaxTokens})
	if err != nil {
		n.fallback(SectionPredictions, err)
		return predictions
	}

	var parsed generatedInsights
	if err := decodeFirstObject(reply, &parsed); err != nil {
		n.fallback(SectionPredictions, err)
		return predictions
	}

	byID := make(map[string]string, len(parsed.Insights))
	for _, in := range parsed.Insights {
		if text := strings.TrimSpace(in.Insight); text != "" {
			byID[in.EventID] = text
		}
	}

	enhanced := make([]analytics.Prediction, len(predictions))
	copy(enhanced, predictions)
	for i := range enhanced {
		if text, ok := byID[enhanced[i].EventID]; ok {
			enhanced[i].Insight = text
		}
	}
	return enhanced
}

func (n *Narrator) narrate(ctx context.Context, section, prompt string, fallback Narration) Narration {
	if n.generator == nil {
		return fallback
	}

	reply, err := n.generator.Generate(ctx, textgen.Request{Prompt: prompt, MaxTokens: narrationMaxTokens})
	if err != nil {
		n.fallback(section, err)
		return fallback
	}

	var parsed generatedNarration
	if err := decodeFirstObject(reply, &parsed); err != nil {
		n.fallback(section, err)
		return fallback
	}

	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" {
		n.fallback(section, errors.New("reply has no summary"))
		return fallback
	}

	actions := fallback.Actions
	if len(parsed.Actions) > 0 {
		actions = bulletList(parsed.Actions)
	}
	return Narration{Summary: summary, Actions: actions}
}

func (n *Narrator) fallback(section string, err error) {
	if errors.Is(err, textgen.ErrNotConfigured) {
		return
	}
	n.logger.Warn("Text generation failed, using fallback wording",
		zap.String("section", section),
		zap.Error(err))
	n.monitoring.RecordNarrationFallback(section)
}

func decodeFirstObject(reply string, dest interface{}) error {
	obj, ok := textgen.ExtractJSONObject(reply)
	if !ok {
		return errors.New("reply contains no JSON object")
	}
	if err := json.Unmarshal([]byte(obj), dest); err != nil {
		return fmt.Errorf("failed to parse reply: %w", err)
	}
	return nil
}

func bulletList(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			lines = append(lines, "- "+item)
		}
	}
	return strings.Join(lines, "\n")
}

func atRiskFallback(members []analytics.AtRiskMember, lookbackDays int) Narration {
	if len(members) == 0 {
		return Narration{
			Summary: fmt.Sprintf("No active adult members are at risk. Everyone has given or attended an event in the last %d days.", lookbackDays),
			Actions: bulletList([]string{"Keep encouraging regular engagement through events and communications"}),
		}
	}

	noun := "members have"
	if len(members) == 1 {
		noun = "member has"
	}
	summary := fmt.Sprintf("%d active adult %s not given or attended an event in the last %d days.", len(members), noun, lookbackDays)

	named := make([]string, 0, maxNamedMembers)
	for i := 0; i < len(members) && i < maxNamedMembers; i++ {
		named = append(named, members[i].FullName())
	}
	summary += " This includes " + strings.Join(named, ", ")
	if extra := len(members) - len(named); extra > 0 {
		summary += fmt.Sprintf(" and %d more", extra)
	}
	summary += "."

	return Narration{
		Summary: summary,
		Actions: bulletList([]string{
			"Reach out personally to each member on the list",
			"Invite them to an upcoming service or small group",
			"Assign a deacon to follow up within the next two weeks",
		}),
	}
}

func donationFallback(insights *analytics.DonationInsights) Narration {
	if insights == nil || insights.TotalDonations == 0 {
		return Narration{
			Summary: "No donations have been recorded yet.",
			Actions: bulletList([]string{"Share giving options with the congregation"}),
		}
	}

	summary := fmt.Sprintf("Total giving is $%.2f across %d donations, an average of $%.2f. ",
		insights.TotalAmount, insights.TotalDonations, insights.AverageDonation)
	summary += fmt.Sprintf("This month is projected to reach $%.2f", insights.MonthlyProjection)
	if insights.CurrentWeek.Trend != analytics.TrendNoData && insights.CurrentWeek.Trend != analytics.TrendNoComparison {
		summary += fmt.Sprintf(" and weekly giving is %s (%.1f%% vs last week)", insights.CurrentWeek.Trend, insights.CurrentWeek.PercentChange)
	}
	summary += fmt.Sprintf(". Next week is forecast at $%.2f with %s confidence.", insights.Predictions.NextWeek, insights.Predictions.Confidence)

	actions := bulletList(insights.Recommendations)
	if actions == "" {
		actions = bulletList([]string{"Keep thanking donors and sharing the impact of their giving"})
	}

	return Narration{Summary: summary, Actions: actions}
}

func digestFallback(digest *WeeklyDigest) string {
	text := fmt.Sprintf("Weekly summary for %s to %s.", digest.Period.Start, digest.Period.End)
	for _, h := range digest.Highlights {
		text += " " + h
	}
	return text
}
