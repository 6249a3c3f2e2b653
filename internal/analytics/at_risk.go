package analytics

import (
	"time"
)

// AtRiskLookback is how far back giving and attendance are checked
const AtRiskLookback = 60 * 24 * time.Hour

// AtRiskMember is a member with no recent giving and no recent attendance
type AtRiskMember struct {
	MemberRecord
	ProfileURL string `json:"profileUrl"`
}

// AtRiskCutoff returns the earliest instant that still counts as recent activity
func AtRiskCutoff(now time.Time, lookback time.Duration) time.Time {
	if lookback <= 0 {
		lookback = AtRiskLookback
	}
	return now.Add(-lookback)
}

// IsAtRiskCandidate reports whether a member is eligible for at-risk classification
func IsAtRiskCandidate(m MemberRecord) bool {
	return m.Status == MemberStatusActive && m.MemberType == MemberTypeAdult
}

// DetectAtRiskMembers returns the candidates that appear in neither the recent donations nor
// the recent attendance. Callers are expected to have filtered donations and attendance to the
// lookback window already. Output keeps the order of candidates.
func DetectAtRiskMembers(candidates []MemberRecord, recentDonations []DonationRecord, recentAttendance []AttendanceRecord, profileURLBase string) []AtRiskMember {
	gave := make(map[string]struct{}, len(recentDonations))
	for _, d := range recentDonations {
		if d.DonorID != "" {
			gave[d.DonorID] = struct{}{}
		}
	}

	attended := make(map[string]struct{}, len(recentAttendance))
	for _, a := range recentAttendance {
		attended[a.MemberID] = struct{}{}
	}

	atRisk := make([]AtRiskMember, 0)
	for _, m := range candidates {
		if _, ok := gave[m.ID]; ok {
			continue
		}
		if _, ok := attended[m.ID]; ok {
			continue
		}
		atRisk = append(atRisk, AtRiskMember{
			MemberRecord: m,
			ProfileURL:   profileURLBase + m.ID,
		})
	}

	return atRisk
}

// MemberIDs extracts member ids in order
func MemberIDs(members []MemberRecord) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}
