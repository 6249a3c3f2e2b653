package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
)

func member(id string, status analytics.MemberStatus, memberType analytics.MemberType) analytics.MemberRecord {
	return analytics.MemberRecord{
		ID:         id,
		FirstName:  "First" + id,
		LastName:   "Last" + id,
		Status:     status,
		MemberType: memberType,
	}
}

func TestDetectAtRiskMembers(t *testing.T) {
	candidates := []analytics.MemberRecord{
		member("m1", analytics.MemberStatusActive, analytics.MemberTypeAdult),
		member("m2", analytics.MemberStatusActive, analytics.MemberTypeAdult),
		member("m3", analytics.MemberStatusActive, analytics.MemberTypeAdult),
		member("m4", analytics.MemberStatusActive, analytics.MemberTypeAdult),
	}
	donations := []analytics.DonationRecord{
		{ID: "d1", DonorID: "m1", Amount: 25, Date: "2024-03-01"},
		{ID: "d2", Amount: 10, Date: "2024-03-02"}, // anonymous gift
	}
	attendance := []analytics.AttendanceRecord{
		{MemberID: "m3", EventID: "e1"},
	}

	atRisk := analytics.DetectAtRiskMembers(candidates, donations, attendance, "/members/")

	if assert.Len(t, atRisk, 2) {
		assert.Equal(t, "m2", atRisk[0].ID)
		assert.Equal(t, "/members/m2", atRisk[0].ProfileURL)
		assert.Equal(t, "m4", atRisk[1].ID)
		assert.Equal(t, "Firstm4 Lastm4", atRisk[1].FullName())
	}
}

func TestDetectAtRiskMembers_Empty(t *testing.T) {
	atRisk := analytics.DetectAtRiskMembers(nil, nil, nil, "/members/")
	assert.NotNil(t, atRisk)
	assert.Empty(t, atRisk)

	// everyone active recently means nobody is at risk
	candidates := []analytics.MemberRecord{member("m1", analytics.MemberStatusActive, analytics.MemberTypeAdult)}
	atRisk = analytics.DetectAtRiskMembers(candidates, nil, []analytics.AttendanceRecord{{MemberID: "m1"}}, "")
	assert.Empty(t, atRisk)
}

func TestIsAtRiskCandidate(t *testing.T) {
	tests := []struct {
		name     string
		member   analytics.MemberRecord
		expected bool
	}{
		{"active adult", member("a", analytics.MemberStatusActive, analytics.MemberTypeAdult), true},
		{"inactive adult", member("b", analytics.MemberStatusInactive, analytics.MemberTypeAdult), false},
		{"visitor", member("c", analytics.MemberStatusVisitor, analytics.MemberTypeAdult), false},
		{"active child", member("d", analytics.MemberStatusActive, analytics.MemberTypeChild), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, analytics.IsAtRiskCandidate(tt.member))
		})
	}
}

func TestAtRiskCutoff(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC), analytics.AtRiskCutoff(now, 0))
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), analytics.AtRiskCutoff(now, 10*24*time.Hour))
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Ann", analytics.MemberRecord{FirstName: "Ann"}.FullName())
	assert.Equal(t, "Lee", analytics.MemberRecord{LastName: "Lee"}.FullName())
	assert.Equal(t, "Ann Lee", analytics.MemberRecord{FirstName: "Ann", LastName: "Lee"}.FullName())
}
