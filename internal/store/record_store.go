package store

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
	"github.com/deaconkarim/deacon-insights/internal/models"
)

// MemberFilter narrows a member listing. Empty fields do not filter.
type MemberFilter struct {
	Status     analytics.MemberStatus
	MemberType analytics.MemberType
}

// DonationFilter narrows a donation listing. A non-nil empty DonorIDs matches
// nothing. Since and Until are inclusive calendar dates (YYYY-MM-DD).
type DonationFilter struct {
	DonorIDs []string
	Since    string
	Until    string
}

// AttendanceFilter narrows an attendance listing. A non-nil empty MemberIDs
// matches nothing. CreatedSince applies to the attendance row; EventsFrom and
// EventsBefore apply to the event start date.
type AttendanceFilter struct {
	MemberIDs    []string
	CreatedSince time.Time
	EventsFrom   time.Time
	EventsBefore time.Time
}

// GormRecordStore reads ministry records through gorm. It never writes.
type GormRecordStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormRecordStore creates a record store
func NewGormRecordStore(db *gorm.DB, logger *zap.Logger) *GormRecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormRecordStore{
		db:     db,
		logger: logger.Named("record-store"),
	}
}

// ListMembers returns an organization's members, oldest first
func (s *GormRecordStore) ListMembers(ctx context.Context, organizationID string, filter MemberFilter) ([]analytics.MemberRecord, error) {
	ctx, span := otel.Tracer("record-store").Start(ctx, "ListMembers")
	defer span.End()
	span.SetAttributes(attribute.String("organization_id", organizationID))

	query := s.db.WithContext(ctx).Where("organization_id = ?", organizationID)
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.MemberType != "" {
		query = query.Where("member_type = ?", string(filter.MemberType))
	}

	var members []models.Member
	if err := query.Order("created_at ASC").Order("id ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	records := make([]analytics.MemberRecord, 0, len(members))
	for _, m := range members {
		records = append(records, analytics.MemberRecord{
			ID:             m.ID,
			OrganizationID: m.OrganizationID,
			FirstName:      m.FirstName,
			LastName:       m.LastName,
			Email:          m.Email,
			Phone:          m.Phone,
			Status:         analytics.MemberStatus(m.Status),
			MemberType:     analytics.MemberType(m.MemberType),
			CreatedAt:      m.CreatedAt,
		})
	}
	return records, nil
}

type donationRow struct {
	ID              string
	DonorID         *string
	Amount          float64
	Date            string
	IsRecurring     bool
	PaymentMethod   *string
	FundDesignation *string
	FirstName       *string
	LastName        *string
}

// ListDonations returns an organization's donations ordered by date, each with
// the donor's display name when the donor is a known member
func (s *GormRecordStore) ListDonations(ctx context.Context, organizationID string, filter DonationFilter) ([]analytics.DonationRecord, error) {
	ctx, span := otel.Tracer("record-store").Start(ctx, "ListDonations")
	defer span.End()
	span.SetAttributes(attribute.String("organization_id", organizationID))

	if filter.DonorIDs != nil && len(filter.DonorIDs) == 0 {
		return []analytics.DonationRecord{}, nil
	}

	query := s.db.WithContext(ctx).
		Table("donations AS d").
		Select("d.id, d.donor_id, d.amount, d.date, d.is_recurring, d.payment_method, d.fund_designation, m.first_name, m.last_name").
		Joins("LEFT JOIN members m ON m.id = d.donor_id").
		Where("d.organization_id = ?", organizationID)

	if len(filter.DonorIDs) > 0 {
		query = query.Where("d.donor_id IN ?", filter.DonorIDs)
	}
	if filter.Since != "" {
		query = query.Where("d.date >= ?", filter.Since)
	}
	if filter.Until != "" {
		query = query.Where("d.date <= ?", filter.Until)
	}

	var rows []donationRow
	if err := query.Order("d.date ASC").Order("d.id ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}

	records := make([]analytics.DonationRecord, 0, len(rows))
	for _, r := range rows {
		record := analytics.DonationRecord{
			ID:              r.ID,
			DonorID:         deref(r.DonorID),
			Amount:          r.Amount,
			Date:            normalizeDate(r.Date),
			IsRecurring:     r.IsRecurring,
			PaymentMethod:   deref(r.PaymentMethod),
			FundDesignation: deref(r.FundDesignation),
		}
		if r.FirstName != nil || r.LastName != nil {
			record.DonorName = analytics.MemberRecord{FirstName: deref(r.FirstName), LastName: deref(r.LastName)}.FullName()
		}
		records = append(records, record)
	}
	return records, nil
}

type attendanceRow struct {
	MemberID  string
	EventID   string
	CreatedAt time.Time
	Title     string
	EventType *string
	StartDate *time.Time
	EndDate   *time.Time
}

// ListEventAttendance returns attendance rows joined with their events
func (s *GormRecordStore) ListEventAttendance(ctx context.Context, organizationID string, filter AttendanceFilter) ([]analytics.AttendanceRecord, error) {
	ctx, span := otel.Tracer("record-store").Start(ctx, "ListEventAttendance")
	defer span.End()
	span.SetAttributes(attribute.String("organization_id", organizationID))

	if filter.MemberIDs != nil && len(filter.MemberIDs) == 0 {
		return []analytics.AttendanceRecord{}, nil
	}

	query := s.db.WithContext(ctx).
		Table("event_attendance AS a").
		Select("a.member_id, a.event_id, a.created_at, e.title, e.event_type, e.start_date, e.end_date").
		Joins("JOIN events e ON e.id = a.event_id").
		Where("e.organization_id = ?", organizationID)

	if len(filter.MemberIDs) > 0 {
		query = query.Where("a.member_id IN ?", filter.MemberIDs)
	}
	if !filter.CreatedSince.IsZero() {
		query = query.Where("a.created_at >= ?", filter.CreatedSince)
	}
	if !filter.EventsFrom.IsZero() {
		query = query.Where("e.start_date >= ?", filter.EventsFrom)
	}
	if !filter.EventsBefore.IsZero() {
		query = query.Where("e.start_date < ?", filter.EventsBefore)
	}

	var rows []attendanceRow
	if err := query.Order("e.start_date ASC").Order("a.member_id ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list event attendance: %w", err)
	}

	records := make([]analytics.AttendanceRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, analytics.AttendanceRecord{
			MemberID:  r.MemberID,
			EventID:   r.EventID,
			CreatedAt: r.CreatedAt,
			Event: analytics.EventRecord{
				ID:        r.EventID,
				Title:     r.Title,
				EventType: deref(r.EventType),
				StartDate: derefTime(r.StartDate),
				EndDate:   derefTime(r.EndDate),
			},
		})
	}
	return records, nil
}

// ListUpcomingEvents returns events starting within [from, until], soonest first
func (s *GormRecordStore) ListUpcomingEvents(ctx context.Context, organizationID string, from, until time.Time) ([]analytics.EventRecord, error) {
	ctx, span := otel.Tracer("record-store").Start(ctx, "ListUpcomingEvents")
	defer span.End()
	span.SetAttributes(attribute.String("organization_id", organizationID))

	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("start_date >= ? AND start_date <= ?", from, until).
		Order("start_date ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming events: %w", err)
	}

	records := make([]analytics.EventRecord, 0, len(events))
	for _, e := range events {
		records = append(records, analytics.EventRecord{
			ID:        e.ID,
			Title:     e.Title,
			EventType: e.EventType,
			StartDate: e.StartDate,
			EndDate:   derefTime(e.EndDate),
		})
	}
	return records, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// normalizeDate trims driver-rendered timestamps down to YYYY-MM-DD
func normalizeDate(date string) string {
	if len(date) > len(analytics.DateLayout) {
		return date[:len(analytics.DateLayout)]
	}
	return date
}
