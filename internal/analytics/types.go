package analytics

import (
	"time"
)

// MemberStatus represents the membership status of a person
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
	MemberStatusVisitor  MemberStatus = "visitor"
)

// MemberType distinguishes adult members from children
type MemberType string

const (
	MemberTypeAdult MemberType = "adult"
	MemberTypeChild MemberType = "child"
)

// MemberRecord is a member row as read from the record store
type MemberRecord struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organizationId"`
	FirstName      string       `json:"firstName"`
	LastName       string       `json:"lastName"`
	Email          string       `json:"email,omitempty"`
	Phone          string       `json:"phone,omitempty"`
	Status         MemberStatus `json:"status"`
	MemberType     MemberType   `json:"memberType"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// FullName returns the member's display name
func (m MemberRecord) FullName() string {
	switch {
	case m.FirstName == "":
		return m.LastName
	case m.LastName == "":
		return m.FirstName
	default:
		return m.FirstName + " " + m.LastName
	}
}

// DonationRecord is a single gift. Date is a zero-padded calendar date (YYYY-MM-DD).
type DonationRecord struct {
	ID              string  `json:"id"`
	DonorID         string  `json:"donorId,omitempty"`
	DonorName       string  `json:"donorName,omitempty"`
	Amount          float64 `json:"amount"`
	Date            string  `json:"date"`
	IsRecurring     bool    `json:"isRecurring"`
	PaymentMethod   string  `json:"paymentMethod,omitempty"`
	FundDesignation string  `json:"fundDesignation,omitempty"`
}

// EventRecord is a scheduled ministry event
type EventRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	EventType string    `json:"eventType"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// Date returns the date used for forecasting: the start date when known, the end date otherwise
func (e EventRecord) Date() time.Time {
	if !e.StartDate.IsZero() {
		return e.StartDate
	}
	return e.EndDate
}

// AttendanceRecord is one member's attendance at an event, joined with the event fields
type AttendanceRecord struct {
	MemberID  string      `json:"memberId"`
	EventID   string      `json:"eventId"`
	CreatedAt time.Time   `json:"createdAt"`
	Event     EventRecord `json:"event"`
}

// DateLayout is the calendar date layout used by donation records
const DateLayout = "2006-01-02"

// FormatDate renders t as a calendar date
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
