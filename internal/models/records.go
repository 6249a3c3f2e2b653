package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member is a person belonging to an organization
type Member struct {
	ID             string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrganizationID string    `json:"organization_id" gorm:"type:varchar(36);not null;index"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Status         string    `json:"status" gorm:"default:'active';index"`
	MemberType     string    `json:"member_type" gorm:"default:'adult'"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (m *Member) TableName() string { return "members" }

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Donation is a single gift. DonorID is nil for anonymous gifts.
type Donation struct {
	ID              string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrganizationID  string    `json:"organization_id" gorm:"type:varchar(36);not null;index"`
	DonorID         *string   `json:"donor_id,omitempty" gorm:"type:varchar(36);index"`
	Amount          float64   `json:"amount" gorm:"type:numeric(12,2);not null"`
	Date            string    `json:"date" gorm:"type:date;not null;index"`
	IsRecurring     bool      `json:"is_recurring" gorm:"default:false"`
	PaymentMethod   string    `json:"payment_method"`
	FundDesignation string    `json:"fund_designation"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (d *Donation) TableName() string { return "donations" }

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Event is a scheduled ministry event
type Event struct {
	ID             string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrganizationID string     `json:"organization_id" gorm:"type:varchar(36);not null;index"`
	Title          string     `json:"title" gorm:"not null"`
	EventType      string     `json:"event_type"`
	StartDate      time.Time  `json:"start_date" gorm:"index"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (e *Event) TableName() string { return "events" }

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// EventAttendance records one member attending one event
type EventAttendance struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	EventID   string    `json:"event_id" gorm:"type:varchar(36);not null;index"`
	MemberID  string    `json:"member_id" gorm:"type:varchar(36);not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (a *EventAttendance) TableName() string { return "event_attendance" }

func (a *EventAttendance) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
