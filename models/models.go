package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// TimeSlice stores a list of timestamps as a JSON column.
// Used for the offered slot dates on a session template.
type TimeSlice []time.Time

func (t TimeSlice) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal([]time.Time(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *TimeSlice) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for TimeSlice: %T", value)
	}
	var out []time.Time
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*t = out
	return nil
}

// Contains reports whether the slice holds a slot equal to the given instant.
func (t TimeSlice) Contains(instant time.Time) bool {
	for _, slot := range t {
		if slot.Equal(instant) {
			return true
		}
	}
	return false
}

// User model. Role decides which surface a user can reach; tutors additionally
// carry an application status set by admins during onboarding.
type User struct {
	BaseModel
	Username          string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password          string `json:"-" gorm:"size:255;not null"`
	Email             string `json:"email" gorm:"size:255;uniqueIndex"`
	Phone             string `json:"phone" gorm:"size:20"`
	Role              string `json:"role" gorm:"size:50;not null;default:'student'"`        // admin, tutor, student
	Status            string `json:"status" gorm:"size:50;not null;default:'active'"`       // active, inactive, suspended
	ApplicationStatus string `json:"application_status" gorm:"size:50;default:'accepted'"`  // pending, accepted, rejected (tutors only)
	Avatar            string `json:"avatar" gorm:"size:500"`
	Country           string `json:"country" gorm:"size:100"`
	City              string `json:"city" gorm:"size:100"`
	AboutMe           string `json:"about_me" gorm:"type:text"`

	// Relationships
	Sessions []SessionTemplate `json:"sessions,omitempty" gorm:"foreignKey:TutorID"`
	Bookings []Booking         `json:"bookings,omitempty" gorm:"foreignKey:StudentID"`
}

// SessionTemplate is a tutor-defined offering: subject, per-session charge,
// delivery mode and a set of bookable slot timestamps.
type SessionTemplate struct {
	BaseModel
	TutorID        uint      `json:"tutor_id" gorm:"not null;index"`
	Subject        string    `json:"subject" gorm:"size:255;not null"`
	SessionType    string    `json:"session_type" gorm:"size:100"`
	Charge         int       `json:"charge" gorm:"not null"`
	Mode           string    `json:"mode" gorm:"size:50;default:'online'"` // online, in_person
	Slots          TimeSlice `json:"slots" gorm:"type:json"`
	SlotsRemaining int       `json:"slots_remaining" gorm:"not null"`
	JoinLink       string    `json:"join_link" gorm:"size:500"`
	Materials      JSON      `json:"materials" gorm:"type:json"` // stored object keys
	IsStarted      bool      `json:"is_started" gorm:"default:false"`
	IsCompleted    bool      `json:"is_completed" gorm:"default:false"`

	// Relationships
	Tutor    User      `json:"tutor,omitempty" gorm:"foreignKey:TutorID"`
	Bookings []Booking `json:"bookings,omitempty" gorm:"foreignKey:SessionID"`
}

// Booking is one student's reservation against one slot of a template.
// Lifecycle: pending -> joined -> completed, or pending -> cancelled.
type Booking struct {
	BaseModel
	SessionID   uint      `json:"session_id" gorm:"not null;index"`
	StudentID   uint      `json:"student_id" gorm:"not null;index"`
	StudentName string    `json:"student_name" gorm:"size:200"`
	Subject     string    `json:"subject" gorm:"size:255"`
	SessionDate time.Time `json:"session_date" gorm:"not null"`

	Status                string `json:"status" gorm:"size:50;default:'pending'"` // pending, reschedule_requested, completed, cancelled
	IsJoined              bool   `json:"is_joined" gorm:"default:false"`
	IsCancelled           bool   `json:"is_cancelled" gorm:"default:false"`
	IsCompleted           bool   `json:"is_completed" gorm:"default:false"`
	IsRescheduleRequested bool   `json:"is_reschedule_requested" gorm:"default:false"`

	PaymentStatus string     `json:"payment_status" gorm:"size:50;default:'pending'"` // pending, paid
	JoinedAt      *time.Time `json:"joined_at"`
	StartedAt     *time.Time `json:"started_at"` // stamped when the tutor starts the template
	EndedAt       *time.Time `json:"ended_at"`
	SessionPeriod string     `json:"session_period" gorm:"size:20"` // minutes, fixed "60" on completion

	// Relationships
	Session            SessionTemplate     `json:"session,omitempty" gorm:"foreignKey:SessionID"`
	Student            User                `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	RescheduleRequests []RescheduleRequest `json:"reschedule_requests,omitempty" gorm:"foreignKey:BookingID"`
}

// RescheduleRequest belongs to exactly one booking. Acceptance and rejection
// are mutually exclusive and settle the request exactly once.
type RescheduleRequest struct {
	BaseModel
	BookingID       uint       `json:"booking_id" gorm:"not null;uniqueIndex"`
	StudentID       uint       `json:"student_id" gorm:"not null;index"`
	StudentName     string     `json:"student_name" gorm:"size:200"`
	Subject         string     `json:"subject" gorm:"size:255"`
	Reason          string     `json:"reason" gorm:"type:text"`
	IsAccepted      bool       `json:"is_accepted" gorm:"default:false"`
	IsRejected      bool       `json:"is_rejected" gorm:"default:false"`
	RejectReason    string     `json:"reject_reason" gorm:"type:text"`
	RescheduledDate *time.Time `json:"rescheduled_date"`

	// Relationships
	Booking Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
	Student User    `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// Notification model
type Notification struct {
	BaseModel
	SenderID   uint       `json:"sender_id" gorm:"index"`
	ReceiverID uint       `json:"receiver_id" gorm:"not null;index"`
	Text       string     `json:"text" gorm:"type:text;not null"`
	Type       string     `json:"type" gorm:"size:50;not null"` // session, session_booking, session_joined, reschedule_request, payment_transaction, tutor_application, account
	EntityID   uint       `json:"entity_id"`
	Read       bool       `json:"read" gorm:"default:false"`
	ReadAt     *time.Time `json:"read_at"`

	// Relationships
	Sender   User `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	Receiver User `json:"receiver,omitempty" gorm:"foreignKey:ReceiverID"`
}

// PaymentTransaction records a settled charge reported by the payment
// provider webhook. The core never calls the provider itself.
type PaymentTransaction struct {
	BaseModel
	BookingID uint   `json:"booking_id" gorm:"not null;index"`
	StudentID uint   `json:"student_id" gorm:"not null;index"`
	Amount    int    `json:"amount" gorm:"not null"`
	Currency  string `json:"currency" gorm:"size:10;default:'usd'"`
	Provider  string `json:"provider" gorm:"size:50"`
	Reference string `json:"reference" gorm:"size:255;uniqueIndex"`
	Status    string `json:"status" gorm:"size:50;not null"` // succeeded, failed

	// Relationships
	Booking Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
