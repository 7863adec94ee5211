// Package sessions owns the session lifecycle: template creation, booking,
// joining, cancellation, starting, the reschedule workflow and the periodic
// auto-complete sweep. All state transitions write to the store first; side
// effects (notifications, mail) are dispatched only after the write commits.
package sessions

import (
	"errors"
	"fmt"
	"time"
	"tutorlink_go/models"

	"gorm.io/gorm"
)

const (
	// Reschedule window measured from the booking's started_at stamp.
	rescheduleMinDelay = 10 * time.Second
	rescheduleMaxDelay = 3 * time.Hour

	// Fixed session length used by the auto-complete sweep.
	sessionLength = time.Hour

	// Hard cap on bookable slots per template.
	maxSlotsPerTemplate = 15
)

// Result codes returned by every public operation.
const (
	CodeOK               = "ok"
	CodeNotFound         = "not_found"
	CodeUnauthorized     = "unauthorized"
	CodeInvalidInput     = "invalid_input"
	CodeConflict         = "conflict"
	CodeCapacityExceeded = "capacity_exceeded"
	CodeBusinessRule     = "business_rule"
)

// Result is the uniform outcome of a lifecycle operation. Store failures are
// returned as a separate error and never leak into the message.
type Result struct {
	Success bool        `json:"success"`
	Code    string      `json:"-"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(message string, data interface{}) *Result {
	return &Result{Success: true, Code: CodeOK, Message: message, Data: data}
}

func fail(code, message string) *Result {
	return &Result{Success: false, Code: code, Message: message}
}

// NotificationSink receives fire-and-forget notification records. The
// concrete sink persists them and pushes live to connected receivers.
type NotificationSink interface {
	Notify(senderID, receiverID uint, text, notifType string, entityID uint)
}

// MailSink enqueues outbound mail. Delivery happens outside this process;
// failures are logged by the sink and never abort a transition.
type MailSink interface {
	Send(template, recipient string, context map[string]interface{})
}

// effect is a queued notification, held until the state write commits.
type effect struct {
	senderID   uint
	receiverID uint
	text       string
	notifType  string
	entityID   uint
}

// Service is the session lifecycle manager.
type Service struct {
	db       *gorm.DB
	notifier NotificationSink
	mailer   MailSink
	now      func() time.Time
}

// New creates a lifecycle service. notifier and mailer may be nil (effects
// are then dropped), which keeps the core testable in isolation.
func New(db *gorm.DB, notifier NotificationSink, mailer MailSink) *Service {
	return &Service{
		db:       db,
		notifier: notifier,
		mailer:   mailer,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock. Used by tests and returns the service
// for chaining.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// dispatch flushes queued notification effects after a successful write.
func (s *Service) dispatch(effects []effect) {
	if s.notifier == nil {
		return
	}
	for _, e := range effects {
		s.notifier.Notify(e.senderID, e.receiverID, e.text, e.notifType, e.entityID)
	}
}

func (s *Service) sendMail(template, recipient string, context map[string]interface{}) {
	if s.mailer == nil {
		return
	}
	s.mailer.Send(template, recipient, context)
}

// adminIDs returns the ids of every admin account.
func (s *Service) adminIDs() ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.User{}).Where("role = ?", "admin").Pluck("id", &ids).Error
	return ids, err
}

// CreateSessionInput carries the tutor-supplied template fields.
type CreateSessionInput struct {
	Subject        string      `json:"subject"`
	SessionType    string      `json:"session_type"`
	Charge         int         `json:"charge"`
	Mode           string      `json:"mode"`
	JoinLink       string      `json:"join_link"`
	Slots          []time.Time `json:"slots"`
	SlotsAvailable int         `json:"slots_available"`
}

// CreateSession persists a new session template for an accepted tutor and
// notifies the tutor plus every admin.
func (s *Service) CreateSession(tutorID uint, in CreateSessionInput) (*Result, error) {
	var tutor models.User
	if err := s.db.First(&tutor, tutorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "User not found. Cannot create session."), nil
		}
		return nil, err
	}
	if tutor.Role != "tutor" {
		return fail(CodeUnauthorized, "Only users with TUTOR role can create sessions."), nil
	}
	if tutor.ApplicationStatus == "pending" {
		return fail(CodeUnauthorized, "Your application is still pending. You cannot create a session until your application is accepted."), nil
	}

	if len(in.Slots) == 0 {
		return fail(CodeInvalidInput, "Available slots time and date must be a non-empty list."), nil
	}
	now := s.now()
	for _, slot := range in.Slots {
		if slot.Before(now) {
			return fail(CodeInvalidInput, "You cannot set past dates or times for available slots."), nil
		}
	}

	remaining := in.SlotsAvailable
	if remaining <= 0 {
		remaining = len(in.Slots)
	}
	if remaining > maxSlotsPerTemplate {
		remaining = maxSlotsPerTemplate
	}

	template := models.SessionTemplate{
		TutorID:        tutorID,
		Subject:        in.Subject,
		SessionType:    in.SessionType,
		Charge:         in.Charge,
		Mode:           in.Mode,
		Slots:          models.TimeSlice(in.Slots),
		SlotsRemaining: remaining,
		JoinLink:       in.JoinLink,
	}
	if err := s.db.Create(&template).Error; err != nil {
		return nil, err
	}

	effects := []effect{{
		senderID:   tutorID,
		receiverID: tutorID,
		text:       "You have successfully created a new teaching session.",
		notifType:  "session",
		entityID:   template.ID,
	}}
	admins, err := s.adminIDs()
	if err == nil {
		for _, adminID := range admins {
			effects = append(effects, effect{
				senderID:   tutorID,
				receiverID: adminID,
				text:       fmt.Sprintf("A new session has been created by tutor %s. Subject: %s.", tutor.Username, template.Subject),
				notifType:  "session",
				entityID:   template.ID,
			})
		}
	}
	s.dispatch(effects)

	return ok("Session successfully created", template), nil
}

// BookSession reserves one slot of a template for a student. The remaining
// slot counter is decremented with a conditional update so it can never go
// negative under concurrent bookings.
func (s *Service) BookSession(studentID, sessionID uint, slot time.Time) (*Result, error) {
	if slot.IsZero() {
		return fail(CodeInvalidInput, "Slot date is required"), nil
	}

	var student models.User
	if err := s.db.First(&student, studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "Student not found"), nil
		}
		return nil, err
	}

	var template models.SessionTemplate
	if err := s.db.First(&template, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "Session not found"), nil
		}
		return nil, err
	}
	if template.IsCompleted {
		return fail(CodeBusinessRule, "This session has already been completed"), nil
	}

	if template.SlotsRemaining <= 0 {
		return fail(CodeCapacityExceeded, "No slots available for this session"), nil
	}

	// Slot membership is checked before any counter mutation.
	if !template.Slots.Contains(slot) {
		return fail(CodeBusinessRule, "Sorry, no available slots at this time"), nil
	}

	var existing int64
	err := s.db.Model(&models.Booking{}).
		Where("session_id = ? AND student_id = ? AND session_date = ?", sessionID, studentID, slot).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return fail(CodeConflict, "You have already booked this session at the selected time"), nil
	}

	booking := models.Booking{
		SessionID:   sessionID,
		StudentID:   studentID,
		StudentName: student.Username,
		Subject:     template.Subject,
		SessionDate: slot,
		Status:      "pending",
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SessionTemplate{}).
			Where("id = ? AND slots_remaining > 0", sessionID).
			UpdateColumn("slots_remaining", gorm.Expr("slots_remaining - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errSlotCapacity
		}
		return tx.Create(&booking).Error
	})
	if errors.Is(err, errSlotCapacity) {
		return fail(CodeCapacityExceeded, "No slots available for this session"), nil
	}
	if err != nil {
		return nil, err
	}

	effects := []effect{
		{
			senderID:   studentID,
			receiverID: studentID,
			text:       fmt.Sprintf("A new session has been booked for %s on %s", template.Subject, slot.Format(time.RFC3339)),
			notifType:  "session_booking",
			entityID:   booking.ID,
		},
		{
			senderID:   studentID,
			receiverID: template.TutorID,
			text:       fmt.Sprintf("A new session has been booked for %s by %s on %s", template.Subject, student.Username, slot.Format(time.RFC3339)),
			notifType:  "session_booking",
			entityID:   booking.ID,
		},
	}
	admins, aerr := s.adminIDs()
	if aerr == nil {
		for _, adminID := range admins {
			effects = append(effects, effect{
				senderID:   studentID,
				receiverID: adminID,
				text:       fmt.Sprintf("A new session has been booked for %s by %s on %s", template.Subject, student.Username, slot.Format(time.RFC3339)),
				notifType:  "session_booking",
				entityID:   booking.ID,
			})
		}
	}
	s.dispatch(effects)

	s.sendMail("booking-confirmation", student.Email, map[string]interface{}{
		"name":    student.Username,
		"subject": template.Subject,
		"date":    slot.Format(time.RFC3339),
		"charge":  template.Charge,
	})

	return ok("Session booked successfully", booking), nil
}

var errSlotCapacity = errors.New("sessions: slot capacity exhausted")

// JoinSession marks a paid booking as joined. Already-joined bookings are a
// no-op success; cancelled or unpaid bookings never transition.
func (s *Service) JoinSession(studentID, bookingID uint) (*Result, error) {
	var booking models.Booking
	err := s.db.Where("id = ? AND student_id = ?", bookingID, studentID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "Session not found"), nil
		}
		return nil, err
	}

	if booking.IsCancelled {
		return fail(CodeBusinessRule, "Cannot join a cancelled session"), nil
	}
	if booking.IsJoined {
		return ok("Session already joined", nil), nil
	}
	if booking.PaymentStatus != "paid" {
		return fail(CodeBusinessRule, "Payment pending. Please complete the payment to join the session."), nil
	}

	now := s.now()
	err = s.db.Model(&booking).Updates(map[string]interface{}{
		"is_joined": true,
		"joined_at": &now,
	}).Error
	if err != nil {
		return nil, err
	}

	var template models.SessionTemplate
	effects := []effect{{
		senderID:   studentID,
		receiverID: studentID,
		text:       fmt.Sprintf("You have joined the session: %s", booking.Subject),
		notifType:  "session_joined",
		entityID:   booking.ID,
	}}
	if terr := s.db.First(&template, booking.SessionID).Error; terr == nil {
		effects = append(effects, effect{
			senderID:   studentID,
			receiverID: template.TutorID,
			text:       fmt.Sprintf("Your session %s has been joined by %s", template.Subject, booking.StudentName),
			notifType:  "session_joined",
			entityID:   booking.ID,
		})
	}
	s.dispatch(effects)

	return ok("Session joined successfully", nil), nil
}

// CancelBooking flips the one-way cancelled flag. Joined bookings cannot be
// cancelled.
func (s *Service) CancelBooking(studentID, bookingID uint) (*Result, error) {
	var booking models.Booking
	err := s.db.Where("id = ? AND student_id = ?", bookingID, studentID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "Session not found"), nil
		}
		return nil, err
	}

	if booking.IsJoined {
		return fail(CodeBusinessRule, "You cannot cancel a session that has already been joined"), nil
	}

	err = s.db.Model(&booking).Updates(map[string]interface{}{
		"is_cancelled": true,
		"status":       "cancelled",
	}).Error
	if err != nil {
		return nil, err
	}

	return ok("Session cancelled successfully", nil), nil
}

// StartSession stamps started_at on every booking under the template and
// flips the template's is_started guard. The stamp anchors the reschedule
// window.
func (s *Service) StartSession(tutorID, sessionID uint) (*Result, error) {
	var template models.SessionTemplate
	err := s.db.Where("id = ? AND tutor_id = ?", sessionID, tutorID).First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "Session not found or you are not authorized to start it"), nil
		}
		return nil, err
	}

	if template.IsStarted {
		return fail(CodeBusinessRule, "Already started"), nil
	}

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Booking{}).
			Where("session_id = ?", sessionID).
			UpdateColumn("started_at", &now).Error; err != nil {
			return err
		}
		return tx.Model(&template).UpdateColumn("is_started", true).Error
	})
	if err != nil {
		return nil, err
	}

	return ok("Session started successfully", nil), nil
}
