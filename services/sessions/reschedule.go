package sessions

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"tutorlink_go/models"

	"gorm.io/gorm"
)

// ResolveInput carries the tutor's decision payload. RescheduledDate is
// required for accept, RejectReason for reject.
type ResolveInput struct {
	RescheduledDate *time.Time `json:"rescheduled_date"`
	RejectReason    string     `json:"reject_reason"`
}

// RequestReschedule files a reschedule request for a booking the student
// owns. At most one request may ever exist per booking, and the request must
// land inside the window anchored at the booking's started_at stamp.
func (s *Service) RequestReschedule(studentID, bookingID uint, reason string) (*Result, error) {
	var booking models.Booking
	err := s.db.Where("id = ? AND student_id = ?", bookingID, studentID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "Booking not found"), nil
		}
		return nil, err
	}

	if booking.IsCancelled {
		return fail(CodeBusinessRule, "Cannot reschedule a cancelled session"), nil
	}
	if booking.IsJoined {
		return fail(CodeBusinessRule, "Cannot reschedule a session you have already joined"), nil
	}
	if booking.IsRescheduleRequested || booking.Status == "reschedule_requested" {
		return fail(CodeConflict, "A reschedule request already exists for this booking"), nil
	}

	var existing int64
	if err := s.db.Model(&models.RescheduleRequest{}).
		Where("booking_id = ?", bookingID).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return fail(CodeConflict, "A reschedule request already exists for this booking"), nil
	}

	if booking.StartedAt == nil {
		return fail(CodeBusinessRule, "The session has not been started yet"), nil
	}

	now := s.now()
	windowOpen := booking.StartedAt.Add(rescheduleMinDelay)
	windowClose := booking.StartedAt.Add(rescheduleMaxDelay)
	if now.Before(windowOpen) {
		return fail(CodeBusinessRule, "Reschedule requests open 10 seconds after the session starts"), nil
	}
	if now.After(windowClose) {
		return fail(CodeBusinessRule, "The reschedule window for this session has closed"), nil
	}

	request := models.RescheduleRequest{
		BookingID:   bookingID,
		StudentID:   studentID,
		StudentName: booking.StudentName,
		Subject:     booking.Subject,
		Reason:      reason,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&request).Error; err != nil {
			return err
		}
		return tx.Model(&booking).Updates(map[string]interface{}{
			"is_reschedule_requested": true,
			"status":                  "reschedule_requested",
		}).Error
	})
	if err != nil {
		return nil, err
	}

	var template models.SessionTemplate
	if terr := s.db.First(&template, booking.SessionID).Error; terr == nil {
		s.dispatch([]effect{{
			senderID:   studentID,
			receiverID: template.TutorID,
			text:       fmt.Sprintf("%s has requested to reschedule the session: %s", booking.StudentName, booking.Subject),
			notifType:  "reschedule_request",
			entityID:   request.ID,
		}})
	}

	return ok("Reschedule request submitted successfully", request), nil
}

// ResolveReschedule settles a request exactly once. The settlement flags are
// flipped with a conditional update so two concurrent resolutions cannot
// both win.
func (s *Service) ResolveReschedule(tutorID, requestID uint, action string, in ResolveInput) (*Result, error) {
	var tutor models.User
	if err := s.db.First(&tutor, tutorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "User not found"), nil
		}
		return nil, err
	}
	if tutor.Role != "tutor" {
		return fail(CodeUnauthorized, "Only tutors can resolve reschedule requests"), nil
	}

	var request models.RescheduleRequest
	if err := s.db.First(&request, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "Reschedule request not found"), nil
		}
		return nil, err
	}

	var booking models.Booking
	if err := s.db.First(&booking, request.BookingID).Error; err != nil {
		return fail(CodeNotFound, "Booking for this request no longer exists"), nil
	}
	var template models.SessionTemplate
	if err := s.db.Where("id = ? AND tutor_id = ?", booking.SessionID, tutorID).
		First(&template).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(CodeNotFound, "Reschedule request not found"), nil
		}
		return nil, err
	}

	if request.IsAccepted {
		return fail(CodeConflict, "This request has already been accepted"), nil
	}
	if request.IsRejected {
		return fail(CodeConflict, "This request has already been rejected"), nil
	}

	var updates map[string]interface{}
	var studentText string
	switch action {
	case "accept":
		if in.RescheduledDate == nil || in.RescheduledDate.IsZero() {
			return fail(CodeInvalidInput, "Rescheduled date is required to accept the request"), nil
		}
		updates = map[string]interface{}{
			"is_accepted":      true,
			"rescheduled_date": in.RescheduledDate,
			"reject_reason":    "",
		}
		studentText = fmt.Sprintf("Your reschedule request for %s has been accepted. New date: %s",
			request.Subject, in.RescheduledDate.Format(time.RFC3339))
	case "reject":
		reason := strings.TrimSpace(in.RejectReason)
		if reason == "" {
			return fail(CodeInvalidInput, "Reject reason is required to reject the request"), nil
		}
		updates = map[string]interface{}{
			"is_rejected":      true,
			"reject_reason":    reason,
			"rescheduled_date": nil,
		}
		studentText = fmt.Sprintf("Your reschedule request for %s has been rejected. Reason: %s",
			request.Subject, reason)
	default:
		return fail(CodeInvalidInput, "Invalid action"), nil
	}

	res := s.db.Model(&models.RescheduleRequest{}).
		Where("id = ? AND is_accepted = ? AND is_rejected = ?", requestID, false, false).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return fail(CodeConflict, "This request has already been resolved"), nil
	}

	s.dispatch([]effect{{
		senderID:   tutorID,
		receiverID: request.StudentID,
		text:       studentText,
		notifType:  "reschedule_request",
		entityID:   request.ID,
	}})

	if err := s.db.First(&request, requestID).Error; err == nil {
		return ok("Reschedule request resolved successfully", request), nil
	}
	return ok("Reschedule request resolved successfully", nil), nil
}
