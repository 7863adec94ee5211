package sessions

import (
	"testing"
	"time"
	"tutorlink_go/models"
)

// rescheduleFixture builds a tutor, a student and one started booking whose
// started_at equals the fixture clock at creation time.
type rescheduleFixture struct {
	env     *testEnv
	tutor   *models.User
	student *models.User
	booking *models.Booking
}

func newRescheduleFixture(t *testing.T) *rescheduleFixture {
	t.Helper()
	env := newTestEnv(t)
	tutor := env.createUser(t, "tutor1", "tutor", "accepted")
	student := env.createUser(t, "student1", "student", "accepted")
	slot := env.clock.Add(24 * time.Hour)
	template := env.createTemplate(t, tutor.ID, []time.Time{slot}, 5)

	f := &rescheduleFixture{env: env, tutor: tutor, student: student}
	f.booking = f.newBooking(t, template.ID, slot)
	return f
}

func (f *rescheduleFixture) newBooking(t *testing.T, sessionID uint, slot time.Time) *models.Booking {
	t.Helper()
	started := f.env.clock
	booking := &models.Booking{
		SessionID:     sessionID,
		StudentID:     f.student.ID,
		StudentName:   f.student.Username,
		Subject:       "Algebra",
		SessionDate:   slot,
		Status:        "pending",
		PaymentStatus: "paid",
		StartedAt:     &started,
	}
	if err := f.env.db.Create(booking).Error; err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	return booking
}

func (f *rescheduleFixture) request(t *testing.T, bookingID uint) *models.RescheduleRequest {
	t.Helper()
	res, err := f.env.svc.RequestReschedule(f.student.ID, bookingID, "clash with another class")
	expectCode(t, res, err, CodeOK)
	request, okCast := res.Data.(models.RescheduleRequest)
	if !okCast {
		t.Fatalf("expected request in result data, got %T", res.Data)
	}
	return &request
}

func TestRescheduleWindowBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		offset   time.Duration
		wantCode string
	}{
		{"just before window opens", rescheduleMinDelay - time.Millisecond, CodeBusinessRule},
		{"exactly at window open", rescheduleMinDelay, CodeOK},
		{"exactly at window close", rescheduleMaxDelay, CodeOK},
		{"just after window closes", rescheduleMaxDelay + time.Millisecond, CodeBusinessRule},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRescheduleFixture(t)
			f.env.advance(tc.offset)
			res, err := f.env.svc.RequestReschedule(f.student.ID, f.booking.ID, "need a different time")
			expectCode(t, res, err, tc.wantCode)
		})
	}
}

func TestRequestReschedule(t *testing.T) {
	t.Run("unstarted booking refused", func(t *testing.T) {
		f := newRescheduleFixture(t)
		unstarted := f.newBooking(t, f.booking.SessionID, f.env.clock.Add(48*time.Hour))
		if err := f.env.db.Model(unstarted).UpdateColumn("started_at", nil).Error; err != nil {
			t.Fatalf("failed to clear started_at: %v", err)
		}
		res, err := f.env.svc.RequestReschedule(f.student.ID, unstarted.ID, "reason")
		expectCode(t, res, err, CodeBusinessRule)
	})

	t.Run("joined booking refused", func(t *testing.T) {
		f := newRescheduleFixture(t)
		if err := f.env.db.Model(f.booking).UpdateColumn("is_joined", true).Error; err != nil {
			t.Fatalf("failed to mark joined: %v", err)
		}
		f.env.advance(time.Minute)
		res, err := f.env.svc.RequestReschedule(f.student.ID, f.booking.ID, "reason")
		expectCode(t, res, err, CodeBusinessRule)
	})

	t.Run("cancelled booking refused", func(t *testing.T) {
		f := newRescheduleFixture(t)
		if err := f.env.db.Model(f.booking).Updates(map[string]interface{}{
			"is_cancelled": true, "status": "cancelled",
		}).Error; err != nil {
			t.Fatalf("failed to cancel: %v", err)
		}
		f.env.advance(time.Minute)
		res, err := f.env.svc.RequestReschedule(f.student.ID, f.booking.ID, "reason")
		expectCode(t, res, err, CodeBusinessRule)
	})

	t.Run("at most one request per booking", func(t *testing.T) {
		f := newRescheduleFixture(t)
		f.env.advance(time.Minute)
		f.request(t, f.booking.ID)

		res, err := f.env.svc.RequestReschedule(f.student.ID, f.booking.ID, "second try")
		expectCode(t, res, err, CodeConflict)

		var count int64
		if err := f.env.db.Model(&models.RescheduleRequest{}).
			Where("booking_id = ?", f.booking.ID).Count(&count).Error; err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected one request, found %d", count)
		}
	})

	t.Run("booking flagged and tutor notified", func(t *testing.T) {
		f := newRescheduleFixture(t)
		f.env.advance(time.Minute)
		f.request(t, f.booking.ID)

		got := f.env.reloadBooking(t, f.booking.ID)
		if !got.IsRescheduleRequested || got.Status != "reschedule_requested" {
			t.Fatalf("booking not flagged: flag=%v status=%s", got.IsRescheduleRequested, got.Status)
		}
		if f.env.notifier.countFor(f.tutor.ID) != 1 {
			t.Fatalf("expected one tutor notification, got %d", f.env.notifier.countFor(f.tutor.ID))
		}
	})
}

func TestResolveReschedule(t *testing.T) {
	newDate := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	t.Run("accept requires a date", func(t *testing.T) {
		f := newRescheduleFixture(t)
		f.env.advance(time.Minute)
		request := f.request(t, f.booking.ID)

		res, err := f.env.svc.ResolveReschedule(f.tutor.ID, request.ID, "accept", ResolveInput{})
		expectCode(t, res, err, CodeInvalidInput)
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		f := newRescheduleFixture(t)
		f.env.advance(time.Minute)
		request := f.request(t, f.booking.ID)

		res, err := f.env.svc.ResolveReschedule(f.tutor.ID, request.ID, "reject", ResolveInput{RejectReason: "   "})
		expectCode(t, res, err, CodeInvalidInput)
	})

	t.Run("unknown action is invalid", func(t *testing.T) {
		f := newRescheduleFixture(t)
		f.env.advance(time.Minute)
		request := f.request(t, f.booking.ID)

		res, err := f.env.svc.ResolveReschedule(f.tutor.ID, request.ID, "defer", ResolveInput{})
		expectCode(t, res, err, CodeInvalidInput)
	})

	t.Run("accept settles once and notifies the student", func(t *testing.T) {
		f := newRescheduleFixture(t)
		f.env.advance(time.Minute)
		request := f.request(t, f.booking.ID)

		res, err := f.env.svc.ResolveReschedule(f.tutor.ID, request.ID, "accept", ResolveInput{RescheduledDate: &newDate})
		expectCode(t, res, err, CodeOK)

		var got models.RescheduleRequest
		if err := f.env.db.First(&got, request.ID).Error; err != nil {
			t.Fatalf("failed to reload request: %v", err)
		}
		if !got.IsAccepted || got.IsRejected {
			t.Fatalf("expected accepted-only, got accepted=%v rejected=%v", got.IsAccepted, got.IsRejected)
		}
		if got.RescheduledDate == nil || !got.RescheduledDate.Equal(newDate) {
			t.Fatalf("rescheduled_date = %v, want %v", got.RescheduledDate, newDate)
		}
		if f.env.notifier.countFor(f.student.ID) != 1 {
			t.Fatalf("expected one student notification, got %d", f.env.notifier.countFor(f.student.ID))
		}

		// A second resolution of either kind conflicts.
		res, err = f.env.svc.ResolveReschedule(f.tutor.ID, request.ID, "reject", ResolveInput{RejectReason: "too late"})
		expectCode(t, res, err, CodeConflict)
		res, err = f.env.svc.ResolveReschedule(f.tutor.ID, request.ID, "accept", ResolveInput{RescheduledDate: &newDate})
		expectCode(t, res, err, CodeConflict)
	})

	t.Run("reject stores the trimmed reason", func(t *testing.T) {
		f := newRescheduleFixture(t)
		f.env.advance(time.Minute)
		request := f.request(t, f.booking.ID)

		res, err := f.env.svc.ResolveReschedule(f.tutor.ID, request.ID, "reject", ResolveInput{RejectReason: "  fully booked that week  "})
		expectCode(t, res, err, CodeOK)

		var got models.RescheduleRequest
		if err := f.env.db.First(&got, request.ID).Error; err != nil {
			t.Fatalf("failed to reload request: %v", err)
		}
		if !got.IsRejected || got.IsAccepted {
			t.Fatalf("expected rejected-only, got accepted=%v rejected=%v", got.IsAccepted, got.IsRejected)
		}
		if got.RejectReason != "fully booked that week" {
			t.Fatalf("reject reason = %q", got.RejectReason)
		}
		if got.RescheduledDate != nil {
			t.Fatalf("rescheduled_date should stay nil on reject, got %v", got.RescheduledDate)
		}
	})

	t.Run("foreign tutor cannot resolve", func(t *testing.T) {
		f := newRescheduleFixture(t)
		f.env.advance(time.Minute)
		request := f.request(t, f.booking.ID)

		outsider := f.env.createUser(t, "tutor2", "tutor", "accepted")
		res, err := f.env.svc.ResolveReschedule(outsider.ID, request.ID, "accept", ResolveInput{RescheduledDate: &newDate})
		expectCode(t, res, err, CodeNotFound)

		student := f.env.createUser(t, "student9", "student", "accepted")
		res, err = f.env.svc.ResolveReschedule(student.ID, request.ID, "accept", ResolveInput{RescheduledDate: &newDate})
		expectCode(t, res, err, CodeUnauthorized)
	})
}
