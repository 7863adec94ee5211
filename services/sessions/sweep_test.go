package sessions

import (
	"testing"
	"time"
	"tutorlink_go/models"
)

func seedSweepBooking(t *testing.T, env *testEnv, sessionID uint, sessionDate time.Time, joined bool) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		SessionID:     sessionID,
		StudentID:     1,
		SessionDate:   sessionDate,
		Status:        "pending",
		PaymentStatus: "paid",
		IsJoined:      joined,
	}
	if err := env.db.Create(booking).Error; err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}
	return booking
}

func TestAutoCompleteSweep(t *testing.T) {
	env := newTestEnv(t)
	tutor := env.createUser(t, "tutor1", "tutor", "accepted")
	template := env.createTemplate(t, tutor.ID, []time.Time{env.clock.Add(time.Hour)}, 5)

	due := seedSweepBooking(t, env, template.ID, env.clock.Add(-61*time.Minute), true)
	fresh := seedSweepBooking(t, env, template.ID, env.clock.Add(-30*time.Minute), true)
	notJoined := seedSweepBooking(t, env, template.ID, env.clock.Add(-2*time.Hour), false)

	stats := env.svc.AutoCompleteSweep()
	if stats.Scanned != 1 || stats.Completed != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	got := env.reloadBooking(t, due.ID)
	if !got.IsCompleted || got.Status != "completed" || got.SessionPeriod != "60" {
		t.Fatalf("due booking not completed: %+v", got)
	}
	wantEnd := due.SessionDate.Add(time.Hour)
	if got.EndedAt == nil || !got.EndedAt.Equal(wantEnd) {
		t.Fatalf("ended_at = %v, want %v", got.EndedAt, wantEnd)
	}

	if env.reloadBooking(t, fresh.ID).IsCompleted {
		t.Fatal("booking only 30 minutes past was completed")
	}
	if env.reloadBooking(t, notJoined.ID).IsCompleted {
		t.Fatal("never-joined booking was completed")
	}

	var reloaded models.SessionTemplate
	if err := env.db.First(&reloaded, template.ID).Error; err != nil {
		t.Fatalf("failed to reload template: %v", err)
	}
	if !reloaded.IsCompleted {
		t.Fatal("parent template not marked completed")
	}
}

func TestSweepRerunIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	tutor := env.createUser(t, "tutor1", "tutor", "accepted")
	template := env.createTemplate(t, tutor.ID, []time.Time{env.clock.Add(time.Hour)}, 5)
	booking := seedSweepBooking(t, env, template.ID, env.clock.Add(-2*time.Hour), true)

	first := env.svc.AutoCompleteSweep()
	if first.Completed != 1 {
		t.Fatalf("first pass: %+v", first)
	}
	firstEnd := env.reloadBooking(t, booking.ID).EndedAt

	env.advance(10 * time.Minute)
	second := env.svc.AutoCompleteSweep()
	if second.Scanned != 0 || second.Completed != 0 {
		t.Fatalf("second pass should find nothing: %+v", second)
	}

	secondEnd := env.reloadBooking(t, booking.ID).EndedAt
	if !firstEnd.Equal(*secondEnd) {
		t.Fatalf("ended_at changed on rerun: %v -> %v", firstEnd, secondEnd)
	}
}

func TestSweepCutoffBoundary(t *testing.T) {
	env := newTestEnv(t)
	tutor := env.createUser(t, "tutor1", "tutor", "accepted")
	template := env.createTemplate(t, tutor.ID, []time.Time{env.clock.Add(time.Hour)}, 5)

	// Exactly one hour old qualifies; one second newer does not.
	exact := seedSweepBooking(t, env, template.ID, env.clock.Add(-time.Hour), true)
	newer := seedSweepBooking(t, env, template.ID, env.clock.Add(-time.Hour+time.Second), true)

	stats := env.svc.AutoCompleteSweep()
	if stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if !env.reloadBooking(t, exact.ID).IsCompleted {
		t.Fatal("booking exactly one hour old was not completed")
	}
	if env.reloadBooking(t, newer.ID).IsCompleted {
		t.Fatal("booking under one hour old was completed")
	}
}

func TestNewSweeperRejectsBadSpec(t *testing.T) {
	env := newTestEnv(t)
	if _, err := NewSweeper(env.svc, "not a schedule"); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
	sweeper, err := NewSweeper(env.svc, "@every 10m")
	if err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	sweeper.Start()
	sweeper.Stop()
}
