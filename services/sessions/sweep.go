package sessions

import (
	"tutorlink_go/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SweepStats summarizes one auto-complete pass.
type SweepStats struct {
	Scanned   int
	Completed int
	Failed    int
}

// AutoCompleteSweep completes every joined booking whose session date is at
// least one hour in the past. Each row runs in its own transaction so one
// bad row never blocks the batch, and the completed guard makes reruns
// no-ops.
func (s *Service) AutoCompleteSweep() SweepStats {
	now := s.now()
	cutoff := now.Add(-sessionLength)

	var bookings []models.Booking
	err := s.db.Where("is_joined = ? AND is_completed = ? AND session_date <= ?", true, false, cutoff).
		Find(&bookings).Error
	if err != nil {
		logrus.WithError(err).Error("Auto-complete sweep: failed to list due bookings")
		return SweepStats{}
	}

	stats := SweepStats{Scanned: len(bookings)}
	for _, booking := range bookings {
		if err := s.completeBooking(booking); err != nil {
			stats.Failed++
			logrus.WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"error":      err.Error(),
			}).Error("Auto-complete sweep: booking failed, continuing")
			continue
		}
		stats.Completed++
	}

	if stats.Scanned > 0 {
		logrus.WithFields(logrus.Fields{
			"scanned":   stats.Scanned,
			"completed": stats.Completed,
			"failed":    stats.Failed,
		}).Info("Auto-complete sweep finished")
	}
	return stats
}

func (s *Service) completeBooking(booking models.Booking) error {
	endedAt := booking.SessionDate.Add(sessionLength)
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND is_completed = ?", booking.ID, false).
			Updates(map[string]interface{}{
				"is_completed":   true,
				"status":         "completed",
				"session_period": "60",
				"ended_at":       &endedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&models.SessionTemplate{}).
			Where("id = ?", booking.SessionID).
			UpdateColumn("is_completed", true).Error
	})
}

// Sweeper runs the auto-complete sweep on a fixed schedule.
type Sweeper struct {
	service *Service
	cron    *cron.Cron
}

// NewSweeper wires the sweep to a cron scheduler at the given spec,
// e.g. "@every 10m".
func NewSweeper(service *Service, spec string) (*Sweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		service.AutoCompleteSweep()
	})
	if err != nil {
		return nil, err
	}
	return &Sweeper{service: service, cron: c}, nil
}

// Start begins the schedule in a background goroutine.
func (sw *Sweeper) Start() {
	sw.cron.Start()
	logrus.Info("Auto-complete sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	ctx := sw.cron.Stop()
	<-ctx.Done()
	logrus.Info("Auto-complete sweeper stopped")
}
