package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"tutorlink_go/database"
	"tutorlink_go/middleware"
	"tutorlink_go/models"
	"tutorlink_go/services/sessions"
	"tutorlink_go/utils"
)

// StudentController owns the student-facing surface: browsing, booking,
// joining, cancelling and reschedule requests.
type StudentController struct {
	Sessions *sessions.Service
}

func NewStudentController(svc *sessions.Service) *StudentController {
	return &StudentController{Sessions: svc}
}

// BrowseSessions lists open templates for the public catalogue.
func (sc *StudentController) BrowseSessions(c *fiber.Ctx) error {
	query := database.DB.Model(&models.SessionTemplate{}).
		Where("is_completed = ? AND slots_remaining > 0", false).
		Preload("Tutor")

	if subject := c.Query("subject"); subject != "" {
		query = query.Where("subject LIKE ?", "%"+subject+"%")
	}
	if mode := c.Query("mode"); mode != "" {
		query = query.Where("mode = ?", mode)
	}

	var templates []models.SessionTemplate
	if err := query.Order("created_at DESC").Find(&templates).Error; err != nil {
		logrus.WithError(err).Error("Failed to browse sessions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sessions",
		})
	}

	return c.JSON(fiber.Map{"sessions": utils.ToSessionSummaries(templates)})
}

// BookSession reserves a slot on a template for the authenticated student.
func (sc *StudentController) BookSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Slot time.Time `json:"slot"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	res, opErr := sc.Sessions.BookSession(user.ID, sessionID, body.Slot)
	return writeResult(c, res, opErr)
}

// JoinSession marks a paid booking as joined and returns the join link.
func (sc *StudentController) JoinSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	bookingID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	res, opErr := sc.Sessions.JoinSession(user.ID, bookingID)
	if opErr != nil || !res.Success {
		return writeResult(c, res, opErr)
	}

	// Surface the join link alongside the result.
	var booking models.Booking
	if err := database.DB.Preload("Session").First(&booking, bookingID).Error; err == nil {
		res.Data = fiber.Map{"join_link": booking.Session.JoinLink}
	}
	return writeResult(c, res, nil)
}

// CancelBooking cancels a not-yet-joined booking.
func (sc *StudentController) CancelBooking(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	bookingID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	res, opErr := sc.Sessions.CancelBooking(user.ID, bookingID)
	return writeResult(c, res, opErr)
}

// RequestReschedule files a reschedule request for a booking.
func (sc *StudentController) RequestReschedule(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	bookingID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	res, opErr := sc.Sessions.RequestReschedule(user.ID, bookingID, utils.SanitizeString(body.Reason))
	return writeResult(c, res, opErr)
}

// GetBookedSessions lists the student's active bookings with any reschedule
// requests attached.
func (sc *StudentController) GetBookedSessions(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var bookings []models.Booking
	err = database.DB.
		Where("student_id = ? AND is_cancelled = ? AND is_completed = ?", user.ID, false, false).
		Preload("Session").
		Preload("Session.Tutor").
		Preload("RescheduleRequests").
		Order("session_date ASC").
		Find(&bookings).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list student bookings")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch bookings",
		})
	}

	return c.JSON(fiber.Map{"bookings": bookings})
}

// GetCompletedSessions lists the student's completed bookings.
func (sc *StudentController) GetCompletedSessions(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var bookings []models.Booking
	err = database.DB.
		Where("student_id = ? AND is_completed = ?", user.ID, true).
		Preload("Session").
		Order("ended_at DESC").
		Find(&bookings).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list completed bookings")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch completed sessions",
		})
	}

	return c.JSON(fiber.Map{"bookings": bookings})
}
