package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tutorlink_go/database"
	"tutorlink_go/middleware"
	"tutorlink_go/models"
	"tutorlink_go/services/sessions"
	"tutorlink_go/services/websocket"
	"tutorlink_go/utils"
)

// AdminController hosts the moderation surface: tutor application review,
// account restriction and session removal.
type AdminController struct {
	notifier sessions.NotificationSink
	mailer   sessions.MailSink
	hub      *websocket.Hub
}

func NewAdminController(notifier sessions.NotificationSink, mailer sessions.MailSink, hub *websocket.Hub) *AdminController {
	return &AdminController{notifier: notifier, mailer: mailer, hub: hub}
}

// GetTutorApplications lists tutors whose application is still pending.
func (ac *AdminController) GetTutorApplications(c *fiber.Ctx) error {
	var tutors []models.User
	err := database.DB.
		Where("role = ? AND application_status = ?", "tutor", "pending").
		Order("created_at ASC").
		Find(&tutors).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list tutor applications")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tutor applications",
		})
	}

	return c.JSON(fiber.Map{"applications": tutors})
}

// HandleTutorApplication accepts or rejects a pending tutor application.
// Body: {"action": "accept"} or {"action": "reject"}. The decision settles
// the application exactly once; a second decision gets a conflict.
func (ac *AdminController) HandleTutorApplication(c *fiber.Ctx) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	tutorID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Action != "accept" && req.Action != "reject" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Action must be accept or reject",
		})
	}

	var tutor models.User
	if err := database.DB.First(&tutor, tutorID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	if tutor.Role != "tutor" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "User is not a tutor",
		})
	}

	decision := "accepted"
	if req.Action == "reject" {
		decision = "rejected"
	}

	// Settle the application exactly once
	res := database.DB.Model(&models.User{}).
		Where("id = ? AND application_status = ?", tutor.ID, "pending").
		Update("application_status", decision)
	if res.Error != nil {
		logrus.WithError(res.Error).Error("Failed to update tutor application")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update tutor application",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Application has already been reviewed",
		})
	}

	if ac.notifier != nil {
		ac.notifier.Notify(admin.ID, tutor.ID,
			"Your tutor application has been "+decision+".",
			"tutor_application", tutor.ID)
	}
	if ac.mailer != nil && tutor.Email != "" {
		ac.mailer.Send("application-status", tutor.Email, map[string]interface{}{
			"username": tutor.Username,
			"status":   decision,
		})
	}

	return c.JSON(fiber.Map{
		"message":            "Tutor application " + decision,
		"application_status": decision,
	})
}

// GetUsers lists accounts with optional ?role and ?status filters.
func (ac *AdminController) GetUsers(c *fiber.Ctx) error {
	query := database.DB.Model(&models.User{})

	if role := c.Query("role"); role != "" {
		if !utils.IsValidRole(role) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid role filter",
			})
		}
		query = query.Where("role = ?", role)
	}
	if status := c.Query("status"); status != "" {
		if !utils.IsValidStatus(status) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid status filter",
			})
		}
		query = query.Where("status = ?", status)
	}

	var users []models.User
	if err := query.Order("created_at DESC").Find(&users).Error; err != nil {
		logrus.WithError(err).Error("Failed to list users")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch users",
		})
	}

	return c.JSON(fiber.Map{"users": users})
}

// GetRestrictedUsers lists accounts that are currently not active.
func (ac *AdminController) GetRestrictedUsers(c *fiber.Ctx) error {
	var users []models.User
	err := database.DB.
		Where("status <> ?", "active").
		Order("updated_at DESC").
		Find(&users).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list restricted users")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch restricted users",
		})
	}

	return c.JSON(fiber.Map{"users": users})
}

// UpdateUserStatus restricts or reinstates an account. Body: {"status": ...}.
func (ac *AdminController) UpdateUserStatus(c *fiber.Ctx) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	userID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if !utils.IsValidStatus(req.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid status",
		})
	}
	if userID == admin.ID {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Cannot change your own account status",
		})
	}

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	if err := database.DB.Model(&user).Update("status", req.Status).Error; err != nil {
		logrus.WithError(err).Error("Failed to update user status")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update user status",
		})
	}

	if ac.notifier != nil {
		text := "Your account has been reinstated."
		if req.Status != "active" {
			text = "Your account has been restricted."
		}
		ac.notifier.Notify(admin.ID, user.ID, text, "account", user.ID)
	}

	return c.JSON(fiber.Map{
		"message": "User status updated",
		"status":  req.Status,
	})
}

// GetSessionStats returns platform-wide session counters.
func (ac *AdminController) GetSessionStats(c *fiber.Ctx) error {
	var totalSessions, completedSessions, totalBookings, cancelledBookings int64

	db := database.DB
	if err := db.Model(&models.SessionTemplate{}).Count(&totalSessions).Error; err != nil {
		logrus.WithError(err).Error("Failed to compute session stats")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch session stats",
		})
	}
	db.Model(&models.SessionTemplate{}).Where("is_completed = ?", true).Count(&completedSessions)
	db.Model(&models.Booking{}).Count(&totalBookings)
	db.Model(&models.Booking{}).Where("is_cancelled = ?", true).Count(&cancelledBookings)

	return c.JSON(fiber.Map{
		"total_sessions":     totalSessions,
		"completed_sessions": completedSessions,
		"total_bookings":     totalBookings,
		"cancelled_bookings": cancelledBookings,
	})
}

// RemoveSession takes a session offering down. Active bookings are cancelled
// and their students notified, then the template is removed.
func (ac *AdminController) RemoveSession(c *fiber.Ctx) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var template models.SessionTemplate
	if err := database.DB.First(&template, sessionID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	var bookings []models.Booking
	database.DB.
		Where("session_id = ? AND is_cancelled = ? AND is_completed = ?", template.ID, false, false).
		Find(&bookings)

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Booking{}).
			Where("session_id = ? AND is_cancelled = ? AND is_completed = ?", template.ID, false, false).
			Updates(map[string]interface{}{
				"is_cancelled": true,
				"status":       "cancelled",
			}).Error; err != nil {
			return err
		}
		return tx.Delete(&template).Error
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to remove session")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to remove session",
		})
	}

	if ac.notifier != nil {
		for _, b := range bookings {
			ac.notifier.Notify(admin.ID, b.StudentID,
				"Your booked session '"+template.Subject+"' has been removed by an administrator.",
				"session", template.ID)
		}
		ac.notifier.Notify(admin.ID, template.TutorID,
			"Your session '"+template.Subject+"' has been removed by an administrator.",
			"session", template.ID)
	}

	return c.JSON(fiber.Map{
		"message":            "Session removed",
		"cancelled_bookings": len(bookings),
	})
}

// BroadcastAnnouncement pushes a message to every connected client.
// Body: {"message": ...}.
func (ac *AdminController) BroadcastAnnouncement(c *fiber.Ctx) error {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	ac.hub.Broadcast(websocket.Message{
		Type: "announcement",
		Data: req.Message,
	})

	return c.JSON(fiber.Map{"message": "Announcement broadcast"})
}
