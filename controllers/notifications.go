package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"tutorlink_go/database"
	"tutorlink_go/middleware"
	"tutorlink_go/models"
	"tutorlink_go/utils"
)

type NotificationController struct{}

func NewNotificationController() *NotificationController {
	return &NotificationController{}
}

// GetNotifications lists the caller's notifications, newest first. Supports
// ?page, ?limit, ?unread_only and ?type filters.
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := database.DB.Model(&models.Notification{}).Where("receiver_id = ?", user.ID)
	if c.Query("unread_only") == "true" {
		query = query.Where("read = ?", false)
	}
	if typ := c.Query("type"); typ != "" {
		query = query.Where("type = ?", typ)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logrus.WithError(err).Error("Failed to count notifications")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch notifications",
		})
	}

	var notifs []models.Notification
	err = query.Preload("Sender").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&notifs).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list notifications")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch notifications",
		})
	}

	return c.JSON(fiber.Map{
		"notifications": utils.ToNotificationDTOs(notifs),
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetUnreadCount returns the caller's unread notification count.
func (nc *NotificationController) GetUnreadCount(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var count int64
	err = database.DB.Model(&models.Notification{}).
		Where("receiver_id = ? AND read = ?", user.ID, false).
		Count(&count).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to count unread notifications")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch unread count",
		})
	}

	return c.JSON(fiber.Map{"unread_count": count})
}

// MarkAsRead marks one of the caller's notifications as read.
func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	notifID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	now := time.Now()
	res := database.DB.Model(&models.Notification{}).
		Where("id = ? AND receiver_id = ?", notifID, user.ID).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": &now,
		})
	if res.Error != nil {
		logrus.WithError(res.Error).Error("Failed to mark notification read")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update notification",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Notification not found",
		})
	}

	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

// MarkAllAsRead marks every unread notification of the caller as read.
func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	now := time.Now()
	err = database.DB.Model(&models.Notification{}).
		Where("receiver_id = ? AND read = ?", user.ID, false).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": &now,
		}).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to mark notifications read")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update notifications",
		})
	}

	return c.JSON(fiber.Map{"message": "All notifications marked as read"})
}

// DeleteNotification removes one of the caller's notifications.
func (nc *NotificationController) DeleteNotification(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	notifID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	res := database.DB.Where("id = ? AND receiver_id = ?", notifID, user.ID).
		Delete(&models.Notification{})
	if res.Error != nil {
		logrus.WithError(res.Error).Error("Failed to delete notification")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete notification",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Notification not found",
		})
	}

	return c.JSON(fiber.Map{"message": "Notification deleted"})
}
