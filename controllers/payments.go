package controllers

import (
	"crypto/subtle"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"tutorlink_go/config"
	"tutorlink_go/database"
	"tutorlink_go/models"
	"tutorlink_go/services/sessions"
)

// PaymentController receives settlement callbacks from the external payment
// provider. This backend never calls the provider itself.
type PaymentController struct {
	Notifier sessions.NotificationSink
}

func NewPaymentController(notifier sessions.NotificationSink) *PaymentController {
	return &PaymentController{Notifier: notifier}
}

type webhookPayload struct {
	BookingID uint   `json:"booking_id"`
	Amount    int    `json:"amount"`
	Currency  string `json:"currency"`
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// HandleWebhook records a payment outcome and marks the booking paid on
// success. The provider retries on non-2xx, so replays of the same
// reference return 200 without writing twice.
func (pc *PaymentController) HandleWebhook(c *fiber.Ctx) error {
	secret := config.AppConfig.PaymentWebhookSecret
	given := c.Get("X-Webhook-Secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(given)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook secret",
		})
	}

	var payload webhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}
	if payload.BookingID == 0 || payload.Reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "booking_id and reference are required",
		})
	}

	var existing models.PaymentTransaction
	if err := database.DB.Where("reference = ?", payload.Reference).First(&existing).Error; err == nil {
		return c.JSON(fiber.Map{"message": "Already processed"})
	}

	var booking models.Booking
	if err := database.DB.First(&booking, payload.BookingID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Booking not found",
		})
	}

	currency := payload.Currency
	if currency == "" {
		currency = "usd"
	}
	tx := models.PaymentTransaction{
		BookingID: booking.ID,
		StudentID: booking.StudentID,
		Amount:    payload.Amount,
		Currency:  currency,
		Provider:  payload.Provider,
		Reference: payload.Reference,
		Status:    payload.Status,
	}
	if err := database.DB.Create(&tx).Error; err != nil {
		logrus.WithError(err).Error("Failed to record payment transaction")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record transaction",
		})
	}

	if payload.Status == "succeeded" {
		if err := database.DB.Model(&booking).
			UpdateColumn("payment_status", "paid").Error; err != nil {
			logrus.WithError(err).Error("Failed to mark booking paid")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update booking",
			})
		}
		if pc.Notifier != nil {
			pc.Notifier.Notify(0, booking.StudentID,
				fmt.Sprintf("Payment received for your session: %s. You can now join.", booking.Subject),
				"payment_transaction", tx.ID)
		}
	}

	return c.JSON(fiber.Map{"message": "Webhook processed"})
}
