package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"tutorlink_go/services/sessions"
)

// statusForCode maps lifecycle result codes onto HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case sessions.CodeOK:
		return fiber.StatusOK
	case sessions.CodeNotFound:
		return fiber.StatusNotFound
	case sessions.CodeUnauthorized:
		return fiber.StatusForbidden
	case sessions.CodeInvalidInput:
		return fiber.StatusBadRequest
	case sessions.CodeConflict, sessions.CodeCapacityExceeded:
		return fiber.StatusConflict
	case sessions.CodeBusinessRule:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// writeResult renders a lifecycle result, or a 500 when the store failed.
func writeResult(c *fiber.Ctx, res *sessions.Result, err error) error {
	if err != nil {
		logrus.WithError(err).Error("Session operation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
		})
	}

	body := fiber.Map{
		"success": res.Success,
		"message": res.Message,
	}
	if res.Data != nil {
		body["data"] = res.Data
	}
	return c.Status(statusForCode(res.Code)).JSON(body)
}
