package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"tutorlink_go/database"
)

type HealthController struct{}

func NewHealthController() *HealthController {
	return &HealthController{}
}

// Health reports process, database and Redis status.
func (hc *HealthController) Health(c *fiber.Ctx) error {
	status := fiber.StatusOK
	dbStatus := "up"
	redisStatus := "up"

	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "down"
			status = fiber.StatusServiceUnavailable
		}
	} else {
		dbStatus = "down"
		status = fiber.StatusServiceUnavailable
	}

	if rc := database.GetRedisClient(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if rc.Ping(ctx).Err() != nil {
			redisStatus = "down"
		}
	} else {
		redisStatus = "disabled"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":   "ok",
		"database": dbStatus,
		"redis":    redisStatus,
		"time":     time.Now().UTC(),
	})
}
