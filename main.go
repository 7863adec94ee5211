package main

import (
	"log"
	"os"
	"tutorlink_go/config"
	"tutorlink_go/database"
	"tutorlink_go/database/seeders"
	"tutorlink_go/middleware"
	"tutorlink_go/routes"
	"tutorlink_go/services/mailer"
	"tutorlink_go/services/notifications"
	"tutorlink_go/services/sessions"
	"tutorlink_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func init() {
	setupLogging()

	// Load configuration
	config.LoadConfig()

	// Connect to database and Redis
	database.Connect()

	// Bootstrap default accounts
	seeders.SeedAll()
}

func main() {
	// Create WebSocket hub first
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(config.AppConfig.MaxFileSize),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.LoggerMiddleware())

	// Wire notifications to the WebSocket hub globally so any new Service
	// uses it (incl. the sweep scheduler)
	notifications.SetDefaultWSHub(wsHub)
	notifService := notifications.NewService()
	notifService.SetWebSocketHub(wsHub)
	if config.AppConfig.UseRedisNotifications {
		stopNotif := make(chan struct{})
		notifService.StartWorker(stopNotif)
	}

	mailService := mailer.NewService()

	// Session lifecycle core
	sessionService := sessions.New(database.GetDB(), notifService, mailService)

	// Auto-complete sweep, every 10 minutes
	sweeper, err := sessions.NewSweeper(sessionService, "@every 10m")
	if err != nil {
		log.Fatal("Failed to schedule auto-complete sweep:", err)
	}
	sweeper.Start()

	// API routes
	routes.SetupRoutes(app, wsHub, sessionService, notifService, mailService)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	addr := ":" + config.AppConfig.Port
	log.Printf("Server starting on port %s (env: %s)", config.AppConfig.Port, config.AppConfig.AppEnv)

	if err := app.Listen(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// setupLogging configures the logging system
func setupLogging() {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel("info")
	if err == nil {
		logrus.SetLevel(level)
	}

	// Log to stdout in development, to file otherwise
	if os.Getenv("APP_ENV") == "development" {
		logrus.SetOutput(os.Stdout)
	} else {
		file, err := os.OpenFile("logs/app.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logrus.SetOutput(file)
		}
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
