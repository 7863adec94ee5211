package routes

import (
	"tutorlink_go/controllers"
	"tutorlink_go/middleware"
	"tutorlink_go/services/sessions"
	"tutorlink_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, wsHub *websocket.Hub, sessionService *sessions.Service, notifier sessions.NotificationSink, mailer sessions.MailSink) {
	tutorController := controllers.NewTutorController(sessionService)
	studentController := controllers.NewStudentController(sessionService)
	notificationController := controllers.NewNotificationController()
	paymentController := controllers.NewPaymentController(notifier)
	adminController := controllers.NewAdminController(notifier, mailer, wsHub)
	wsController := controllers.NewWebSocketController(wsHub)
	healthController := controllers.NewHealthController()

	// API group
	api := app.Group("/api")

	api.Get("/health", healthController.Health)

	// Public routes (no authentication required)
	public := api.Group("/public")
	public.Get("/tutors", tutorController.GetTutors)
	public.Get("/sessions", studentController.BrowseSessions)

	// Payment provider callback (shared-secret header, no JWT)
	api.Post("/payments/webhook", paymentController.HandleWebhook)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware(), middleware.LogActivityMiddleware())

	// Tutor surface
	tutors := protected.Group("/tutors", middleware.RequireTutor())
	tutors.Post("/sessions", tutorController.CreateSession)
	tutors.Get("/sessions", tutorController.GetMySessions)
	tutors.Put("/sessions/:id", tutorController.UpdateSession)
	tutors.Delete("/sessions/:id", tutorController.DeleteSession)
	tutors.Post("/sessions/:id/start", tutorController.StartSession)
	tutors.Get("/sessions/booked", tutorController.GetBookedSessions)
	tutors.Get("/sessions/ended", tutorController.GetEndedSessions)
	tutors.Post("/sessions/:id/materials", tutorController.UploadMaterials)
	tutors.Get("/sessions/:id/materials", tutorController.GetSessionMaterials)
	tutors.Delete("/sessions/:id/materials", tutorController.DeleteMaterial)
	tutors.Get("/reschedule-requests", tutorController.GetRescheduleRequests)
	tutors.Post("/reschedule-requests/:id", tutorController.HandleRescheduleRequest)

	// Student surface
	students := protected.Group("/students", middleware.RequireStudent())
	students.Post("/sessions/:id/book", studentController.BookSession)
	students.Post("/bookings/:id/join", studentController.JoinSession)
	students.Post("/bookings/:id/cancel", studentController.CancelBooking)
	students.Post("/bookings/:id/reschedule", studentController.RequestReschedule)
	students.Get("/bookings", studentController.GetBookedSessions)
	students.Get("/bookings/completed", studentController.GetCompletedSessions)

	// Notifications (any authenticated user)
	notifications := protected.Group("/notifications")
	notifications.Get("/", notificationController.GetNotifications)
	notifications.Get("/unread-count", notificationController.GetUnreadCount)
	notifications.Put("/:id/read", notificationController.MarkAsRead)
	notifications.Put("/read-all", notificationController.MarkAllAsRead)
	notifications.Delete("/:id", notificationController.DeleteNotification)

	// Admin moderation surface
	admins := protected.Group("/admins", middleware.RequireAdmin())
	admins.Get("/tutor-applications", adminController.GetTutorApplications)
	admins.Post("/tutor-applications/:id", adminController.HandleTutorApplication)
	admins.Get("/users", adminController.GetUsers)
	admins.Get("/users/restricted", adminController.GetRestrictedUsers)
	admins.Put("/users/:id/status", adminController.UpdateUserStatus)
	admins.Get("/sessions/stats", adminController.GetSessionStats)
	admins.Delete("/sessions/:id", adminController.RemoveSession)
	admins.Post("/announcements", adminController.BroadcastAnnouncement)

	// Admin diagnostics
	protected.Get("/ws/stats", middleware.RequireAdmin(), wsController.GetWebSocketStats)

	// WebSocket endpoint, token passed as query parameter
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", wsController.WebSocketHandler())
}
