package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tutorlink_go/database"
	"tutorlink_go/models"
	"tutorlink_go/services/websocket"
)

type adminTestNotice struct {
	SenderID   uint
	ReceiverID uint
	Text       string
	Type       string
	EntityID   uint
}

type adminTestNotifier struct {
	sent []adminTestNotice
}

func (f *adminTestNotifier) Notify(senderID, receiverID uint, text, notifType string, entityID uint) {
	f.sent = append(f.sent, adminTestNotice{senderID, receiverID, text, notifType, entityID})
}

func (f *adminTestNotifier) lastFor(receiverID uint) *adminTestNotice {
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].ReceiverID == receiverID {
			return &f.sent[i]
		}
	}
	return nil
}

// newAdminTestApp builds a Fiber app serving the moderation routes against a
// throwaway sqlite database, with the given admin injected as the caller.
func newAdminTestApp(t *testing.T) (*fiber.App, *adminTestNotifier, *models.User) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.SessionTemplate{},
		&models.Booking{},
		&models.RescheduleRequest{},
		&models.Notification{},
		&models.PaymentTransaction{},
		&models.ActivityLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	prevDB := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prevDB })

	admin := &models.User{Username: "admin", Password: "x", Role: "admin", Status: "active"}
	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	notifier := &adminTestNotifier{}
	hub := websocket.NewHub()
	go hub.Run()
	ac := NewAdminController(notifier, nil, hub)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", admin)
		return c.Next()
	})
	app.Get("/admins/tutor-applications", ac.GetTutorApplications)
	app.Post("/admins/tutor-applications/:id", ac.HandleTutorApplication)
	app.Get("/admins/users", ac.GetUsers)
	app.Get("/admins/users/restricted", ac.GetRestrictedUsers)
	app.Put("/admins/users/:id/status", ac.UpdateUserStatus)
	app.Get("/admins/sessions/stats", ac.GetSessionStats)
	app.Delete("/admins/sessions/:id", ac.RemoveSession)
	app.Post("/admins/announcements", ac.BroadcastAnnouncement)

	return app, notifier, admin
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func doRequest(t *testing.T, app *fiber.App, method, target string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, target, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func TestHandleTutorApplicationAccept(t *testing.T) {
	app, notifier, admin := newAdminTestApp(t)

	tutor := models.User{Username: "newtutor", Password: "x", Role: "tutor",
		Status: "active", ApplicationStatus: "pending", Email: "tutor@example.com"}
	if err := database.DB.Create(&tutor).Error; err != nil {
		t.Fatalf("failed to seed tutor: %v", err)
	}

	status, body := doRequest(t, app, "POST",
		"/admins/tutor-applications/"+itoa(tutor.ID), fiber.Map{"action": "accept"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}

	var fresh models.User
	if err := database.DB.First(&fresh, tutor.ID).Error; err != nil {
		t.Fatalf("failed to reload tutor: %v", err)
	}
	if fresh.ApplicationStatus != "accepted" {
		t.Fatalf("expected application accepted, got %q", fresh.ApplicationStatus)
	}

	notice := notifier.lastFor(tutor.ID)
	if notice == nil {
		t.Fatal("tutor was not notified of the decision")
	}
	if notice.SenderID != admin.ID || notice.Type != "tutor_application" {
		t.Fatalf("unexpected notification %+v", notice)
	}
	if notice.Text != "Your tutor application has been accepted." {
		t.Fatalf("unexpected notification text %q", notice.Text)
	}
}

func TestHandleTutorApplicationReject(t *testing.T) {
	app, notifier, _ := newAdminTestApp(t)

	tutor := models.User{Username: "newtutor", Password: "x", Role: "tutor",
		Status: "active", ApplicationStatus: "pending", Email: "newtutor@example.com"}
	database.DB.Create(&tutor)

	status, _ := doRequest(t, app, "POST",
		"/admins/tutor-applications/"+itoa(tutor.ID), fiber.Map{"action": "reject"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	var fresh models.User
	database.DB.First(&fresh, tutor.ID)
	if fresh.ApplicationStatus != "rejected" {
		t.Fatalf("expected application rejected, got %q", fresh.ApplicationStatus)
	}
	if notice := notifier.lastFor(tutor.ID); notice == nil ||
		notice.Text != "Your tutor application has been rejected." {
		t.Fatalf("unexpected rejection notice %+v", notice)
	}
}

func TestHandleTutorApplicationGuards(t *testing.T) {
	app, _, _ := newAdminTestApp(t)

	student := models.User{Username: "stud", Password: "x", Role: "student",
		Status: "active", Email: "stud@example.com"}
	database.DB.Create(&student)

	t.Run("non-tutor refused", func(t *testing.T) {
		status, body := doRequest(t, app, "POST",
			"/admins/tutor-applications/"+itoa(student.ID), fiber.Map{"action": "accept"})
		if status != fiber.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d (%v)", status, body)
		}
	})

	t.Run("unknown action refused", func(t *testing.T) {
		status, _ := doRequest(t, app, "POST",
			"/admins/tutor-applications/"+itoa(student.ID), fiber.Map{"action": "maybe"})
		if status != fiber.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		status, _ := doRequest(t, app, "POST",
			"/admins/tutor-applications/99999", fiber.Map{"action": "accept"})
		if status != fiber.StatusNotFound {
			t.Fatalf("expected 404, got %d", status)
		}
	})
}

func TestHandleTutorApplicationSettlesOnce(t *testing.T) {
	app, _, _ := newAdminTestApp(t)

	tutor := models.User{Username: "newtutor", Password: "x", Role: "tutor",
		Status: "active", ApplicationStatus: "pending", Email: "newtutor@example.com"}
	database.DB.Create(&tutor)

	status, _ := doRequest(t, app, "POST",
		"/admins/tutor-applications/"+itoa(tutor.ID), fiber.Map{"action": "accept"})
	if status != fiber.StatusOK {
		t.Fatalf("first decision: expected 200, got %d", status)
	}

	status, _ = doRequest(t, app, "POST",
		"/admins/tutor-applications/"+itoa(tutor.ID), fiber.Map{"action": "reject"})
	if status != fiber.StatusConflict {
		t.Fatalf("second decision: expected 409, got %d", status)
	}

	var fresh models.User
	database.DB.First(&fresh, tutor.ID)
	if fresh.ApplicationStatus != "accepted" {
		t.Fatalf("second decision overwrote the first: %q", fresh.ApplicationStatus)
	}
}

func TestGetUsersFilterValidation(t *testing.T) {
	app, _, _ := newAdminTestApp(t)

	database.DB.Create(&models.User{Username: "t1", Password: "x", Role: "tutor",
		Status: "active", Email: "t1@example.com"})
	database.DB.Create(&models.User{Username: "s1", Password: "x", Role: "student",
		Status: "suspended", Email: "s1@example.com"})

	status, body := doRequest(t, app, "GET", "/admins/users?role=tutor", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if users, ok := body["users"].([]interface{}); !ok || len(users) != 1 {
		t.Fatalf("expected one tutor, got %v", body["users"])
	}

	if status, _ = doRequest(t, app, "GET", "/admins/users?role=superuser", nil); status != fiber.StatusBadRequest {
		t.Fatalf("invalid role filter: expected 400, got %d", status)
	}
	if status, _ = doRequest(t, app, "GET", "/admins/users?status=banned", nil); status != fiber.StatusBadRequest {
		t.Fatalf("invalid status filter: expected 400, got %d", status)
	}

	status, body = doRequest(t, app, "GET", "/admins/users/restricted", nil)
	if status != fiber.StatusOK {
		t.Fatalf("restricted listing: expected 200, got %d", status)
	}
	if users, ok := body["users"].([]interface{}); !ok || len(users) != 1 {
		t.Fatalf("expected one restricted user, got %v", body["users"])
	}
}

func TestUpdateUserStatus(t *testing.T) {
	app, notifier, admin := newAdminTestApp(t)

	user := models.User{Username: "s1", Password: "x", Role: "student",
		Status: "active", Email: "s1@example.com"}
	database.DB.Create(&user)

	status, _ := doRequest(t, app, "PUT",
		"/admins/users/"+itoa(user.ID)+"/status", fiber.Map{"status": "suspended"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	var fresh models.User
	database.DB.First(&fresh, user.ID)
	if fresh.Status != "suspended" {
		t.Fatalf("expected suspended, got %q", fresh.Status)
	}
	if notice := notifier.lastFor(user.ID); notice == nil ||
		notice.Text != "Your account has been restricted." {
		t.Fatalf("unexpected restriction notice %+v", notice)
	}

	t.Run("invalid status refused", func(t *testing.T) {
		status, _ := doRequest(t, app, "PUT",
			"/admins/users/"+itoa(user.ID)+"/status", fiber.Map{"status": "banned"})
		if status != fiber.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})

	t.Run("own account refused", func(t *testing.T) {
		status, _ := doRequest(t, app, "PUT",
			"/admins/users/"+itoa(admin.ID)+"/status", fiber.Map{"status": "suspended"})
		if status != fiber.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", status)
		}
	})
}

func TestRemoveSessionCancelsBookings(t *testing.T) {
	app, notifier, _ := newAdminTestApp(t)

	tutor := models.User{Username: "t1", Password: "x", Role: "tutor",
		Status: "active", ApplicationStatus: "accepted", Email: "t1@example.com"}
	student := models.User{Username: "s1", Password: "x", Role: "student",
		Status: "active", Email: "s1@example.com"}
	database.DB.Create(&tutor)
	database.DB.Create(&student)

	template := models.SessionTemplate{TutorID: tutor.ID, Subject: "Algebra",
		Charge: 30, SlotsRemaining: 5}
	database.DB.Create(&template)
	booking := models.Booking{SessionID: template.ID, StudentID: student.ID,
		Subject: "Algebra", Status: "pending"}
	database.DB.Create(&booking)

	status, body := doRequest(t, app, "DELETE", "/admins/sessions/"+itoa(template.ID), nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}

	var fresh models.Booking
	database.DB.First(&fresh, booking.ID)
	if !fresh.IsCancelled || fresh.Status != "cancelled" {
		t.Fatalf("booking was not cancelled: %+v", fresh)
	}

	var count int64
	database.DB.Model(&models.SessionTemplate{}).Where("id = ?", template.ID).Count(&count)
	if count != 0 {
		t.Fatal("template still visible after removal")
	}

	if notifier.lastFor(student.ID) == nil {
		t.Fatal("student was not notified of the removal")
	}
	if notifier.lastFor(tutor.ID) == nil {
		t.Fatal("tutor was not notified of the removal")
	}
}

func TestBroadcastAnnouncementValidation(t *testing.T) {
	app, _, _ := newAdminTestApp(t)

	status, _ := doRequest(t, app, "POST", "/admins/announcements", fiber.Map{"message": "  "})
	if status != fiber.StatusBadRequest {
		t.Fatalf("blank announcement: expected 400, got %d", status)
	}

	status, _ = doRequest(t, app, "POST", "/admins/announcements",
		fiber.Map{"message": "Scheduled maintenance tonight"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}
