package controllers

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"tutorlink_go/config"
	"tutorlink_go/database"
	"tutorlink_go/middleware"
	"tutorlink_go/models"
	"tutorlink_go/services/sessions"
	"tutorlink_go/storage"
	"tutorlink_go/utils"
)

// TutorController owns the tutor-facing surface: template CRUD, session
// start, reschedule resolution and materials.
type TutorController struct {
	Sessions *sessions.Service
}

func NewTutorController(svc *sessions.Service) *TutorController {
	return &TutorController{Sessions: svc}
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid id parameter")
	}
	return uint(id), nil
}

// GetTutors lists accepted tutors for the public directory.
func (tc *TutorController) GetTutors(c *fiber.Ctx) error {
	var tutors []models.User
	query := database.DB.Where("role = ? AND application_status = ? AND status = ?",
		"tutor", "accepted", "active")

	if subject := c.Query("subject"); subject != "" {
		query = query.Joins("JOIN session_templates ON session_templates.tutor_id = users.id").
			Where("session_templates.subject LIKE ? AND session_templates.deleted_at IS NULL", "%"+subject+"%").
			Distinct("users.*")
	}

	if err := query.Find(&tutors).Error; err != nil {
		logrus.WithError(err).Error("Failed to list tutors")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tutors",
		})
	}

	return c.JSON(fiber.Map{"tutors": tutors})
}

// CreateSession creates a new session template for the authenticated tutor.
func (tc *TutorController) CreateSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var input sessions.CreateSessionInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if input.Mode != "" && !utils.IsValidMode(input.Mode) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Mode must be online or in_person",
		})
	}

	res, opErr := tc.Sessions.CreateSession(user.ID, input)
	return writeResult(c, res, opErr)
}

// GetMySessions lists the tutor's active templates.
func (tc *TutorController) GetMySessions(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var templates []models.SessionTemplate
	err = database.DB.Where("tutor_id = ? AND is_completed = ?", user.ID, false).
		Order("created_at DESC").Find(&templates).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list sessions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sessions",
		})
	}

	return c.JSON(fiber.Map{"sessions": templates})
}

// UpdateSession updates an owned, not-yet-started template.
func (tc *TutorController) UpdateSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var template models.SessionTemplate
	err = database.DB.Where("id = ? AND tutor_id = ?", sessionID, user.ID).First(&template).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	if template.IsStarted {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Cannot update a session that has already started",
		})
	}

	var body struct {
		Subject     *string      `json:"subject"`
		SessionType *string      `json:"session_type"`
		Charge      *int         `json:"charge"`
		Mode        *string      `json:"mode"`
		JoinLink    *string      `json:"join_link"`
		Slots       *[]time.Time `json:"slots"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if body.Subject != nil {
		updates["subject"] = strings.TrimSpace(*body.Subject)
	}
	if body.SessionType != nil {
		updates["session_type"] = *body.SessionType
	}
	if body.Charge != nil {
		updates["charge"] = *body.Charge
	}
	if body.Mode != nil {
		if !utils.IsValidMode(*body.Mode) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Mode must be online or in_person",
			})
		}
		updates["mode"] = *body.Mode
	}
	if body.JoinLink != nil {
		updates["join_link"] = *body.JoinLink
	}
	if body.Slots != nil {
		updates["slots"] = models.TimeSlice(*body.Slots)
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No fields to update",
		})
	}

	if err := database.DB.Model(&template).Updates(updates).Error; err != nil {
		logrus.WithError(err).Error("Failed to update session")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update session",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Session updated successfully",
		"session": template,
	})
}

// DeleteSession soft-deletes an owned template with no active bookings.
func (tc *TutorController) DeleteSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var template models.SessionTemplate
	err = database.DB.Where("id = ? AND tutor_id = ?", sessionID, user.ID).First(&template).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	var active int64
	database.DB.Model(&models.Booking{}).
		Where("session_id = ? AND is_cancelled = ? AND is_completed = ?", sessionID, false, false).
		Count(&active)
	if active > 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Cannot delete a session with active bookings",
		})
	}

	if err := database.DB.Delete(&template).Error; err != nil {
		logrus.WithError(err).Error("Failed to delete session")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete session",
		})
	}

	return c.JSON(fiber.Map{"message": "Session deleted successfully"})
}

// StartSession stamps the start time on every booking under the template.
func (tc *TutorController) StartSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	res, opErr := tc.Sessions.StartSession(user.ID, sessionID)
	return writeResult(c, res, opErr)
}

// GetBookedSessions lists active bookings across the tutor's templates.
func (tc *TutorController) GetBookedSessions(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var bookings []models.Booking
	err = database.DB.
		Joins("JOIN session_templates ON session_templates.id = bookings.session_id").
		Where("session_templates.tutor_id = ? AND bookings.is_cancelled = ? AND bookings.is_completed = ?",
			user.ID, false, false).
		Preload("Student").
		Order("bookings.session_date ASC").
		Find(&bookings).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list booked sessions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch booked sessions",
		})
	}

	return c.JSON(fiber.Map{"bookings": bookings})
}

// GetEndedSessions lists completed bookings across the tutor's templates.
func (tc *TutorController) GetEndedSessions(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var bookings []models.Booking
	err = database.DB.
		Joins("JOIN session_templates ON session_templates.id = bookings.session_id").
		Where("session_templates.tutor_id = ? AND bookings.is_completed = ?", user.ID, true).
		Order("bookings.ended_at DESC").
		Find(&bookings).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list ended sessions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch ended sessions",
		})
	}

	return c.JSON(fiber.Map{"bookings": bookings})
}

// GetRescheduleRequests lists open requests against the tutor's templates.
func (tc *TutorController) GetRescheduleRequests(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var requests []models.RescheduleRequest
	err = database.DB.
		Joins("JOIN bookings ON bookings.id = reschedule_requests.booking_id").
		Joins("JOIN session_templates ON session_templates.id = bookings.session_id").
		Where("session_templates.tutor_id = ?", user.ID).
		Preload("Booking").
		Order("reschedule_requests.created_at DESC").
		Find(&requests).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to list reschedule requests")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch reschedule requests",
		})
	}

	return c.JSON(fiber.Map{"requests": requests})
}

// HandleRescheduleRequest accepts or rejects a reschedule request.
func (tc *TutorController) HandleRescheduleRequest(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	requestID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Action          string     `json:"action"`
		RescheduledDate *time.Time `json:"rescheduled_date"`
		RejectReason    string     `json:"reject_reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	res, opErr := tc.Sessions.ResolveReschedule(user.ID, requestID, body.Action, sessions.ResolveInput{
		RescheduledDate: body.RescheduledDate,
		RejectReason:    body.RejectReason,
	})
	return writeResult(c, res, opErr)
}

// UploadMaterials uploads files to S3 and appends their URLs to the template.
func (tc *TutorController) UploadMaterials(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var template models.SessionTemplate
	err = database.DB.Where("id = ? AND tutor_id = ?", sessionID, user.ID).First(&template).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	form, err := c.MultipartForm()
	if err != nil || len(form.File["materials"]) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No files uploaded",
		})
	}

	allowed := strings.Split(strings.ToLower(config.AppConfig.AllowedExtensions), ",")
	storageService, err := storage.NewStorageService()
	if err != nil {
		logrus.WithError(err).Error("Failed to initialize storage")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Storage unavailable",
		})
	}

	var existing []string
	if !template.Materials.IsNull() {
		_ = json.Unmarshal(template.Materials, &existing)
	}

	var uploaded []string
	for _, file := range form.File["materials"] {
		if !utils.IsValidFileExtension(file.Filename, allowed) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "File type not allowed: " + file.Filename,
			})
		}
		url, err := storageService.UploadFile(file, "materials", user.ID)
		if err != nil {
			logrus.WithError(err).Error("Failed to upload material")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to upload " + file.Filename,
			})
		}
		uploaded = append(uploaded, url)
	}

	merged := append(existing, uploaded...)
	materialsJSON, err := json.Marshal(merged)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store materials",
		})
	}
	if err := database.DB.Model(&template).
		UpdateColumn("materials", models.JSON(materialsJSON)).Error; err != nil {
		logrus.WithError(err).Error("Failed to save materials")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store materials",
		})
	}

	return c.JSON(fiber.Map{
		"message":   "Materials uploaded successfully",
		"materials": merged,
	})
}

// GetSessionMaterials returns the stored material URLs for a template.
func (tc *TutorController) GetSessionMaterials(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var template models.SessionTemplate
	err = database.DB.Where("id = ? AND tutor_id = ?", sessionID, user.ID).First(&template).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	var materials []string
	if !template.Materials.IsNull() {
		_ = json.Unmarshal(template.Materials, &materials)
	}
	return c.JSON(fiber.Map{"materials": materials})
}

// DeleteMaterial removes one material URL from the template and S3.
func (tc *TutorController) DeleteMaterial(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&body); err != nil || body.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Material url is required",
		})
	}

	var template models.SessionTemplate
	err = database.DB.Where("id = ? AND tutor_id = ?", sessionID, user.ID).First(&template).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	var materials []string
	if !template.Materials.IsNull() {
		_ = json.Unmarshal(template.Materials, &materials)
	}
	kept := materials[:0]
	found := false
	for _, url := range materials {
		if url == body.URL {
			found = true
			continue
		}
		kept = append(kept, url)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Material not found",
		})
	}

	if storageService, serr := storage.NewStorageService(); serr == nil {
		if derr := storageService.DeleteFile(body.URL); derr != nil {
			logrus.WithError(derr).Warn("Failed to delete material object, removing reference anyway")
		}
	}

	materialsJSON, err := json.Marshal(kept)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store materials",
		})
	}
	if err := database.DB.Model(&template).
		UpdateColumn("materials", models.JSON(materialsJSON)).Error; err != nil {
		logrus.WithError(err).Error("Failed to save materials")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store materials",
		})
	}

	return c.JSON(fiber.Map{
		"message":   "Material deleted successfully",
		"materials": kept,
	})
}
