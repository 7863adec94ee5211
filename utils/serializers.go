package utils

import (
	"time"

	"tutorlink_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID       uint   `json:"id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type NotificationDTO struct {
	ID         uint       `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	SenderID   uint       `json:"sender_id"`
	ReceiverID uint       `json:"receiver_id"`
	Text       string     `json:"text"`
	Type       string     `json:"type"`
	EntityID   uint       `json:"entity_id,omitempty"`
	Read       bool       `json:"read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	Sender     UserShort  `json:"sender"`
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
// Assumptions: caller has preloaded Sender when possible.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	sender := UserShort{ID: n.SenderID}
	if n.Sender.ID != 0 {
		sender = UserShort{
			ID:       n.Sender.ID,
			Username: n.Sender.Username,
			Role:     n.Sender.Role,
			Avatar:   n.Sender.Avatar,
		}
	}

	return NotificationDTO{
		ID:         n.ID,
		CreatedAt:  n.CreatedAt,
		SenderID:   n.SenderID,
		ReceiverID: n.ReceiverID,
		Text:       n.Text,
		Type:       n.Type,
		EntityID:   n.EntityID,
		Read:       n.Read,
		ReadAt:     n.ReadAt,
		Sender:     sender,
	}
}

// ToNotificationDTOs maps a slice of notifications.
func ToNotificationDTOs(items []models.Notification) []NotificationDTO {
	out := make([]NotificationDTO, 0, len(items))
	for _, n := range items {
		out = append(out, ToNotificationDTO(n))
	}
	return out
}

// SessionSummary is the public listing shape for a tutor's offering.
type SessionSummary struct {
	ID             uint        `json:"id"`
	TutorID        uint        `json:"tutor_id"`
	Subject        string      `json:"subject"`
	SessionType    string      `json:"session_type"`
	Charge         int         `json:"charge"`
	Mode           string      `json:"mode"`
	Slots          []time.Time `json:"slots"`
	SlotsRemaining int         `json:"slots_remaining"`
	Tutor          UserShort   `json:"tutor"`
}

// ToSessionSummary maps a template into the public listing shape. The join
// link is withheld until a booking is paid.
func ToSessionSummary(t models.SessionTemplate) SessionSummary {
	tutor := UserShort{ID: t.TutorID}
	if t.Tutor.ID != 0 {
		tutor = UserShort{
			ID:       t.Tutor.ID,
			Username: t.Tutor.Username,
			Role:     t.Tutor.Role,
			Avatar:   t.Tutor.Avatar,
		}
	}
	return SessionSummary{
		ID:             t.ID,
		TutorID:        t.TutorID,
		Subject:        t.Subject,
		SessionType:    t.SessionType,
		Charge:         t.Charge,
		Mode:           t.Mode,
		Slots:          []time.Time(t.Slots),
		SlotsRemaining: t.SlotsRemaining,
		Tutor:          tutor,
	}
}

// ToSessionSummaries maps a slice of templates.
func ToSessionSummaries(items []models.SessionTemplate) []SessionSummary {
	out := make([]SessionSummary, 0, len(items))
	for _, t := range items {
		out = append(out, ToSessionSummary(t))
	}
	return out
}
