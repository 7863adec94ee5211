package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"

	"tutorlink_go/database"
	"tutorlink_go/middleware"
	"tutorlink_go/models"
	"tutorlink_go/services/websocket"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{
		hub: hub,
	}
}

// validateToken validates a JWT string and loads the active user behind it.
func (wsc *WebSocketController) validateToken(tokenString string) (*models.User, error) {
	claims, err := middleware.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := database.DB.Where("id = ? AND status = ?", claims.UserID, "active").First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// WebSocketHandler returns a Fiber WebSocket handler that validates JWT and connects to hub
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("WebSocket handler panic: %v", r)
			}
		}()

		// Get token from query parameter
		token := c.Query("token")
		if token == "" {
			log.Println("WebSocket connection rejected: missing token")
			c.WriteMessage(fiberws.CloseMessage, []byte("Missing token"))
			c.Close()
			return
		}

		user, err := wsc.validateToken(token)
		if err != nil {
			log.Printf("WebSocket connection rejected: invalid token: %v", err)
			c.WriteMessage(fiberws.CloseMessage, []byte("Invalid token"))
			c.Close()
			return
		}

		wsc.hub.ServeFiberWS(c, user.ID)
	})
}

// GetWebSocketStats returns WebSocket connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
