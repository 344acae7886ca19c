package handlers

import (
	"context"
	"errors"
	"log"

	"aitwin/internal/models"
	"aitwin/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ChatService answers one chat request for a user
type ChatService interface {
	Handle(ctx context.Context, userID string, req models.ChatRequest) (*models.ChatResponse, error)
}

// ChatHandler handles POST /api/chat
type ChatHandler struct {
	chat ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Chat answers the authenticated user's query
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.chat.Handle(c.UserContext(), userID, req)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuery) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Query cannot be empty",
			})
		}
		log.Printf("❌ [CHAT] Failed to handle query for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(resp)
}
