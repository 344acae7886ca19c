package handlers

import (
	"context"
	"log"

	"aitwin/internal/models"
	"aitwin/internal/services"

	"github.com/gofiber/fiber/v2"
)

// UpdateHandler processes a Telegram update
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *models.TelegramUpdate) (string, error)
}

// TelegramWebhookHandler handles POST /webhook/telegram
type TelegramWebhookHandler struct {
	relay UpdateHandler
}

// NewTelegramWebhookHandler creates a new webhook handler
func NewTelegramWebhookHandler(relay UpdateHandler) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{relay: relay}
}

// Webhook answers a friend's message as the twin.
// Telegram retries anything but 200, so failures are reported in the body.
func (h *TelegramWebhookHandler) Webhook(c *fiber.Ctx) error {
	var update models.TelegramUpdate
	if err := c.BodyParser(&update); err != nil {
		log.Printf("⚠️  [TELEGRAM-WEBHOOK] Failed to parse update: %v", err)
		return c.JSON(fiber.Map{"status": services.RelayStatusIgnored})
	}

	status, err := h.relay.HandleUpdate(c.UserContext(), &update)
	if err != nil {
		log.Printf("❌ [TELEGRAM-WEBHOOK] Update %d failed: %v", update.UpdateID, err)
		return c.JSON(fiber.Map{"status": "error"})
	}

	return c.JSON(fiber.Map{"status": status})
}
