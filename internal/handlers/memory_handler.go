package handlers

import (
	"context"

	"aitwin/internal/services"

	"github.com/gofiber/fiber/v2"
)

// MemoryStatsProvider reports what is stored for a user
type MemoryStatsProvider interface {
	Stats(ctx context.Context, userID string) services.MemoryStats
}

// MemoryHandler handles memory-related API endpoints
type MemoryHandler struct {
	memory MemoryStatsProvider
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(memory MemoryStatsProvider) *MemoryHandler {
	return &MemoryHandler{memory: memory}
}

// GetStats returns memory counts
// GET /api/memory/stats
func (h *MemoryHandler) GetStats(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	stats := h.memory.Stats(c.UserContext(), userID)
	return c.JSON(fiber.Map{
		"total_memories": stats.LongTermCount,
		"stats":          stats,
	})
}
