package handlers

import (
	"log"
	"strings"

	"aitwin/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// TokenRequest is the body of POST /api/auth/token
type TokenRequest struct {
	UserID string `json:"user_id"`
}

// TokenResponse carries an issued access token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// DevTokenHandler issues tokens for arbitrary user ids. Development only.
type DevTokenHandler struct {
	jwtAuth *auth.LocalJWTAuth
}

// NewDevTokenHandler creates a new token handler
func NewDevTokenHandler(jwtAuth *auth.LocalJWTAuth) *DevTokenHandler {
	return &DevTokenHandler{jwtAuth: jwtAuth}
}

// IssueToken handles POST /api/auth/token
func (h *DevTokenHandler) IssueToken(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	token, _, err := h.jwtAuth.GenerateAccessToken(userID, "user")
	if err != nil {
		log.Printf("❌ [AUTH] Failed to generate token: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	log.Printf("🔑 [AUTH] Issued development token for %s", userID)
	return c.JSON(TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.jwtAuth.AccessTokenExpiry.Seconds()),
	})
}
