package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"aitwin/internal/database"
	"aitwin/internal/models"
	"aitwin/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// UserStore is the account storage the auth handler needs
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthHandler registers accounts and exchanges passwords for tokens
type AuthHandler struct {
	users   UserStore
	jwtAuth *auth.LocalJWTAuth
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users UserStore, jwtAuth *auth.LocalJWTAuth) *AuthHandler {
	return &AuthHandler{users: users, jwtAuth: jwtAuth}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "username and email are required",
		})
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	hash, err := h.jwtAuth.HashPassword(req.Password)
	if err != nil {
		log.Printf("❌ [AUTH] Failed to hash password: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create user",
		})
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		IsActive:     true,
		PasswordHash: hash,
	}
	if err := h.users.CreateUser(c.UserContext(), user); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Username already taken",
			})
		}
		log.Printf("❌ [AUTH] Failed to create user %s: %v", username, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create user",
		})
	}

	log.Printf("👤 [AUTH] Registered user %s", username)
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.users.GetUserByUsername(c.UserContext(), strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, database.ErrUserNotFound) {
		log.Printf("❌ [AUTH] Failed to load user: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
		})
	}

	valid := false
	if user != nil && user.IsActive {
		valid, err = h.jwtAuth.VerifyPassword(user.PasswordHash, req.Password)
		if err != nil {
			log.Printf("⚠️  [AUTH] Stored hash for %s is unreadable: %v", user.Username, err)
		}
	}
	if !valid {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Incorrect username or password",
		})
	}

	token, _, err := h.jwtAuth.GenerateAccessToken(user.Username, "user")
	if err != nil {
		log.Printf("❌ [AUTH] Failed to generate token: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	log.Printf("🔑 [AUTH] User %s logged in", user.Username)
	return c.JSON(TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.jwtAuth.AccessTokenExpiry.Seconds()),
	})
}
