package handlers

import (
	"errors"

	mw "go-tablelogger/internal/middleware" // Import middleware package for GetRequest*Logger funcs
	"go-tablelogger/internal/pkg/validation"
	"go-tablelogger/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler handles authentication related HTTP requests
type AuthHandler struct {
	authService services.AuthService
	// No logger stored here, obtained per request from context
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest defines the expected JSON body for login requests
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// Login handles POST /auth/login requests
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	fileLogger := mw.GetRequestFileLogger(c)
	tableLogger := mw.GetRequestTableLogger(c)

	if !validation.ParseAndValidate(c, &req) {
		fileLogger.Warn("Login request validation failed or bad request body")
		return nil // Response already sent by ParseAndValidate
	}

	token, err := h.authService.Login(c.Context(), fileLogger, tableLogger, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, services.ErrLoginDisabled):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			fileLogger.Error("Internal server error during login", zap.String("username", req.Username), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Login failed due to an internal error",
			})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
	})
}

// SetupAuthRoutes registers authentication routes with the Fiber app
func (h *AuthHandler) SetupAuthRoutes(router fiber.Router) {
	authGroup := router.Group("/auth")
	authGroup.Post("/login", h.Login)
}
