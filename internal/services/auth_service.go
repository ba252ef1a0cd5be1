package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-tablelogger/internal/models"
	"go-tablelogger/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLoginDisabled      = errors.New("admin login is not configured")
)

// AuthService defines the interface for authentication related operations
type AuthService interface {
	Login(ctx context.Context, fileLogger, tableLogger *zap.Logger, username, password string) (string, error) // Returns JWT token
}

type authServiceImpl struct {
	admin      models.AdminUser
	jwtSecret  string
	jwtExpires time.Duration
}

// NewAuthService creates a new AuthService for the configured admin account.
func NewAuthService(admin models.AdminUser, jwtSecret string, jwtExpires time.Duration) AuthService {
	if jwtExpires <= 0 {
		jwtExpires = 24 * time.Hour
	}
	return &authServiceImpl{
		admin:      admin,
		jwtSecret:  jwtSecret,
		jwtExpires: jwtExpires,
	}
}

// Login checks the admin credentials and issues a JWT.
func (s *authServiceImpl) Login(_ context.Context, fileLogger, tableLogger *zap.Logger, username, password string) (string, error) {
	fileLogger.Info("Attempting to login user", zap.String("username", username))

	if s.admin.PasswordHash == "" {
		fileLogger.Warn("Login attempt while admin login is disabled", zap.String("username", username))
		return "", ErrLoginDisabled
	}
	// The hash is compared for unknown usernames too.
	passwordOK := utils.CheckPasswordHash(password, s.admin.PasswordHash)
	if username != s.admin.Username || !passwordOK {
		fileLogger.Warn("Login attempt failed: invalid credentials", zap.String("username", username))
		tableLogger.Warn("Admin login rejected", zap.String("username", username))
		return "", ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(username, s.jwtSecret, s.jwtExpires)
	if err != nil {
		fileLogger.Error("Failed to generate JWT token during login", zap.String("username", username), zap.Error(err))
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	fileLogger.Info("User logged in successfully", zap.String("username", username))
	tableLogger.Info("Admin logged in", zap.String("username", username))
	return token, nil
}
