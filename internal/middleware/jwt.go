package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"go-tablelogger/internal/utils"
)

var (
	errMissingHeader = errors.New("missing authorization header")
	errNotBearer     = errors.New("invalid authorization format (Bearer token required)")
	errMissingToken  = errors.New("missing token")
)

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingHeader
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", errNotBearer
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

// Protected rejects requests without a valid JWT signed with jwtSecret.
// Rejections are recorded on the table logger so they can be queried
// alongside the rest of the log stream.
func Protected(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileLogger := GetRequestFileLogger(c)

		token, err := bearerToken(c.Get(AuthorizationHeader))
		if err != nil {
			fileLogger.Warn("Rejected request without bearer token", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}

		claims, err := utils.ValidateToken(token, jwtSecret)
		if err != nil {
			// never log the token itself
			fileLogger.Warn("Invalid JWT token", zap.Error(err))
			GetRequestTableLogger(c).Warn("Rejected invalid token",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals(UsernameKey, claims.Username)
		fileLogger.Debug("JWT validated", zap.String("username", claims.Username))
		return c.Next()
	}
}
