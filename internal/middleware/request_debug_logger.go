package middleware

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxBodyLogSize = 1024

var (
	passwordField = regexp.MustCompile(`("password"\s*:\s*")[^"]*(")`)
	hiddenHeaders = map[string]bool{AuthorizationHeader: true, fiber.HeaderCookie: true}
)

// RequestDebugLogger writes request and response details to the file logger
// when it is at debug level. Query filters are logged since they decide what
// a search returns.
func RequestDebugLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logger := GetRequestFileLogger(c)
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			return c.Next()
		}

		start := time.Now()
		headers := make(map[string]string)
		c.Request().Header.VisitAll(func(key, value []byte) {
			if hiddenHeaders[string(key)] {
				headers[string(key)] = "*** HIDDEN ***"
				return
			}
			headers[string(key)] = string(value)
		})

		logger.Debug("Incoming request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("query", string(c.Request().URI().QueryString())),
			zap.String("ip", c.IP()),
			zap.Any("headers", headers),
			zap.String("body", describeBody(c)),
		)

		err := c.Next()

		logger.Debug("Request handled",
			zap.Int("status", c.Response().StatusCode()),
			zap.String("etag", string(c.Response().Header.Peek(fiber.HeaderETag))),
			zap.Duration("latency", time.Since(start)),
		)
		return err
	}
}

func describeBody(c *fiber.Ctx) string {
	body := c.BodyRaw()
	if len(body) == 0 {
		return "(empty)"
	}
	contentType := string(c.Request().Header.ContentType())
	if !strings.Contains(contentType, "json") && !strings.Contains(contentType, "text") && !strings.Contains(contentType, "form") {
		return "(binary body, " + strconv.Itoa(len(body)) + " bytes)"
	}
	text := string(body)
	if len(body) > maxBodyLogSize {
		text = string(body[:maxBodyLogSize]) + "... (truncated)"
	}
	return sanitizeSensitiveData(text)
}

// sanitizeSensitiveData masks password values in JSON bodies.
func sanitizeSensitiveData(body string) string {
	return passwordField.ReplaceAllString(body, `$1***$2`)
}
