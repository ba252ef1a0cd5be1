package handlers

import (
	"errors"
	"strings"
	"time"

	mw "go-tablelogger/internal/middleware"
	"go-tablelogger/internal/pkg/validation"
	"go-tablelogger/internal/services"
	"go-tablelogger/internal/tablestore"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultListCount = 100

// LogHandler serves the log administration endpoints.
type LogHandler struct {
	logService services.LogService
}

// NewLogHandler creates a new LogHandler
func NewLogHandler(logService services.LogService) *LogHandler {
	return &LogHandler{logService: logService}
}

// ListRequest holds the query of GET /logs.
type ListRequest struct {
	Partition string `query:"partition" validate:"omitempty,max=256,tablekey"`
	Count     int    `query:"count" validate:"omitempty,min=1,max=10000"`
}

// SearchRequest holds the query of GET /logs/search. Select is a comma separated field list.
type SearchRequest struct {
	Partition string `query:"partition" validate:"omitempty,max=256,tablekey"`
	Filter    string `query:"filter" validate:"omitempty,max=2048"`
	Select    string `query:"select" validate:"omitempty,max=512,fieldlist"`
	MinLevel  int    `query:"minLevel" validate:"omitempty,min=1,max=5"`
	Since     string `query:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Until     string `query:"until" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	RequestID string `query:"requestId" validate:"omitempty,max=128,printascii"`
}

// List handles GET /logs
func (h *LogHandler) List(c *fiber.Ctx) error {
	var req ListRequest
	if !validation.ParseQueryAndValidate(c, &req) {
		return nil
	}
	if req.Count == 0 {
		req.Count = defaultListCount
	}

	entries, err := h.logService.List(c.Context(), req.Partition, req.Count)
	if err != nil {
		return h.storeError(c, "list", err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"count": len(entries), "items": entries})
}

// Search handles GET /logs/search
func (h *LogHandler) Search(c *fiber.Ctx) error {
	var req SearchRequest
	if !validation.ParseQueryAndValidate(c, &req) {
		return nil
	}

	search := services.LogSearch{
		Partition: req.Partition,
		Filter:    req.Filter,
		MinLevel:  req.MinLevel,
		RequestID: req.RequestID,
	}
	for _, f := range strings.Split(req.Select, ",") {
		if f = strings.TrimSpace(f); f != "" {
			search.Fields = append(search.Fields, f)
		}
	}
	// Formats were checked by the validator.
	if req.Since != "" {
		search.Since, _ = time.Parse(time.RFC3339, req.Since)
	}
	if req.Until != "" {
		search.Until, _ = time.Parse(time.RFC3339, req.Until)
	}

	entries, err := h.logService.Search(c.Context(), search)
	if err != nil {
		return h.storeError(c, "search", err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"count": len(entries), "items": entries})
}

// Get handles GET /logs/:partition/:row
func (h *LogHandler) Get(c *fiber.Ctx) error {
	entry, err := h.logService.Get(c.Context(), c.Params("partition"), c.Params("row"))
	if err != nil {
		return h.storeError(c, "get", err)
	}
	c.Set(fiber.HeaderETag, entry.ETag)
	return c.Status(fiber.StatusOK).JSON(entry)
}

// Delete handles DELETE /logs/:partition/:row. If-Match is optional.
func (h *LogHandler) Delete(c *fiber.Ctx) error {
	partition, row := c.Params("partition"), c.Params("row")
	err := h.logService.Delete(c.Context(), mw.GetRequestTableLogger(c), partition, row, c.Get(fiber.HeaderIfMatch))
	if err != nil {
		return h.storeError(c, "delete", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Health handles GET /health
func (h *LogHandler) Health(c *fiber.Ctx) error {
	status := fiber.Map{"status": "healthy", "timestamp": time.Now().UTC()}
	if err := h.logService.Health(c.Context()); err != nil {
		mw.GetRequestFileLogger(c).Warn("Health check: table store query failed", zap.Error(err))
		status["status"] = "unhealthy"
		status["dependencies"] = fiber.Map{"tableStore": "unreachable"}
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	status["dependencies"] = fiber.Map{"tableStore": "connected"}
	return c.Status(fiber.StatusOK).JSON(status)
}

// storeError maps service errors onto HTTP statuses.
func (h *LogHandler) storeError(c *fiber.Ctx, action string, err error) error {
	fileLogger := mw.GetRequestFileLogger(c)
	switch {
	case errors.Is(err, services.ErrInvalidFilter):
		fileLogger.Warn("Rejected log filter", zap.String("action", action), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, tablestore.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Log entry not found"})
	case errors.Is(err, tablestore.ErrConcurrencyConflict):
		fileLogger.Warn("Log entry changed concurrently", zap.String("action", action), zap.Error(err))
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": "Log entry was modified"})
	default:
		fileLogger.Error("Log store operation failed", zap.String("action", action), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Log store operation failed"})
	}
}

// SetupLogRoutes registers the log routes on a router already mounted at /logs
// behind the JWT middleware.
func (h *LogHandler) SetupLogRoutes(logs fiber.Router) {
	logs.Get("/", h.List)
	logs.Get("/search", h.Search)
	logs.Get("/:partition/:row", h.Get)
	logs.Delete("/:partition/:row", h.Delete)
}
