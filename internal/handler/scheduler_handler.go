package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/mallbridge/mallbridge/internal/service"
)

// SchedulerHandler exposes scheduler control and log endpoints.
type SchedulerHandler struct {
	scheduler     *service.Scheduler
	retentionDays int
}

// NewSchedulerHandler creates a new scheduler handler.
func NewSchedulerHandler(scheduler *service.Scheduler, retentionDays int) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, retentionDays: retentionDays}
}

// Register sets up scheduler routes.
func (h *SchedulerHandler) Register(app *fiber.App) {
	sched := app.Group("/api/scheduler")
	sched.Get("/", h.Status)
	sched.Post("/", h.Action)
	sched.Get("/logs", h.Logs)
}

// Status returns the scheduler state snapshot.
func (h *SchedulerHandler) Status(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"status":  h.scheduler.Status(),
	})
}

// Action starts, stops, runs a manual check, or prunes old logs.
func (h *SchedulerHandler) Action(c fiber.Ctx) error {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	switch req.Action {
	case "start":
		h.scheduler.Start()
	case "stop":
		h.scheduler.Stop()
	case "check":
		h.scheduler.RunManualCheck(c.Context())
	case "prune":
		removed, err := h.scheduler.PruneLogs(c.Context(), h.retentionDays)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
		return c.JSON(fiber.Map{"success": true, "removed": removed})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "unknown action: " + req.Action,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"status":  h.scheduler.Status(),
	})
}

// Logs returns recent scheduler run entries.
func (h *SchedulerHandler) Logs(c fiber.Ctx) error {
	limit := fiber.Query[int](c, "limit", 100)
	runs, err := h.scheduler.Logs(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "logs": runs})
}
