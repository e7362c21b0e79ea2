package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/mallbridge/mallbridge/internal/adapter/cafe24"
	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/service"
)

// TokenHandler exposes token status and refresh endpoints.
type TokenHandler struct {
	tokens *service.TokenService
	malls  *cafe24.Registry
}

// NewTokenHandler creates a new token handler.
func NewTokenHandler(tokens *service.TokenService, malls *cafe24.Registry) *TokenHandler {
	return &TokenHandler{tokens: tokens, malls: malls}
}

// Register sets up token routes.
func (h *TokenHandler) Register(app *fiber.App) {
	token := app.Group("/api/token")
	token.Get("/status", h.Status)
	token.Post("/refresh", h.Refresh)
	token.Delete("/", h.Delete)
}

// Status returns the derived token status for a mall.
func (h *TokenHandler) Status(c fiber.Ctx) error {
	mallID := c.Query("mall_id")
	if mallID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id is required",
		})
	}

	status := h.tokens.Status(c.Context(), mallID)
	return c.JSON(fiber.Map{
		"success":      true,
		"mall_id":      mallID,
		"status":       status,
		"expires_at":   domain.FormatExpiryTime(status.ExpiresAt),
		"health_check": h.malls.Client(mallID).HealthCheck(c.Context()),
	})
}

// Refresh forces a token refresh for a mall.
func (h *TokenHandler) Refresh(c fiber.Ctx) error {
	var req struct {
		MallID string `json:"mall_id"`
	}
	if err := c.Bind().Body(&req); err != nil || req.MallID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id is required",
		})
	}

	if err := h.malls.Client(req.MallID).RefreshAccessToken(c.Context()); err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   userMessage(err),
		})
	}

	status := h.tokens.Status(c.Context(), req.MallID)
	return c.JSON(fiber.Map{
		"success": true,
		"mall_id": req.MallID,
		"status":  status,
	})
}

// Delete clears a mall's token fields (the record is kept).
func (h *TokenHandler) Delete(c fiber.Ctx) error {
	mallID := c.Query("mall_id")
	if mallID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id is required",
		})
	}

	if err := h.tokens.Delete(c.Context(), mallID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "mall_id": mallID})
}
