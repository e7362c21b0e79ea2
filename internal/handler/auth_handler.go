package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
	"github.com/mallbridge/mallbridge/internal/service"
)

// AuthHandler handles the OAuth installation endpoints.
type AuthHandler struct {
	authService *service.AuthService
	frontendURL string
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService *service.AuthService, frontendURL string) *AuthHandler {
	return &AuthHandler{authService: authService, frontendURL: frontendURL}
}

// Register sets up auth routes.
func (h *AuthHandler) Register(app *fiber.App) {
	auth := app.Group("/api/auth")
	auth.Post("/url", h.AuthURL)
	auth.Get("/cafe24/process", h.Process)
	auth.Get("/cafe24/callback", h.Callback)
	auth.Post("/cafe24/callback", h.IssuePrivate)
}

// AuthURL builds the provider authorization URL for a mall.
func (h *AuthHandler) AuthURL(c fiber.Ctx) error {
	var req struct {
		MallID      string `json:"mall_id"`
		Scope       string `json:"scope"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if req.MallID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id is required",
		})
	}

	authURL := h.authService.AuthorizeURL(req.MallID, req.RedirectURI, req.Scope)
	return c.JSON(fiber.Map{
		"success":  true,
		"auth_url": authURL,
	})
}

// Process receives the provider's app-install redirect and records the mall
// before forwarding to the OAuth callback.
func (h *AuthHandler) Process(c fiber.Ctx) error {
	mallID := c.Query("mall_id")
	userID := c.Query("user_id")
	if mallID == "" || userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "mall_id and user_id are required",
		})
	}

	userInfo := &domain.UserInfo{
		UserID:   userID,
		UserName: c.Query("user_name"),
		UserType: c.Query("user_type"),
	}
	if err := h.authService.RecordInstallation(c.Context(), mallID, userInfo); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	authURL := h.authService.AuthorizeURL(mallID, "", "")
	return c.Redirect().To(authURL)
}

// Callback exchanges the authorization code delivered by the provider. The
// mall id rides in the state parameter.
func (h *AuthHandler) Callback(c fiber.Ctx) error {
	code := c.Query("code")
	mallID := c.Query("state")
	if mallID == "" {
		mallID = c.Query("mall_id")
	}

	if code == "" || mallID == "" {
		return c.Redirect().To(h.frontendURL + "/auth/error?error=missing+code+or+mall_id")
	}

	userInfo := &domain.UserInfo{
		UserID:   c.Query("user_id"),
		UserName: c.Query("user_name"),
		UserType: c.Query("user_type"),
	}

	if _, err := h.authService.IssueFromAuthorizationCode(c.Context(), mallID, code, "", userInfo); err != nil {
		return c.Redirect().To(h.frontendURL + "/auth/error?error=" + userMessage(err))
	}

	return c.Redirect().To(h.frontendURL + "/auth/success?mall_id=" + mallID)
}

// IssuePrivate issues a client_credentials token for a private app.
func (h *AuthHandler) IssuePrivate(c fiber.Ctx) error {
	var req struct {
		MallID string `json:"mall_id"`
	}
	if err := c.Bind().Body(&req); err != nil || req.MallID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id is required",
		})
	}

	bundle, err := h.authService.IssueFromClientCredentials(c.Context(), req.MallID)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   userMessage(err),
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"mall_id":    req.MallID,
		"expires_in": bundle.ExpiresIn,
	})
}

// userMessage maps the error taxonomy to the messages the route layer shows.
func userMessage(err error) string {
	switch {
	case errors.Is(err, port.ErrInvalidGrant), errors.Is(err, port.ErrReauthRequired):
		return "please reauthorize"
	case errors.Is(err, port.ErrProviderUnavailable):
		return "provider unavailable, retry later"
	default:
		return err.Error()
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, port.ErrNoRecord):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrInvalidGrant), errors.Is(err, port.ErrReauthRequired),
		errors.Is(err, port.ErrInvalidClient), errors.Is(err, port.ErrAuthenticationFailed):
		return fiber.StatusUnauthorized
	case errors.Is(err, port.ErrProviderUnavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
