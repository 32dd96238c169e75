package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Handler serves login and identity endpoints.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Login issues a token for a named approver. There is no password store:
// deployments that need real identity put an SSO proxy in front and keep
// RequireAuth on to pin the name into the audit trail.
func (h *Handler) Login(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}

	approver := Approver{Name: req.Name, IssuedAt: time.Now().Unix()}
	token, err := h.manager.GenerateToken(approver)
	if err != nil {
		log.Error().Err(err).Msg("token generation failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "token generation failed"})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token": token,
		"name":  approver.Name,
	})
}

// Me returns the authenticated approver.
func (h *Handler) Me(c echo.Context) error {
	approver := ApproverFromContext(c)
	if approver == nil {
		return c.JSON(http.StatusOK, map[string]string{"name": "anonymous"})
	}
	return c.JSON(http.StatusOK, approver)
}
