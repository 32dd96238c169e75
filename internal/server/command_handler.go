package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/auth"
	"github.com/adina8244/grounded-git-mcp-server/internal/engine"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

// CommandHandler serves the approval engine: classify-and-maybe-run plus
// the proposal lifecycle endpoints.
type CommandHandler struct {
	engine *engine.Engine
}

func NewCommandHandler(eng *engine.Engine) *CommandHandler {
	return &CommandHandler{engine: eng}
}

// HandleCommand is the inbound classify_and_maybe_run entry point.
func (h *CommandHandler) HandleCommand(c echo.Context) error {
	var req struct {
		Root           string   `json:"root"`
		Args           []string `json:"args"`
		ExpectedBranch string   `json:"expected_branch"`
		RequireClean   bool     `json:"require_clean"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if req.Root == "" {
		req.Root = "."
	}

	outcome, err := h.engine.Propose(c.Request().Context(), req.Root, req.Args, engine.ProposeOptions{
		ExpectedBranch: req.ExpectedBranch,
		RequireClean:   req.RequireClean,
	})
	if err != nil {
		return failureResponse(c, err)
	}

	return c.JSON(http.StatusOK, outcome)
}

// ListProposals filters by status and root.
func (h *CommandHandler) ListProposals(c echo.Context) error {
	filter := store.Filter{
		Status: store.Status(c.QueryParam("status")),
		Root:   c.QueryParam("root"),
	}

	proposals, err := h.engine.Store().List(c.Request().Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to list proposals")
		return c.JSON(http.StatusInternalServerError, errBody("failed to list proposals"))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total":     len(proposals),
		"proposals": proposals,
	})
}

func (h *CommandHandler) GetProposal(c echo.Context) error {
	p, err := h.engine.Store().Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errBody("proposal not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to load proposal"))
	}
	return c.JSON(http.StatusOK, p)
}

// Confirm consumes the one-time token. An optional not_before defers the
// execution to the scheduler; otherwise it runs in this request.
func (h *CommandHandler) Confirm(c echo.Context) error {
	var req struct {
		Token     string `json:"token"`
		NotBefore string `json:"not_before"` // RFC3339, optional
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, errBody("token is required"))
	}

	var notBefore *time.Time
	if req.NotBefore != "" {
		t, err := time.Parse(time.RFC3339, req.NotBefore)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errBody("not_before must be RFC3339"))
		}
		notBefore = &t
	}

	p, err := h.engine.ConfirmAndMaybeExecute(
		c.Request().Context(), c.Param("id"), req.Token, actorFor(c), notBefore)
	if err != nil {
		// A timed-out run still transitioned to executed; return the record.
		if kind, ok := engine.KindOf(err); ok && kind == engine.KindTimeout {
			return c.JSON(http.StatusOK, p)
		}
		return failureResponse(c, err)
	}

	return c.JSON(http.StatusOK, p)
}

// Execute triggers a confirmed proposal immediately, ahead of (or without)
// its scheduled time.
func (h *CommandHandler) Execute(c echo.Context) error {
	p, err := h.engine.Execute(c.Request().Context(), c.Param("id"), actorFor(c))
	if err != nil {
		if kind, ok := engine.KindOf(err); ok && kind == engine.KindTimeout {
			return c.JSON(http.StatusOK, p)
		}
		return failureResponse(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CommandHandler) Cancel(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if req.Reason == "" {
		return c.JSON(http.StatusBadRequest, errBody("reason is required"))
	}

	if err := h.engine.Cancel(c.Request().Context(), c.Param("id"), actorFor(c), req.Reason); err != nil {
		return failureResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "id": c.Param("id")})
}

// actorFor records who drove the call: the authenticated approver when
// present, the anonymous human otherwise.
func actorFor(c echo.Context) store.Actor {
	if approver := auth.ApproverFromContext(c); approver != nil {
		return store.Actor("human:" + approver.Name)
	}
	return store.ActorHuman
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// failureResponse maps the engine taxonomy onto HTTP statuses.
func failureResponse(c echo.Context, err error) error {
	var conflict *store.StatusConflictError
	if errors.As(err, &conflict) {
		return c.JSON(http.StatusConflict, errBody(conflict.Error()))
	}
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errBody("proposal not found"))
	}

	kind, ok := engine.KindOf(err)
	if !ok {
		log.Error().Err(err).Msg("unclassified engine error")
		return c.JSON(http.StatusInternalServerError, errBody("internal error"))
	}

	body := map[string]string{"error": err.Error(), "kind": string(kind)}
	switch kind {
	case engine.KindClassification:
		return c.JSON(http.StatusBadRequest, body)
	case engine.KindToken:
		return c.JSON(http.StatusForbidden, body)
	case engine.KindGuard, engine.KindStaleProposal, engine.KindConcurrentExecution:
		return c.JSON(http.StatusConflict, body)
	case engine.KindTimeout:
		return c.JSON(http.StatusGatewayTimeout, body)
	case engine.KindStorage:
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	return c.JSON(http.StatusInternalServerError, body)
}
