package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
	"github.com/adina8244/grounded-git-mcp-server/internal/inspect"
	"github.com/adina8244/grounded-git-mcp-server/internal/policy"
)

// InspectHandler fronts the read-only tools. These run fully in parallel
// with each other and with pending executions; no locks, no proposals.
type InspectHandler struct {
	policy *policy.Store
}

func NewInspectHandler(pol *policy.Store) *InspectHandler {
	return &InspectHandler{policy: pol}
}

func (h *InspectHandler) inspector(c echo.Context) (*inspect.Inspector, error) {
	root := c.QueryParam("root")
	if root == "" {
		root = "."
	}

	resolved, err := gitx.ResolveRoot(c.Request().Context(), root)
	if err != nil {
		return nil, err
	}

	cfg := h.policy.Current()
	runner := gitx.NewRunner(resolved, gitx.RunnerConfig{
		Timeout:   cfg.ReadTimeout.Std(),
		MaxOutput: cfg.MaxOutputBytes,
	})
	return inspect.New(runner), nil
}

func (h *InspectHandler) RepoInfo(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	info, err := ins.RepoInfo(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, info)
}

func (h *InspectHandler) Status(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	entries, truncated, err := ins.Status(c.Request().Context(), queryInt(c, "max_entries", 200))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries, "truncated": truncated})
}

func (h *InspectHandler) Log(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	commits, err := ins.Log(c.Request().Context(), queryInt(c, "n", 20))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"commits": commits})
}

func (h *InspectHandler) DiffSummary(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	staged := c.QueryParam("staged") == "true"
	lines, err := ins.DiffSummary(c.Request().Context(), staged, c.QueryParam("against"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"summary": lines})
}

func (h *InspectHandler) ShowCommit(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	patch := c.QueryParam("patch") != "false"
	out, truncated, err := ins.ShowCommit(c.Request().Context(), c.Param("commit"), patch)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"commit": out, "truncated": truncated})
}

func (h *InspectHandler) Grep(c echo.Context) error {
	pattern := c.QueryParam("pattern")
	if pattern == "" {
		return c.JSON(http.StatusBadRequest, errBody("pattern is required"))
	}

	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	matches, err := ins.Grep(c.Request().Context(), pattern, c.QueryParam("pathspec"),
		c.QueryParam("ignore_case") == "true")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"matches": matches})
}

func (h *InspectHandler) Blame(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, errBody("path is required"))
	}

	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	lines, err := ins.Blame(c.Request().Context(), path,
		queryInt(c, "start_line", 1), queryInt(c, "end_line", 200))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"blame": lines})
}

func (h *InspectHandler) DetectConflicts(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	snap, err := ins.DetectConflicts(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"has_conflicts":      snap.HasConflicts,
		"merge_in_progress":  snap.MergeInProgress,
		"rebase_in_progress": snap.RebaseInProgress,
	})
}

func (h *InspectHandler) Tree(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	paths, truncated, err := ins.Tree(c.Request().Context(), c.QueryParam("ref"),
		queryInt(c, "max_entries", 2000))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"paths": paths, "truncated": truncated})
}

func (h *InspectHandler) FileAtRef(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	content, truncated, err := ins.FileAtRef(c.Request().Context(),
		c.QueryParam("ref"), c.QueryParam("path"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"content": content, "truncated": truncated})
}

func (h *InspectHandler) DiffRange(c echo.Context) error {
	ins, err := h.inspector(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	diff, truncated, err := ins.DiffRange(c.Request().Context(),
		c.QueryParam("base"), c.QueryParam("head"), c.QueryParam("triple_dot") == "true")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"diff": diff, "truncated": truncated})
}

func queryInt(c echo.Context, key string, fallback int) int {
	if raw := c.QueryParam(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
