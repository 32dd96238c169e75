package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

type AuditHandler struct {
	store *store.Store
}

func NewAuditHandler(st *store.Store) *AuditHandler {
	return &AuditHandler{store: st}
}

// GetAudit returns records by proposal id or by time range. With neither
// parameter it returns the last 24 hours.
func (h *AuditHandler) GetAudit(c echo.Context) error {
	ctx := c.Request().Context()

	if proposalID := c.QueryParam("proposal_id"); proposalID != "" {
		records, err := h.store.AuditByProposal(ctx, proposalID)
		if err != nil {
			log.Error().Err(err).Str("proposal_id", proposalID).Msg("audit query failed")
			return c.JSON(http.StatusInternalServerError, errBody("failed to retrieve audit records"))
		}
		return c.JSON(http.StatusOK, map[string]any{"total": len(records), "records": records})
	}

	from, to, err := parseRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}

	records, err := h.store.AuditByTimeRange(ctx, from, to)
	if err != nil {
		log.Error().Err(err).Msg("audit range query failed")
		return c.JSON(http.StatusInternalServerError, errBody("failed to retrieve audit records"))
	}

	return c.JSON(http.StatusOK, map[string]any{"total": len(records), "records": records})
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	if fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errRange("from")
		}
		from = parsed
	}
	if toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errRange("to")
		}
		to = parsed
	}
	return from, to, nil
}

type rangeError string

func (e rangeError) Error() string { return string(e) + " must be RFC3339" }

func errRange(field string) error { return rangeError(field) }
