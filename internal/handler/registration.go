package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-registration-ledger/internal/model"
	"github.com/iliyamo/event-registration-ledger/internal/service"
)

// LedgerHandler exposes the registration ledger over HTTP.  All methods
// assume JWTAuth has run and stored the caller's owner ID; they return 401
// when it is missing.
type LedgerHandler struct {
	Ledger *service.LedgerService
	Log    *zap.Logger
}

// NewLedgerHandler constructs a LedgerHandler and panics if ledger is nil.
func NewLedgerHandler(ledger *service.LedgerService, log *zap.Logger) *LedgerHandler {
	if ledger == nil {
		panic("nil ledger passed to NewLedgerHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerHandler{Ledger: ledger, Log: log}
}

type registerRequest struct {
	RegistrantID    string         `json:"registrant_id"`
	EventID         string         `json:"event_id"`
	OccurrenceStart string         `json:"occurrence_start"`
	Intent          string         `json:"intent"`
	Metadata        map[string]any `json:"metadata"`
}

// Register handles POST /v1/registrations.  The body names the event, the
// intent (rsvp or watch), optionally a family registrant and, for a
// recurring event, the RFC 3339 start of the chosen occurrence.  It
// returns 201 with the new reference ID.
func (h *LedgerHandler) Register(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body registerRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	intent, err := model.ParseIntent(body.Intent)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "intent must be rsvp or watch"})
	}
	var start *time.Time
	if s := strings.TrimSpace(body.OccurrenceStart); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "occurrence_start must be RFC 3339"})
		}
		start = &t
	}

	ref, err := h.Ledger.Register(c.Request().Context(), service.RegisterInput{
		OwnerID:         ownerID,
		RegistrantID:    body.RegistrantID,
		EventID:         body.EventID,
		OccurrenceStart: start,
		Intent:          intent,
		Metadata:        body.Metadata,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reference_id": ref.ID, "item": ref})
}

// ListMyEvents handles GET /v1/my-events.  include_family=true adds the
// registrations of the caller's family members.
func (h *LedgerHandler) ListMyEvents(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	includeFamily := false
	if raw := strings.TrimSpace(c.QueryParam("include_family")); raw != "" {
		includeFamily, err = strconv.ParseBool(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "include_family must be a boolean"})
		}
	}
	groups, err := h.Ledger.ListMyEvents(c.Request().Context(), ownerID, includeFamily)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": groups})
}

// GetReference handles GET /v1/registrations/:id.  Only the owner of the
// reference may read it; cancelled references are returned with
// cancelled_at set.
func (h *LedgerHandler) GetReference(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ref, err := h.Ledger.GetReference(c.Request().Context(), ownerID, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": ref})
}

// Cancel handles DELETE /v1/registrations/:id.  It is safe to retry: a
// second call on the same reference returns the same group.  The response
// carries the recomputed group so the caller can redraw the card.
func (h *LedgerHandler) Cancel(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	group, err := h.Ledger.Cancel(c.Request().Context(), ownerID, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"group": group})
}
