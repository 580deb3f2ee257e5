package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const maxPresenceLimit = 500

// APIHandlers serves the read-only admin endpoints.
type APIHandlers struct {
	relay Relay
	store store.PresenceStore
	log   *zerolog.Logger
	now   func() time.Time
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(relay Relay, st store.PresenceStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{relay: relay, store: st, log: logger, now: time.Now}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Online lists the connected participants in join order.
// GET /api/online
func (h *APIHandlers) Online(c *gin.Context) {
	users := h.relay.Online()
	c.JSON(http.StatusOK, OnlineResponse{Count: len(users), Users: users})
}

// Presence returns recent join and leave events, newest first.
// GET /api/presence?limit=N
func (h *APIHandlers) Presence(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPresenceLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	if h.store == nil {
		c.JSON(http.StatusOK, PresenceResponse{Events: []PresenceEventDTO{}})
		return
	}

	events, err := h.store.ListPresence(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list presence events")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, PresenceResponse{Events: presenceToDTOs(events)})
}

// Stats reports the current and recent session counts.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	resp := StatsResponse{Online: len(h.relay.Online())}
	if h.store != nil {
		n, err := h.store.CountSessions(c.Request.Context(), h.now().Add(-24*time.Hour))
		if err != nil {
			h.log.Error().Err(err).Msg("failed to count sessions")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		resp.Sessions24h = &n
	}
	c.JSON(http.StatusOK, resp)
}
