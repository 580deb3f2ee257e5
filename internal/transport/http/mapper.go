package http

import (
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// OnlineResponse is the body of GET /api/online.
type OnlineResponse struct {
	Count int                `json:"count"`
	Users []core.SessionInfo `json:"users"`
}

// PresenceEventDTO is one audited join or leave.
type PresenceEventDTO struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Nickname   string    `json:"nickname"`
	Kind       string    `json:"kind"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	At         time.Time `json:"at"`
}

// PresenceResponse is the body of GET /api/presence.
type PresenceResponse struct {
	Events []PresenceEventDTO `json:"events"`
}

// StatsResponse is the body of GET /api/stats. Sessions24h is omitted when auditing is off.
type StatsResponse struct {
	Online      int  `json:"online"`
	Sessions24h *int `json:"sessions_24h,omitempty"`
}

func presenceToDTOs(events []*store.PresenceEvent) []PresenceEventDTO {
	out := make([]PresenceEventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, PresenceEventDTO{
			ID:         ev.ID,
			SessionID:  ev.SessionID,
			Nickname:   ev.Nickname,
			Kind:       string(ev.Kind),
			RemoteAddr: ev.RemoteAddr,
			At:         ev.At.UTC(),
		})
	}
	return out
}
