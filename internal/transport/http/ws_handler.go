package http

import (
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WSHandler upgrades HTTP connections and hands them to the relay as framed
// byte streams, so browser clients speak the same protocol as TCP clients.
type WSHandler struct {
	relay Relay
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(relay Relay, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{relay: relay, log: logger}
}

// Serve handles GET /ws.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	ctx := c.Request.Context()
	netConn := websocket.NetConn(ctx, conn, websocket.MessageBinary)
	if err := h.relay.Handle(ctx, netConn); err != nil {
		h.log.Debug().Err(err).Msg("ws session rejected")
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
