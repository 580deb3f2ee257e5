package http

import (
	"context"
	"net"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Relay is the part of core.Relay the admin surface needs.
type Relay interface {
	Handle(ctx context.Context, conn net.Conn) error
	Online() []core.SessionInfo
}

// NewServer builds the admin HTTP server. st may be nil when auditing is disabled.
func NewServer(relay Relay, st store.PresenceStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	handlers := NewAPIHandlers(relay, st, logger)
	router.GET("/health", healthHandler)
	api := router.Group("/api")
	{
		api.GET("/online", handlers.Online)
		api.GET("/presence", handlers.Presence)
		api.GET("/stats", handlers.Stats)
	}
	router.GET("/ws", NewWSHandler(relay, logger).Serve)

	return &stdhttp.Server{
		Addr:              cfg.AdminAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
