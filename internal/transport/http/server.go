package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/auth"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/config"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/service/conversations"
)

// Deps are the services the HTTP layer talks to.
type Deps struct {
	Hub           *core.Hub
	Auth          *auth.Service
	Conversations *conversations.Service
	// Metrics serves /metrics when non-nil.
	Metrics stdhttp.Handler
}

// NewServer builds an HTTP server with the REST API and the message channel.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter mounts the message channel on /ws and the REST API on
// everything else. The WebSocket handler stays off the gin engine: gin's
// writer refuses to hijack once the upgrade response has been flushed.
func NewRouter(deps Deps, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Auth, WSOptions{
		MaxMessageBytes: cfg.MaxMessageBytes,
		PingInterval:    cfg.PingInterval,
		PongTimeout:     cfg.PongTimeout,
		SendBuffer:      cfg.SendBuffer,
	}, logger))
	mux.Handle("/", newEngine(deps, cfg, logger))
	return mux
}

func newEngine(deps Deps, cfg config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/health", healthHandler(deps.Hub))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	apiHandlers := NewAPIHandlers(deps.Auth, deps.Hub, logger)
	userHandlers := NewUserHandlers(deps.Conversations, deps.Hub, logger)
	convHandlers := NewConversationHandlers(deps.Conversations, deps.Hub, logger)
	notifHandlers := NewNotificationHandlers(deps.Hub, logger)

	loginLimiter := newIPLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst)

	api := r.Group("/api")
	api.POST("/login", loginLimiter.middleware(), apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(deps.Auth, logger))
	authed.POST("/logout", apiHandlers.Logout)
	authed.GET("/me", apiHandlers.Me)
	authed.GET("/users", userHandlers.ListUsers)
	authed.GET("/presence", userHandlers.Presence)
	authed.GET("/groups", convHandlers.ListGroups)
	authed.POST("/conversations/direct", convHandlers.OpenDirect)
	authed.POST("/conversations/group", convHandlers.OpenGroup)
	authed.GET("/conversations/:id/messages", convHandlers.ListMessages)
	authed.GET("/notifications", notifHandlers.List)
	authed.POST("/notifications/read", notifHandlers.MarkRead)

	return r
}

// HealthResponse reports liveness with a few hub counters.
type HealthResponse struct {
	Status   string `json:"status"`
	Users    int    `json:"users_online"`
	Sessions int    `json:"sessions"`
	Rooms    int    `json:"rooms"`
}

func healthHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, sessions, rooms := hub.Stats()
		c.JSON(stdhttp.StatusOK, HealthResponse{
			Status:   "ok",
			Users:    users,
			Sessions: sessions,
			Rooms:    rooms,
		})
	}
}
