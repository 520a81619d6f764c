package http

import (
	"context"
	"net"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/auth"
	"github.com/vovakirdan/wirechat-rooms/internal/blob"
	"github.com/vovakirdan/wirechat-rooms/internal/chat"
	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/presence"
	"github.com/vovakirdan/wirechat-rooms/internal/service/session"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	Sessions   *session.Service
	Auth       *auth.Service
	Registry   *presence.Registry
	Dispatcher *chat.Dispatcher
	Store      store.Store
	Blobs      *blob.DirStore
}

// Server is the HTTP server plus the socket handler whose hijacked
// connections Shutdown has to wait for.
type Server struct {
	*stdhttp.Server
	ws *WSHandler
}

// NewServer builds the gin engine with the API, upload and socket routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(deps.Sessions, logger)
	router.POST("/api/register", apiHandlers.Register)
	router.POST("/api/login", apiHandlers.Login)

	authed := router.Group("/api", AuthMiddleware(deps.Auth, deps.Registry, logger))
	authed.POST("/logout", apiHandlers.Logout)

	messageHandlers := NewMessageHandlers(deps.Store, logger)
	authed.GET("/messages", messageHandlers.ChannelHistory)
	authed.GET("/private/:username", messageHandlers.PrivateHistory)

	uploadHandlers := NewUploadHandlers(deps.Blobs, cfg.MaxUploadBytes, logger)
	authed.POST("/upload", uploadHandlers.Upload)
	router.Static("/uploads", deps.Blobs.Dir())

	ws := NewWSHandler(deps.Auth, deps.Registry, deps.Dispatcher, WSOptions{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxMessageLength:   cfg.MaxMessageLength,
	}, logger)

	// The socket stays outside gin: gin's writer refuses to hijack once the
	// upgrade response has been written.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", router)

	base, cancel := context.WithCancel(context.Background())
	srv := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)

	return &Server{Server: srv, ws: ws}
}

// Shutdown stops accepting requests, cancels open sockets and waits for their
// sessions to be released.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	if waitErr := s.ws.Wait(ctx); err == nil {
		err = waitErr
	}
	return err
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
