package server

import (
	"context"
	"errors"
	"net/http"

	"iclr-explorer/internal/handler"
	"iclr-explorer/internal/middleware"
	"iclr-explorer/internal/year"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options configures the HTTP front end.
type Options struct {
	Addr           string
	AllowedOrigins []string
	Release        bool
}

type Server struct {
	router *gin.Engine
	http   *http.Server
	log    *zap.Logger
}

func NewServer(opts Options, h *handler.Handler, years *year.Registry, log *zap.Logger) *Server {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	s := &Server{
		router: router,
		http:   &http.Server{Addr: opts.Addr, Handler: router},
		log:    log,
	}

	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Metrics(),
		middleware.CORS(opts.AllowedOrigins),
		middleware.YearOverride(years),
	)
	h.RegisterRoutes(router)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Run() error {
	s.log.Info("Server starting", zap.String("address", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server...")
	return s.http.Shutdown(ctx)
}
