package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/geosync/geosync/pkg/logger"
)

// Server is a thin wrapper over http.Server with
// non-blocking Run and logged lifecycle.
type Server struct {
	http.Server

	log *logger.Logger
}

type (
	Handler        = http.Handler
	HandlerFunc    = http.HandlerFunc
	ResponseWriter = http.ResponseWriter
	Request        = http.Request
)

type Option = func(*Server)

func WithLogger(log *logger.Logger) Option { return func(s *Server) { s.log = log } }

func NewServer(address string, handler func(*Server) Handler, options ...Option) *Server {
	server := &Server{
		Server: http.Server{
			Addr:         address,
			IdleTimeout:  120 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	for _, opt := range options {
		opt(server)
	}
	if server.log == nil {
		server.log = logger.Default()
	}
	server.Handler = handler(server)
	return server
}

func (s *Server) Run() { go s.run() }

func (s *Server) run() {
	s.log.Info().Msgf("Starting HTTP server on %s", s.Addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msg("HTTP server stopped")
	}
}

func (s *Server) Shutdown(ctx context.Context) error { return s.Server.Shutdown(ctx) }
