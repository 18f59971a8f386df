// Package web serves the Karaoke Bar pages and their JSON endpoints.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/karaokebar/karaoke-web/internal/blobstore"
	"github.com/karaokebar/karaoke-web/internal/playback"
	"github.com/karaokebar/karaoke-web/internal/remote"
	"github.com/karaokebar/karaoke-web/internal/video"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	Version        string
	ChartLimit     int
	Client         remote.Client
	Registry       *video.Registry
	Store          blobstore.Store
	PlaybackServer playback.PlaybackService
	Theme          Theme
	Logger         *slog.Logger
	StartTime      time.Time
}

func NewServer(cfg ServerConfig) (*Server, error) {
	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			// Generation requests block until the video is ready.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}, nil
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// URL returns the address a browser should open.
func (s *Server) URL() string {
	return "http://" + s.httpServer.Addr
}
