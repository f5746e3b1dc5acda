package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/config"
	"github.com/congo-pay/tontine/internal/infra"
	"github.com/congo-pay/tontine/internal/metrics"
	"github.com/congo-pay/tontine/internal/routes"
	"github.com/congo-pay/tontine/internal/session"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	res      *infra.Resources
	sessions *session.Registry
	logger   *slog.Logger
	stop     context.CancelFunc
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, res *infra.Resources, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	sessions, err := routes.Setup(app, routes.Deps{
		Cfg:     cfg,
		DB:      res.DB,
		Cache:   res.Cache,
		Store:   res.Store,
		Metrics: metrics.New(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	go sessions.Run(ctx, cfg.SessionIdleTTL/2)

	return &Server{app: app, cfg: cfg, res: res, sessions: sessions, logger: logger, stop: stop}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	s.logger.Info("listening",
		slog.String("address", s.cfg.Address()),
		slog.String("store_backend", s.cfg.StoreBackend))
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	err := s.app.ShutdownWithContext(ctx)
	s.logger.Info("server stopped", slog.Int("live_sessions", s.sessions.Len()))
	return err
}
