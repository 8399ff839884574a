package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stellar-commitment/commitdash/internal/routes"
)

// Server wraps the Fiber application.
type Server struct {
	app  *fiber.App
	addr string
}

// New instantiates the HTTP server and delegates route wiring to
// routes.Setup. Write timeouts leave room for a two-step reset against a
// slow RPC node.
func New(d routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               d.Cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          2 * time.Minute,
		DisableStartupMessage: !d.Cfg.IsDev(),
		ErrorHandler:          routes.ErrorHandler(d.Logger),
	})

	if err := routes.Setup(app, d); err != nil {
		return nil, err
	}

	return &Server{app: app, addr: d.Cfg.Address()}, nil
}

// App exposes the underlying Fiber application for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts the HTTP server.
func (s *Server) Listen(logger *slog.Logger) error {
	logger.Info("listening", slog.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
