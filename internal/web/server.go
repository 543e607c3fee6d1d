// Package web is the device's HTTP surface: status reads, configuration,
// and the two authentication flows.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/miswired/esp32-radar-sub000/internal/app"
	"github.com/miswired/esp32-radar-sub000/internal/auth"
	"github.com/miswired/esp32-radar-sub000/internal/config"
	"github.com/miswired/esp32-radar-sub000/internal/eventlog"
	"github.com/miswired/esp32-radar-sub000/internal/status"
)

// requestTimeout bounds a handler, including its wait for the control loop.
const requestTimeout = 15 * time.Second

// Device is the control surface the handlers drive. *app.Device
// implements it.
type Device interface {
	Authorize(ctx context.Context, apiKey, sessionToken string) error
	Config(ctx context.Context) (config.Config, error)
	UpdateConfig(ctx context.Context, p config.Patch) (config.Result, error)
	FactoryReset(ctx context.Context) error
	TestNotification(ctx context.Context) error
	TestWLED(ctx context.Context) error
	AuthStatus(ctx context.Context, sessionToken string) (app.AuthStatus, error)
	Setup(ctx context.Context, password, confirm string) (auth.Session, error)
	Login(ctx context.Context, password string) (auth.Session, error)
	Logout(ctx context.Context) error
}

// Server serves the HTTP API.
type Server struct {
	httpServer *http.Server
	device     Device
	tracker    *status.Tracker
	logs       *eventlog.Ring
}

// New creates a Server. Reads come from tracker and logs; everything else
// goes through device. logs may be nil.
func New(addr string, device Device, tracker *status.Tracker, logs *eventlog.Ring) *Server {
	s := &Server{device: device, tracker: tracker, logs: logs}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(RequestLogger)

	r.Get("/", s.handleIndex)
	r.Get("/status", s.handleStatus)
	r.Get("/config", s.handleGetConfig)
	r.Get("/logs", s.handleLogs)
	r.Get("/diagnostics", s.handleDiagnostics)
	r.Get("/auth/status", s.handleAuthStatus)

	r.Post("/auth/setup", s.handleSetup)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Post("/generate-key", s.handleGenerateKey)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/config", s.handlePostConfig)
		r.Post("/reset", s.handleReset)
		r.Post("/test-notification", s.handleTestNotification)
		r.Post("/test-wled", s.handleTestWLED)
	})
	return r
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
