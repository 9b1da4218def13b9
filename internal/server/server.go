package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/auth"
	"github.com/danmuck/cantelemetry/internal/manager"
	"github.com/danmuck/cantelemetry/internal/observability"
)

const (
	Version = "0.1.0"

	shutdownGrace = 5 * time.Second
)

var ErrManagerNotFound = errors.New("manager not found")

type Config struct {
	ID          string
	Addr        string
	CorsOrigins []string

	// ControlToken guards the mutating routes when non-empty.
	ControlToken string
}

// Server is the HTTP surface over a fixed set of managers.
type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	router   *gin.Engine
	managers map[string]manager.Controller
	guard    auth.Validator
	httpSrv  *http.Server
}

func New(cfg Config, controllers ...manager.Controller) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPTelemetry(cfg.ID, log.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	managers := make(map[string]manager.Controller, len(controllers))
	for _, c := range controllers {
		if c == nil {
			continue
		}
		managers[c.Name()] = c
	}
	s := &Server{
		ID:       cfg.ID,
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		router:   r,
		managers: managers,
	}
	if cfg.ControlToken != "" {
		s.guard = auth.StaticToken{Token: cfg.ControlToken}
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Controller looks up a manager by name.
func (s *Server) Controller(name string) (manager.Controller, error) {
	c, ok := s.managers[name]
	if !ok {
		return nil, ErrManagerNotFound
	}
	return c, nil
}

// Statuses returns every manager status sorted by name.
func (s *Server) Statuses() []manager.Status {
	out := make([]manager.Status, 0, len(s.managers))
	for _, c := range s.managers {
		out = append(out, c.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *Server) Serve() error {
	s.httpSrv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("server", s.ID).Str("addr", s.Addr).Msg("http surface listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownGrace)
		defer cancel()
	}
	return s.httpSrv.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
