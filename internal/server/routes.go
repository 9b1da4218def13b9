package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/auth"
	"github.com/danmuck/cantelemetry/internal/manager"
)

const (
	mimeCBOR    = "application/cbor"
	eventBuffer = 32
)

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		running := 0
		for _, m := range s.managers {
			if m.Running() {
				running++
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"ready":    running > 0,
			"running":  running,
			"managers": len(s.managers),
			"service":  s.ID,
			"version":  Version,
		})
	})

	r.GET("/managers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"managers": s.Statuses()})
	})

	g := r.Group("/managers/:name")
	g.GET("", s.withController(func(c *gin.Context, m manager.Controller) {
		c.JSON(http.StatusOK, m.Status())
	}))
	g.GET("/snapshot", s.withController(s.handleSnapshot))
	g.GET("/events", s.withController(s.handleEvents))

	ctl := g.Group("", auth.RequireToken(s.guard))
	ctl.POST("/start", s.withController(func(c *gin.Context, m manager.Controller) {
		if !m.Start() {
			c.JSON(http.StatusBadGateway, gin.H{"error": "start failed", "status": m.Status()})
			return
		}
		log.Info().Str("manager", m.Name()).Msg("manager started over http")
		c.JSON(http.StatusOK, m.Status())
	}))
	ctl.POST("/stop", s.withController(func(c *gin.Context, m manager.Controller) {
		stopped := m.Stop()
		if stopped {
			log.Info().Str("manager", m.Name()).Msg("manager stopped over http")
		}
		c.JSON(http.StatusOK, gin.H{"stopped": stopped, "status": m.Status()})
	}))
	ctl.PUT("/workers", s.withController(func(c *gin.Context, m manager.Controller) {
		var body struct {
			Workers *int `json:"workers"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Workers == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"workers\": n}"})
			return
		}
		if !m.SetWorkerCount(*body.Workers) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "worker count out of range",
				"workers": *body.Workers,
				"max":     manager.MaxWorkers(),
			})
			return
		}
		c.JSON(http.StatusOK, m.Status())
	}))
	ctl.PUT("/debug", s.withController(func(c *gin.Context, m manager.Controller) {
		var body struct {
			Debug *bool `json:"debug"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Debug == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"debug\": bool}"})
			return
		}
		m.SetDebugMode(*body.Debug)
		c.JSON(http.StatusOK, m.Status())
	}))
}

func (s *Server) withController(h func(*gin.Context, manager.Controller)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := s.Controller(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "manager": c.Param("name")})
			return
		}
		h(c, m)
	}
}

func (s *Server) handleSnapshot(c *gin.Context, m manager.Controller) {
	snap := m.Snapshot()
	if !strings.Contains(c.GetHeader("Accept"), mimeCBOR) {
		c.JSON(http.StatusOK, snap)
		return
	}
	data, err := cbor.Marshal(snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, mimeCBOR, data)
}

// handleEvents streams one "snapshot" event per coalescer flush and one
// "error" event per reported error until the client disconnects.
func (s *Server) handleEvents(c *gin.Context, m manager.Controller) {
	changes, cancelChanges := m.SubscribeChanges(eventBuffer)
	defer cancelChanges()
	errs, cancelErrs := m.SubscribeErrors(eventBuffer)
	defer cancelErrs()

	ctx := c.Request.Context()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case batch, ok := <-changes:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", batch)
			return true
		case ev, ok := <-errs:
			if !ok {
				return false
			}
			c.SSEvent("error", ev)
			return true
		}
	})
}
