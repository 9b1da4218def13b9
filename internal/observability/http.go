package observability

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const streamSuffix = "/events"

// httpRequest is the routed shape of one request, shared by the access log
// and the metrics.
type httpRequest struct {
	method  string
	route   string
	manager string
	stream  bool
}

func describe(c *gin.Context) httpRequest {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	return httpRequest{
		method:  c.Request.Method,
		route:   route,
		manager: c.Param("name"),
		stream:  strings.HasSuffix(route, streamSuffix),
	}
}

// HTTPTelemetry logs and counts every request under service. Event streams
// are tracked as open streams and by lifetime in the log only; their
// duration never enters the request latency histogram.
func HTTPTelemetry(service string, logger zerolog.Logger) gin.HandlerFunc {
	RegisterMetrics()
	return func(c *gin.Context) {
		req := describe(c)
		if req.stream {
			httpStreams.WithLabelValues(service, req.manager).Inc()
			defer httpStreams.WithLabelValues(service, req.manager).Dec()
		}
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		recordHTTPRequest(service, req, status, elapsed)

		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case req.stream:
			event = logger.Info()
		}
		if req.manager != "" {
			event = event.Str("manager", req.manager)
		}
		event.
			Str("method", req.method).
			Str("route", req.route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Bool("stream", req.stream).
			Str("client_ip", c.ClientIP()).
			Msg("http")
	}
}
