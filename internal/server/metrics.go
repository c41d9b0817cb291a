package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func (s *Server) recordDuration() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		s.metrics.RequestDuration.Record(c.Request.Context(), time.Since(started).Seconds(),
			metric.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("http.status_code", strconv.Itoa(c.Writer.Status())),
			),
		)
	}
}
