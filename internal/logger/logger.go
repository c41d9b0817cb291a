package logger

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// GinRequests attaches a request scoped logger to the context and logs each
// completed request with its status and duration.
func GinRequests(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		ctx := logger.With().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("addr", c.ClientIP()).
			Logger().WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()

		var event *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			event = zerolog.Ctx(ctx).Error().Err(c.Errors.Last().Err)
		case status >= 500:
			event = zerolog.Ctx(ctx).Error()
		case status >= 400:
			event = zerolog.Ctx(ctx).Warn()
		default:
			event = zerolog.Ctx(ctx).Info()
		}

		event.
			Str("route", route).
			Int("status", status).
			Int("size", c.Writer.Size()).
			Dur("duration", time.Since(started)).
			Msg("http request")
	}
}
