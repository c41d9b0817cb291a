package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestGinRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	router := gin.New()
	router.Use(GinRequests(logger))
	router.GET("/plans/:id", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside handler")
		c.Status(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans/7", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.Equal(t, "/plans/7", inner["path"])

	var done map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &done))
	require.Equal(t, "warn", done["level"])
	require.Equal(t, "/plans/:id", done["route"])
	require.InDelta(t, 404, done["status"], 0)
	require.Equal(t, "http request", done["message"])
}
