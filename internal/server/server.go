package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/bookstore/internal/session"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/subscription"
	"github.com/wolfeidau/bookstore/internal/telemetry"

	httpmiddleware "github.com/wolfeidau/bookstore/internal/http"
	"github.com/wolfeidau/bookstore/internal/logger"
)

// DefaultCookieName is the cookie carrying the session id for browser clients.
const DefaultCookieName = "bookstore_session"

// Config controls the HTTP API behaviour.
type Config struct {
	// RequestTimeout bounds every request including its store calls. Zero disables it.
	RequestTimeout time.Duration

	// CookieName defaults to DefaultCookieName.
	CookieName string

	// CookieSecure marks the session cookie as HTTPS only.
	CookieSecure bool
}

// Server wires the subscription and session services to a gin router.
type Server struct {
	catalog  *subscription.Catalog
	ledger   *subscription.Ledger
	sessions *session.Service
	users    store.UserStore
	cfg      Config
	metrics  *telemetry.Metrics
}

// NewServer creates a new server from its collaborators.
func NewServer(catalog *subscription.Catalog, ledger *subscription.Ledger, sessions *session.Service, users store.UserStore, cfg Config) *Server {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	return &Server{
		catalog:  catalog,
		ledger:   ledger,
		sessions: sessions,
		users:    users,
		cfg:      cfg,
		metrics:  telemetry.GetMetrics(),
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	router := gin.New()
	router.ContextWithFallback = true

	router.Use(
		gin.Recovery(),
		httpmiddleware.Gin(httpmiddleware.ClientIPMiddleware()),
		httpmiddleware.Gin(httpmiddleware.RequestTimeoutMiddleware(s.cfg.RequestTimeout)),
		logger.GinRequests(log),
		s.recordDuration(),
	)

	// Health check endpoint for load balancer
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	sessions := api.Group("/sessions")
	sessions.POST("", s.login)
	sessions.DELETE("", s.authenticate(), s.logout)
	sessions.POST("/refresh", s.authenticate(), s.refresh)

	plans := api.Group("/subscription-plans")
	plans.GET("", s.listPlans)

	customer := plans.Group("", s.authenticate())
	customer.GET("/current", s.currentSubscription)
	customer.GET("/credits", s.credits)
	customer.POST("/credits", s.useCredit)
	customer.POST("/subscribe", s.subscribe)
	customer.POST("/unsubscribe", s.unsubscribe)

	admin := plans.Group("", s.authenticate(), requireAdmin())
	admin.POST("", s.createPlan)
	admin.PATCH("/:id", s.editPlan)
	admin.DELETE("/:id", s.deletePlan)

	return router
}
