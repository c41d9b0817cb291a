package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/bookstore/internal/logger"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/server"
	"github.com/wolfeidau/bookstore/internal/session"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/subscription"
	"github.com/wolfeidau/bookstore/internal/telemetry"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"BOOKSTORE_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"BOOKSTORE_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"BOOKSTORE_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"BOOKSTORE_CORS_ORIGINS"`

	// Application configuration
	Namespace       string        `help:"key namespace for sessions" default:"bookstore" env:"BOOKSTORE_NAMESPACE"`
	SessionDuration string        `help:"session lifetime, e.g. 1d, 12h, '2 days' or '1 year'; a bare number is milliseconds" default:"1d" env:"BOOKSTORE_SESSION_DURATION"`
	BillingPeriod   time.Duration `help:"subscription billing period" default:"720h" env:"BOOKSTORE_BILLING_PERIOD"`
	RequestTimeout  time.Duration `help:"deadline for each request including store calls" default:"10s" env:"BOOKSTORE_REQUEST_TIMEOUT"`
	CookieSecure    bool          `help:"mark the session cookie as HTTPS only" default:"false" env:"BOOKSTORE_COOKIE_SECURE"`
	ShutdownTimeout time.Duration `help:"graceful shutdown timeout" default:"15s" env:"BOOKSTORE_SHUTDOWN_TIMEOUT"`

	// Bootstrap admin, created at startup when missing
	AdminEmail    string `help:"email of an admin user to create at startup" default:"" env:"BOOKSTORE_ADMIN_EMAIL"`
	AdminPassword string `help:"password of the bootstrap admin user" default:"" env:"BOOKSTORE_ADMIN_PASSWORD"`

	// Development and operational modes
	Tracing bool `help:"enable tracing and metrics export" default:"false" env:"BOOKSTORE_TRACING"`

	// Store configuration
	StoreType        string        `help:"store type (memory or postgres)" default:"memory" env:"BOOKSTORE_STORE_TYPE" enum:"memory,postgres"`
	SessionStoreType string        `help:"session store type (memory or redis)" default:"memory" env:"BOOKSTORE_SESSION_STORE_TYPE" enum:"memory,redis"`
	Postgres         PostgresFlags `embed:"" prefix:"postgres-"`
	Redis            RedisFlags    `embed:"" prefix:"redis-"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	sessionTTL, err := session.ParseDuration(c.SessionDuration)
	if err != nil {
		return fmt.Errorf("invalid session duration: %w", err)
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{ServiceName: "bookstore-server", Version: globals.Version})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	st, err := openStores(ctx, log, c.StoreType, &c.Postgres)
	if err != nil {
		return err
	}
	defer st.close()

	sessionBackend, closeSessions, err := openSessionStore(ctx, log, c.SessionStoreType, &c.Redis)
	if err != nil {
		return err
	}
	defer closeSessions()

	sessions, err := session.NewService(sessionBackend, session.Config{Namespace: c.Namespace, TTL: sessionTTL})
	if err != nil {
		return err
	}

	ledger, err := subscription.NewLedger(st.plans, st.subscriptions, st.usage, subscription.LedgerConfig{BillingPeriod: c.BillingPeriod})
	if err != nil {
		return err
	}

	if c.AdminEmail != "" {
		if err := ensureAdmin(ctx, log, st.users, c.AdminEmail, c.AdminPassword); err != nil {
			return err
		}
	}

	srv := server.NewServer(subscription.NewCatalog(st.plans), ledger, sessions, st.users, server.Config{
		RequestTimeout: c.RequestTimeout,
		CookieSecure:   c.CookieSecure,
	})

	handler := gzhttp.GzipHandler(withCORS(c.CORSOrigins, srv.Handler(log)))
	httpServer := configureHTTPServer(c.Listen, handler)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", c.Listen).
			Bool("tls", c.Cert != "").
			Str("namespace", c.Namespace).
			Dur("session_ttl", sessionTTL).
			Msg("Starting HTTP server")

		var err error
		if c.Cert != "" && c.Key != "" {
			err = httpServer.ListenAndServeTLS(c.Cert, c.Key)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ensureAdmin creates the bootstrap admin unless the email is already registered.
func ensureAdmin(ctx context.Context, log zerolog.Logger, users store.UserStore, email, password string) error {
	_, err := users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	if len(password) < minPasswordLength {
		return fmt.Errorf("admin password must be at least %d characters", minPasswordLength)
	}

	user, err := newUser(email, password, "Admin", "", models.RoleAdmin)
	if err != nil {
		return err
	}
	if err := users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.Info().Int64("user_id", user.UserID).Str("email", email).Msg("Created bootstrap admin user")
	return nil
}

func newUser(email, password, firstName, lastName string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &models.User{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}, nil
}

// withCORS adds CORS support to the API handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
