package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/telemetry"
)

const (
	identityContextKey  = "identity"
	sessionIDContextKey = "session_id"
)

// sessionID reads the session id from a bearer token, falling back to the cookie.
func (s *Server) sessionID(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	cookie, err := c.Cookie(s.cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie
}

// authenticate resolves the session into an identity or rejects the request
// with 401. Missing, expired and corrupt sessions are all treated as absent.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		sessionID := s.sessionID(c)
		if sessionID == "" {
			respondMessage(c, http.StatusUnauthorized, msgUnauthenticated)
			return
		}

		identity, found, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			telemetry.GetMetrics().StoreUnavailableTotal.Add(ctx, 1)
			zerolog.Ctx(ctx).Warn().Err(err).Msg("session lookup failed")
			respondMessage(c, http.StatusServiceUnavailable, msgUnavailable)
			return
		}
		if !found {
			respondMessage(c, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		if !identity.Active {
			respondMessage(c, http.StatusForbidden, msgForbidden)
			return
		}

		c.Set(identityContextKey, identity)
		c.Set(sessionIDContextKey, sessionID)

		c.Request = c.Request.WithContext(zerolog.Ctx(ctx).With().
			Int64("user_id", identity.UserID).
			Logger().WithContext(ctx))

		c.Next()
	}
}

// requireAdmin must run after authenticate.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		if identity == nil || !identity.IsAdmin() {
			respondMessage(c, http.StatusForbidden, msgForbidden)
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) *models.Identity {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return nil
	}
	identity, _ := value.(*models.Identity)
	return identity
}
