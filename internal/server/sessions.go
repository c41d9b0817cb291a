package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
	"golang.org/x/crypto/bcrypt"

	httpmiddleware "github.com/wolfeidau/bookstore/internal/http"
)

const msgInvalidCredentials = "Invalid email or password."

// dummyHash is compared against when the email is unknown so both paths cost a bcrypt check.
var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("bookstore-dummy-password"), bcrypt.DefaultCost)
	return hash
})

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	*models.Session
	ExpiresIn int64 `json:"expiresIn"`
}

func (s *Server) login(c *gin.Context) {
	ctx := c.Request.Context()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Email and password are required.")
		return
	}

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			respondError(c, err)
			return
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(req.Password))
		respondMessage(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondMessage(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	if !user.Active {
		respondMessage(c, http.StatusForbidden, "Your account is disabled.")
		return
	}

	sess, err := s.sessions.Create(ctx, user.Identity())
	if err != nil {
		respondError(c, err)
		return
	}

	s.setSessionCookie(c, sess.SessionID)

	zerolog.Ctx(ctx).Info().
		Int64("user_id", user.UserID).
		Str("client_ip", httpmiddleware.ClientIPFromContext(ctx)).
		Msg("User logged in")

	c.JSON(http.StatusCreated, sessionResponse{Session: sess, ExpiresIn: int64(s.sessions.TTL().Seconds())})
}

func (s *Server) logout(c *gin.Context) {
	sessionID := c.GetString(sessionIDContextKey)

	if err := s.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		respondError(c, err)
		return
	}

	s.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

// refresh reloads the user so role or profile edits reach the session, then
// restarts its lifetime under the same id.
func (s *Server) refresh(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.GetString(sessionIDContextKey)
	identity := identityFrom(c)

	user, err := s.users.Get(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			_ = s.sessions.Delete(ctx, sessionID)
			s.clearSessionCookie(c)
			respondMessage(c, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		respondError(c, err)
		return
	}

	fresh := user.Identity()
	if err := s.sessions.Refresh(ctx, sessionID, fresh); err != nil {
		// Logged out between authentication and the write
		if errors.Is(err, store.ErrSessionNotFound) {
			s.clearSessionCookie(c)
			respondMessage(c, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		respondError(c, err)
		return
	}

	s.setSessionCookie(c, sessionID)

	c.JSON(http.StatusOK, sessionResponse{
		Session:   &models.Session{SessionID: sessionID, Identity: fresh},
		ExpiresIn: int64(s.sessions.TTL().Seconds()),
	})
}

func (s *Server) setSessionCookie(c *gin.Context, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.CookieName, sessionID, int(s.sessions.TTL().Seconds()), "/", "", s.cfg.CookieSecure, true)
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.CookieName, "", -1, "/", "", s.cfg.CookieSecure, true)
}
