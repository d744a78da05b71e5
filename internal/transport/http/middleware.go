package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/auth"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUser is the context key for the authenticated *store.User.
	ContextKeyUser = "user"
	// ContextKeyExpiresAt is the context key for the token expiry.
	ContextKeyExpiresAt = "expires_at"
)

// AuthMiddleware authenticates the bearer token and loads the user with
// their current roles.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.Request)
		if err != nil {
			logger.Debug().Err(err).Msg("missing credentials")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			return
		}

		identity, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				logger.Debug().Err(err).Msg("invalid token")
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
				return
			}
			logger.Error().Err(err).Msg("authenticate")
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		c.Set(ContextKeyUserID, identity.User.ID)
		c.Set(ContextKeyUser, identity.User)
		c.Set(ContextKeyExpiresAt, identity.ExpiresAt)

		c.Next()
	}
}

// bearerToken reads "Authorization: Bearer <token>" or the token query
// parameter. Browsers cannot set headers on a WebSocket upgrade.
func bearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errors.New("missing authorization header")
}

func currentUser(c *gin.Context) (*store.User, bool) {
	v, ok := c.Get(ContextKeyUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*store.User)
	return u, ok && u != nil
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		if uid, ok := c.Get(ContextKeyUserID); ok {
			if id, ok := uid.(int64); ok {
				ev = ev.Int64("user_id", id)
			}
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
