package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/auth"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

// APIHandlers provides the session endpoints.
type APIHandlers struct {
	authService *auth.Service
	hub         *core.Hub
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		hub:         hub,
		log:         logger,
	}
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// LogoutResponse reports how many live sessions were closed.
type LogoutResponse struct {
	SessionsClosed int `json:"sessions_closed"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
	Online   bool     `json:"online"`
}

func userResponse(u *store.User, online bool) UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name(),
		Roles:    roles,
		Online:   online,
	}
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", user.ID).Msg("user logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token, User: userResponse(user, h.hub.IsOnline(user.ID))})
}

// Logout revokes the user's tokens and closes every live session.
// POST /api/logout
func (h *APIHandlers) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	h.authService.Logout(user.ID)
	closed := h.hub.DisconnectUser(user.ID, core.CloseLogout)

	h.log.Info().Int64("user_id", user.ID).Int("sessions", closed).Msg("user logged out")
	c.JSON(http.StatusOK, LogoutResponse{SessionsClosed: closed})
}

// Me returns the authenticated user.
// GET /api/me
func (h *APIHandlers) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, userResponse(user, h.hub.IsOnline(user.ID)))
}

// writeCoreError maps a domain error to an HTTP status.
func writeCoreError(c *gin.Context, logger *zerolog.Logger, err error) {
	ce := core.AsCoreError(err)
	status := http.StatusInternalServerError
	switch ce.Code {
	case core.ErrCodeBadRequest, core.ErrCodeInvalidTarget:
		status = http.StatusBadRequest
	case core.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case core.ErrCodeForbidden:
		status = http.StatusForbidden
	case core.ErrCodeNotFound:
		status = http.StatusNotFound
	case core.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}
