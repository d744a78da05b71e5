package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/service/conversations"
)

// UserHandlers serves the staff directory and presence listing.
type UserHandlers struct {
	conversations *conversations.Service
	hub           *core.Hub
	log           *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(convs *conversations.Service, hub *core.Hub, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		conversations: convs,
		hub:           hub,
		log:           logger,
	}
}

// UsersResponse is the staff directory.
type UsersResponse struct {
	Users []UserResponse `json:"users"`
}

// ListUsers returns every other user with their online flag.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	viewer, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	users, err := h.conversations.ListUsers(c.Request.Context(), viewer.ID)
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse(u, h.hub.IsOnline(u.ID)))
	}
	c.JSON(http.StatusOK, UsersResponse{Users: out})
}

// Presence lists users with at least one live session.
// GET /api/presence
func (h *UserHandlers) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, proto.OnlineResult{Users: onlineToProto(h.hub.Online())})
}
