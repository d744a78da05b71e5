package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/service/conversations"
)

// ConversationHandlers resolves conversations and pages their history.
type ConversationHandlers struct {
	conversations *conversations.Service
	hub           *core.Hub
	log           *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(convs *conversations.Service, hub *core.Hub, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		conversations: convs,
		hub:           hub,
		log:           logger,
	}
}

// OpenDirectRequest names the other participant.
type OpenDirectRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// OpenGroupRequest names the role group.
type OpenGroupRequest struct {
	Role string `json:"role" binding:"required"`
}

// GroupsResponse lists groups offered to the caller.
type GroupsResponse struct {
	Groups []conversations.GroupSummary `json:"groups"`
}

// OpenDirect finds or creates the direct conversation with another user.
// POST /api/conversations/direct
func (h *ConversationHandlers) OpenDirect(c *gin.Context) {
	var req OpenDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	h.resolve(c, core.UserTarget(req.UserID))
}

// OpenGroup resolves the group conversation of a role. Answers 204 when
// the role has no eligible members.
// POST /api/conversations/group
func (h *ConversationHandlers) OpenGroup(c *gin.Context) {
	var req OpenGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	h.resolve(c, core.RoleTarget(req.Role))
}

func (h *ConversationHandlers) resolve(c *gin.Context, target core.Target) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	res, err := h.conversations.Resolve(c.Request.Context(), user.ID, target)
	if errors.Is(err, core.ErrNotApplicable) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conversationToProto(res))
}

// ListGroups returns the role groups visible to the caller.
// GET /api/groups
func (h *ConversationHandlers) ListGroups(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	groups, err := h.conversations.ListGroupsVisibleTo(c.Request.Context(), user.ID)
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}
	if groups == nil {
		groups = []conversations.GroupSummary{}
	}
	c.JSON(http.StatusOK, GroupsResponse{Groups: groups})
}

// ListMessages pages older messages of a conversation.
// GET /api/conversations/:id/messages?limit=50&before=123
func (h *ConversationHandlers) ListMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || convID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}
	before, err := queryInt(c, "before")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
		return
	}

	page, err := h.hub.History(c.Request.Context(), user.ID, convID, int(limit), before)
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, historyToProto(page))
}

func queryInt(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid integer")
	}
	return v, nil
}
