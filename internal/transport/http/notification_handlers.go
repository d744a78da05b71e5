package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

// NotificationHandlers exposes the unread inbox.
type NotificationHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(hub *core.Hub, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{hub: hub, log: logger}
}

// MarkReadRequest flags one entry, or everything when MessageID is zero.
type MarkReadRequest struct {
	MessageID int64 `json:"message_id"`
}

// List returns the caller's unread entries, newest first.
// GET /api/notifications
func (h *NotificationHandlers) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	entries, err := h.hub.FetchPending(c.Request.Context(), user.ID)
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, proto.PendingResult{Entries: unreadListToProto(entries)})
}

// MarkRead flags entries read and notifies every session of the caller.
// POST /api/notifications/read
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	// An empty body marks everything; chunked bodies report no length.
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var (
		res *core.ReadResult
		err error
	)
	if req.MessageID > 0 {
		res, err = h.hub.MarkRead(c.Request.Context(), user.ID, req.MessageID)
	} else {
		res, err = h.hub.MarkAllRead(c.Request.Context(), user.ID)
	}
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, proto.ReadResult{Changed: res.Changed})
}
