package http

import (
	"encoding/json"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

const errCodeUnknownType = "unknown_type"

// inboundToCommand maps a client frame to a core command. A non-nil
// proto.Error means the frame was rejected and must be answered directly.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	cmd := &core.Command{RequestID: inbound.ID}
	if inbound.ID == "" && needsAck(inbound.Type) {
		return nil, badRequest(inbound.Type + " requires an id")
	}

	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave, proto.InboundTypeTyping, proto.InboundTypeTypingStop:
		var data proto.ConversationData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		if data.ConversationID <= 0 {
			return nil, badRequest("conversation_id is required")
		}
		cmd.ConversationID = data.ConversationID
		switch inbound.Type {
		case proto.InboundTypeJoin:
			cmd.Kind = core.CommandJoin
		case proto.InboundTypeLeave:
			cmd.Kind = core.CommandLeave
		case proto.InboundTypeTyping:
			cmd.Kind = core.CommandTyping
		default:
			cmd.Kind = core.CommandTypingStop
		}
	case proto.InboundTypeOpen:
		var data proto.OpenData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		target, perr := targetFromProto(data.Target)
		if perr != nil {
			return nil, perr
		}
		cmd.Kind = core.CommandOpen
		cmd.Target = target
	case proto.InboundTypeSend:
		var data proto.SendData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		cmd.Kind = core.CommandSend
		cmd.Body = data.Body
		cmd.ClientMsgID = data.ClientMsgID
		switch {
		case data.ConversationID > 0:
			cmd.ConversationID = data.ConversationID
		case data.Target != nil:
			target, perr := targetFromProto(*data.Target)
			if perr != nil {
				return nil, perr
			}
			cmd.Target = target
		default:
			return nil, badRequest("conversation_id or target is required")
		}
	case proto.InboundTypeMarkRead:
		var data proto.MarkReadData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		cmd.Kind = core.CommandMarkRead
		cmd.MessageID = data.MessageID
	case proto.InboundTypeMarkAllRead:
		cmd.Kind = core.CommandMarkAllRead
	case proto.InboundTypeOnline:
		cmd.Kind = core.CommandListOnline
	case proto.InboundTypePending:
		cmd.Kind = core.CommandFetchPending
	case proto.InboundTypeHistory:
		var data proto.HistoryData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		if data.ConversationID <= 0 {
			return nil, badRequest("conversation_id is required")
		}
		cmd.Kind = core.CommandHistory
		cmd.ConversationID = data.ConversationID
		cmd.BeforeID = data.BeforeID
		cmd.Limit = data.Limit
	case proto.InboundTypePing:
		cmd.Kind = core.CommandPing
	default:
		return nil, &proto.Error{Code: errCodeUnknownType, Msg: "unknown message type"}
	}
	return cmd, nil
}

// needsAck reports frame types whose outcome only travels in the ack.
func needsAck(typ string) bool {
	switch typ {
	case proto.InboundTypeJoin, proto.InboundTypeOpen, proto.InboundTypeSend,
		proto.InboundTypeHistory, proto.InboundTypeOnline, proto.InboundTypePending:
		return true
	}
	return false
}

func decode(raw json.RawMessage, v any) *proto.Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return badRequest("malformed data: " + err.Error())
	}
	return nil
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func targetFromProto(t proto.Target) (core.Target, *proto.Error) {
	switch core.TargetKind(t.Kind) {
	case core.TargetUser:
		if t.UserID <= 0 {
			return core.Target{}, badRequest("target.user_id is required")
		}
		return core.UserTarget(t.UserID), nil
	case core.TargetRole:
		if t.Role == "" {
			return core.Target{}, badRequest("target.role is required")
		}
		return core.RoleTarget(t.Role), nil
	default:
		return core.Target{}, badRequest(`target.kind must be "user" or "role"`)
	}
}

// rejectEvent answers a frame the mapper refused. Frames with an id get
// a failed ack so the client can settle the pending request.
func rejectEvent(requestID string, perr *proto.Error) *core.Event {
	ce := &core.CoreError{Code: perr.Code, Message: perr.Msg}
	if requestID == "" {
		return &core.Event{Kind: core.EventError, Error: ce}
	}
	return &core.Event{Kind: core.EventAck, Ack: &core.Ack{RequestID: requestID, Error: ce}}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventHello:
		h := event.Hello
		return eventFrame(proto.EventHello, proto.EventHelloData{
			Protocol:  proto.ProtocolVersion,
			SessionID: h.SessionID,
			UserID:    h.UserID,
			Name:      h.Name,
			Roles:     h.Roles,
			Online:    onlineToProto(h.Online),
			Pending:   h.Pending,
		})
	case core.EventMessage:
		return eventFrame(proto.EventMessage, messageToProto(event.Message))
	case core.EventPresence:
		p := event.Presence
		return eventFrame(proto.EventPresence, proto.EventPresenceData{
			UserID:  p.UserID,
			Name:    p.Name,
			Online:  p.Online,
			Version: p.Version,
			At:      p.At.UnixMilli(),
		})
	case core.EventTyping:
		t := event.Typing
		return eventFrame(proto.EventTyping, proto.EventTypingData{
			ConversationID: t.ConversationID,
			UserID:         t.UserID,
			Name:           t.Name,
			Typing:         t.Typing,
			Target:         targetToProto(t.Target),
		})
	case core.EventUnread:
		return eventFrame(proto.EventUnread, unreadToProto(event.Unread))
	case core.EventUnreadCleared:
		return eventFrame(proto.EventUnreadCleared, proto.EventUnreadClearedData{
			MessageIDs: event.Cleared.MessageIDs,
			All:        event.Cleared.All,
		})
	case core.EventAck:
		return ackFrame(event.Ack)
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventFrame(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func ackFrame(ack *core.Ack) proto.Outbound {
	ok := ack.Error == nil
	out := proto.Outbound{Type: proto.OutboundTypeAck, ID: ack.RequestID, OK: &ok}
	if !ok {
		out.Error = &proto.Error{Code: ack.Error.Code, Msg: ack.Error.Message}
		return out
	}
	out.Data = ackData(ack.Data)
	return out
}

func ackData(data any) any {
	switch d := data.(type) {
	case *core.JoinResult:
		if d == nil {
			return nil
		}
		return joinToProto(d)
	case *core.SendResult:
		if d == nil {
			return nil
		}
		return proto.SendResult{Message: messageToProto(d.Message)}
	case *core.OnlineResult:
		if d == nil {
			return nil
		}
		return proto.OnlineResult{Users: onlineToProto(d.Users)}
	case *core.PendingResult:
		if d == nil {
			return nil
		}
		return proto.PendingResult{Entries: unreadListToProto(d.Entries)}
	case *core.ReadResult:
		if d == nil {
			return nil
		}
		return proto.ReadResult{Changed: d.Changed}
	case *core.HistoryResult:
		if d == nil {
			return nil
		}
		return historyToProto(d)
	default:
		return nil
	}
}

func joinToProto(r *core.JoinResult) proto.JoinResult {
	out := proto.JoinResult{Applicable: r.Applicable, Already: r.Already}
	if r.Resolution.Conversation != nil {
		conv := conversationToProto(r.Resolution)
		out.Conversation = &conv
		out.History = messagesToProto(r.History)
	}
	return out
}

func historyToProto(r *core.HistoryResult) proto.HistoryResult {
	return proto.HistoryResult{
		ConversationID: r.ConversationID,
		Messages:       messagesToProto(r.Messages),
	}
}

func conversationToProto(res core.Resolution) proto.Conversation {
	members := make([]proto.Member, 0, len(res.Members))
	for _, m := range res.Members {
		members = append(members, proto.Member{UserID: m.UserID, Name: m.Name})
	}
	return proto.Conversation{
		ID:      res.Conversation.ID,
		Kind:    string(res.Conversation.Kind),
		Role:    res.Conversation.Role,
		Members: members,
	}
}

func messageToProto(m core.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Kind:           string(m.Kind),
		Role:           m.Role,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		ClientMsgID:    m.ClientMsgID,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

func messagesToProto(msgs []core.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToProto(m))
	}
	return out
}

func onlineToProto(users []core.OnlineUser) []proto.OnlineUser {
	out := make([]proto.OnlineUser, 0, len(users))
	for _, u := range users {
		out = append(out, proto.OnlineUser{UserID: u.UserID, Name: u.Name, Sessions: u.Sessions, Version: u.Version})
	}
	return out
}

func targetToProto(t core.Target) proto.Target {
	return proto.Target{Kind: string(t.Kind), UserID: t.UserID, Role: t.Role}
}

func unreadToProto(e *store.UnreadEntry) proto.UnreadEntry {
	return proto.UnreadEntry{
		MessageID:      e.MessageID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		SenderName:     e.SenderName,
		Body:           e.Body,
		CreatedAt:      e.CreatedAt.UnixMilli(),
	}
}

func unreadListToProto(entries []*store.UnreadEntry) []proto.UnreadEntry {
	out := make([]proto.UnreadEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, unreadToProto(e))
	}
	return out
}
