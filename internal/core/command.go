package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin subscribes the session to a conversation's delivery stream.
	CommandJoin CommandKind = iota
	// CommandLeave unsubscribes the session from a conversation.
	CommandLeave
	// CommandOpen resolves a target and joins the resulting conversation.
	CommandOpen
	// CommandSend submits a new message to a conversation or target.
	CommandSend
	// CommandTyping reports a keystroke in an open conversation.
	CommandTyping
	// CommandTypingStop ends typing in a conversation immediately.
	CommandTypingStop
	// CommandMarkRead flags a single unread entry read.
	CommandMarkRead
	// CommandMarkAllRead flags every unread entry of the user read.
	CommandMarkAllRead
	// CommandListOnline returns the current online set.
	CommandListOnline
	// CommandFetchPending returns the user's unread entries.
	CommandFetchPending
	// CommandHistory returns older messages of a joined conversation.
	CommandHistory
	// CommandPing is answered with an empty ack.
	CommandPing
)

var commandNames = [...]string{
	CommandJoin:         "join",
	CommandLeave:        "leave",
	CommandOpen:         "open",
	CommandSend:         "send",
	CommandTyping:       "typing",
	CommandTypingStop:   "typing_stop",
	CommandMarkRead:     "mark_read",
	CommandMarkAllRead:  "mark_all_read",
	CommandListOnline:   "online",
	CommandFetchPending: "pending",
	CommandHistory:      "history",
	CommandPing:         "ping",
}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return "unknown"
}

// Command represents an action requested by a client.
// Commands carrying a RequestID are answered with exactly one ack event.
type Command struct {
	Kind           CommandKind
	RequestID      string
	ConversationID int64
	Target         Target
	Body           string
	ClientMsgID    string
	MessageID      int64
	BeforeID       int64
	Limit          int
}
