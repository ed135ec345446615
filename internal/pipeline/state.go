// ABOUTME: Turn states and the in-memory session a pipeline owns
// ABOUTME: Defines State, Session, Attachment and Notice

package pipeline

import "github.com/2389/botdesk/internal/store"

// State is where the current turn stands.
type State int

const (
	StateIdle State = iota
	StateComposing
	StateSending
	StateAwaitingRemote
	StateSettled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StateSending:
		return "sending"
	case StateAwaitingRemote:
		return "awaiting_remote"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a turn is in flight.
func (s State) Busy() bool {
	return s == StateSending || s == StateAwaitingRemote
}

// Attachment is a document waiting to go out with the next turn.
type Attachment struct {
	Name string
	Data []byte
}

// Session is the in-memory state of the conversation being composed. It is
// never persisted; Pipeline.Session returns copies.
type Session struct {
	// CurrentConversationID is empty until the first turn of a new
	// conversation is saved, then fixed for that conversation's life.
	CurrentConversationID string
	PendingAttachment     *Attachment
	IsAwaitingResponse    bool
	Messages              []store.Message
	Draft                 string
	State                 State
	ShowSuggestions       bool
}

func (s Session) clone() Session {
	s.Messages = store.CloneMessages(s.Messages)
	if s.PendingAttachment != nil {
		att := *s.PendingAttachment
		s.PendingAttachment = &att
	}
	return s
}

// NoticeKind separates informational notices from errors.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeError
)

func (k NoticeKind) String() string {
	if k == NoticeError {
		return "error"
	}
	return "info"
}

// Notice is a transient, non-blocking message for the user.
type Notice struct {
	Kind        NoticeKind
	Title       string
	Description string
}
