// ABOUTME: Record types and storage contracts for conversations and the business profile
// ABOUTME: Defines Message, Conversation, BusinessProfile and the storage keys they live under

package store

import (
	"context"
	"errors"
	"strings"

	"github.com/2389/botdesk/internal/broadcast"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = errors.New("not found")

// ErrPersist marks a write that failed to reach durable storage. It is a
// warning: the caller's in-memory state stays valid.
var ErrPersist = errors.New("persist failed")

// Storage keys. These match the keys earlier clients wrote, so existing
// data is picked up unchanged.
const (
	KeyConversations   = "conversations"
	KeyBusinessProfile = "businessFields"
)

// DefaultTitle is used when a conversation is saved before any user message.
const DefaultTitle = "New Conversation"

// Message is one turn half. Messages are immutable once appended.
type Message struct {
	Text           string `json:"text"`
	IsUser         bool   `json:"isUser"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// Conversation is a titled, ordered message history.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// BusinessProfile describes the user's business. Every field is optional.
type BusinessProfile struct {
	Product          string `json:"product"`
	TargetCustomer   string `json:"targetCustomer"`
	GeographicMarket string `json:"geographicMarket"`
	PricingStrategy  string `json:"pricingStrategy"`
	MainChannels     string `json:"mainChannels"`
}

// IsBlank reports whether every field is empty after trimming.
func (p BusinessProfile) IsBlank() bool {
	return strings.TrimSpace(p.Product) == "" &&
		strings.TrimSpace(p.TargetCustomer) == "" &&
		strings.TrimSpace(p.GeographicMarket) == "" &&
		strings.TrimSpace(p.PricingStrategy) == "" &&
		strings.TrimSpace(p.MainChannels) == ""
}

// Area is the slice of durable storage one view reads and writes.
type Area interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Update is an atomic read-modify-write of key across every view
	// sharing the underlying storage. See kv.Handle.Update.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
	ViewID() string
}

// Notifier is told about every committed write, after it commits.
type Notifier interface {
	Invalidate(viewID string, topic broadcast.Topic)
}

// Routes maps each storage key to the topic its changes invalidate.
func Routes() map[string]broadcast.Topic {
	return map[string]broadcast.Topic{
		KeyConversations:   broadcast.TopicConversations,
		KeyBusinessProfile: broadcast.TopicProfile,
	}
}

// TitleFor derives a conversation title from its first user message.
func TitleFor(messages []Message) string {
	for _, m := range messages {
		if m.IsUser && strings.TrimSpace(m.Text) != "" {
			return m.Text
		}
	}
	return DefaultTitle
}

// CloneMessages returns a copy of messages that shares no backing array.
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// Clone returns a deep copy of c.
func (c Conversation) Clone() Conversation {
	c.Messages = CloneMessages(c.Messages)
	return c
}
