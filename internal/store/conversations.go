// ABOUTME: ConversationStore keeps the ordered list of conversations under one storage key
// ABOUTME: Creates, appends to, and looks up conversations, notifying views after each commit

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/botdesk/internal/broadcast"
	"github.com/2389/botdesk/internal/kv"
)

// ConversationStore owns the durable list of conversations.
type ConversationStore struct {
	area     Area
	notifier Notifier
	logger   *slog.Logger
	newID    func() string
}

// NewConversationStore creates a store over area. notifier may be nil.
// Pass nil logger for default.
func NewConversationStore(area Area, notifier Notifier, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		area:     area,
		notifier: notifier,
		logger:   logger.With("component", "conversations", "view_id", area.ViewID()),
		newID:    newConversationID,
	}
}

// newConversationID returns a time-ordered UUID, falling back to a random one.
func newConversationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// ListAll returns every conversation, most recently created first. Missing
// or unreadable storage yields an empty list.
func (s *ConversationStore) ListAll(ctx context.Context) []Conversation {
	list, err := s.read(ctx)
	if err != nil {
		s.logger.Warn("conversation list unavailable", "error", err)
		return []Conversation{}
	}
	return list
}

// GetByID returns a copy of the conversation with the given id.
func (s *ConversationStore) GetByID(ctx context.Context, id string) (Conversation, error) {
	for _, c := range s.ListAll(ctx) {
		if c.ID == id {
			return c, nil
		}
	}
	return Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
}

// CreateOrAppend saves messages as the full history of conversation
// currentID and returns its id.
//
// An empty currentID creates a new conversation at the front of the list,
// titled after the first user message. Otherwise the stored messages are
// replaced and the title and position are left alone. An id that is no
// longer stored is recreated at the front under the same id.
//
// The list is rewritten through Area.Update, so concurrent saves from
// different views never drop each other's records.
//
// A write failure returns the id together with an ErrPersist error.
func (s *ConversationStore) CreateOrAppend(ctx context.Context, currentID string, messages []Message) (string, error) {
	msgs := CloneMessages(messages)
	if msgs == nil {
		msgs = []Message{}
	}

	id := currentID
	if id == "" {
		id = s.newID()
	}

	var (
		read    bool
		created *Conversation
	)
	err := s.area.Update(ctx, KeyConversations, func(raw []byte) ([]byte, error) {
		read = true

		list, err := decodeList(raw)
		if err != nil {
			s.logger.Warn("discarding unreadable conversation list", "error", err)
			list = nil
		}

		updated := false
		if currentID != "" {
			for i := range list {
				if list[i].ID == id {
					list[i].Messages = msgs
					updated = true
					break
				}
			}
		}
		if !updated {
			record := Conversation{ID: id, Title: TitleFor(msgs), Messages: msgs}
			list = append([]Conversation{record}, list...)
			created = &record
		}

		out, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", KeyConversations, err)
		}
		return out, nil
	})
	if err != nil {
		if !read {
			// Storage itself is unreachable; nothing was written over it
			s.logger.Warn("skipping conversation save", "conversation_id", id, "error", err)
		} else {
			s.logger.Warn("conversation save failed", "conversation_id", id, "error", err)
		}
		return id, fmt.Errorf("save conversation %s: %w: %w", id, ErrPersist, err)
	}

	if created != nil {
		s.logger.Info("conversation created", "conversation_id", id, "title", created.Title)
	}
	s.logger.Debug("conversation saved", "conversation_id", id, "messages", len(msgs))
	if s.notifier != nil {
		s.notifier.Invalidate(s.area.ViewID(), broadcast.TopicConversations)
	}
	return id, nil
}

// read loads and decodes the list. A missing key is an empty list.
func (s *ConversationStore) read(ctx context.Context) ([]Conversation, error) {
	raw, err := s.area.Get(ctx, KeyConversations)
	if errors.Is(err, kv.ErrNotFound) {
		return []Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", KeyConversations, err)
	}
	return decodeList(raw)
}

// decodeList parses a stored list, dropping records without an id and
// filling in missing titles. nil input is an empty list.
func decodeList(raw []byte) ([]Conversation, error) {
	if raw == nil {
		return []Conversation{}, nil
	}

	var list []Conversation
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyConversations, err)
	}

	out := make([]Conversation, 0, len(list))
	for _, c := range list {
		if c.ID == "" {
			continue
		}
		if c.Title == "" {
			c.Title = TitleFor(c.Messages)
		}
		out = append(out, c)
	}
	return out, nil
}
