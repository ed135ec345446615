// ABOUTME: MessagePipeline runs chat turns from draft to persisted reply
// ABOUTME: Enforces one in-flight turn per session and recovers locally from every failure

package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/2389/botdesk/internal/client"
	"github.com/2389/botdesk/internal/store"
)

var (
	// ErrTurnInFlight is returned when an operation needs the turn to be over
	ErrTurnInFlight = errors.New("a response is still pending")
	// ErrInvalidAttachment is returned when a file cannot be attached
	ErrInvalidAttachment = errors.New("invalid attachment")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("pipeline closed")
)

// ApologyText replaces the model reply when the remote call fails.
const ApologyText = "Sorry, I couldn't get a response right now. Please try again."

// Conversations is the part of the conversation store a pipeline uses.
type Conversations interface {
	CreateOrAppend(ctx context.Context, currentID string, messages []store.Message) (string, error)
	GetByID(ctx context.Context, id string) (store.Conversation, error)
}

// Profiles is the part of the profile store a pipeline uses.
type Profiles interface {
	Load(ctx context.Context) (store.BusinessProfile, bool)
	Save(ctx context.Context, p store.BusinessProfile) error
}

// Responder produces the remote reply for a turn.
type Responder interface {
	Chat(ctx context.Context, req client.ChatRequest) (string, error)
}

// Config holds attachment rules and starter prompts.
type Config struct {
	// AllowedExtensions lists accepted file extensions such as ".pdf".
	// Empty accepts any file.
	AllowedExtensions []string
	// MaxAttachmentBytes caps attachment size. Zero means no cap.
	MaxAttachmentBytes int64
	Suggestions        []string
}

// Deps are the collaborators a pipeline calls.
type Deps struct {
	Conversations Conversations
	Profiles      Profiles
	Remote        Responder
	// Notify receives transient notices. Optional.
	Notify func(Notice)
	// OnChange is called after every session change. Optional.
	OnChange func()
}

// Pipeline owns one Session and runs its turns.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	session Session
	epoch   uint64
	closed  bool

	inflight sync.WaitGroup
}

// New creates a Pipeline with an empty session. Pass nil logger for default.
func New(cfg Config, deps Deps, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	exts := make([]string, 0, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	cfg.AllowedExtensions = exts
	cfg.Suggestions = append([]string(nil), cfg.Suggestions...)

	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With("component", "pipeline"),
		session: Session{State: StateIdle, ShowSuggestions: true},
	}
}

// Session returns a copy of the current session.
func (p *Pipeline) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.clone()
}

// Messages returns a copy of the current message sequence.
func (p *Pipeline) Messages() []store.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return store.CloneMessages(p.session.Messages)
}

// IsAwaitingResponse reports whether a turn is in flight.
func (p *Pipeline) IsAwaitingResponse() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.IsAwaitingResponse
}

// State returns the current turn state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.State
}

// Suggestions returns the starter prompts while they should be shown, and
// nil otherwise.
func (p *Pipeline) Suggestions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.session.ShowSuggestions {
		return nil
	}
	return append([]string(nil), p.cfg.Suggestions...)
}

// UpdateDraft records the text being typed.
func (p *Pipeline) UpdateDraft(text string) {
	p.mu.Lock()
	p.session.Draft = text
	p.recomposeLocked()
	p.mu.Unlock()
	p.changed()
}

// Attach validates a document and makes it the pending attachment,
// replacing any earlier one. A rejected file leaves the session untouched.
func (p *Pipeline) Attach(name string, data []byte) error {
	if err := p.validateAttachment(name, data); err != nil {
		p.logger.Warn("attachment rejected", "name", name, "bytes", len(data), "error", err)
		p.notify(Notice{Kind: NoticeError, Title: "Invalid file", Description: noticeText(err)})
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.session.PendingAttachment = &Attachment{Name: filepath.Base(name), Data: append([]byte(nil), data...)}
	p.recomposeLocked()
	p.mu.Unlock()

	p.logger.Debug("attachment pending", "name", name, "bytes", len(data))
	p.changed()
	return nil
}

// DropAttachment discards the pending attachment.
func (p *Pipeline) DropAttachment() {
	p.mu.Lock()
	p.session.PendingAttachment = nil
	p.recomposeLocked()
	p.mu.Unlock()
	p.changed()
}

func (p *Pipeline) validateAttachment(name string, data []byte) error {
	base := filepath.Base(name)
	if strings.TrimSpace(name) == "" || base == "." || base == string(filepath.Separator) {
		return fmt.Errorf("%w: missing file name", ErrInvalidAttachment)
	}
	if len(p.cfg.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(base))
		allowed := false
		for _, want := range p.cfg.AllowedExtensions {
			if ext == want {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: only %s files can be attached", ErrInvalidAttachment,
				strings.Join(p.cfg.AllowedExtensions, ", "))
		}
	}
	if p.cfg.MaxAttachmentBytes > 0 && int64(len(data)) > p.cfg.MaxAttachmentBytes {
		return fmt.Errorf("%w: %s is larger than %s", ErrInvalidAttachment,
			humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(p.cfg.MaxAttachmentBytes)))
	}
	return nil
}

// Send starts a turn with draft. A blank draft is ignored: no turn, no
// error. While another turn is in flight it returns ErrTurnInFlight.
//
// The user message is appended and saved before Send returns; the remote
// call runs in the background and the returned Turn reports its outcome.
// The remote call is not tied to ctx's cancellation.
func (p *Pipeline) Send(ctx context.Context, draft string) (*Turn, error) {
	if strings.TrimSpace(draft) == "" {
		return nil, nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.session.State.Busy() {
		p.mu.Unlock()
		return nil, ErrTurnInFlight
	}

	att := p.session.PendingAttachment
	userMsg := store.Message{Text: draft, IsUser: true}
	if att != nil {
		userMsg.AttachmentName = att.Name
	}
	history := toHistory(p.session.Messages)

	p.session.Messages = append(store.CloneMessages(p.session.Messages), userMsg)
	p.session.Draft = ""
	p.session.IsAwaitingResponse = true
	p.session.ShowSuggestions = false
	p.session.State = StateSending

	epoch := p.epoch
	convID := p.session.CurrentConversationID
	snapshot := store.CloneMessages(p.session.Messages)
	p.inflight.Add(1)
	p.mu.Unlock()

	p.logger.Debug("turn started", "conversation_id", convID, "state", StateSending, "history", len(history))
	p.changed()

	turn := newTurn()

	// Save the user's own message before anything can go wrong remotely
	id, err := p.deps.Conversations.CreateOrAppend(ctx, convID, snapshot)
	if err != nil {
		p.logger.Warn("saving user message failed", "conversation_id", id, "error", err)
		turn.warn(err)
	}
	p.mu.Lock()
	if p.epoch == epoch && p.session.CurrentConversationID == "" {
		p.session.CurrentConversationID = id
	}
	p.mu.Unlock()
	turn.conversationID = id

	var fileContent *string
	if att != nil && len(att.Data) > 0 {
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		fileContent = &encoded
	}

	profile, _ := p.deps.Profiles.Load(ctx)
	req := client.ChatRequest{
		Message:          draft,
		History:          history,
		FileContent:      fileContent,
		Product:          profile.Product,
		TargetCustomer:   profile.TargetCustomer,
		GeographicMarket: profile.GeographicMarket,
		PricingStrategy:  profile.PricingStrategy,
		MainChannels:     profile.MainChannels,
	}

	p.mu.Lock()
	if p.epoch == epoch {
		p.session.State = StateAwaitingRemote
	}
	p.mu.Unlock()
	p.changed()

	go p.complete(context.WithoutCancel(ctx), turn, epoch, att, req)
	return turn, nil
}

// complete waits for the remote reply and settles the turn.
func (p *Pipeline) complete(ctx context.Context, turn *Turn, epoch uint64, att *Attachment, req client.ChatRequest) {
	defer p.inflight.Done()

	reply, remoteErr := p.deps.Remote.Chat(ctx, req)
	final := StateSettled
	model := store.Message{Text: reply}
	if remoteErr != nil {
		p.logger.Error("remote call failed", "conversation_id", turn.conversationID, "error", remoteErr)
		final = StateFailed
		model = store.Message{Text: ApologyText}
	}

	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		p.logger.Info("discarding stale reply", "conversation_id", turn.conversationID)
		turn.finish(StateFailed, remoteErr, true)
		return
	}
	p.session.Messages = append(store.CloneMessages(p.session.Messages), model)
	convID := p.session.CurrentConversationID
	snapshot := store.CloneMessages(p.session.Messages)
	p.mu.Unlock()

	id, err := p.deps.Conversations.CreateOrAppend(ctx, convID, snapshot)
	if err != nil {
		p.logger.Warn("saving reply failed", "conversation_id", id, "error", err)
		turn.warn(err)
	}

	p.mu.Lock()
	if p.epoch == epoch {
		if p.session.CurrentConversationID == "" {
			p.session.CurrentConversationID = id
		}
		if remoteErr == nil && p.session.PendingAttachment == att {
			p.session.PendingAttachment = nil
		}
		p.session.IsAwaitingResponse = false
		p.session.State = final
	}
	p.mu.Unlock()

	p.logger.Debug("turn finished", "conversation_id", id, "state", final)
	if remoteErr != nil {
		p.notify(Notice{
			Kind:        NoticeError,
			Title:       "Error",
			Description: "Failed to get a response. Please try again.",
		})
	}
	p.changed()
	turn.finish(final, remoteErr, false)
}

// SelectConversation replaces the session with a stored conversation. It is
// refused while a turn is in flight.
func (p *Pipeline) SelectConversation(ctx context.Context, id string) error {
	p.mu.Lock()
	if err := p.idleLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	conv, err := p.deps.Conversations.GetByID(ctx, id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if err := p.idleLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.epoch++
	p.session.CurrentConversationID = conv.ID
	p.session.Messages = store.CloneMessages(conv.Messages)
	p.session.PendingAttachment = nil
	p.session.ShowSuggestions = false
	p.session.State = StateIdle
	p.recomposeLocked()
	p.mu.Unlock()

	p.logger.Debug("conversation selected", "conversation_id", conv.ID, "messages", len(conv.Messages))
	p.notify(Notice{Kind: NoticeInfo, Title: "Conversation loaded", Description: "You can now continue your conversation."})
	p.changed()
	return nil
}

// NewConversation clears the session so the next turn starts a new
// conversation. It is refused while a turn is in flight.
func (p *Pipeline) NewConversation() error {
	p.mu.Lock()
	if err := p.idleLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.epoch++
	p.session.CurrentConversationID = ""
	p.session.Messages = nil
	p.session.PendingAttachment = nil
	p.session.ShowSuggestions = true
	p.session.State = StateIdle
	p.recomposeLocked()
	p.mu.Unlock()

	p.logger.Debug("new conversation")
	p.notify(Notice{Kind: NoticeInfo, Title: "New Conversation Started", Description: "You can now start a new chat."})
	p.changed()
	return nil
}

// SubmitProfile saves the business profile used by later turns.
func (p *Pipeline) SubmitProfile(ctx context.Context, profile store.BusinessProfile) error {
	if err := p.deps.Profiles.Save(ctx, profile); err != nil {
		p.notify(Notice{Kind: NoticeError, Title: "Error", Description: "Your business profile could not be saved."})
		return err
	}
	p.notify(Notice{Kind: NoticeInfo, Title: "Profile saved", Description: "Your business details will be used in new replies."})
	return nil
}

// Close detaches the pipeline from its view. A turn still in flight keeps
// running, but its reply is discarded.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.epoch++
}

// Wait blocks until every started turn has completed.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

func (p *Pipeline) idleLocked() error {
	if p.closed {
		return ErrClosed
	}
	if p.session.State.Busy() {
		return ErrTurnInFlight
	}
	return nil
}

// recomposeLocked moves between Idle and Composing as the draft and
// attachment change. Busy states are left alone.
func (p *Pipeline) recomposeLocked() {
	if p.session.State.Busy() {
		return
	}
	if strings.TrimSpace(p.session.Draft) != "" || p.session.PendingAttachment != nil {
		p.session.State = StateComposing
	} else if p.session.State == StateComposing {
		p.session.State = StateIdle
	}
}

func (p *Pipeline) notify(n Notice) {
	if p.deps.Notify != nil {
		p.deps.Notify(n)
	}
}

func (p *Pipeline) changed() {
	if p.deps.OnChange != nil {
		p.deps.OnChange()
	}
}

// toHistory translates prior messages into role-tagged entries.
func toHistory(messages []store.Message) []client.HistoryEntry {
	history := make([]client.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		role := client.RoleModel
		if m.IsUser {
			role = client.RoleUser
		}
		history = append(history, client.HistoryEntry{Role: role, Text: m.Text})
	}
	return history
}

// noticeText strips the sentinel prefix from an attachment error.
func noticeText(err error) string {
	msg := strings.TrimPrefix(err.Error(), ErrInvalidAttachment.Error()+": ")
	if msg == "" {
		return "This file cannot be attached."
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
