// ABOUTME: One live view: a pipeline plus stores, refreshed on every invalidation
// ABOUTME: Publishes Snapshots and exposes the callbacks a front-end wires to its controls

package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/botdesk/internal/broadcast"
	"github.com/2389/botdesk/internal/kv"
	"github.com/2389/botdesk/internal/pipeline"
	"github.com/2389/botdesk/internal/store"
)

// Snapshot is everything a front-end renders, read fresh from the stores.
type Snapshot struct {
	ViewID                string
	CurrentConversationID string
	Messages              []store.Message
	Conversations         []store.Conversation
	Profile               store.BusinessProfile
	HasProfile            bool
	State                 pipeline.State
	IsAwaitingResponse    bool
	Draft                 string
	PendingAttachment     string
	Suggestions           []string
}

// Options configure a View.
type Options struct {
	Storage     *kv.Storage
	Broadcaster *broadcast.Broadcaster
	Remote      pipeline.Responder
	Pipeline    pipeline.Config
	// OnNotice receives transient notices. Optional.
	OnNotice func(pipeline.Notice)
	Logger   *slog.Logger
}

// View is one open window onto the client's data.
type View struct {
	id            string
	pipeline      *pipeline.Pipeline
	conversations *store.ConversationStore
	profiles      *store.ProfileStore
	logger        *slog.Logger

	cancel  context.CancelFunc
	poke    chan struct{}
	updates chan Snapshot
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	latest Snapshot
}

// Open creates a view and starts its refresh loop. The view stays
// subscribed until Close is called or ctx is cancelled, whichever comes
// first.
func Open(ctx context.Context, opts Options) (*View, error) {
	if opts.Storage == nil || opts.Broadcaster == nil || opts.Remote == nil {
		return nil, errors.New("view: storage, broadcaster and remote are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New().String()
	area := opts.Storage.View(id)
	v := &View{
		id:            id,
		conversations: store.NewConversationStore(area, opts.Broadcaster, logger),
		profiles:      store.NewProfileStore(area, opts.Broadcaster, logger),
		logger:        logger.With("component", "view", "view_id", id),
		poke:          make(chan struct{}, 1),
		updates:       make(chan Snapshot, 1),
		done:          make(chan struct{}),
	}
	v.pipeline = pipeline.New(opts.Pipeline, pipeline.Deps{
		Conversations: v.conversations,
		Profiles:      v.profiles,
		Remote:        opts.Remote,
		Notify:        opts.OnNotice,
		OnChange:      v.refreshSoon,
	}, logger)

	loopCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	convCh, _ := opts.Broadcaster.Subscribe(loopCtx, id, broadcast.TopicConversations)
	profileCh, _ := opts.Broadcaster.Subscribe(loopCtx, id, broadcast.TopicProfile)

	v.refresh(loopCtx)
	go v.run(loopCtx, convCh, profileCh)

	v.logger.Debug("view opened")
	return v, nil
}

// ID identifies the view in storage-change events.
func (v *View) ID() string {
	return v.id
}

// run re-reads the stores on every signal until ctx ends.
func (v *View) run(ctx context.Context, convCh, profileCh <-chan broadcast.Topic) {
	defer close(v.done)
	defer close(v.updates)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-convCh:
			if !ok {
				convCh = nil
				continue
			}
		case _, ok := <-profileCh:
			if !ok {
				profileCh = nil
				continue
			}
		case <-v.poke:
		}
		v.refresh(ctx)
	}
}

func (v *View) refreshSoon() {
	select {
	case v.poke <- struct{}{}:
	default:
	}
}

func (v *View) refresh(ctx context.Context) {
	session := v.pipeline.Session()
	profile, hasProfile := v.profiles.Load(ctx)

	snap := Snapshot{
		ViewID:                v.id,
		CurrentConversationID: session.CurrentConversationID,
		Messages:              session.Messages,
		Conversations:         v.conversations.ListAll(ctx),
		Profile:               profile,
		HasProfile:            hasProfile,
		State:                 session.State,
		IsAwaitingResponse:    session.IsAwaitingResponse,
		Draft:                 session.Draft,
		Suggestions:           v.pipeline.Suggestions(),
	}
	if session.PendingAttachment != nil {
		snap.PendingAttachment = session.PendingAttachment.Name
	}

	v.mu.Lock()
	v.latest = snap
	v.mu.Unlock()

	// Keep only the newest snapshot for slow readers
	select {
	case <-v.updates:
	default:
	}
	select {
	case v.updates <- snap:
	default:
	}
}

// Updates delivers a Snapshot after each refresh. Only the newest
// unread Snapshot is kept. The channel is closed when the view closes.
func (v *View) Updates() <-chan Snapshot {
	return v.updates
}

// Snapshot returns the most recent Snapshot.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.latest
}

// Messages returns the current conversation's messages.
func (v *View) Messages() []store.Message {
	return v.pipeline.Messages()
}

// IsAwaitingResponse drives the typing indicator.
func (v *View) IsAwaitingResponse() bool {
	return v.pipeline.IsAwaitingResponse()
}

// Conversations returns the stored conversations, newest first.
func (v *View) Conversations(ctx context.Context) []store.Conversation {
	return v.conversations.ListAll(ctx)
}

// Conversation looks up one stored conversation.
func (v *View) Conversation(ctx context.Context, id string) (store.Conversation, error) {
	return v.conversations.GetByID(ctx, id)
}

// Profile returns the stored business profile.
func (v *View) Profile(ctx context.Context) (store.BusinessProfile, bool) {
	return v.profiles.Load(ctx)
}

// Suggestions returns starter prompts while the conversation is empty.
func (v *View) Suggestions() []string {
	return v.pipeline.Suggestions()
}

// OnDraft records the text being typed.
func (v *View) OnDraft(text string) {
	v.pipeline.UpdateDraft(text)
}

// OnSend starts a turn. See pipeline.Pipeline.Send.
func (v *View) OnSend(ctx context.Context, draft string) (*pipeline.Turn, error) {
	return v.pipeline.Send(ctx, draft)
}

// OnAttach reads the file at path and makes it the pending attachment.
func (v *View) OnAttach(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		v.logger.Warn("reading attachment failed", "path", path, "error", err)
		return fmt.Errorf("%w: reading %s: %w", pipeline.ErrInvalidAttachment, filepath.Base(path), err)
	}
	return v.pipeline.Attach(path, data)
}

// OnDetach drops the pending attachment.
func (v *View) OnDetach() {
	v.pipeline.DropAttachment()
}

// OnSelectConversation loads a stored conversation into the session.
func (v *View) OnSelectConversation(ctx context.Context, id string) error {
	return v.pipeline.SelectConversation(ctx, id)
}

// OnNewConversation starts a fresh conversation.
func (v *View) OnNewConversation() error {
	return v.pipeline.NewConversation()
}

// OnSubmitProfile saves the business profile.
func (v *View) OnSubmitProfile(ctx context.Context, profile store.BusinessProfile) error {
	return v.pipeline.SubmitProfile(ctx, profile)
}

// Wait blocks until every turn this view started has finished.
func (v *View) Wait() {
	v.pipeline.Wait()
}

// Close deregisters the view and stops its refresh loop. A turn still in
// flight finishes in the background but its reply is dropped. Close is
// safe to call more than once.
func (v *View) Close() {
	v.once.Do(func() {
		v.pipeline.Close()
		v.cancel()
		<-v.done
		v.logger.Debug("view closed")
	})
}
