// ABOUTME: Tests for live views sharing one storage and broadcaster
// ABOUTME: Covers cross-view refresh, callback wiring, and guaranteed deregistration

package view

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/botdesk/internal/broadcast"
	"github.com/2389/botdesk/internal/client"
	"github.com/2389/botdesk/internal/kv"
	"github.com/2389/botdesk/internal/pipeline"
	"github.com/2389/botdesk/internal/store"
)

type echoRemote struct{}

func (echoRemote) Chat(_ context.Context, req client.ChatRequest) (string, error) {
	return "echo: " + req.Message, nil
}

type env struct {
	storage     *kv.Storage
	broadcaster *broadcast.Broadcaster
}

func newEnv(t *testing.T) *env {
	t.Helper()
	storage := kv.New(kv.NewMemoryBackend(), nil)
	b := broadcast.New(storage, store.Routes(), nil)
	t.Cleanup(b.Close)
	return &env{storage: storage, broadcaster: b}
}

func (e *env) open(t *testing.T, notices func(pipeline.Notice)) *View {
	t.Helper()
	v, err := Open(t.Context(), Options{
		Storage:     e.storage,
		Broadcaster: e.broadcaster,
		Remote:      echoRemote{},
		Pipeline: pipeline.Config{
			AllowedExtensions: []string{".pdf"},
			Suggestions:       []string{"Growth Strategy"},
		},
		OnNotice: notices,
	})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

// waitFor reads snapshots until cond holds.
func waitFor(t *testing.T, v *View, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if snap := v.Snapshot(); cond(snap) {
			return snap
		}
		select {
		case <-v.Updates():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not reached")
		}
	}
}

func TestOpen_RequiresCollaborators(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assert.Error(t, err)
}

func TestView_InitialSnapshot(t *testing.T) {
	e := newEnv(t)
	v := e.open(t, nil)

	snap := v.Snapshot()
	assert.Equal(t, v.ID(), snap.ViewID)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Conversations)
	assert.False(t, snap.HasProfile)
	assert.Equal(t, pipeline.StateIdle, snap.State)
	assert.Equal(t, []string{"Growth Strategy"}, snap.Suggestions)
}

func TestView_TurnReachesOwnAndOtherViews(t *testing.T) {
	e := newEnv(t)
	a := e.open(t, nil)
	b := e.open(t, nil)

	turn, err := a.OnSend(t.Context(), "Analyze my market")
	require.NoError(t, err)
	<-turn.Done()

	snapA := waitFor(t, a, func(s Snapshot) bool {
		return len(s.Messages) == 2 && !s.IsAwaitingResponse && len(s.Conversations) == 1
	})
	assert.Equal(t, "echo: Analyze my market", snapA.Messages[1].Text)
	assert.Nil(t, snapA.Suggestions)

	snapB := waitFor(t, b, func(s Snapshot) bool {
		return len(s.Conversations) == 1 && len(s.Conversations[0].Messages) == 2
	})
	assert.Equal(t, "Analyze my market", snapB.Conversations[0].Title)
	assert.Empty(t, snapB.Messages, "the other view's own session is untouched")
}

func TestView_ProfileReachesOtherView(t *testing.T) {
	e := newEnv(t)
	a := e.open(t, nil)
	b := e.open(t, nil)

	require.NoError(t, a.OnSubmitProfile(t.Context(), store.BusinessProfile{Product: "Tea"}))

	snap := waitFor(t, b, func(s Snapshot) bool { return s.HasProfile })
	assert.Equal(t, "Tea", snap.Profile.Product)

	p, ok := a.Profile(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Tea", p.Product)
}

func TestView_SelectAndNewConversation(t *testing.T) {
	e := newEnv(t)
	var mu sync.Mutex
	var titles []string
	a := e.open(t, func(n pipeline.Notice) {
		mu.Lock()
		titles = append(titles, n.Title)
		mu.Unlock()
	})
	b := e.open(t, nil)

	turn, err := a.OnSend(t.Context(), "first")
	require.NoError(t, err)
	<-turn.Done()

	require.NoError(t, b.OnSelectConversation(t.Context(), turn.ConversationID()))
	snap := waitFor(t, b, func(s Snapshot) bool { return len(s.Messages) == 2 })
	assert.Equal(t, turn.ConversationID(), snap.CurrentConversationID)

	got, err := b.Conversation(t.Context(), turn.ConversationID())
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)

	require.NoError(t, a.OnNewConversation())
	waitFor(t, a, func(s Snapshot) bool { return len(s.Messages) == 0 && s.CurrentConversationID == "" })

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, titles, "New Conversation Started")
}

func TestView_OnAttach(t *testing.T) {
	e := newEnv(t)
	v := e.open(t, nil)
	dir := t.TempDir()

	pdf := filepath.Join(dir, "plan.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600))
	require.NoError(t, v.OnAttach(pdf))
	waitFor(t, v, func(s Snapshot) bool { return s.PendingAttachment == "plan.pdf" })

	v.OnDetach()
	waitFor(t, v, func(s Snapshot) bool { return s.PendingAttachment == "" })

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hi"), 0o600))
	assert.ErrorIs(t, v.OnAttach(txt), pipeline.ErrInvalidAttachment)

	assert.ErrorIs(t, v.OnAttach(filepath.Join(dir, "missing.pdf")), pipeline.ErrInvalidAttachment)
}

func TestView_DraftShownInSnapshot(t *testing.T) {
	e := newEnv(t)
	v := e.open(t, nil)

	v.OnDraft("half a thought")
	snap := waitFor(t, v, func(s Snapshot) bool { return s.Draft == "half a thought" })
	assert.Equal(t, pipeline.StateComposing, snap.State)
}

func TestView_CloseDeregisters(t *testing.T) {
	e := newEnv(t)
	v, err := Open(context.Background(), Options{
		Storage:     e.storage,
		Broadcaster: e.broadcaster,
		Remote:      echoRemote{},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, e.broadcaster.Subscribers(v.ID()))

	v.Close()
	v.Close()

	assert.Eventually(t, func() bool {
		return e.broadcaster.Subscribers(v.ID()) == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-v.Updates()
	for open {
		_, open = <-v.Updates()
	}

	_, err = v.OnSend(context.Background(), "after close")
	assert.ErrorIs(t, err, pipeline.ErrClosed)
}

func TestView_ContextCancelDeregisters(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	v, err := Open(ctx, Options{
		Storage:     e.storage,
		Broadcaster: e.broadcaster,
		Remote:      echoRemote{},
	})
	require.NoError(t, err)
	defer v.Close()

	cancel()

	assert.Eventually(t, func() bool {
		return e.broadcaster.Subscribers(v.ID()) == 0
	}, time.Second, 10*time.Millisecond)

	// Writes from other views must not reach the dead view
	other := e.open(t, nil)
	require.NoError(t, other.OnSubmitProfile(context.Background(), store.BusinessProfile{Product: "x"}))
}
