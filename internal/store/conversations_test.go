// ABOUTME: Tests for ConversationStore
// ABOUTME: Covers creation, append, title stability, fail-soft reads, and commit-then-notify ordering

package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/botdesk/internal/broadcast"
	"github.com/2389/botdesk/internal/kv"
)

// recordingNotifier remembers every Invalidate call.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Invalidate(viewID string, topic broadcast.Topic) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, viewID+"/"+string(topic))
}

func (n *recordingNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// brokenArea fails every read and write.
type brokenArea struct{}

var errUnreachable = errors.New("storage unreachable")

func (brokenArea) Get(context.Context, string) ([]byte, error) { return nil, errUnreachable }
func (brokenArea) Set(context.Context, string, []byte) error   { return errUnreachable }
func (brokenArea) ViewID() string                              { return "broken" }

func (brokenArea) Update(context.Context, string, func([]byte) ([]byte, error)) error {
	return errUnreachable
}

func setupConversations(t *testing.T) (*ConversationStore, *kv.MemoryBackend, *recordingNotifier) {
	t.Helper()
	backend := kv.NewMemoryBackend()
	notifier := &recordingNotifier{}
	s := NewConversationStore(kv.New(backend, nil).View("view-a"), notifier, nil)
	return s, backend, notifier
}

func TestConversationStore_ListAllEmpty(t *testing.T) {
	s, _, _ := setupConversations(t)

	list := s.ListAll(context.Background())
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestConversationStore_CreateThenGet(t *testing.T) {
	s, _, notifier := setupConversations(t)
	ctx := context.Background()

	msgs := []Message{
		{Text: "Analyze my market", IsUser: true, AttachmentName: "plan.pdf"},
		{Text: "Here is an analysis.", IsUser: false},
	}
	id, err := s.CreateOrAppend(ctx, "", msgs)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, msgs, got.Messages)
	assert.Equal(t, "Analyze my market", got.Title)
	assert.Equal(t, []string{"view-a/conversations"}, notifier.Calls())
}

func TestConversationStore_MostRecentFirst(t *testing.T) {
	s, _, _ := setupConversations(t)
	ctx := context.Background()

	first, err := s.CreateOrAppend(ctx, "", []Message{{Text: "first", IsUser: true}})
	require.NoError(t, err)
	second, err := s.CreateOrAppend(ctx, "", []Message{{Text: "second", IsUser: true}})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	list := s.ListAll(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)

	// Appending to the older one must not move it
	_, err = s.CreateOrAppend(ctx, first, []Message{{Text: "first", IsUser: true}, {Text: "reply"}})
	require.NoError(t, err)
	list = s.ListAll(ctx)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
	assert.Len(t, list[1].Messages, 2)
}

func TestConversationStore_TitleIsStable(t *testing.T) {
	s, _, _ := setupConversations(t)
	ctx := context.Background()

	id, err := s.CreateOrAppend(ctx, "", []Message{{Text: "Pricing help", IsUser: true}})
	require.NoError(t, err)

	_, err = s.CreateOrAppend(ctx, id, []Message{
		{Text: "Something else entirely", IsUser: true},
		{Text: "ok"},
	})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pricing help", got.Title)
}

func TestConversationStore_DefaultTitleWithoutUserMessage(t *testing.T) {
	s, _, _ := setupConversations(t)
	ctx := context.Background()

	id, err := s.CreateOrAppend(ctx, "", []Message{{Text: "Welcome!"}})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, got.Title)
}

func TestConversationStore_UnknownIDIsRecreated(t *testing.T) {
	s, _, _ := setupConversations(t)
	ctx := context.Background()

	id, err := s.CreateOrAppend(ctx, "gone-123", []Message{{Text: "still here", IsUser: true}})
	require.NoError(t, err)
	assert.Equal(t, "gone-123", id)

	got, err := s.GetByID(ctx, "gone-123")
	require.NoError(t, err)
	assert.Equal(t, "still here", got.Title)
}

func TestConversationStore_GetByIDMissing(t *testing.T) {
	s, _, _ := setupConversations(t)

	_, err := s.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationStore_CallerSliceNotAliased(t *testing.T) {
	s, _, _ := setupConversations(t)
	ctx := context.Background()

	msgs := []Message{{Text: "original", IsUser: true}}
	id, err := s.CreateOrAppend(ctx, "", msgs)
	require.NoError(t, err)
	msgs[0].Text = "mutated"

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Messages[0].Text)
}

func TestConversationStore_CorruptListFailsSoft(t *testing.T) {
	s, backend, _ := setupConversations(t)
	ctx := context.Background()

	backend.SetRaw(KeyConversations, []byte(`{not json`))
	assert.Empty(t, s.ListAll(ctx))

	// A later save replaces the corrupt value
	id, err := s.CreateOrAppend(ctx, "", []Message{{Text: "fresh start", IsUser: true}})
	require.NoError(t, err)
	list := s.ListAll(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

func TestConversationStore_SkipsRecordsWithoutID(t *testing.T) {
	s, backend, _ := setupConversations(t)

	backend.SetRaw(KeyConversations, []byte(`[{"title":"orphan","messages":[]},{"id":"c1","messages":[{"text":"hi","isUser":true}]}]`))

	list := s.ListAll(context.Background())
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, "hi", list[0].Title)
}

func TestConversationStore_WriteFailureIsWarningOnly(t *testing.T) {
	s, backend, notifier := setupConversations(t)
	ctx := context.Background()

	backend.FailPuts(true)
	id, err := s.CreateOrAppend(ctx, "", []Message{{Text: "hello", IsUser: true}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
	assert.NotEmpty(t, id, "the minted id is still returned")
	assert.Empty(t, notifier.Calls(), "failed writes must not notify")
}

func TestConversationStore_UnreachableStorage(t *testing.T) {
	s := NewConversationStore(brokenArea{}, nil, nil)
	ctx := context.Background()

	assert.Empty(t, s.ListAll(ctx))

	id, err := s.CreateOrAppend(ctx, "c1", []Message{{Text: "x", IsUser: true}})
	assert.Equal(t, "c1", id)
	assert.ErrorIs(t, err, ErrPersist)
	assert.ErrorIs(t, err, errUnreachable)
}

func TestConversationStore_NotifiesOtherViewsThroughStorage(t *testing.T) {
	storage := kv.New(kv.NewMemoryBackend(), nil)
	events := make(chan kv.ChangeEvent, 4)
	cancel := storage.Listen("view-b", func(ev kv.ChangeEvent) { events <- ev })
	defer cancel()

	s := NewConversationStore(storage.View("view-a"), nil, nil)
	_, err := s.CreateOrAppend(context.Background(), "", []Message{{Text: "hi", IsUser: true}})
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, KeyConversations, ev.Key)
	assert.Equal(t, "view-a", ev.Origin)
}

func TestConversationStore_ConcurrentCreatesFromTwoViews(t *testing.T) {
	storage := kv.New(kv.NewMemoryBackend(), nil)
	ctx := context.Background()
	a := NewConversationStore(storage.View("view-a"), nil, nil)
	b := NewConversationStore(storage.View("view-b"), nil, nil)

	const workers, perWorker = 4, 50
	var wg sync.WaitGroup
	for _, s := range []*ConversationStore{a, b} {
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perWorker {
					_, err := s.CreateOrAppend(ctx, "", []Message{{Text: "hello", IsUser: true}})
					assert.NoError(t, err)
				}
			}()
		}
	}
	wg.Wait()

	assert.Len(t, a.ListAll(ctx), 2*workers*perWorker)
}

func TestConversationStore_ConcurrentAppendsKeepOtherRecords(t *testing.T) {
	storage := kv.New(kv.NewMemoryBackend(), nil)
	ctx := context.Background()
	a := NewConversationStore(storage.View("view-a"), nil, nil)
	b := NewConversationStore(storage.View("view-b"), nil, nil)

	idA, err := a.CreateOrAppend(ctx, "", []Message{{Text: "from a", IsUser: true}})
	require.NoError(t, err)
	idB, err := b.CreateOrAppend(ctx, "", []Message{{Text: "from b", IsUser: true}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := a.CreateOrAppend(ctx, idA, make([]Message, i+1))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := b.CreateOrAppend(ctx, idB, make([]Message, i+1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list := a.ListAll(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, idB, list[0].ID)
	assert.Equal(t, idA, list[1].ID)
	assert.Equal(t, "from a", list[1].Title)
}

func TestTitleFor(t *testing.T) {
	assert.Equal(t, DefaultTitle, TitleFor(nil))
	assert.Equal(t, DefaultTitle, TitleFor([]Message{{Text: "  ", IsUser: true}, {Text: "bot"}}))
	assert.Equal(t, "second", TitleFor([]Message{{Text: "bot"}, {Text: "second", IsUser: true}}))
}
