// ABOUTME: Invalidation fan-out so every live view re-reads stores after a committed write
// ABOUTME: Same-view signals come from the writing store; cross-view signals come from storage-change events

package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/botdesk/internal/kv"
)

// Topic names a store whose contents a subscriber renders.
type Topic string

const (
	TopicConversations Topic = "conversations"
	TopicProfile       Topic = "profile"
)

// ChangeSource is the storage layer's cross-view notification.
type ChangeSource interface {
	Listen(viewID string, fn kv.Listener) (cancel func())
}

// subscription is one registered channel.
type subscription struct {
	viewID string
	topic  Topic
	ch     chan Topic
}

// Broadcaster delivers payload-free invalidation signals to subscribers.
//
// Two registries feed the same subscriber channels:
//   - the local registry, signalled by Invalidate from the store that just
//     wrote, reaches only subscribers of the writing view;
//   - the cross registry holds one storage listener per view with
//     subscribers, and reaches views that did not write.
//
// Each subscriber channel has room for one pending signal. A signal that
// finds the slot full is coalesced with the pending one, which is enough
// because subscribers re-read the whole store when they wake.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]*subscription // subID -> subscription
	cross  map[string]func()        // viewID -> storage listener cancel
	routes map[string]Topic         // storage key -> topic
	source ChangeSource
	closed bool
	logger *slog.Logger
}

// New creates a Broadcaster. routes maps storage keys to the topic a change
// to that key invalidates; keys without a route are ignored. source may be
// nil, in which case only same-view signals are delivered. Pass nil logger
// for default.
func New(source ChangeSource, routes map[string]Topic, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	r := make(map[string]Topic, len(routes))
	for k, v := range routes {
		r[k] = v
	}
	return &Broadcaster{
		subs:   make(map[string]*subscription),
		cross:  make(map[string]func()),
		routes: r,
		source: source,
		logger: logger.With("component", "broadcaster"),
	}
}

// Subscribe registers viewID's interest in topic. The returned channel
// receives the topic each time it is invalidated and is closed on
// unsubscription. The subscription is removed when ctx is cancelled, so
// scoping ctx to the view's lifetime guarantees deregistration.
func (b *Broadcaster) Subscribe(ctx context.Context, viewID string, topic Topic) (<-chan Topic, string) {
	subID := uuid.New().String()
	sub := &subscription{
		viewID: viewID,
		topic:  topic,
		ch:     make(chan Topic, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, subID
	}
	b.subs[subID] = sub
	needListener := b.source != nil && b.cross[viewID] == nil
	if needListener {
		b.cross[viewID] = b.source.Listen(viewID, func(ev kv.ChangeEvent) {
			b.onStorageChange(viewID, ev)
		})
	}
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"view_id", viewID,
		"topic", topic,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return sub.ch, subID
}

// Invalidate signals subscribers of viewID that topic changed. Stores call
// it after their write commits; other views learn of the same write through
// the storage-change channel.
func (b *Broadcaster) Invalidate(viewID string, topic Topic) {
	b.signal(topic, func(sub *subscription) bool { return sub.viewID == viewID })
}

// onStorageChange routes a storage-change event seen by viewID.
func (b *Broadcaster) onStorageChange(viewID string, ev kv.ChangeEvent) {
	b.mu.RLock()
	topic, ok := b.routes[ev.Key]
	b.mu.RUnlock()
	if !ok {
		return
	}
	b.logger.Debug("storage change",
		"view_id", viewID,
		"key", ev.Key,
		"revision", ev.Revision,
		"origin", ev.Origin)
	b.signal(topic, func(sub *subscription) bool { return sub.viewID == viewID })
}

// signal does a non-blocking send to every matching subscriber.
func (b *Broadcaster) signal(topic Topic, match func(*subscription) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.topic != topic || !match(sub) {
			continue
		}
		select {
		case sub.ch <- topic:
		default:
			// A signal is already pending; the subscriber will re-read anyway
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Removing a
// view's last subscription also drops its storage listener.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subID]
	if !ok {
		return
	}
	delete(b.subs, subID)
	close(sub.ch)

	if !b.viewHasSubscribersLocked(sub.viewID) {
		if cancel, ok := b.cross[sub.viewID]; ok {
			cancel()
			delete(b.cross, sub.viewID)
		}
	}

	b.logger.Debug("subscriber removed",
		"view_id", sub.viewID,
		"topic", sub.topic,
		"sub_id", subID)
}

// Subscribers returns the number of live subscriptions for viewID.
func (b *Broadcaster) Subscribers(viewID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, sub := range b.subs {
		if sub.viewID == viewID {
			n++
		}
	}
	return n
}

func (b *Broadcaster) viewHasSubscribersLocked(viewID string) bool {
	for _, sub := range b.subs {
		if sub.viewID == viewID {
			return true
		}
	}
	return false
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, subID)
	}
	for viewID, cancel := range b.cross {
		cancel()
		delete(b.cross, viewID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
