// ABOUTME: Turn is the handle for one in-flight chat turn
// ABOUTME: Reports the final state, the remote error, and any persistence warnings

package pipeline

import (
	"errors"
	"sync"
)

// Turn tracks one started turn until its reply is settled.
type Turn struct {
	conversationID string
	done           chan struct{}

	mu        sync.Mutex
	state     State
	err       error
	warnings  []error
	discarded bool
}

func newTurn() *Turn {
	return &Turn{done: make(chan struct{}), state: StateAwaitingRemote}
}

// Done is closed once the turn has finished.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// ConversationID is the conversation the turn was saved under.
func (t *Turn) ConversationID() string {
	return t.conversationID
}

// State is StateSettled or StateFailed once Done is closed.
func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the remote failure, if any.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Warning joins every persistence failure seen during the turn. The turn
// still completed in memory.
func (t *Turn) Warning() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return errors.Join(t.warnings...)
}

// Discarded reports whether the reply arrived after the session moved on
// and was dropped.
func (t *Turn) Discarded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discarded
}

func (t *Turn) warn(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = append(t.warnings, err)
}

func (t *Turn) finish(state State, err error, discarded bool) {
	t.mu.Lock()
	t.state = state
	t.err = err
	t.discarded = discarded
	t.mu.Unlock()
	close(t.done)
}
