// Package pipeline runs chat turns for one session.
//
// # States
//
//	Idle ─▶ Composing ─▶ Sending ─▶ AwaitingRemote ─┬─▶ Settled
//	                                                └─▶ Failed
//
// Typing a draft or attaching a document moves Idle to Composing. Send
// appends the user message, saves it, and moves to AwaitingRemote while
// the remote call runs in the background. The reply (or a fixed apology
// when the call fails) is appended and saved before the turn settles.
// Settled and Failed behave like Idle: a new turn may start at once.
//
// # Rules
//
//   - A blank draft is ignored without a state change
//   - Only one turn may be in flight; a second Send returns ErrTurnInFlight
//   - SelectConversation and NewConversation are refused while a turn is in flight
//   - The pending attachment is cleared only after a successful reply, so a
//     failed turn can be re-sent without attaching again
//   - After Close, a late reply is dropped rather than written into history
//
// # Failures
//
// Nothing here is fatal. Remote failures become an apology message plus
// one error Notice. Save failures are logged and exposed through
// Turn.Warning; the in-memory session is never rolled back.
package pipeline
