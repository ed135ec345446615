// Package store persists conversations and the business profile in the
// client's key-value storage.
//
// # Records
//
//   - Conversation: id, title, and the ordered message history
//   - Message: one user or model turn half, optionally naming an attachment
//   - BusinessProfile: a singleton describing the user's business
//
// Both stores read and write whole values. Conversations live under the
// "conversations" key as a JSON array, most recently created first. The
// profile lives under "businessFields" as a JSON object.
//
// # Notification
//
// Every successful write is followed by a Notifier.Invalidate call for the
// writing view. Other views learn of the write from the storage layer
// itself, so the two together reach every live view. Failed writes notify
// nobody.
//
// # Error Handling
//
//   - ErrNotFound: the requested conversation does not exist
//   - ErrPersist: the write did not reach storage; in-memory state is still valid
//
// Reads fail soft. Missing or unparsable values are logged and treated as
// empty so corruption never reaches the caller.
//
// # Testing
//
// Use a view from kv.New(kv.NewMemoryBackend(), nil) as the Area:
//
//	area := kv.New(kv.NewMemoryBackend(), nil).View("test")
//	convs := store.NewConversationStore(area, nil, nil)
package store
