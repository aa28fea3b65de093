// Package mailbox defines the abstract deaddrop client the coordination
// core depends on. The core ships no implementation of its own — see
// mailboxtest for an in-memory fake used by tests, and sqlitemailbox /
// httpmailbox for the two real backends (local SQLite-backed, remote
// HTTP-backed).
package mailbox

import "context"

// Namespace is the tenancy unit for all identities, rooms, and messages
// created within it.
type Namespace struct {
	ID     string
	Secret string
}

// Identity is a mailbox-issued credential: an addressable endpoint with its
// own inbox and its own bearer secret.
type Identity struct {
	ID     string
	Secret string
}

// RoomMember describes one member of a room as returned by ListRoomMembers.
type RoomMember struct {
	IdentityID  string
	DisplayName string
}

// Room describes one room as returned by ListRooms.
type Room struct {
	ID          string
	DisplayName string
}

// RawEnvelope is a message as it comes back from the mailbox, before the
// codec has interpreted its body. Sender and timestamp field-name variance
// across backends (`from`/`sender_id`, `created_at`/`timestamp`) is
// normalized into this struct once at the client boundary, rather than at
// every call site.
type RawEnvelope struct {
	SenderID    string
	Body        []byte
	ContentType string
	Timestamp   string // opaque, comparable, server-assigned
}

// Client is the interface the coordination core consumes. Implementations
// live outside this package; network and backend failures surface as a
// *coorderr.CoordError with KindMailboxTransport, and rejected credentials
// with KindMailboxAuth.
type Client interface {
	CreateNamespace(ctx context.Context, displayName string) (Namespace, error)
	CreateIdentity(ctx context.Context, ns Namespace, displayName string) (Identity, error)
	CreateRoom(ctx context.Context, ns Namespace, creatorSecret, displayName string) (Room, error)
	AddRoomMember(ctx context.Context, ns Namespace, roomID, identityID, secret string) error
	ListRoomMembers(ctx context.Context, ns Namespace, roomID, secret string) ([]RoomMember, error)
	ListRooms(ctx context.Context, ns Namespace, secret string) ([]Room, error)

	// SendMessage delivers body directly to toID's inbox.
	SendMessage(ctx context.Context, ns Namespace, toID string, body []byte, fromSecret, contentType string) error
	// SendRoomMessage broadcasts body to every member of roomID.
	SendRoomMessage(ctx context.Context, ns Namespace, roomID string, body []byte, secret, contentType string) error

	// GetInbox reads (and logically consumes) identityID's direct inbox.
	// since, if non-empty, is an opaque cursor from a prior RawEnvelope's
	// Timestamp; implementations need only return envelopes strictly after
	// it. Idempotent repetition within one polling tick is not guaranteed.
	GetInbox(ctx context.Context, ns Namespace, identityID, secret, since string) ([]RawEnvelope, error)
	// GetRoomMessages reads roomID's history, non-consuming, ascending by
	// server timestamp.
	GetRoomMessages(ctx context.Context, ns Namespace, roomID, secret, since string) ([]RawEnvelope, error)
}

// LongPoller is an optional extension a Client may implement to signal that
// GetInbox/GetRoomMessages already block server-side for up to the
// requested duration. Clients that don't implement it get the bounded
// sleep-and-retry fallback in internal/coordctx.
type LongPoller interface {
	SupportsLongPoll() bool
}
