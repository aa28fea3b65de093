// Package mailboxtest provides an in-memory mailbox.Client fake for tests:
// a synchronous, single-process room/inbox model with no network or disk
// involved.
package mailboxtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/mailbox"
)

// Mailbox is a single-process, synchronous fake implementing mailbox.Client.
// It supports long polling via SupportsLongPoll so coordctx takes its
// long-poll wait path against it rather than the sleep-retry fallback.
type Mailbox struct {
	mu sync.Mutex

	seq           int64
	namespaces    map[string]string          // ns id -> secret
	identities    map[string]string          // identity id -> secret
	rooms         map[string]map[string]bool // room id -> member identity ids
	roomNames     map[string]string
	identityNames map[string]string
	inboxes       map[string][]mailbox.RawEnvelope // identity id -> messages
	roomLogs      map[string][]mailbox.RawEnvelope // room id -> messages

	waiters []chan struct{}
}

// New constructs an empty fake mailbox.
func New() *Mailbox {
	return &Mailbox{
		namespaces:    map[string]string{},
		identities:    map[string]string{},
		rooms:         map[string]map[string]bool{},
		roomNames:     map[string]string{},
		identityNames: map[string]string{},
		inboxes:       map[string][]mailbox.RawEnvelope{},
		roomLogs:      map[string][]mailbox.RawEnvelope{},
	}
}

// SupportsLongPoll marks this fake as a long-poll-capable backend.
func (m *Mailbox) SupportsLongPoll() bool { return true }

func (m *Mailbox) nextTimestamp() string {
	m.seq++
	return fmt.Sprintf("%020d", m.seq)
}

func (m *Mailbox) CreateNamespace(ctx context.Context, displayName string) (mailbox.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("ns-%d", len(m.namespaces)+1)
	secret := fmt.Sprintf("nssecret-%s", id)
	m.namespaces[id] = secret
	return mailbox.Namespace{ID: id, Secret: secret}, nil
}

func (m *Mailbox) CreateIdentity(ctx context.Context, ns mailbox.Namespace, displayName string) (mailbox.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.namespaces[ns.ID] != ns.Secret {
		return mailbox.Identity{}, coorderr.New(coorderr.KindMailboxAuth, "bad namespace secret")
	}
	id := fmt.Sprintf("id-%d", len(m.identities)+1)
	secret := fmt.Sprintf("idsecret-%s", id)
	m.identities[id] = secret
	m.identityNames[id] = displayName
	return mailbox.Identity{ID: id, Secret: secret}, nil
}

func (m *Mailbox) CreateRoom(ctx context.Context, ns mailbox.Namespace, creatorSecret, displayName string) (mailbox.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.namespaces[ns.ID] != ns.Secret {
		return mailbox.Room{}, coorderr.New(coorderr.KindMailboxAuth, "bad namespace secret")
	}
	id := fmt.Sprintf("room-%d", len(m.rooms)+1)
	m.rooms[id] = map[string]bool{}
	m.roomNames[id] = displayName
	return mailbox.Room{ID: id, DisplayName: displayName}, nil
}

func (m *Mailbox) AddRoomMember(ctx context.Context, ns mailbox.Namespace, roomID, identityID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[roomID]
	if !ok {
		return coorderr.Newf(coorderr.KindMailboxTransport, "unknown room %q", roomID)
	}
	// secret must belong to the joining identity itself or to an existing
	// member of the room doing the adding.
	adder := secretOwner(m.identities, secret)
	if adder == "" || (adder != identityID && !members[adder]) {
		return coorderr.New(coorderr.KindMailboxAuth, "secret does not grant add rights to this room")
	}
	members[identityID] = true
	return nil
}

func (m *Mailbox) ListRoomMembers(ctx context.Context, ns mailbox.Namespace, roomID, secret string) ([]mailbox.RoomMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[roomID]
	if !ok {
		return nil, coorderr.Newf(coorderr.KindMailboxTransport, "unknown room %q", roomID)
	}
	out := make([]mailbox.RoomMember, 0, len(members))
	for id := range members {
		out = append(out, mailbox.RoomMember{IdentityID: id, DisplayName: m.identityNames[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out, nil
}

func (m *Mailbox) ListRooms(ctx context.Context, ns mailbox.Namespace, secret string) ([]mailbox.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailbox.Room, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, mailbox.Room{ID: id, DisplayName: m.roomNames[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Mailbox) SendMessage(ctx context.Context, ns mailbox.Namespace, toID string, body []byte, fromSecret, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	env := mailbox.RawEnvelope{
		SenderID:    secretOwner(m.identities, fromSecret),
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
		Timestamp:   m.nextTimestamp(),
	}
	m.inboxes[toID] = append(m.inboxes[toID], env)
	m.wakeLocked()
	return nil
}

func (m *Mailbox) SendRoomMessage(ctx context.Context, ns mailbox.Namespace, roomID string, body []byte, secret, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return coorderr.Newf(coorderr.KindMailboxTransport, "unknown room %q", roomID)
	}
	env := mailbox.RawEnvelope{
		SenderID:    secretOwner(m.identities, secret),
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
		Timestamp:   m.nextTimestamp(),
	}
	m.roomLogs[roomID] = append(m.roomLogs[roomID], env)
	m.wakeLocked()
	return nil
}

func (m *Mailbox) GetInbox(ctx context.Context, ns mailbox.Namespace, identityID, secret, since string) ([]mailbox.RawEnvelope, error) {
	if err := m.waitForMore(ctx, func() bool {
		return len(m.after(m.inboxes[identityID], since)) > 0
	}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.after(m.inboxes[identityID], since), nil
}

func (m *Mailbox) GetRoomMessages(ctx context.Context, ns mailbox.Namespace, roomID, secret, since string) ([]mailbox.RawEnvelope, error) {
	m.mu.Lock()
	_, known := m.rooms[roomID]
	m.mu.Unlock()
	if !known {
		return nil, coorderr.Newf(coorderr.KindMailboxTransport, "unknown room %q", roomID)
	}
	if err := m.waitForMore(ctx, func() bool {
		return len(m.after(m.roomLogs[roomID], since)) > 0
	}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.after(m.roomLogs[roomID], since), nil
}

// waitForMore blocks, without holding mu, until predicate() is true, ctx is
// done, or a short grace period elapses — real long-poll backends block on
// the server side; this fake approximates that by parking on a condition
// signaled from the Send* methods, bounded by ctx.
func (m *Mailbox) waitForMore(ctx context.Context, predicate func() bool) error {
	m.mu.Lock()
	if predicate() {
		m.mu.Unlock()
		return nil
	}
	ch := make(chan struct{}, 1)
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return nil // non-blocking read: caller sees whatever (nothing) is available
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

func (m *Mailbox) wakeLocked() {
	for _, ch := range m.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	m.waiters = nil
}

func (m *Mailbox) after(envs []mailbox.RawEnvelope, since string) []mailbox.RawEnvelope {
	if since == "" {
		return envs
	}
	out := make([]mailbox.RawEnvelope, 0, len(envs))
	for _, e := range envs {
		if e.Timestamp > since {
			out = append(out, e)
		}
	}
	return out
}

func (m *Mailbox) checkSecretLocked(identityID, secret string) error {
	if m.identities[identityID] != secret {
		return coorderr.New(coorderr.KindMailboxAuth, "bad identity secret")
	}
	return nil
}

func secretOwner(identities map[string]string, secret string) string {
	for id, s := range identities {
		if s == secret {
			return id
		}
	}
	return ""
}
