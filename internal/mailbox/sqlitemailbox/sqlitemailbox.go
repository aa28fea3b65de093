// Package sqlitemailbox is a local, single-file implementation of
// mailbox.Client backed by modernc.org/sqlite, with its own schema for the
// namespace/identity/room/message model a mailbox needs.
package sqlitemailbox

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/core"
	"github.com/adamavenir/coord/internal/mailbox"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Mailbox is a local SQLite-backed mailbox.Client. Safe for concurrent use;
// sqlite's own locking plus WAL mode serialize writers.
type Mailbox struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// the coordination schema exists.
func Open(path string) (*Mailbox, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "open sqlite mailbox", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes better single-conn under WAL

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "apply pragma", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "apply schema", err)
	}
	return &Mailbox{db: db}, nil
}

// Close closes the underlying database handle.
func (m *Mailbox) Close() error {
	return m.db.Close()
}

func newID(prefix string) string {
	id, err := core.GenerateGUID(prefix)
	if err != nil {
		// crypto/rand failure: fall back to a uuid rather than fail the
		// caller's create operation.
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	}
	return id
}

func newSecret() string {
	return uuid.NewString()
}

func (m *Mailbox) CreateNamespace(ctx context.Context, displayName string) (mailbox.Namespace, error) {
	id, secret := newID("ns"), newSecret()
	if _, err := m.db.ExecContext(ctx, `INSERT INTO namespaces(id, secret) VALUES (?, ?)`, id, secret); err != nil {
		return mailbox.Namespace{}, coorderr.Wrap(coorderr.KindMailboxTransport, "create namespace", err)
	}
	return mailbox.Namespace{ID: id, Secret: secret}, nil
}

func (m *Mailbox) checkNamespace(ctx context.Context, ns mailbox.Namespace) error {
	var secret string
	err := m.db.QueryRowContext(ctx, `SELECT secret FROM namespaces WHERE id = ?`, ns.ID).Scan(&secret)
	if err == sql.ErrNoRows {
		return coorderr.New(coorderr.KindMailboxAuth, "unknown namespace")
	}
	if err != nil {
		return coorderr.Wrap(coorderr.KindMailboxTransport, "lookup namespace", err)
	}
	if secret != ns.Secret {
		return coorderr.New(coorderr.KindMailboxAuth, "bad namespace secret")
	}
	return nil
}

func (m *Mailbox) checkIdentitySecret(ctx context.Context, identityID, secret string) (string, error) {
	var want, senderID string
	senderID = identityID
	err := m.db.QueryRowContext(ctx, `SELECT secret FROM identities WHERE id = ?`, identityID).Scan(&want)
	if err == sql.ErrNoRows {
		return "", coorderr.New(coorderr.KindMailboxAuth, "unknown identity")
	}
	if err != nil {
		return "", coorderr.Wrap(coorderr.KindMailboxTransport, "lookup identity", err)
	}
	if want != secret {
		return "", coorderr.New(coorderr.KindMailboxAuth, "bad identity secret")
	}
	return senderID, nil
}

func (m *Mailbox) senderFromSecret(ctx context.Context, secret string) (string, error) {
	var id string
	err := m.db.QueryRowContext(ctx, `SELECT id FROM identities WHERE secret = ?`, secret).Scan(&id)
	if err == sql.ErrNoRows {
		return "", coorderr.New(coorderr.KindMailboxAuth, "unknown identity secret")
	}
	if err != nil {
		return "", coorderr.Wrap(coorderr.KindMailboxTransport, "lookup identity by secret", err)
	}
	return id, nil
}

func (m *Mailbox) CreateIdentity(ctx context.Context, ns mailbox.Namespace, displayName string) (mailbox.Identity, error) {
	if err := m.checkNamespace(ctx, ns); err != nil {
		return mailbox.Identity{}, err
	}
	id, secret := newID("id"), newSecret()
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO identities(id, namespace_id, secret, display_name) VALUES (?, ?, ?, ?)`,
		id, ns.ID, secret, displayName)
	if err != nil {
		return mailbox.Identity{}, coorderr.Wrap(coorderr.KindMailboxTransport, "create identity", err)
	}
	return mailbox.Identity{ID: id, Secret: secret}, nil
}

func (m *Mailbox) CreateRoom(ctx context.Context, ns mailbox.Namespace, creatorSecret, displayName string) (mailbox.Room, error) {
	if err := m.checkNamespace(ctx, ns); err != nil {
		return mailbox.Room{}, err
	}
	if _, err := m.senderFromSecret(ctx, creatorSecret); err != nil {
		return mailbox.Room{}, err
	}
	id := newID("room")
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO rooms(id, namespace_id, display_name) VALUES (?, ?, ?)`, id, ns.ID, displayName)
	if err != nil {
		return mailbox.Room{}, coorderr.Wrap(coorderr.KindMailboxTransport, "create room", err)
	}
	return mailbox.Room{ID: id, DisplayName: displayName}, nil
}

func (m *Mailbox) AddRoomMember(ctx context.Context, ns mailbox.Namespace, roomID, identityID, secret string) error {
	// secret must belong to the joining identity itself or to an existing
	// member of the room doing the adding.
	adderID, err := m.senderFromSecret(ctx, secret)
	if err != nil {
		return err
	}
	if adderID != identityID {
		var n int
		err := m.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM room_members WHERE room_id = ? AND identity_id = ?`, roomID, adderID).Scan(&n)
		if err != nil {
			return coorderr.Wrap(coorderr.KindMailboxTransport, "check room membership", err)
		}
		if n == 0 {
			return coorderr.New(coorderr.KindMailboxAuth, "secret does not grant add rights to this room")
		}
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members(room_id, identity_id) VALUES (?, ?)`, roomID, identityID)
	if err != nil {
		return coorderr.Wrap(coorderr.KindMailboxTransport, "add room member", err)
	}
	return nil
}

func (m *Mailbox) ListRoomMembers(ctx context.Context, ns mailbox.Namespace, roomID, secret string) ([]mailbox.RoomMember, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT i.id, i.display_name FROM room_members rm
		JOIN identities i ON i.id = rm.identity_id
		WHERE rm.room_id = ?`, roomID)
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "list room members", err)
	}
	defer rows.Close()

	var out []mailbox.RoomMember
	for rows.Next() {
		var rm mailbox.RoomMember
		if err := rows.Scan(&rm.IdentityID, &rm.DisplayName); err != nil {
			return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "scan room member", err)
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (m *Mailbox) ListRooms(ctx context.Context, ns mailbox.Namespace, secret string) ([]mailbox.Room, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, display_name FROM rooms WHERE namespace_id = ?`, ns.ID)
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "list rooms", err)
	}
	defer rows.Close()

	var out []mailbox.Room
	for rows.Next() {
		var r mailbox.Room
		if err := rows.Scan(&r.ID, &r.DisplayName); err != nil {
			return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "scan room", err)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, rows.Err()
}

func (m *Mailbox) SendMessage(ctx context.Context, ns mailbox.Namespace, toID string, body []byte, fromSecret, contentType string) error {
	fromID, err := m.senderFromSecret(ctx, fromSecret)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO inbox_messages(to_id, from_id, body, content_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		toID, fromID, body, contentType, nowStamp())
	if err != nil {
		return coorderr.Wrap(coorderr.KindMailboxTransport, "send message", err)
	}
	return nil
}

func (m *Mailbox) SendRoomMessage(ctx context.Context, ns mailbox.Namespace, roomID string, body []byte, secret, contentType string) error {
	fromID, err := m.senderFromSecret(ctx, secret)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO room_messages(room_id, from_id, body, content_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		roomID, fromID, body, contentType, nowStamp())
	if err != nil {
		return coorderr.Wrap(coorderr.KindMailboxTransport, "send room message", err)
	}
	return nil
}

func (m *Mailbox) GetInbox(ctx context.Context, ns mailbox.Namespace, identityID, secret, since string) ([]mailbox.RawEnvelope, error) {
	if _, err := m.checkIdentitySecret(ctx, identityID, secret); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT from_id, body, content_type, created_at FROM inbox_messages
		WHERE to_id = ? AND created_at > ? ORDER BY seq ASC`, identityID, since)
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "read inbox", err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func (m *Mailbox) GetRoomMessages(ctx context.Context, ns mailbox.Namespace, roomID, secret, since string) ([]mailbox.RawEnvelope, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT from_id, body, content_type, created_at FROM room_messages
		WHERE room_id = ? AND created_at > ? ORDER BY seq ASC`, roomID, since)
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "read room history", err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func scanEnvelopes(rows *sql.Rows) ([]mailbox.RawEnvelope, error) {
	var out []mailbox.RawEnvelope
	for rows.Next() {
		var e mailbox.RawEnvelope
		if err := rows.Scan(&e.SenderID, &e.Body, &e.ContentType, &e.Timestamp); err != nil {
			return nil, coorderr.Wrap(coorderr.KindMailboxTransport, "scan envelope", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// nowStamp produces a fixed-width RFC 3339 UTC timestamp with nanoseconds:
// the fixed width keeps it sortable as a string for the `since` cursor
// comparisons above, and it parses as time.RFC3339Nano for the reconciler
// when deriving an agent's last_seen from room history.
func nowStamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
