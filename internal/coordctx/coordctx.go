// Package coordctx implements the Coordination Context: a thin per-identity
// façade over a mailbox.Client that serializes/deserializes typed messages
// and normalizes raw envelopes into a ReceivedMessage stream.
//
// Receive runs the blocking mailbox call on its own goroutine via
// golang.org/x/sync/errgroup, so a caller with its own timers is never
// serialized behind a long poll.
package coordctx

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adamavenir/coord/internal/clog"
	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/mailbox"
	"github.com/adamavenir/coord/internal/protocol"
)

// ReceivedMessage is one normalized inbound message: its sender, the
// decoded payload, whether it arrived via the coordination room (as
// opposed to direct), and the mailbox's server-assigned timestamp.
type ReceivedMessage struct {
	SenderID  string
	Message   protocol.Message
	FromRoom  bool
	Timestamp string
}

// Context bundles the namespace handle, one identity's credentials, and the
// coordination room id that identity participates in.
type Context struct {
	client   mailbox.Client
	ns       mailbox.Namespace
	self     mailbox.Identity
	roomID   string
	compress bool

	log *clog.Logger

	lastDirect string // cursor into GetInbox
	lastRoom   string // cursor into GetRoomMessages
}

// New constructs a Context for one identity within a namespace/room.
func New(client mailbox.Client, ns mailbox.Namespace, self mailbox.Identity, roomID string) *Context {
	return &Context{
		client: client,
		ns:     ns,
		self:   self,
		roomID: roomID,
		log:    clog.Sub("coordctx"),
	}
}

// SetCompress toggles gzip compression for outbound messages.
func (c *Context) SetCompress(compress bool) {
	c.compress = compress
}

// Send serializes msg and delivers it directly to peerIdentityID.
func (c *Context) Send(ctx context.Context, peerIdentityID string, msg protocol.Message) error {
	body, contentType, err := protocol.Serialize(msg, c.compress)
	if err != nil {
		return err
	}
	return c.client.SendMessage(ctx, c.ns, peerIdentityID, body, c.self.Secret, contentType)
}

// Broadcast serializes msg and sends it to the coordination room.
func (c *Context) Broadcast(ctx context.Context, msg protocol.Message) error {
	body, contentType, err := protocol.Serialize(msg, c.compress)
	if err != nil {
		return err
	}
	return c.client.SendRoomMessage(ctx, c.ns, c.roomID, body, c.self.Secret, contentType)
}

// SendToCoordinator is used by workers: it sends directly to the session's
// coordinator identity.
func (c *Context) SendToCoordinator(ctx context.Context, coordinatorIdentityID string, msg protocol.Message) error {
	return c.Send(ctx, coordinatorIdentityID, msg)
}

// Receive polls the inbox and, if includeRoom, the coordination room,
// returning newly observed messages in server-timestamp order. It
// deduplicates against its own last-seen cursors, so repeated calls never
// redeliver the same envelope. Malformed or unknown-type envelopes are
// skipped with a log entry, never returned as an error.
//
// waitSeconds == 0 is non-blocking. Positive values bound how long the call
// may hang waiting for the mailbox to deliver something; if the underlying
// client does not support long polling, Receive falls back to a bounded
// sleep-and-retry loop with the same total budget.
func (c *Context) Receive(ctx context.Context, waitSeconds int, includeRoom bool) ([]ReceivedMessage, error) {
	budget := time.Duration(waitSeconds) * time.Second
	if budget > 0 && supportsLongPoll(c.client) {
		// A long-polling client blocks inside the call itself; the budget
		// reaches it as the context deadline.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	var direct, room []mailbox.RawEnvelope
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		direct, err = c.pollInbox(gctx, budget)
		return err
	})
	if includeRoom {
		g.Go(func() error {
			var err error
			room, err = c.pollRoom(gctx, budget)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	received := make([]ReceivedMessage, 0, len(direct)+len(room))
	received = append(received, c.decode(direct, false)...)
	received = append(received, c.decode(room, true)...)

	sort.SliceStable(received, func(i, j int) bool {
		return received[i].Timestamp < received[j].Timestamp
	})

	for _, r := range received {
		if !r.FromRoom && r.Timestamp > c.lastDirect {
			c.lastDirect = r.Timestamp
		}
		if r.FromRoom && r.Timestamp > c.lastRoom {
			c.lastRoom = r.Timestamp
		}
	}

	return received, nil
}

func (c *Context) pollInbox(ctx context.Context, budget time.Duration) ([]mailbox.RawEnvelope, error) {
	if supportsLongPoll(c.client) || budget <= 0 {
		return c.client.GetInbox(ctx, c.ns, c.self.ID, c.self.Secret, c.lastDirect)
	}
	return c.retryUntil(budget, func() ([]mailbox.RawEnvelope, error) {
		return c.client.GetInbox(ctx, c.ns, c.self.ID, c.self.Secret, c.lastDirect)
	})
}

func (c *Context) pollRoom(ctx context.Context, budget time.Duration) ([]mailbox.RawEnvelope, error) {
	if supportsLongPoll(c.client) || budget <= 0 {
		return c.client.GetRoomMessages(ctx, c.ns, c.roomID, c.self.Secret, c.lastRoom)
	}
	return c.retryUntil(budget, func() ([]mailbox.RawEnvelope, error) {
		return c.client.GetRoomMessages(ctx, c.ns, c.roomID, c.self.Secret, c.lastRoom)
	})
}

// retryUntil implements the bounded sleep-and-retry fallback for clients
// that don't long-poll server-side.
func (c *Context) retryUntil(budget time.Duration, poll func() ([]mailbox.RawEnvelope, error)) ([]mailbox.RawEnvelope, error) {
	deadline := time.Now().Add(budget)
	const interval = 500 * time.Millisecond
	for {
		envs, err := poll()
		if err != nil {
			return nil, err
		}
		if len(envs) > 0 || time.Now().After(deadline) {
			return envs, nil
		}
		time.Sleep(interval)
	}
}

func supportsLongPoll(client mailbox.Client) bool {
	lp, ok := client.(mailbox.LongPoller)
	return ok && lp.SupportsLongPoll()
}

func (c *Context) decode(envs []mailbox.RawEnvelope, fromRoom bool) []ReceivedMessage {
	out := make([]ReceivedMessage, 0, len(envs))
	for _, e := range envs {
		msg, err := protocol.Deserialize(e.Body, e.ContentType)
		if err != nil {
			kind := coorderr.KindOf(err)
			c.log.Printf("skipping malformed envelope from %s (%s): %v", e.SenderID, kind, err)
			continue
		}
		out = append(out, ReceivedMessage{
			SenderID:  e.SenderID,
			Message:   msg,
			FromRoom:  fromRoom,
			Timestamp: e.Timestamp,
		})
	}
	return out
}
