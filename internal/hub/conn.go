package hub

import (
	"time"

	"github.com/pitchline/pulse/internal/session"
)

// connState is the actor-owned record for one open connection. It is
// created on register, destroyed on remove, and never leaves the actor
// goroutine.
type connState struct {
	id        string
	principal session.Principal
	anonymous bool
	joinedAt  time.Time

	// mailbox carries encoded envelopes to the transport's write loop.
	// Closed by the actor on removal; the transport treats a closed
	// mailbox as "hang up".
	mailbox chan []byte

	// channels the connection is subscribed to, mirrored by the
	// subscription table so removal can sweep in one pass.
	channels map[string]struct{}
}

// Conn is the transport-facing handle returned by Register. Transports
// drain Mailbox on their own goroutine and call Close exactly once when
// the underlying connection goes away.
type Conn struct {
	ID        string
	Principal session.Principal
	Anonymous bool

	hub     *Hub
	mailbox chan []byte
}

// Mailbox returns the channel of encoded envelopes to write out. It is
// closed when the hub removes the connection.
func (c *Conn) Mailbox() <-chan []byte { return c.mailbox }

// Close removes the connection from the hub. Safe to call more than once
// and after the hub has already removed it.
func (c *Conn) Close() { c.hub.Remove(c.ID) }

// Subscribe adds this connection to a channel. Idempotent.
func (c *Conn) Subscribe(channel string) { c.hub.Subscribe(c.ID, channel) }

// Unsubscribe drops this connection from a channel.
func (c *Conn) Unsubscribe(channel string) { c.hub.Unsubscribe(c.ID, channel) }
