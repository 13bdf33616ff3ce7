// Package hub is the realtime delivery core: a single actor goroutine
// that owns the connection registry, channel subscriptions and presence,
// and fans pushed envelopes out to open connections. Delivery is
// best-effort; the durable store (read by the polling path) is the
// system of record.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pitchline/pulse/internal/event"
	"github.com/pitchline/pulse/internal/session"
)

// ErrHubUnavailable means the actor could not be reached: its queue is
// saturated or it has stopped. Callers log and move on; the polling path
// does not depend on the hub.
var ErrHubUnavailable = errors.New("hub unavailable")

// pushWait bounds how long a Push caller waits for the actor's recipient
// count before declaring the hub unavailable.
const pushWait = 2 * time.Second

type opKind int

const (
	opRegister opKind = iota
	opRemove
	opSubscribe
	opUnsubscribe
	opDeliver
	opTouch
	opOnline
	opStats
)

// op is the actor's operation envelope: one tagged union dispatched
// through a single switch, so every state mutation is serialized without
// locks.
type op struct {
	kind opKind

	// register
	principal session.Principal
	anonymous bool
	connReply chan *Conn

	// remove / subscribe / unsubscribe
	connID  string
	channel string

	// deliver
	target     string
	payload    []byte
	envType    string
	countReply chan int

	// touch
	status      Status
	hasStatus   bool
	activity    string
	hasActivity bool

	// queries
	onlineReply chan []PresenceRecord
	statsReply  chan Stats
}

type Stats struct {
	Connections int `json:"connections"`
	Principals  int `json:"principals"`
	Channels    int `json:"channels"`
}

type Options struct {
	// QueueSize is the actor mailbox capacity.
	QueueSize int
	// SendBuffer is the per-connection mailbox capacity. A full mailbox
	// counts as a failed send and removes the connection.
	SendBuffer int
	// PresenceWindow is the freshness window for online queries.
	PresenceWindow time.Duration
	Logger         *slog.Logger
}

type Hub struct {
	ops  chan op
	done chan struct{}

	sendBuffer int
	logger     *slog.Logger

	// actor-owned state, touched only inside Run
	reg      *registry
	subs     *subscriptions
	presence *presenceTracker
	now      func() time.Time
}

func New(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		ops:        make(chan op, opts.QueueSize),
		done:       make(chan struct{}),
		sendBuffer: opts.SendBuffer,
		logger:     logger,
		reg:        newRegistry(),
		subs:       newSubscriptions(),
		presence:   newPresenceTracker(opts.PresenceWindow),
		now:        time.Now,
	}
}

// Run processes operations one at a time until the context is cancelled,
// then closes every connection. Call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id := range h.reg.byID {
				if c := h.reg.remove(id); c != nil {
					h.subs.drop(c)
					close(c.mailbox)
				}
			}
			metricConnections.Set(0)
			h.logger.Info("hub stopped")
			return
		case o := <-h.ops:
			h.dispatch(o)
		}
	}
}

func (h *Hub) dispatch(o op) {
	switch o.kind {
	case opRegister:
		o.connReply <- h.handleRegister(o.principal, o.anonymous)
	case opRemove:
		h.removeConn(o.connID)
	case opSubscribe:
		if c := h.reg.byID[o.connID]; c != nil {
			h.subs.subscribe(c, o.channel)
		}
	case opUnsubscribe:
		if c := h.reg.byID[o.connID]; c != nil {
			h.subs.unsubscribe(c, o.channel)
		}
	case opDeliver:
		n := h.deliver(o.target, o.payload, o.envType)
		if o.countReply != nil {
			o.countReply <- n
		}
	case opTouch:
		h.presence.touch(o.principal.ID, o.principal.DisplayName, o.status, o.hasStatus, o.activity, o.hasActivity, h.now())
	case opOnline:
		o.onlineReply <- h.presence.online(h.now())
	case opStats:
		o.statsReply <- Stats{
			Connections: h.reg.count(),
			Principals:  h.reg.principalCount(),
			Channels:    h.subs.channelCount(),
		}
	}
}

func (h *Hub) handleRegister(p session.Principal, anonymous bool) *Conn {
	c := &connState{
		id:        uuid.NewString(),
		principal: p,
		anonymous: anonymous,
		joinedAt:  h.now(),
		mailbox:   make(chan []byte, h.sendBuffer),
		channels:  make(map[string]struct{}),
	}
	h.reg.add(c)
	if !anonymous {
		h.subs.subscribe(c, "user:"+p.ID)
		h.presence.touch(p.ID, p.DisplayName, StatusOnline, true, "", false, h.now())
	}
	metricConnections.Set(float64(h.reg.count()))
	h.logger.Info("connection registered",
		"conn", c.id, "principal", p.ID, "anonymous", anonymous,
		"connections", h.reg.count())
	return &Conn{ID: c.id, Principal: p, Anonymous: anonymous, hub: h, mailbox: c.mailbox}
}

// removeConn deletes the connection from the registry and every channel
// in one step, then closes its mailbox. No-op for unknown ids.
func (h *Hub) removeConn(id string) {
	c := h.reg.remove(id)
	if c == nil {
		return
	}
	h.subs.drop(c)
	close(c.mailbox)
	metricConnections.Set(float64(h.reg.count()))
	h.logger.Info("connection removed",
		"conn", id, "principal", c.principal.ID, "connections", h.reg.count())
}

// deliver fans one encoded envelope out to every connection registered
// for the target principal or subscribed to the target channel. Sends are
// non-blocking; a failed send removes that connection and never aborts
// delivery to the rest. Zero recipients is success.
func (h *Hub) deliver(target string, payload []byte, envType string) int {
	metricPushes.Inc()

	targets := make(map[string]*connState)
	for id, c := range h.reg.principalConns(target) {
		targets[id] = c
	}
	for id, c := range h.subs.members(target) {
		targets[id] = c
	}

	delivered := 0
	var failed []string
	for id, c := range targets {
		select {
		case c.mailbox <- payload:
			delivered++
			metricDeliveries.Inc()
		default:
			failed = append(failed, id)
			metricDeliveryFailures.Inc()
		}
	}
	for _, id := range failed {
		h.logger.Warn("send failed, dropping connection", "conn", id, "target", target, "type", envType)
		h.removeConn(id)
	}
	return delivered
}

// enqueue hands an op to the actor, blocking until accepted or the hub
// has stopped.
func (h *Hub) enqueue(o op) error {
	select {
	case h.ops <- o:
		return nil
	case <-h.done:
		return ErrHubUnavailable
	}
}

// Register creates a connection for an authenticated (or anonymous)
// principal. It only fails when the hub is saturated or stopped, in which
// case the handshake must be rejected.
func (h *Hub) Register(p session.Principal, anonymous bool) (*Conn, error) {
	reply := make(chan *Conn, 1)
	o := op{kind: opRegister, principal: p, anonymous: anonymous, connReply: reply}
	select {
	case h.ops <- o:
	case <-h.done:
		return nil, ErrHubUnavailable
	default:
		return nil, ErrHubUnavailable
	}
	select {
	case c := <-reply:
		return c, nil
	case <-h.done:
		return nil, ErrHubUnavailable
	}
}

// Remove drops a connection. Idempotent; fire-and-forget.
func (h *Hub) Remove(connID string) {
	_ = h.enqueue(op{kind: opRemove, connID: connID})
}

// Subscribe adds a connection to a channel. Idempotent.
func (h *Hub) Subscribe(connID, channel string) {
	_ = h.enqueue(op{kind: opSubscribe, connID: connID, channel: channel})
}

func (h *Hub) Unsubscribe(connID, channel string) {
	_ = h.enqueue(op{kind: opUnsubscribe, connID: connID, channel: channel})
}

// Result reports a completed fan-out. Zero recipients is a success:
// nobody was connected, and the event is not queued.
type Result struct {
	Recipients int `json:"recipients"`
}

// Push delivers an envelope to a principal id or channel id. It returns
// quickly; ErrHubUnavailable is the only failure and means the actor
// could not be reached at all. Individual send failures are absorbed.
func (h *Hub) Push(target string, env event.Envelope) (Result, error) {
	payload, err := env.Encode()
	if err != nil {
		return Result{}, err
	}
	reply := make(chan int, 1)
	o := op{kind: opDeliver, target: target, payload: payload, envType: env.Type, countReply: reply}
	select {
	case h.ops <- o:
	case <-h.done:
		return Result{}, ErrHubUnavailable
	default:
		return Result{}, ErrHubUnavailable
	}
	timer := time.NewTimer(pushWait)
	defer timer.Stop()
	select {
	case n := <-reply:
		return Result{Recipients: n}, nil
	case <-h.done:
		return Result{}, ErrHubUnavailable
	case <-timer.C:
		return Result{}, ErrHubUnavailable
	}
}

// Touch upserts presence for a principal. An empty status is a bare
// heartbeat; an invalid status falls back to online.
func (h *Hub) Touch(p session.Principal, status, activity string) {
	o := op{kind: opTouch, principal: p}
	if status != "" {
		parsed, ok := ParseStatus(status)
		if !ok {
			h.logger.Warn("invalid presence status, using online", "principal", p.ID, "status", status)
		}
		o.status = parsed
		o.hasStatus = true
	}
	if activity != "" {
		o.activity = activity
		o.hasActivity = true
	}
	_ = h.enqueue(o)
}

// Online returns all non-stale presence records.
func (h *Hub) Online() []PresenceRecord {
	reply := make(chan []PresenceRecord, 1)
	if err := h.enqueue(op{kind: opOnline, onlineReply: reply}); err != nil {
		return nil
	}
	select {
	case recs := <-reply:
		return recs
	case <-h.done:
		return nil
	}
}

// Stats returns a point-in-time view of hub occupancy.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	if err := h.enqueue(op{kind: opStats, statsReply: reply}); err != nil {
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-h.done:
		return Stats{}
	}
}
