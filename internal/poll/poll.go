// Package poll is the pull-based delivery path: a stateless
// request/response service that answers "what happened since T" straight
// from the durable store, for clients that cannot hold a connection. It
// never touches hub state.
package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pitchline/pulse/internal/event"
	"github.com/pitchline/pulse/internal/store"
)

type Resource string

const (
	ResourceNotifications Resource = "notifications"
	ResourceMessages      Resource = "messages"
	ResourceDashboard     Resource = "dashboard"
)

func ParseResource(s string) (Resource, bool) {
	switch Resource(s) {
	case ResourceNotifications, ResourceMessages, ResourceDashboard:
		return Resource(s), true
	}
	return "", false
}

// Store is the slice of the durable store the polling path reads.
type Store interface {
	ListNotificationsSince(ctx context.Context, userID string, since time.Time, limit int) ([]store.Notification, error)
	ListMessagesSince(ctx context.Context, recipientID string, since time.Time, limit int) ([]store.DirectMessage, error)
	ListDashboardEventsSince(ctx context.Context, userID string, since time.Time, limit int) ([]store.DashboardEvent, error)
}

// Response carries the new items (oldest first), a hint for the client's
// next poll delay, and the server time to seed the next cursor.
type Response struct {
	Items           []event.Envelope `json:"items"`
	NextPollIn      int64            `json:"nextPollIn"`
	ServerTimestamp int64            `json:"serverTimestamp"`
}

type Options struct {
	// FastInterval is hinted when any returned item is unread or urgent.
	FastInterval time.Duration
	// SlowInterval is hinted otherwise.
	SlowInterval time.Duration
	MaxItems     int
}

type Service struct {
	store Store
	fast  time.Duration
	slow  time.Duration
	limit int
	now   func() time.Time
}

func NewService(st Store, opts Options) *Service {
	if opts.FastInterval <= 0 {
		opts.FastInterval = 15 * time.Second
	}
	if opts.SlowInterval <= 0 {
		opts.SlowInterval = 45 * time.Second
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 200
	}
	return &Service{
		store: st,
		fast:  opts.FastInterval,
		slow:  opts.SlowInterval,
		limit: opts.MaxItems,
		now:   time.Now,
	}
}

// Poll answers a range query for one principal and resource. sinceMS is a
// client-held unix-millisecond cursor; zero means "from now", so a first
// poll seeds the cursor without replaying history.
func (s *Service) Poll(ctx context.Context, principalID string, resource Resource, sinceMS int64) (*Response, error) {
	now := s.now()
	since := now
	if sinceMS > 0 {
		since = time.UnixMilli(sinceMS)
	}

	var (
		items  []event.Envelope
		urgent bool
		err    error
	)
	switch resource {
	case ResourceNotifications:
		items, urgent, err = s.pollNotifications(ctx, principalID, since)
	case ResourceMessages:
		items, urgent, err = s.pollMessages(ctx, principalID, since)
	case ResourceDashboard:
		items, err = s.pollDashboard(ctx, principalID, since)
	default:
		return nil, fmt.Errorf("unknown resource %q", resource)
	}
	if err != nil {
		return nil, err
	}

	next := s.slow
	if urgent {
		next = s.fast
	}
	if items == nil {
		items = []event.Envelope{}
	}
	return &Response{
		Items:           items,
		NextPollIn:      next.Milliseconds(),
		ServerTimestamp: now.UnixMilli(),
	}, nil
}

func (s *Service) pollNotifications(ctx context.Context, userID string, since time.Time) ([]event.Envelope, bool, error) {
	recs, err := s.store.ListNotificationsSince(ctx, userID, since, s.limit)
	if err != nil {
		return nil, false, err
	}
	items := make([]event.Envelope, 0, len(recs))
	urgent := false
	for _, n := range recs {
		if !n.Read || n.Urgent {
			urgent = true
		}
		data, err := json.Marshal(n)
		if err != nil {
			return nil, false, err
		}
		items = append(items, event.Envelope{
			ID:        fmt.Sprintf("ntf-%d", n.ID),
			Type:      n.Kind,
			Data:      data,
			Timestamp: n.CreatedAt,
		})
	}
	return items, urgent, nil
}

func (s *Service) pollMessages(ctx context.Context, recipientID string, since time.Time) ([]event.Envelope, bool, error) {
	recs, err := s.store.ListMessagesSince(ctx, recipientID, since, s.limit)
	if err != nil {
		return nil, false, err
	}
	items := make([]event.Envelope, 0, len(recs))
	urgent := false
	for _, m := range recs {
		if !m.Read {
			urgent = true
		}
		data, err := json.Marshal(m)
		if err != nil {
			return nil, false, err
		}
		items = append(items, event.Envelope{
			ID:        fmt.Sprintf("msg-%d", m.ID),
			Type:      "chat_message",
			Data:      data,
			Timestamp: m.CreatedAt,
		})
	}
	return items, urgent, nil
}

func (s *Service) pollDashboard(ctx context.Context, userID string, since time.Time) ([]event.Envelope, error) {
	recs, err := s.store.ListDashboardEventsSince(ctx, userID, since, s.limit)
	if err != nil {
		return nil, err
	}
	items := make([]event.Envelope, 0, len(recs))
	for _, ev := range recs {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		items = append(items, event.Envelope{
			ID:        fmt.Sprintf("dash-%d", ev.ID),
			Type:      ev.Kind,
			Data:      data,
			Timestamp: ev.CreatedAt,
		})
	}
	return items, nil
}
