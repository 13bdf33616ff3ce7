package poll

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchline/pulse/internal/store"
)

type fakeStore struct {
	notifications []store.Notification
	messages      []store.DirectMessage
	dashboard     []store.DashboardEvent
}

func (f *fakeStore) ListNotificationsSince(ctx context.Context, userID string, since time.Time, limit int) ([]store.Notification, error) {
	var out []store.Notification
	for _, n := range f.notifications {
		if n.UserID == userID && n.CreatedAt.After(since) {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListMessagesSince(ctx context.Context, recipientID string, since time.Time, limit int) ([]store.DirectMessage, error) {
	var out []store.DirectMessage
	for _, m := range f.messages {
		if m.RecipientID == recipientID && m.CreatedAt.After(since) {
			out = append(out, m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListDashboardEventsSince(ctx context.Context, userID string, since time.Time, limit int) ([]store.DashboardEvent, error) {
	var out []store.DashboardEvent
	for _, ev := range f.dashboard {
		if ev.UserID == userID && ev.CreatedAt.After(since) {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestPollReturnsOnlyItemsNewerThanCursor(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{notifications: []store.Notification{
		{ID: 1, UserID: "5", Kind: "nda_status_update", Payload: json.RawMessage(`{}`), Read: false, CreatedAt: t0.Add(time.Second)},
		{ID: 2, UserID: "5", Kind: "investment_interest", Payload: json.RawMessage(`{}`), Read: false, CreatedAt: t0.Add(2 * time.Second)},
		{ID: 3, UserID: "5", Kind: "view_count", Payload: json.RawMessage(`{}`), Read: true, CreatedAt: t0.Add(-time.Second)},
	}}
	svc := NewService(st, Options{})

	resp, err := svc.Poll(context.Background(), "5", ResourceNotifications, t0.UnixMilli())
	require.NoError(t, err)

	require.Len(t, resp.Items, 2)
	assert.Equal(t, "nda_status_update", resp.Items[0].Type)
	assert.Equal(t, "investment_interest", resp.Items[1].Type)
	assert.True(t, resp.Items[0].Timestamp.Before(resp.Items[1].Timestamp))
	assert.Equal(t, int64(15000), resp.NextPollIn)
	assert.Greater(t, resp.ServerTimestamp, t0.UnixMilli())
}

func TestPollHintsSlowWhenNothingUnread(t *testing.T) {
	t0 := time.Now().Add(-time.Minute)
	st := &fakeStore{notifications: []store.Notification{
		{ID: 1, UserID: "5", Kind: "view_count", Payload: json.RawMessage(`{}`), Read: true, CreatedAt: t0.Add(time.Second)},
	}}
	svc := NewService(st, Options{})

	resp, err := svc.Poll(context.Background(), "5", ResourceNotifications, t0.UnixMilli())
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(45000), resp.NextPollIn)

	// urgent overrides read
	st.notifications[0].Urgent = true
	resp, err = svc.Poll(context.Background(), "5", ResourceNotifications, t0.UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, int64(15000), resp.NextPollIn)
}

func TestPollZeroCursorStartsFromNow(t *testing.T) {
	st := &fakeStore{notifications: []store.Notification{
		{ID: 1, UserID: "5", Kind: "view_count", CreatedAt: time.Now().Add(-time.Hour)},
	}}
	svc := NewService(st, Options{})

	resp, err := svc.Poll(context.Background(), "5", ResourceNotifications, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Equal(t, int64(45000), resp.NextPollIn)
	assert.NotZero(t, resp.ServerTimestamp)
}

func TestPollMessages(t *testing.T) {
	t0 := time.Now().Add(-time.Minute)
	st := &fakeStore{messages: []store.DirectMessage{
		{ID: 7, SenderID: "9", SenderName: "Bo", RecipientID: "5", Body: "hi", Read: false, CreatedAt: t0.Add(time.Second)},
	}}
	svc := NewService(st, Options{})

	resp, err := svc.Poll(context.Background(), "5", ResourceMessages, t0.UnixMilli())
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "chat_message", resp.Items[0].Type)
	assert.Equal(t, "msg-7", resp.Items[0].ID)
	assert.Equal(t, int64(15000), resp.NextPollIn)

	var m store.DirectMessage
	require.NoError(t, json.Unmarshal(resp.Items[0].Data, &m))
	assert.Equal(t, "hi", m.Body)
}

func TestPollDashboardNeverHintsFast(t *testing.T) {
	t0 := time.Now().Add(-time.Minute)
	st := &fakeStore{dashboard: []store.DashboardEvent{
		{ID: 1, UserID: "5", Kind: "view_count", Payload: json.RawMessage(`{"views":3}`), CreatedAt: t0.Add(time.Second)},
	}}
	svc := NewService(st, Options{})

	resp, err := svc.Poll(context.Background(), "5", ResourceDashboard, t0.UnixMilli())
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(45000), resp.NextPollIn)
}

func TestParseResource(t *testing.T) {
	for _, valid := range []string{"notifications", "messages", "dashboard"} {
		_, ok := ParseResource(valid)
		assert.True(t, ok, valid)
	}
	_, ok := ParseResource("payments")
	assert.False(t, ok)
}
