package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DashboardEvent is a summary-feed record (view-count changes, NDA status
// flips, investment interest) written by the analytics collaborator.
type DashboardEvent struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Store) ListDashboardEventsSince(ctx context.Context, userID string, since time.Time, limit int) ([]DashboardEvent, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT id, user_id, kind, payload, created_at
FROM dashboard_events
WHERE user_id=$1 AND created_at > $2
ORDER BY created_at ASC
LIMIT $3
`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list dashboard events: %w", err)
	}
	defer rows.Close()
	var out []DashboardEvent
	for rows.Next() {
		var ev DashboardEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Kind, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
