package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Notification struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Urgent    bool            `json:"urgent"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListNotificationsSince returns a principal's notifications newer than
// the cursor, oldest first.
func (s *Store) ListNotificationsSince(ctx context.Context, userID string, since time.Time, limit int) ([]Notification, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT id, user_id, kind, payload, urgent, read, created_at
FROM notifications
WHERE user_id=$1 AND created_at > $2
ORDER BY created_at ASC
LIMIT $3
`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Payload, &n.Urgent, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
