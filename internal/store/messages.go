package store

import (
	"context"
	"fmt"
	"time"
)

type DirectMessage struct {
	ID          int64     `json:"id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListMessagesSince returns direct messages addressed to a principal
// newer than the cursor, oldest first.
func (s *Store) ListMessagesSince(ctx context.Context, recipientID string, since time.Time, limit int) ([]DirectMessage, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT id, sender_id, sender_name, recipient_id, body, read, created_at
FROM direct_messages
WHERE recipient_id=$1 AND created_at > $2
ORDER BY created_at ASC
LIMIT $3
`, recipientID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []DirectMessage
	for rows.Next() {
		var m DirectMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.RecipientID, &m.Body, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
