package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pitchline/pulse/internal/session"
)

// GetSession looks up a session by the sha256 of its opaque id. The
// sessions table is written by the auth collaborator; this side only reads.
func (s *Store) GetSession(ctx context.Context, tokenSHA256 string) (session.Principal, time.Time, error) {
	var p session.Principal
	var expiresAt time.Time
	err := s.db.Pool.QueryRow(ctx, `
SELECT user_id, display_name, role, expires_at
FROM sessions
WHERE token_sha256=$1
`, tokenSHA256).Scan(&p.ID, &p.DisplayName, &p.Role, &expiresAt)
	if err != nil {
		return session.Principal{}, time.Time{}, fmt.Errorf("get session: %w", err)
	}
	return p, expiresAt, nil
}
