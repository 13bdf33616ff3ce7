// Package session resolves inbound credentials to principals. A credential
// is either an opaque session id issued by the platform's auth service or a
// short-lived HS256 token; both paths fail closed.
package session

import (
	"context"
	"errors"
	"time"
)

// Principal identifies an authenticated connection owner. It is resolved
// once at handshake time and immutable for the connection's lifetime.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// ErrAuthenticationFailed covers every resolution failure: expired, not
// found, malformed. Callers must reject the connection attempt before any
// connection state is created.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Store is the durable session lookup, keyed by the sha256 of the opaque
// session id. Implemented by the store package; faked in tests.
type Store interface {
	GetSession(ctx context.Context, tokenSHA256 string) (Principal, time.Time, error)
}
