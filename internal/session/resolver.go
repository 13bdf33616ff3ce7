package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Resolver turns a raw credential into a Principal via a cache-then-store
// lookup. Short-lived tokens (JWTs) are verified locally and never hit the
// store.
type Resolver struct {
	store     Store
	jwtSecret []byte
	cache     *principalCache
	now       func() time.Time
}

func NewResolver(st Store, jwtSecret string, cacheTTL time.Duration, cacheSize int) *Resolver {
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &Resolver{
		store:     st,
		jwtSecret: secret,
		cache:     newPrincipalCache(cacheTTL, cacheSize),
		now:       time.Now,
	}
}

type tokenClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Resolve authenticates a credential. Any failure maps to
// ErrAuthenticationFailed; the underlying cause is wrapped for logs but
// never shown to the connecting client.
func (r *Resolver) Resolve(ctx context.Context, credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, fmt.Errorf("%w: empty credential", ErrAuthenticationFailed)
	}
	if strings.Count(credential, ".") == 2 {
		return r.resolveToken(credential)
	}
	return r.resolveSession(ctx, credential)
}

func (r *Resolver) resolveToken(raw string) (Principal, error) {
	if len(r.jwtSecret) == 0 {
		return Principal{}, fmt.Errorf("%w: token auth disabled", ErrAuthenticationFailed)
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: token has no subject", ErrAuthenticationFailed)
	}
	role := claims.Role
	if role == "" {
		role = "user"
	}
	return Principal{ID: claims.Subject, DisplayName: claims.Name, Role: role}, nil
}

func (r *Resolver) resolveSession(ctx context.Context, sessionID string) (Principal, error) {
	sum := sha256.Sum256([]byte(sessionID))
	key := hex.EncodeToString(sum[:])
	now := r.now()

	if p, ok := r.cache.get(key, now); ok {
		return p, nil
	}

	p, expiresAt, err := r.store.GetSession(ctx, key)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if !expiresAt.After(now) {
		return Principal{}, fmt.Errorf("%w: session expired", ErrAuthenticationFailed)
	}
	r.cache.put(key, p, expiresAt, now)
	return p, nil
}
