package correios

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/ShipBox/internal/cache"
)

// RenewalMargin is how long before the carrier-declared expiry a token is
// already treated as expired.
const RenewalMargin = 5 * time.Minute

type Token struct {
	Value     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t *Token) validAt(now time.Time) bool {
	return t != nil && t.Value != "" && now.Before(t.ExpiresAt.Add(-RenewalMargin))
}

// TokenStore persists the token between processes or restarts. Only the
// Authenticator writes to it.
type TokenStore interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*Token, error)
	Save(ctx context.Context, t *Token) error
	Clear(ctx context.Context) error
}

type MemoryTokenStore struct {
	mu  sync.Mutex
	tok *Token
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (s *MemoryTokenStore) Load(context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return nil, nil
	}
	cp := *s.tok
	return &cp, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tok = &cp
	return nil
}

func (s *MemoryTokenStore) Clear(context.Context) error {
	s.mu.Lock()
	s.tok = nil
	s.mu.Unlock()
	return nil
}

// CacheTokenStore keeps the token in a shared byte cache (redis) so worker
// replicas reuse it. Entries expire with the token.
type CacheTokenStore struct {
	c   cache.BytesCache
	key string
}

func NewCacheTokenStore(c cache.BytesCache, key string) *CacheTokenStore {
	if key == "" {
		key = "carrier:token"
	}
	return &CacheTokenStore{c: c, key: key}
}

func (s *CacheTokenStore) Load(ctx context.Context) (*Token, error) {
	b, ok, err := s.c.Get(ctx, s.key)
	if err != nil || !ok {
		return nil, err
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, errors.Wrap(err, "decode stored token")
	}
	return &t, nil
}

func (s *CacheTokenStore) Save(ctx context.Context, t *Token) error {
	b, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "encode token")
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.c.Set(ctx, s.key, b, ttl)
}

func (s *CacheTokenStore) Clear(ctx context.Context) error {
	return s.c.Delete(ctx, s.key)
}
