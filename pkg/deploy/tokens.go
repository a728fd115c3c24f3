package deploy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stevedore-dev/stevedore/pkg/bundle"
)

// TokenLifetime is how long a stored change set stays retrievable.
const TokenLifetime = 2 * time.Minute

type tokenEntry struct {
	changes []bundle.Operation
	timer   *time.Timer
}

// TokenStore caches precomputed bundle change sets under opaque single-use
// tokens. An entry is consumed by the first Get or evicted by its expiry
// timer, whichever comes first; the two race benignly (pop-if-present).
// The store is owned by the server and cleared at shutdown.
type TokenStore struct {
	lifetime time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*tokenEntry
}

// NewTokenStore returns a TokenStore expiring entries after lifetime, or
// after TokenLifetime if lifetime is zero.
func NewTokenStore(lifetime time.Duration, logger *slog.Logger) *TokenStore {
	if lifetime == 0 {
		lifetime = TokenLifetime
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{
		lifetime: lifetime,
		logger:   logger.With("component", "tokens"),
		entries:  make(map[string]*tokenEntry),
	}
}

// Set stores a change set under a fresh token and returns the token with
// its creation and expiry timestamps.
func (s *TokenStore) Set(changes []bundle.Operation) (token string, created, expires time.Time) {
	token = uuid.NewString()
	created = time.Now().UTC()
	expires = created.Add(s.lifetime)

	s.mu.Lock()
	s.entries[token] = &tokenEntry{
		changes: changes,
		timer:   time.AfterFunc(s.lifetime, func() { s.expire(token) }),
	}
	s.mu.Unlock()
	return token, created, expires
}

// Get pops the change set stored under token. Each token is good for
// exactly one retrieval; consuming it cancels the expiry timer.
func (s *TokenStore) Get(token string) ([]bundle.Operation, bool) {
	s.mu.Lock()
	entry, ok := s.entries[token]
	if ok {
		delete(s.entries, token)
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	entry.timer.Stop()
	return entry.changes, true
}

// Close drops every entry and stops its timer.
func (s *TokenStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, token)
	}
}

func (s *TokenStore) expire(token string) {
	s.mu.Lock()
	_, ok := s.entries[token]
	if ok {
		delete(s.entries, token)
	}
	s.mu.Unlock()
	if ok {
		s.logger.Info("expired bundle token", "token", token)
	}
}
