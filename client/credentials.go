// Package client is the session/token lifecycle manager: token storage,
// expiry tracking, single-flight refresh, activity renewal, the authenticating
// HTTP transport and the forced logout that ties them together.
package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNoSession is returned when an operation needs tokens and none are stored.
	ErrNoSession = errors.New("no session")

	// ErrSessionExpired is returned when the access token lapsed and could not be renewed.
	ErrSessionExpired = errors.New("session expired")
)

// TokenPair is the access/refresh credential pair issued by the backend.
// The zero value means "no session".
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// IsEmpty returns true if no access token is present
func (p TokenPair) IsEmpty() bool {
	return p.AccessToken == ""
}

// HasRefreshToken returns true if a refresh token is available
func (p TokenPair) HasRefreshToken() bool {
	return p.RefreshToken != ""
}

// ExpiresAt returns the unverified expiry of the access token, if readable.
func (p TokenPair) ExpiresAt() (time.Time, bool) {
	return ExpiryOf(p.AccessToken)
}

// TokenStore is the single source of truth for the session credentials.
//
// Implementations must make Save and Clear atomic with respect to Load: a
// reader sees either the whole old pair or the whole new pair, never a mix.
type TokenStore interface {
	// Load returns the stored pair. A zero pair and nil error means no session.
	Load(ctx context.Context) (TokenPair, error)

	// Save replaces the stored pair.
	Save(ctx context.Context, pair TokenPair) error

	// Clear removes both tokens.
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the pair in process memory.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

// NewMemoryTokenStore creates an empty in-memory store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(ctx context.Context) (TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

func (s *MemoryTokenStore) Save(ctx context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	return nil
}
