package client

import (
	"context"

	"golang.org/x/oauth2"
)

// sessionTokenSource adapts a Session to oauth2.TokenSource so oauth2 and
// gRPC credential plumbing can draw tokens from it.
type sessionTokenSource struct {
	ctx context.Context
	s   *Session
}

// TokenSource returns an oauth2.TokenSource backed by the session store.
// An expired access token is refreshed first; if that fails the source
// returns ErrSessionExpired.
func (s *Session) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, s: s}
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	pair, err := ts.s.store.Load(ts.ctx)
	if err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, ErrNoSession
	}

	if left, ok := remaining(ts.s.clock, pair.AccessToken); ok && left <= 0 {
		if !ts.s.RefreshNow(ts.ctx) {
			return nil, ErrSessionExpired
		}
		if pair, err = ts.s.store.Load(ts.ctx); err != nil {
			return nil, err
		}
		if pair.IsEmpty() {
			return nil, ErrSessionExpired
		}
	}

	tok := &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}
	if exp, ok := pair.ExpiresAt(); ok {
		tok.Expiry = exp
	}
	return tok, nil
}
