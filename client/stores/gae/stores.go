//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/panyam/authsession/client"
)

// KindSessionTokens is the Datastore kind of stored token pairs
const KindSessionTokens = "SessionTokens"

// SessionTokensEntity is the Datastore entity for a token pair
type SessionTokensEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	AccessToken  string         `datastore:"access_token,noindex"`
	RefreshToken string         `datastore:"refresh_token,noindex"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

// TokenStore implements client.TokenStore using Datastore
type TokenStore struct {
	client     *datastore.Client
	namespace  string
	sessionKey string
}

// NewTokenStore creates a Datastore-backed store for one session key
func NewTokenStore(client *datastore.Client, namespace, sessionKey string) *TokenStore {
	return &TokenStore{
		client:     client,
		namespace:  namespace,
		sessionKey: sessionKey,
	}
}

func (s *TokenStore) namespacedKey(name string) *datastore.Key {
	key := datastore.NameKey(KindSessionTokens, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *TokenStore) Load(ctx context.Context) (client.TokenPair, error) {
	var entity SessionTokensEntity
	err := s.client.Get(ctx, s.namespacedKey(s.sessionKey), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return client.TokenPair{}, nil
	}
	if err != nil {
		return client.TokenPair{}, fmt.Errorf("failed to load tokens: %w", err)
	}
	return client.TokenPair{AccessToken: entity.AccessToken, RefreshToken: entity.RefreshToken}, nil
}

func (s *TokenStore) Save(ctx context.Context, pair client.TokenPair) error {
	key := s.namespacedKey(s.sessionKey)
	entity := &SessionTokensEntity{
		Key:          key,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UpdatedAt:    time.Now(),
	}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	err := s.client.Delete(ctx, s.namespacedKey(s.sessionKey))
	if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// SessionKeys lists every session with stored tokens in the namespace.
func (s *TokenStore) SessionKeys(ctx context.Context) ([]string, error) {
	query := datastore.NewQuery(KindSessionTokens).Namespace(s.namespace).KeysOnly()

	var keys []string
	it := s.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, key.Name)
	}
	return keys, nil
}

var _ client.TokenStore = (*TokenStore)(nil)
