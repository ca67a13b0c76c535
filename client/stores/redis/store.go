// Package redis provides a Redis token store for authsession clients, for
// hosts that share sessions between several processes.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/panyam/authsession/client"
)

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
)

// TokenStore keeps the pair in one Redis hash. Both fields are written in a
// single MULTI/EXEC so readers never observe half a rotation.
type TokenStore struct {
	client *redis.Client
	logger *zap.Logger
	key    string
	ttl    time.Duration
}

// NewTokenStore creates a store under key "authsession:tokens:<sessionKey>".
// A positive ttl expires the hash that long after the last Save.
func NewTokenStore(client *redis.Client, logger *zap.Logger, sessionKey string, ttl time.Duration) *TokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenStore{
		client: client,
		logger: logger,
		key:    fmt.Sprintf("authsession:tokens:%s", sessionKey),
		ttl:    ttl,
	}
}

func (s *TokenStore) Load(ctx context.Context) (client.TokenPair, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		s.logger.Error("Failed to load tokens", zap.Error(err), zap.String("key", s.key))
		return client.TokenPair{}, err
	}
	return client.TokenPair{
		AccessToken:  values[fieldAccessToken],
		RefreshToken: values[fieldRefreshToken],
	}, nil
}

func (s *TokenStore) Save(ctx context.Context, pair client.TokenPair) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, fieldAccessToken, pair.AccessToken, fieldRefreshToken, pair.RefreshToken)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to save tokens", zap.Error(err), zap.String("key", s.key))
		return err
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		s.logger.Error("Failed to clear tokens", zap.Error(err), zap.String("key", s.key))
		return err
	}
	return nil
}

var _ client.TokenStore = (*TokenStore)(nil)
