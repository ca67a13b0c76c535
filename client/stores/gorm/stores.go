//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/panyam/authsession/client"
)

// SessionTokenModel is the GORM model for a stored token pair
type SessionTokenModel struct {
	SessionKey   string    `gorm:"primaryKey;size:255"`
	AccessToken  string    `gorm:"type:text"`
	RefreshToken string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (SessionTokenModel) TableName() string {
	return "session_tokens"
}

// AutoMigrate runs database migrations for the token table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&SessionTokenModel{})
}

// TokenStore implements client.TokenStore using GORM. The pair lives in one
// row, so every write replaces both tokens in a single statement.
type TokenStore struct {
	db  *gorm.DB
	key string
}

func NewTokenStore(db *gorm.DB, sessionKey string) *TokenStore {
	return &TokenStore{db: db, key: sessionKey}
}

func (s *TokenStore) Load(ctx context.Context) (client.TokenPair, error) {
	var model SessionTokenModel
	err := s.db.WithContext(ctx).First(&model, "session_key = ?", s.key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return client.TokenPair{}, nil
	}
	if err != nil {
		return client.TokenPair{}, fmt.Errorf("failed to load tokens: %w", err)
	}
	return client.TokenPair{AccessToken: model.AccessToken, RefreshToken: model.RefreshToken}, nil
}

func (s *TokenStore) Save(ctx context.Context, pair client.TokenPair) error {
	model := &SessionTokenModel{
		SessionKey:   s.key,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&SessionTokenModel{}, "session_key = ?", s.key).Error; err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

var _ client.TokenStore = (*TokenStore)(nil)
