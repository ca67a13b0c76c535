package client

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenWithPayload(payload string, enc *base64.Encoding) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	return header + "." + enc.EncodeToString([]byte(payload)) + ".sig"
}

func TestExpiryOf_SignedToken(t *testing.T) {
	exp := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, ok := ExpiryOf(token)
	require.True(t, ok)
	assert.True(t, got.Equal(exp), "got %v, want %v", got, exp)
}

func TestExpiryOf_Undecodable(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"opaque", "not-a-jwt"},
		{"two segments", "a.b"},
		{"four segments", "a.b.c.d"},
		{"bad base64", "aaa.!!!.ccc"},
		{"payload not json", tokenWithPayload("hello", base64.RawURLEncoding)},
		{"missing exp", tokenWithPayload(`{"sub":"u1"}`, base64.RawURLEncoding)},
		{"zero exp", tokenWithPayload(`{"exp":0}`, base64.RawURLEncoding)},
		{"string exp", tokenWithPayload(`{"exp":"tomorrow"}`, base64.RawURLEncoding)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ExpiryOf(tt.token)
			assert.False(t, ok)
		})
	}
}

func TestExpiryOf_PaddedAndStandardAlphabet(t *testing.T) {
	payload := `{"exp": 1772370000}`

	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		got, ok := ExpiryOf(tokenWithPayload(payload, enc))
		require.True(t, ok)
		assert.Equal(t, int64(1772370000), got.Unix())
	}
}

func TestExpiryOf_FractionalExp(t *testing.T) {
	got, ok := ExpiryOf(tokenWithPayload(`{"exp":1772370000.5}`, base64.RawURLEncoding))
	require.True(t, ok)
	assert.Equal(t, int64(1772370000), got.Unix())
}

func TestRemaining(t *testing.T) {
	clock := newFakeClock()
	exp := clock.Now().Add(90 * time.Second)
	token := tokenExpiringAt(exp)

	left, ok := remaining(clock, token)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, left)

	clock.Advance(2 * time.Minute)
	left, ok = remaining(clock, token)
	require.True(t, ok)
	assert.Negative(t, left)

	_, ok = remaining(clock, "")
	assert.False(t, ok)
}

func TestTokenPair(t *testing.T) {
	var empty TokenPair
	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.HasRefreshToken())

	_, ok := empty.ExpiresAt()
	assert.False(t, ok)

	pair := TokenPair{AccessToken: tokenWithPayload(`{"exp":1772370000}`, base64.RawURLEncoding), RefreshToken: "r"}
	assert.False(t, pair.IsEmpty())
	assert.True(t, pair.HasRefreshToken())
	exp, ok := pair.ExpiresAt()
	require.True(t, ok)
	assert.Equal(t, int64(1772370000), exp.Unix())
}
