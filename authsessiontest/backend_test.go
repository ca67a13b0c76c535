package authsessiontest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authsession"
)

func TestVerifyAccessToken(t *testing.T) {
	b := NewBackend()
	id := b.AddUser("bob@example.com", "pw", "Bob")

	valid := b.MintAccessToken(id, time.Now().Add(time.Minute))
	userID, code, err := b.VerifyAccessToken(valid)
	require.NoError(t, err)
	assert.Equal(t, id, userID)
	assert.Empty(t, code)

	other := NewBackend()
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": id, "type": "access"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  authsession.ErrorCode
	}{
		{"missing", "", authsession.CodeTokenMissing},
		{"expired", b.MintAccessToken(id, time.Now().Add(-time.Minute)), authsession.CodeTokenExpired},
		{"foreign signature", other.MintAccessToken(id, time.Now().Add(time.Minute)), authsession.CodeTokenInvalidSignature},
		{"malformed", "not-a-jwt", authsession.CodeTokenMalformed},
		{"unsigned", none, authsession.CodeTokenUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, code, err := b.VerifyAccessToken(tt.token)
			assert.Error(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestBackend_RefreshRotates(t *testing.T) {
	b := NewBackend()
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	id := b.AddUser("bob@example.com", "pw", "Bob")
	_, refresh := b.IssuePair(id, time.Now().Add(time.Minute))

	post := func(token string) *http.Response {
		body, _ := json.Marshal(map[string]string{"refreshToken": token})
		resp, err := http.Post(srv.URL+authsession.PathRefresh, "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	resp := post(refresh)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pair map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	assert.NotEmpty(t, pair["accessToken"])
	assert.NotEqual(t, refresh, pair["refreshToken"])

	// a spent refresh token is rejected
	again := post(refresh)
	defer again.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, again.StatusCode)
	var be map[string]string
	require.NoError(t, json.NewDecoder(again.Body).Decode(&be))
	assert.Equal(t, string(authsession.CodeTokenInvalid), be["code"])
	assert.Equal(t, 2, b.RefreshCalls())
}

func TestBackend_ProtectedRoutes(t *testing.T) {
	b := NewBackend()
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	id := b.AddUser("bob@example.com", "pw", "Bob")
	token := b.MintAccessToken(id, time.Now().Add(time.Minute))

	get := func(path, token string) *http.Response {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := get("/me", token)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get("/me", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = get("/admin", token)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	b.ForceUnauthorized(string(authsession.CodeTokenExpired), "")
	resp = get("/me", token)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, 4, b.ProtectedCalls())
}
