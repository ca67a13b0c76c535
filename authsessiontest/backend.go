// Package authsessiontest provides an in-process auth backend for testing
// session clients. It speaks the same wire contract as the real backend:
// JSON bodies, {"code","message"} errors and rotating refresh tokens.
package authsessiontest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/panyam/authsession"
)

// DefaultAccessTTL is the lifetime of access tokens the backend issues.
const DefaultAccessTTL = 15 * time.Minute

type account struct {
	user         map[string]any
	tenant       map[string]any
	passwordHash []byte
}

type failure struct {
	status  int
	code    string
	message string
}

// Backend is a fake auth backend. Create one with NewBackend and serve
// Handler(), typically through httptest.NewServer.
type Backend struct {
	Secret    []byte
	AccessTTL time.Duration
	Now       func() time.Time
	Logger    *zap.Logger

	mu            sync.Mutex
	accounts      map[string]*account // by email
	refreshTokens map[string]string   // token -> user id
	resetTokens   map[string]string   // token -> email
	verifyTokens  map[string]string   // token -> email
	pending       map[string]string   // pre-registered email -> name
	verified      map[string]bool     // by email
	refreshFail   *failure
	forced        *failure
	refreshGate   chan struct{}

	refreshCalls   atomic.Int32
	logoutCalls    atomic.Int32
	protectedCalls atomic.Int32

	router *mux.Router
}

// NewBackend creates a backend with a random signing secret.
func NewBackend() *Backend {
	b := &Backend{
		Secret:        []byte(uuid.NewString()),
		AccessTTL:     DefaultAccessTTL,
		Now:           time.Now,
		Logger:        zap.NewNop(),
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
		resetTokens:   make(map[string]string),
		verifyTokens:  make(map[string]string),
		pending:       make(map[string]string),
		verified:      make(map[string]bool),
	}
	b.setupRoutes()
	return b
}

// Handler returns the HTTP handler serving every route.
func (b *Backend) Handler() http.Handler {
	return b.router
}

func (b *Backend) setupRoutes() {
	r := mux.NewRouter()
	r.HandleFunc(authsession.PathLogin, b.handleLogin).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathRegister, b.handleRegister).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathRefresh, b.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathLogout, b.handleLogout).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathCheckEmail, b.handleCheckEmail).Methods(http.MethodGet)
	r.HandleFunc(authsession.PathPreRegister, b.handlePreRegister).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathVerifyEmail, b.handleVerifyEmail).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathResendVerification, b.handleResendVerification).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathVerifyResetCode, b.handleVerifyResetCode).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathForgotPassword, b.handleForgotPassword).Methods(http.MethodPost)
	r.HandleFunc(authsession.PathResetPassword, b.handleResetPassword).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(b.requireBearer)
	protected.HandleFunc("/me", b.handleMe).Methods(http.MethodGet)
	protected.HandleFunc("/echo", b.handleEcho).Methods(http.MethodPost, http.MethodPut)
	protected.HandleFunc("/admin", b.handleForbidden)

	b.router = r
}

// ============================================================================
// Test controls
// ============================================================================

// AddUser registers an account and returns its user id.
func (b *Backend) AddUser(email, password, name string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[strings.ToLower(email)] = newAccount(id, email, name, hash)
	return id
}

// IssuePair mints an access token for userID expiring at exp, plus a
// refresh token the backend will accept once.
func (b *Backend) IssuePair(userID string, exp time.Time) (access, refresh string) {
	access = b.MintAccessToken(userID, exp)
	refresh = b.newRefreshToken(userID)
	return access, refresh
}

// MintAccessToken signs an access token for userID expiring at exp.
func (b *Backend) MintAccessToken(userID string, exp time.Time) string {
	claims := jwt.MapClaims{
		"sub":  userID,
		"type": "access",
		"iat":  b.Now().Unix(),
		"exp":  exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.Secret)
	if err != nil {
		panic(fmt.Errorf("failed to sign token: %w", err))
	}
	return token
}

// FailRefresh makes every refresh answer with status and a {code,message}
// body. A zero status restores normal behavior.
func (b *Backend) FailRefresh(status int, code, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		b.refreshFail = nil
		return
	}
	b.refreshFail = &failure{status: status, code: code, message: message}
}

// ForceUnauthorized makes every protected route answer 401 with code and
// message, whatever the token. An empty code restores normal behavior.
func (b *Backend) ForceUnauthorized(code, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code == "" {
		b.forced = nil
		return
	}
	b.forced = &failure{status: http.StatusUnauthorized, code: code, message: message}
}

// HoldRefreshes makes refresh requests block until the returned release
// function is called.
func (b *Backend) HoldRefreshes() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.refreshGate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

// ResetToken returns the pending password reset token for email, if any.
func (b *Backend) ResetToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, e := range b.resetTokens {
		if e == strings.ToLower(email) {
			return token
		}
	}
	return ""
}

// VerificationToken returns the pending email verification token for email,
// if any.
func (b *Backend) VerificationToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, e := range b.verifyTokens {
		if e == strings.ToLower(email) {
			return token
		}
	}
	return ""
}

// EmailVerified reports whether email was confirmed through verify-email.
func (b *Backend) EmailVerified(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.verified[strings.ToLower(email)]
}

func (b *Backend) RefreshCalls() int   { return int(b.refreshCalls.Load()) }
func (b *Backend) LogoutCalls() int    { return int(b.logoutCalls.Load()) }
func (b *Backend) ProtectedCalls() int { return int(b.protectedCalls.Load()) }

// ============================================================================
// Token verification
// ============================================================================

// VerifyAccessToken validates an access token and returns its subject. On
// failure it also returns the backend error code describing why.
func (b *Backend) VerifyAccessToken(tokenString string) (userID string, code authsession.ErrorCode, err error) {
	if tokenString == "" {
		return "", authsession.CodeTokenMissing, errors.New("missing token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", jwt.ErrTokenUnverifiable, token.Header["alg"])
		}
		return b.Secret, nil
	}, jwt.WithTimeFunc(b.Now))

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", authsession.CodeTokenExpired, err
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", authsession.CodeTokenInvalidSignature, err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", authsession.CodeTokenMalformed, err
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "", authsession.CodeTokenUnsupported, err
	default:
		return "", authsession.CodeTokenInvalid, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", authsession.CodeTokenInvalid, errors.New("invalid claims")
	}
	if tokenType, _ := claims["type"].(string); tokenType != "access" {
		return "", authsession.CodeTokenInvalid, errors.New("invalid token type")
	}
	userID, _ = claims["sub"].(string)
	if userID == "" {
		return "", authsession.CodeTokenInvalid, errors.New("missing subject")
	}
	return userID, "", nil
}

// forcedFailure returns the configured forced 401, if any.
func (b *Backend) forcedFailure() *failure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.forced
}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.protectedCalls.Add(1)

		if f := b.forcedFailure(); f != nil {
			errorResponse(w, f.status, f.code, f.message)
			return
		}

		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID, code, err := b.VerifyAccessToken(strings.TrimSpace(token))
		if err != nil {
			b.Logger.Debug("rejected bearer", zap.String("code", string(code)), zap.Error(err))
			errorResponse(w, http.StatusUnauthorized, string(code), "")
			return
		}
		r.Header.Set("X-User-ID", userID)
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// Handlers
// ============================================================================

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	b.mu.Lock()
	acct := b.accounts[strings.ToLower(req.Email)]
	b.mu.Unlock()

	if acct == nil || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		errorResponse(w, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	b.authResponse(w, http.StatusOK, acct)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		errorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "Email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "")
		return
	}

	key := strings.ToLower(req.Email)
	b.mu.Lock()
	if _, exists := b.accounts[key]; exists {
		b.mu.Unlock()
		errorResponse(w, http.StatusConflict, "AUTH_EMAIL_TAKEN", "An account with this email already exists")
		return
	}
	acct := newAccount(uuid.NewString(), req.Email, req.Name, hash)
	b.accounts[key] = acct
	b.mu.Unlock()

	b.authResponse(w, http.StatusCreated, acct)
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)

	b.mu.Lock()
	gate, fail := b.refreshGate, b.refreshFail
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if fail != nil {
		errorResponse(w, fail.status, fail.code, fail.message)
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		errorResponse(w, http.StatusBadRequest, string(authsession.CodeTokenMissing), "Refresh token is required")
		return
	}

	// rotate: the presented token is spent either way
	b.mu.Lock()
	userID, ok := b.refreshTokens[req.RefreshToken]
	delete(b.refreshTokens, req.RefreshToken)
	b.mu.Unlock()

	if !ok {
		errorResponse(w, http.StatusUnauthorized, string(authsession.CodeTokenInvalid), "Invalid refresh token")
		return
	}

	access, refresh := b.IssuePair(userID, b.Now().Add(b.AccessTTL))
	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.logoutCalls.Add(1)

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	delete(b.refreshTokens, req.RefreshToken)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (b *Backend) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		errorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "Email is required")
		return
	}

	b.mu.Lock()
	_, exists := b.accounts[email]
	b.mu.Unlock()

	resp := map[string]any{"exists": exists}
	if exists {
		resp["message"] = "An account with this email already exists"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handlePreRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		errorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "Email is required")
		return
	}

	key := strings.ToLower(req.Email)
	b.mu.Lock()
	if _, exists := b.accounts[key]; exists {
		b.mu.Unlock()
		errorResponse(w, http.StatusConflict, "AUTH_EMAIL_TAKEN", "An account with this email already exists")
		return
	}
	b.pending[key] = req.Name
	b.verifyTokens[uuid.NewString()] = key
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification email sent"})
}

func (b *Backend) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	email, ok := b.verifyTokens[req.Token]
	delete(b.verifyTokens, req.Token)
	if ok {
		b.verified[email] = true
		if acct := b.accounts[email]; acct != nil {
			acct.user["emailVerified"] = true
		}
	}
	b.mu.Unlock()

	if !ok {
		errorResponse(w, http.StatusBadRequest, "AUTH_VERIFICATION_TOKEN_INVALID", "Invalid or expired verification token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
}

func (b *Backend) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	key := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if key == "" {
		errorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "Email is required")
		return
	}

	b.mu.Lock()
	_, isPending := b.pending[key]
	_, hasAccount := b.accounts[key]
	if (isPending || hasAccount) && !b.verified[key] {
		for token, e := range b.verifyTokens {
			if e == key {
				delete(b.verifyTokens, token)
			}
		}
		b.verifyTokens[uuid.NewString()] = key
	}
	b.mu.Unlock()

	// same answer whether or not the email is known
	writeJSON(w, http.StatusOK, map[string]string{"message": "If the email is pending verification, a new link has been sent"})
}

func (b *Backend) handleVerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	email, ok := b.resetTokens[req.Code]
	b.mu.Unlock()

	if !ok || email != strings.ToLower(req.Email) {
		errorResponse(w, http.StatusBadRequest, "AUTH_RESET_CODE_INVALID", "Invalid or expired code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Code verified"})
}

func (b *Backend) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	key := strings.ToLower(req.Email)
	b.mu.Lock()
	if _, ok := b.accounts[key]; ok {
		b.resetTokens[uuid.NewString()] = key
	}
	b.mu.Unlock()

	// same answer whether or not the account exists
	writeJSON(w, http.StatusOK, map[string]string{"message": "If the email exists, a reset link has been sent"})
}

func (b *Backend) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPassword == "" {
		errorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "Token and new password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "")
		return
	}

	token := req.Token
	if token == "" {
		token = req.Code
	}

	b.mu.Lock()
	email, ok := b.resetTokens[token]
	if ok && req.Email != "" && email != strings.ToLower(req.Email) {
		ok = false
	}
	if ok {
		delete(b.resetTokens, token)
		b.accounts[email].passwordHash = hash
	}
	b.mu.Unlock()

	if !ok {
		errorResponse(w, http.StatusBadRequest, "AUTH_RESET_TOKEN_INVALID", "Invalid or expired reset token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"id": r.Header.Get("X-User-ID")})
}

func (b *Backend) handleEcho(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requestId": r.Header.Get("X-Request-ID"),
		"body":      body,
	})
}

func (b *Backend) handleForbidden(w http.ResponseWriter, r *http.Request) {
	errorResponse(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this resource")
}

// ============================================================================
// Helpers
// ============================================================================

func newAccount(id, email, name string, hash []byte) *account {
	now := time.Now().UTC().Format(time.RFC3339)
	return &account{
		user: map[string]any{
			"id":            id,
			"email":         email,
			"name":          name,
			"emailVerified": true,
			"createdAt":     now,
			"updatedAt":     now,
		},
		tenant: map[string]any{
			"id":      uuid.NewString(),
			"name":    name,
			"slug":    strings.ToLower(strings.ReplaceAll(name, " ", "-")),
			"type":    "PERSONAL",
			"ownerId": id,
		},
		passwordHash: hash,
	}
}

func (b *Backend) newRefreshToken(userID string) string {
	token := uuid.NewString()
	b.mu.Lock()
	b.refreshTokens[token] = userID
	b.mu.Unlock()
	return token
}

func (b *Backend) authResponse(w http.ResponseWriter, status int, acct *account) {
	userID, _ := acct.user["id"].(string)
	access, refresh := b.IssuePair(userID, b.Now().Add(b.AccessTTL))
	writeJSON(w, status, map[string]any{
		"user":         acct.user,
		"tenant":       acct.tenant,
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// errorResponse sends the backend error shape
func errorResponse(w http.ResponseWriter, status int, code, message string) {
	body := map[string]string{}
	if code != "" {
		body["code"] = code
	}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}
