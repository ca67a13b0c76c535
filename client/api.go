package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/panyam/authsession"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	User         User    `json:"user"`
	Tenant       *Tenant `json:"tenant,omitempty"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
}

// CheckEmailResponse is returned by POST /auth/check-email
type CheckEmailResponse struct {
	Exists  bool   `json:"exists"`
	Message string `json:"message,omitempty"`
}

// MessageResponse is the generic {"message"} body of the password endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// Login signs in with email and password and starts a session.
func (s *Session) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := postJSON(ctx, s.backend, s.url(authsession.PathLogin), LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	if err := s.establish(ctx, &resp); err != nil {
		return nil, err
	}
	s.logger.Info("signed in", zap.String("email", email))
	return &resp, nil
}

// Register creates an account and starts a session for it.
func (s *Session) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := postJSON(ctx, s.backend, s.url(authsession.PathRegister), req, &resp); err != nil {
		return nil, err
	}
	if err := s.establish(ctx, &resp); err != nil {
		return nil, err
	}
	s.logger.Info("registered", zap.String("email", req.Email))
	return &resp, nil
}

func (s *Session) establish(ctx context.Context, resp *AuthResponse) error {
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return fmt.Errorf("invalid response from server: %w", errPartialPair)
	}
	pair := TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if err := s.store.Save(ctx, pair); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	s.state.SetAuth(resp.User, resp.Tenant)
	s.monitor.OnTokensRenewed()
	return nil
}

// CheckEmail asks whether an account exists for email.
func (s *Session) CheckEmail(ctx context.Context, email string) (*CheckEmailResponse, error) {
	var resp CheckEmailResponse
	u := s.url(authsession.PathCheckEmail) + "?" + url.Values{"email": {email}}.Encode()
	if err := doJSON(ctx, s.backend, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PreRegister starts a sign-up by email verification, before a password is
// chosen.
func (s *Session) PreRegister(ctx context.Context, name, email string) (*MessageResponse, error) {
	var resp MessageResponse
	body := map[string]string{"name": name, "email": email}
	if err := postJSON(ctx, s.backend, s.url(authsession.PathPreRegister), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyEmail confirms an email address with the token that was mailed.
func (s *Session) VerifyEmail(ctx context.Context, token string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := postJSON(ctx, s.backend, s.url(authsession.PathVerifyEmail), map[string]string{"token": token}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResendVerification mails a new verification token. The email travels as
// a query parameter and the body is empty.
func (s *Session) ResendVerification(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	u := s.url(authsession.PathResendVerification) + "?" + url.Values{"email": {email}}.Encode()
	if err := doJSON(ctx, s.backend, http.MethodPost, u, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword starts the password reset flow for email.
func (s *Session) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := postJSON(ctx, s.backend, s.url(authsession.PathForgotPassword), map[string]string{"email": email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetPassword completes a reset with the token the user received.
func (s *Session) ResetPassword(ctx context.Context, token, newPassword string) (*MessageResponse, error) {
	body := map[string]string{"token": token, "newPassword": newPassword}
	var resp MessageResponse
	if err := postJSON(ctx, s.backend, s.url(authsession.PathResetPassword), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyResetCode checks a one-time reset code without consuming it.
func (s *Session) VerifyResetCode(ctx context.Context, email, code string) (*MessageResponse, error) {
	var resp MessageResponse
	body := map[string]string{"email": email, "code": code}
	if err := postJSON(ctx, s.backend, s.url(authsession.PathVerifyResetCode), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfirmPasswordReset sets a new password using a one-time reset code.
func (s *Session) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) (*MessageResponse, error) {
	var resp MessageResponse
	body := map[string]string{"email": email, "code": code, "newPassword": newPassword}
	if err := postJSON(ctx, s.backend, s.url(authsession.PathResetPassword), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SwitchTenant makes t the current workspace. Signed-out sessions are
// rejected with ErrNoSession.
func (s *Session) SwitchTenant(t Tenant) error {
	if !s.state.IsAuthenticated() {
		return ErrNoSession
	}
	s.state.SwitchTenant(t)
	s.logger.Debug("switched tenant", zap.String("tenant_id", t.ID))
	return nil
}
