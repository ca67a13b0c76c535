package client

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/panyam/authsession"
)

const expiredAwayMessage = "Since you were away, we signed you out."

// Navigator moves the host application between client-side routes.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// PathNavigator is a Navigator that only remembers the current path.
// Headless clients and tests use it.
type PathNavigator struct {
	mu      sync.Mutex
	path    string
	history []string
}

// NewPathNavigator starts at path
func NewPathNavigator(path string) *PathNavigator {
	return &PathNavigator{path: path}
}

func (n *PathNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *PathNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, path)
	n.path = path
}

// History returns every path navigated to, oldest first.
func (n *PathNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}

// LogoutFlow is the one place a session is torn down.
type LogoutFlow struct {
	store     TokenStore
	state     *AuthState
	sink      *NotificationSink
	nav       Navigator
	loginPath string
	logoutURL string
	backend   *http.Client
	notices   authsession.SessionConfig
	onLogout  []func(authsession.LogoutReason)
	logger    *zap.Logger
	metrics   *Metrics
}

// ForceLogout ends the session locally, whatever the backend thinks:
// notices are dismissed, tokens and application state cleared, and the host
// navigates to the login entry point unless it is already there.
// Callers reporting a failure show their notice after this returns.
func (l *LogoutFlow) ForceLogout(reason authsession.LogoutReason) {
	l.logger.Info("forcing logout", zap.Stringer("reason", reason))

	if reason == authsession.LogoutExpired {
		l.state.SetExpiredNotice(expiredAwayMessage)
	}

	l.sink.DismissAll()

	if err := l.store.Clear(context.Background()); err != nil {
		l.logger.Error("failed to clear tokens", zap.Error(err))
	}
	l.state.Clear()

	if strings.TrimRight(l.nav.CurrentPath(), "/") != strings.TrimRight(l.loginPath, "/") {
		l.nav.Navigate(l.loginPath)
	}

	if reason == authsession.LogoutManual {
		l.sink.Success(Notice{
			ID:          NoticeManualLogout,
			Title:       "Bye, bye!",
			Description: "See you soon! You can come back any time by signing in again.",
			Duration:    l.notices.NoticeDuration,
		})
	}

	l.metrics.Logouts.WithLabelValues(reason.String()).Inc()
	for _, fn := range l.onLogout {
		fn(reason)
	}
}

// Logout tells the backend to revoke the refresh token, then always ends
// the session locally. Backend failures are logged and otherwise ignored.
func (l *LogoutFlow) Logout(ctx context.Context, reason authsession.LogoutReason) {
	defer l.ForceLogout(reason)

	pair, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Warn("failed to read tokens for logout", zap.Error(err))
		return
	}
	if !pair.HasRefreshToken() {
		return
	}

	body := map[string]string{"refreshToken": pair.RefreshToken}
	if err := postJSON(ctx, l.backend, l.logoutURL, body, nil); err != nil {
		l.logger.Warn("backend logout failed, continuing locally", zap.Error(err))
	}
}
