package client

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/panyam/authsession"
)

const refreshFlightKey = "refresh"

// refreshRequest is the body of POST /auth/refresh and /auth/logout
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the success body of POST /auth/refresh
type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

var errPartialPair = errors.New("refresh response is missing a token")

// Refresher exchanges the refresh token for a new pair. At most one exchange
// is in flight at any time; concurrent callers share its outcome.
type Refresher struct {
	store      TokenStore
	sink       *NotificationSink
	logout     func(authsession.LogoutReason)
	backend    *http.Client // base transport, never the authenticating one
	refreshURL string
	cfg        authsession.SessionConfig
	clock      Clock
	logger     *zap.Logger
	metrics    *Metrics

	group         singleflight.Group
	inFlight      atomic.Bool
	lastSuccessAt atomic.Int64 // unix nanos, 0 = never
}

// RefreshNow renews the session and reports whether new tokens were stored.
//
// If ctx is cancelled the caller stops waiting and gets false; the shared
// exchange keeps going for the other callers, bounded by RefreshTimeout.
func (r *Refresher) RefreshNow(ctx context.Context) bool {
	ch := r.group.DoChan(refreshFlightKey, func() (any, error) {
		r.inFlight.Store(true)
		defer r.inFlight.Store(false)
		return r.doRefresh(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

// IsRefreshing reports whether an exchange is currently in flight.
func (r *Refresher) IsRefreshing() bool {
	return r.inFlight.Load()
}

// LastSuccess returns when tokens were last renewed, or the zero time.
func (r *Refresher) LastSuccess() time.Time {
	n := r.lastSuccessAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (r *Refresher) doRefresh(ctx context.Context) bool {
	pair, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Error("failed to read refresh token", zap.Error(err))
	}
	if err != nil || !pair.HasRefreshToken() {
		r.metrics.Refreshes.WithLabelValues("no_token").Inc()
		// logout clears the screen, so the notice goes up afterwards
		r.logout(authsession.LogoutUnauthorized)
		r.sink.Error(Notice{
			ID:          NoticeExpired,
			Title:       "Oops!",
			Description: "Account disconnected. Please sign in again.",
			Duration:    r.cfg.NoticeDuration,
		})
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RefreshTimeout)
	defer cancel()

	start := r.clock.Now()
	var resp refreshResponse
	err = postJSON(ctx, r.backend, r.refreshURL, refreshRequest{RefreshToken: pair.RefreshToken}, &resp)
	if err == nil && (resp.AccessToken == "" || resp.RefreshToken == "") {
		err = errPartialPair
	}
	if err == nil {
		err = r.store.Save(ctx, TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken})
	}
	r.metrics.RefreshDuration.Observe(r.clock.Now().Sub(start).Seconds())

	if err != nil {
		r.fail(err)
		return false
	}

	r.lastSuccessAt.Store(r.clock.Now().UnixNano())
	r.metrics.Refreshes.WithLabelValues("success").Inc()
	r.logger.Debug("session renewed")

	r.sink.Success(Notice{
		ID:          NoticeRenewed,
		Title:       "Woohoo!",
		Description: "Welcome back! Good to see you again!",
		Duration:    r.cfg.NoticeDuration,
	})
	return true
}

func (r *Refresher) fail(err error) {
	code := string(authsession.CodeTokenExpired)
	var message string

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			code = apiErr.Code
		}
		message = apiErr.Message
	}

	r.logger.Warn("refresh failed", zap.Error(err), zap.String("code", code))
	r.metrics.Refreshes.WithLabelValues("failure").Inc()

	r.logout(authsession.LogoutUnauthorized)
	r.sink.Error(Notice{
		ID:          NoticeExpired,
		Title:       "Oops!",
		Description: authsession.MessageByCode(code, message),
		Duration:    r.cfg.NoticeDuration,
	})
}
