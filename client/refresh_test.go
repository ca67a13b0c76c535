package client

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authsession"
)

func TestRefreshNow_RotatesTokens(t *testing.T) {
	h := newHarness(t, nil)
	old := h.signIn(2 * time.Minute)

	require.True(t, h.session.RefreshNow(context.Background()))

	pair := h.tokens()
	assert.NotEqual(t, old.AccessToken, pair.AccessToken)
	assert.NotEqual(t, old.RefreshToken, pair.RefreshToken)
	assert.Equal(t, 1, h.backend.RefreshCalls())

	last := h.notifier.Last()
	assert.Equal(t, NoticeRenewed, last.ID)
	assert.Equal(t, NoticeSuccess, last.Kind)
	assert.Equal(t, "Welcome back! Good to see you again!", last.Description)

	assert.True(t, h.clock.Now().Equal(h.session.refresher.LastSuccess()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.session.Metrics().Refreshes.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(h.session.Metrics().RefreshDuration))

	// the spent refresh token is rejected by the backend
	h.store.Save(context.Background(), old)
	assert.False(t, h.session.RefreshNow(context.Background()))
}

func TestRefreshNow_SingleFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(2 * time.Minute)

	release := h.backend.HoldRefreshes()
	t.Cleanup(release)

	const callers = 10
	var (
		started sync.WaitGroup
		done    sync.WaitGroup
		mu      sync.Mutex
		results []bool
	)
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			started.Done()
			ok := h.session.refresher.RefreshNow(context.Background())
			mu.Lock()
			results = append(results, ok)
			mu.Unlock()
		}()
	}

	started.Wait()
	require.Eventually(t, func() bool { return h.backend.RefreshCalls() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.session.refresher.IsRefreshing())
	// let the stragglers join the flight before it lands
	time.Sleep(100 * time.Millisecond)
	release()
	done.Wait()

	assert.Equal(t, 1, h.backend.RefreshCalls())
	assert.Len(t, results, callers)
	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.False(t, h.session.refresher.IsRefreshing())
	assert.Equal(t, 1, h.notifier.Count(NoticeRenewed))
}

func TestRefreshNow_MissingRefreshToken(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Save(context.Background(), TokenPair{AccessToken: "opaque"})

	assert.False(t, h.session.RefreshNow(context.Background()))

	assert.Equal(t, 0, h.backend.RefreshCalls())
	assert.True(t, h.tokens().IsEmpty())
	assert.Equal(t, "/login", h.nav.CurrentPath())

	visible := h.notifier.Visible()
	require.Contains(t, visible, NoticeExpired)
	assert.Equal(t, "Account disconnected. Please sign in again.", visible[NoticeExpired].Description)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.session.Metrics().Refreshes.WithLabelValues("no_token")))
}

func TestRefreshNow_FailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		message string
		want    string
	}{
		{"mapped code", http.StatusUnauthorized, "AUTH_TOKEN_INVALID_SIGNATURE", "", "Invalid token (signature). Please sign in again."},
		{"backend message wins", http.StatusUnauthorized, "AUTH_TOKEN_MALFORMED", "Token was tampered with", "Token was tampered with"},
		{"no code defaults to expired", http.StatusInternalServerError, "", "", "Your session has expired. Please sign in again."},
		{"unknown code", http.StatusUnauthorized, "SOMETHING_NEW", "", "Authentication failed. Please sign in again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.signIn(2 * time.Minute)
			h.backend.FailRefresh(tt.status, tt.code, tt.message)

			assert.False(t, h.session.RefreshNow(context.Background()))

			visible := h.notifier.Visible()
			require.Contains(t, visible, NoticeExpired)
			assert.Equal(t, tt.want, visible[NoticeExpired].Description)
			assert.True(t, h.tokens().IsEmpty())
			assert.False(t, h.session.State().IsAuthenticated())
			assert.Equal(t, 1.0, testutil.ToFloat64(h.session.Metrics().Logouts.WithLabelValues(string(authsession.LogoutUnauthorized))))
		})
	}
}

func TestRefreshNow_GuardClearedAfterFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(2 * time.Minute)
	h.backend.FailRefresh(http.StatusBadGateway, "", "")

	assert.False(t, h.session.RefreshNow(context.Background()))
	assert.False(t, h.session.refresher.IsRefreshing())

	h.backend.FailRefresh(0, "", "")
	h.signIn(2 * time.Minute)
	assert.True(t, h.session.RefreshNow(context.Background()))
	assert.Equal(t, 2, h.backend.RefreshCalls())
}

func TestRefreshNow_Timeout(t *testing.T) {
	h := newHarness(t, func(cfg *authsession.Config) {
		cfg.Session.RefreshTimeout = 50 * time.Millisecond
	})
	h.signIn(2 * time.Minute)
	t.Cleanup(h.backend.HoldRefreshes())

	start := time.Now()
	assert.False(t, h.session.RefreshNow(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, h.session.refresher.IsRefreshing())
	assert.True(t, h.tokens().IsEmpty())
}

func TestRefreshNow_CallerCancellation(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(2 * time.Minute)
	release := h.backend.HoldRefreshes()
	t.Cleanup(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.False(t, h.session.refresher.RefreshNow(ctx))

	// the shared exchange keeps going for everyone else
	assert.True(t, h.session.refresher.IsRefreshing())
	release()
	require.Eventually(t, func() bool { return !h.session.refresher.IsRefreshing() }, time.Second, 5*time.Millisecond)
	assert.False(t, h.session.refresher.LastSuccess().IsZero())
}

func TestRefreshNow_ReadersSeeWholePairs(t *testing.T) {
	h := newHarness(t, nil)
	initial := h.signIn(2 * time.Minute)

	stop := make(chan struct{})
	seen := make(chan TokenPair, 1024)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			pair := h.tokens()
			select {
			case seen <- pair:
			default:
			}
		}
	}()

	require.True(t, h.session.RefreshNow(context.Background()))
	close(stop)
	wg.Wait()
	close(seen)

	final := h.tokens()
	for pair := range seen {
		assert.Contains(t, []TokenPair{initial, final}, pair)
	}
}
