package client

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/panyam/authsession"
	"github.com/panyam/authsession/authsessiontest"
)

// fakeClock is a Clock the test moves by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier remembers every call made by the sink.
type recordingNotifier struct {
	mu         sync.Mutex
	shown      []Notice
	dismissed  []string
	dismissAll int
	visible    map[string]Notice
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{visible: make(map[string]Notice)}
}

func (n *recordingNotifier) Show(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, notice)
	n.visible[notice.ID] = notice
}

func (n *recordingNotifier) Dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed = append(n.dismissed, id)
	delete(n.visible, id)
}

func (n *recordingNotifier) DismissAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissAll++
	n.visible = make(map[string]Notice)
}

func (n *recordingNotifier) Shown() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.shown...)
}

// Last returns the most recently shown notice, or a zero Notice.
func (n *recordingNotifier) Last() Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.shown) == 0 {
		return Notice{}
	}
	return n.shown[len(n.shown)-1]
}

// Count returns how many notices with id were shown.
func (n *recordingNotifier) Count(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, notice := range n.shown {
		if notice.ID == id {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) Visible() map[string]Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]Notice, len(n.visible))
	for k, v := range n.visible {
		out[k] = v
	}
	return out
}

// harness is a session wired to an in-process backend.
type harness struct {
	t        *testing.T
	backend  *authsessiontest.Backend
	server   *httptest.Server
	clock    *fakeClock
	store    *MemoryTokenStore
	notifier *recordingNotifier
	nav      *PathNavigator
	reg      *prometheus.Registry
	session  *Session
	userID   string
}

func newHarness(t *testing.T, tweak func(cfg *authsession.Config)) *harness {
	t.Helper()

	clock := newFakeClock()
	backend := authsessiontest.NewBackend()
	backend.Now = clock.Now
	backend.Logger = zaptest.NewLogger(t)

	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	cfg := authsession.DefaultConfig()
	cfg.BaseURL = server.URL
	// activity renewal stays inert unless a test drives it
	cfg.Session.ActivityDebounce = time.Hour
	if tweak != nil {
		tweak(&cfg)
	}

	h := &harness{
		t:        t,
		backend:  backend,
		server:   server,
		clock:    clock,
		store:    NewMemoryTokenStore(),
		notifier: newRecordingNotifier(),
		nav:      NewPathNavigator("/dashboard"),
		reg:      prometheus.NewRegistry(),
	}
	h.userID = backend.AddUser("alice@example.com", "s3cret!", "Alice")
	h.session = NewSession(cfg, h.store,
		WithNotifier(h.notifier),
		WithNavigator(h.nav),
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(h.reg),
		WithClock(clock),
	)
	t.Cleanup(h.session.Dispose)
	return h
}

// signIn stores a pair whose access token expires after ttl (negative for
// an already expired token).
func (h *harness) signIn(ttl time.Duration) TokenPair {
	h.t.Helper()
	access, refresh := h.backend.IssuePair(h.userID, h.clock.Now().Add(ttl))
	pair := TokenPair{AccessToken: access, RefreshToken: refresh}
	if err := h.store.Save(context.Background(), pair); err != nil {
		h.t.Fatal(err)
	}
	h.session.State().SetAuth(User{ID: h.userID, Email: "alice@example.com"}, nil)
	return pair
}

func (h *harness) tokens() TokenPair {
	pair, _ := h.store.Load(context.Background())
	return pair
}

func (h *harness) url(path string) string {
	return h.server.URL + path
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

var base64URL = base64.RawURLEncoding

// tokenExpiringAt builds an unsigned JWT-shaped token expiring at exp.
func tokenExpiringAt(exp time.Time) string {
	return tokenWithPayload(`{"exp":`+itoa(exp.Unix())+`}`, base64URL)
}
