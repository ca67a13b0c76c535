package client

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/panyam/authsession"
)

// Session ties the lifecycle components together: one token store, one
// refresher, one monitor, one activity renewal and one logout flow, all
// sharing the same notification sink.
type Session struct {
	cfg        authsession.Config
	store      TokenStore
	state      *AuthState
	sink       *NotificationSink
	logger     *zap.Logger
	metrics    *Metrics
	clock      Clock
	backend    *http.Client // unauthenticated, for /auth/* calls
	httpClient *http.Client // authenticated through Transport

	refresher *Refresher
	monitor   *Monitor
	activity  *ActivityRenewal
	logout    *LogoutFlow
	policy    *UnauthorizedPolicy

	// options, consumed by NewSession
	notifier      Notifier
	nav           Navigator
	registerer    prometheus.Registerer
	baseTransport http.RoundTripper
	baseClient    *http.Client
	sources       []ActivitySource
	onLogout      []func(authsession.LogoutReason)

	initMu      sync.Mutex
	initialized bool
}

// Option configures a Session
type Option func(*Session)

// WithNotifier sets where session notices are shown (default: discarded).
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithNavigator sets how forced logouts reach the login page.
func WithNavigator(n Navigator) Option {
	return func(s *Session) {
		s.nav = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics registers the session collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Session) {
		s.registerer = reg
	}
}

// WithTransport sets the base transport (for connection pooling, proxies, etc.)
// Both the backend calls and the authenticated client use it.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Session) {
		s.baseTransport = rt
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// Its transport is wrapped with auth handling.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Session) {
		s.baseClient = hc
	}
}

func WithClock(c Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithActivitySources sets the interaction sources Init subscribes to.
func WithActivitySources(sources ...ActivitySource) Option {
	return func(s *Session) {
		s.sources = append(s.sources, sources...)
	}
}

// WithOnLogout adds a hook run after every logout, local or not.
func WithOnLogout(fn func(authsession.LogoutReason)) Option {
	return func(s *Session) {
		s.onLogout = append(s.onLogout, fn)
	}
}

// NewSession creates a session over store. Nothing runs until Init.
func NewSession(cfg authsession.Config, store TokenStore, opts ...Option) *Session {
	cfg.EnsureDefaults()

	s := &Session{
		cfg:   cfg,
		store: store,
		state: NewAuthState(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.nav == nil {
		s.nav = NewPathNavigator(cfg.LoginPath)
	}
	s.sink = NewNotificationSink(s.notifier)
	s.metrics = NewMetrics(s.registerer)

	base := s.baseTransport
	s.backend = &http.Client{}
	if s.baseClient != nil {
		if base == nil {
			base = s.baseClient.Transport
		}
		s.backend.Timeout = s.baseClient.Timeout
		s.backend.Jar = s.baseClient.Jar
		s.backend.CheckRedirect = s.baseClient.CheckRedirect
	}
	if base == nil {
		base = http.DefaultTransport
	}
	s.backend.Transport = base

	s.logout = &LogoutFlow{
		store:     store,
		state:     s.state,
		sink:      s.sink,
		nav:       s.nav,
		loginPath: cfg.LoginPath,
		logoutURL: s.url(authsession.PathLogout),
		backend:   s.backend,
		notices:   cfg.Session,
		onLogout:  s.onLogout,
		logger:    s.logger.Named("logout"),
		metrics:   s.metrics,
	}

	s.refresher = &Refresher{
		store:      store,
		sink:       s.sink,
		logout:     s.logout.ForceLogout,
		backend:    s.backend,
		refreshURL: s.url(authsession.PathRefresh),
		cfg:        cfg.Session,
		clock:      s.clock,
		logger:     s.logger.Named("refresh"),
		metrics:    s.metrics,
	}

	s.monitor = &Monitor{
		store:     store,
		sink:      s.sink,
		refresher: s.refresher,
		logout:    s.logout.ForceLogout,
		cfg:       cfg.Session,
		clock:     s.clock,
		logger:    s.logger.Named("monitor"),
		metrics:   s.metrics,
	}

	s.activity = &ActivityRenewal{
		store:     store,
		refresher: s.refresher,
		monitor:   s.monitor,
		cfg:       cfg.Session,
		clock:     s.clock,
		logger:    s.logger.Named("activity"),
	}

	s.policy = &UnauthorizedPolicy{
		refresher: s.refresher,
		monitor:   s.monitor,
		sink:      s.sink,
		logout:    s.logout.ForceLogout,
		cfg:       cfg.Session,
		logger:    s.logger.Named("transport"),
		metrics:   s.metrics,
	}

	s.httpClient = &http.Client{
		Timeout:       s.backend.Timeout,
		Jar:           s.backend.Jar,
		CheckRedirect: s.backend.CheckRedirect,
		Transport: &Transport{
			base:   base,
			store:  store,
			policy: s.policy,
			signal: s.activity.Signal,
			logger: s.logger.Named("transport"),
		},
	}

	return s
}

// Init starts the expiry monitor and subscribes to the activity sources.
// Calling it again before Dispose does nothing.
func (s *Session) Init(ctx context.Context) {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return
	}
	s.initialized = true

	s.monitor.Start(ctx)
	s.activity.Install(s.sources...)
	s.logger.Debug("session initialized", zap.String("base_url", s.cfg.BaseURL))
}

// Dispose stops the monitor and the activity subscriptions. Tokens are kept
// and a later Init starts everything again. Dispose may be called from a
// logout hook.
func (s *Session) Dispose() {
	s.initMu.Lock()
	s.initialized = false
	s.initMu.Unlock()

	s.monitor.Stop()
	s.activity.Close()
}

// HTTPClient returns the client that authenticates requests and recovers
// from expired tokens.
func (s *Session) HTTPClient() *http.Client {
	return s.httpClient
}

// URL joins path to the configured base URL.
func (s *Session) URL(path string) string {
	return s.url(path)
}

func (s *Session) url(path string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// RefreshNow renews the tokens; see Refresher.RefreshNow.
func (s *Session) RefreshNow(ctx context.Context) bool {
	if !s.refresher.RefreshNow(ctx) {
		return false
	}
	s.monitor.OnTokensRenewed()
	return true
}

// ForceLogout ends the session locally.
func (s *Session) ForceLogout(reason authsession.LogoutReason) {
	s.logout.ForceLogout(reason)
}

// Logout revokes the refresh token on the backend (best effort) and ends
// the session locally.
func (s *Session) Logout(ctx context.Context) {
	s.logout.Logout(ctx, authsession.LogoutManual)
}

// Signal records user activity.
func (s *Session) Signal(reason string) {
	s.activity.Signal(reason)
}

// AccessToken returns the stored access token, or "" when signed out.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	pair, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// RecoverUnauthorized applies the unauthenticated-response policy for
// transports other than HTTP.
func (s *Session) RecoverUnauthorized(ctx context.Context, code, message string, retried bool) bool {
	return s.policy.Recover(ctx, code, message, retried)
}

func (s *Session) State() *AuthState {
	return s.state
}

func (s *Session) Monitor() *Monitor {
	return s.monitor
}

func (s *Session) Activity() *ActivityRenewal {
	return s.activity
}

// Store returns the token store backing the session.
func (s *Session) Store() TokenStore {
	return s.store
}

// Metrics returns the session's collectors.
func (s *Session) Metrics() *Metrics {
	return s.metrics
}
