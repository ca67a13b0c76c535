package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/panyam/authsession"
)

// MonitorState is the outcome of one monitor check.
type MonitorState int

const (
	StateNoToken MonitorState = iota
	StateUnknown              // expiry not readable; nothing is enforced
	StateHealthy
	StateExpiring
	StateExpired
)

func (s MonitorState) String() string {
	switch s {
	case StateNoToken:
		return "no-token"
	case StateUnknown:
		return "unknown"
	case StateHealthy:
		return "healthy"
	case StateExpiring:
		return "expiring"
	case StateExpired:
		return "expired"
	}
	return "invalid"
}

// Monitor polls the access token, warns before it lapses and forces a
// logout exactly once per token lifetime when it does.
type Monitor struct {
	store     TokenStore
	sink      *NotificationSink
	refresher interface{ RefreshNow(context.Context) bool }
	logout    func(authsession.LogoutReason)
	cfg       authsession.SessionConfig
	clock     Clock
	logger    *zap.Logger
	metrics   *Metrics

	mu                sync.Mutex
	warned            bool
	lastWarnedMinutes int
	expiredHandled    bool

	runMu    sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	checking atomic.Int32 // loops currently inside Check
}

// Start begins polling. The first check runs immediately. Calling Start on
// a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx, m.done)
}

// Stop cancels polling and waits for the loop to exit. Safe to call any
// number of times, including before Start. While a check is running (Stop
// called from a logout hook, for instance) it only cancels; the loop exits
// once the check returns.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if m.checking.Load() > 0 {
		return
	}
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	m.checking.Add(1)
	defer m.checking.Add(-1)
	m.Check(ctx)
}

// OnTokensRenewed re-arms the warning throttle and the expiry guard for a
// freshly issued token.
func (m *Monitor) OnTokensRenewed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warned = false
	m.lastWarnedMinutes = 0
	m.expiredHandled = false
}

// Check runs one tick and returns the state it observed.
func (m *Monitor) Check(ctx context.Context) MonitorState {
	pair, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("monitor failed to read tokens", zap.Error(err))
		return StateUnknown
	}

	m.mu.Lock()
	if pair.IsEmpty() {
		// waiting for login
		m.warned = false
		m.lastWarnedMinutes = 0
		m.expiredHandled = false
		m.mu.Unlock()
		return StateNoToken
	}

	left, ok := remaining(m.clock, pair.AccessToken)
	if !ok {
		m.mu.Unlock()
		return StateUnknown
	}

	if left <= 0 {
		if m.expiredHandled {
			m.mu.Unlock()
			return StateExpired
		}
		m.expiredHandled = true
		m.mu.Unlock()

		m.logger.Info("access token expired")
		m.logout(authsession.LogoutExpired)
		m.sink.Error(Notice{
			ID:          NoticeExpired,
			Title:       "Oops!",
			Description: expiredAwayMessage,
			Sticky:      true,
		})
		return StateExpired
	}

	if left > m.cfg.WarningWindow {
		m.mu.Unlock()
		return StateHealthy
	}

	minutes := int((left + time.Minute - 1) / time.Minute)
	if m.warned && m.lastWarnedMinutes == minutes {
		m.mu.Unlock()
		return StateExpiring
	}
	m.warned = true
	m.lastWarnedMinutes = minutes
	m.mu.Unlock()

	description := "Your session will be disconnected soon. Are you still there?"
	if minutes == 1 {
		description = "Are you still there?"
	}

	m.metrics.Warnings.Inc()
	m.sink.Warning(Notice{
		ID:          NoticeExpiring,
		Title:       "Heads up!",
		Description: description,
		Duration:    m.cfg.ExpiringNoticeDuration,
		Action: &NoticeAction{
			Label: "Stay connected",
			Run: func(ctx context.Context) {
				if m.refresher.RefreshNow(ctx) {
					m.OnTokensRenewed()
				}
			},
		},
	})
	return StateExpiring
}
