package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/panyam/authsession"
)

// ActivityKind is the type of a user interaction.
type ActivityKind string

const (
	ActivityFocus      ActivityKind = "focus"
	ActivityVisibility ActivityKind = "visibilitychange"
	ActivityPointer    ActivityKind = "mousemove"
	ActivityKey        ActivityKind = "keydown"
	ActivityScroll     ActivityKind = "scroll"
	ActivityClick      ActivityKind = "click"
	ActivityRequest    ActivityKind = "request"
)

// Activity is one interaction signal. Visible only matters for
// ActivityVisibility: a tab becoming hidden is not activity.
type Activity struct {
	Kind    ActivityKind
	Visible bool
	Detail  string
}

func (a Activity) counts() bool {
	return a.Kind != ActivityVisibility || a.Visible
}

func (a Activity) reason() string {
	if a.Detail == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.Detail
}

// ActivitySource delivers user interaction signals until cancelled.
type ActivitySource interface {
	Subscribe(fn func(Activity)) (cancel func())
}

// ActivityFeed is an ActivitySource the host pushes events into.
type ActivityFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Activity)
}

func NewActivityFeed() *ActivityFeed {
	return &ActivityFeed{subs: make(map[int]func(Activity))}
}

func (f *ActivityFeed) Subscribe(fn func(Activity)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// Emit delivers a to every subscriber.
func (f *ActivityFeed) Emit(a Activity) {
	f.mu.RLock()
	subs := make([]func(Activity), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.RUnlock()

	for _, fn := range subs {
		fn(a)
	}
}

type refreshCoordinator interface {
	RefreshNow(ctx context.Context) bool
	IsRefreshing() bool
	LastSuccess() time.Time
}

// ActivityRenewal renews the session silently while the user is active and
// the access token is close to expiry.
type ActivityRenewal struct {
	store     TokenStore
	refresher refreshCoordinator
	monitor   interface{ OnTokensRenewed() }
	cfg       authsession.SessionConfig
	clock     Clock
	logger    *zap.Logger

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64 // bumped by every Signal and Close
	installed bool
	closed    bool
	cancels   []func()
}

// Install subscribes to sources. Only the first call after construction or
// after Close has any effect.
func (a *ActivityRenewal) Install(sources ...ActivitySource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installed {
		return
	}
	a.installed = true
	a.closed = false

	for _, src := range sources {
		a.cancels = append(a.cancels, src.Subscribe(func(act Activity) {
			if act.counts() {
				a.Signal(act.reason())
			}
		}))
	}
}

// Signal records activity. Bursts are coalesced: evaluation runs once,
// ActivityDebounce after the last signal.
func (a *ActivityRenewal) Signal(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.cfg.ActivityDebounce, func() {
		a.fire(gen, reason)
	})
}

// fire evaluates a debounced signal unless it was superseded or the
// renewal was closed after the timer went off.
func (a *ActivityRenewal) fire(gen uint64, reason string) bool {
	a.mu.Lock()
	stale := a.closed || gen != a.gen
	a.mu.Unlock()
	if stale {
		return false
	}
	return a.maybeRenew(context.Background(), reason)
}

// Close stops the pending evaluation and unsubscribes from every source.
func (a *ActivityRenewal) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	for _, cancel := range a.cancels {
		cancel()
	}
	a.cancels = nil
	a.gen++
	a.installed = false
	a.closed = true
}

// maybeRenew refreshes when the token is inside the renewal window and the
// cooldown has elapsed. It reports whether a refresh succeeded.
func (a *ActivityRenewal) maybeRenew(ctx context.Context, reason string) bool {
	pair, err := a.store.Load(ctx)
	if err != nil {
		return false
	}

	// expired or unreadable tokens belong to the monitor and the transport
	left, ok := remaining(a.clock, pair.AccessToken)
	if !ok || left <= 0 {
		return false
	}
	if left > a.cfg.ActivityRenewalWindow {
		return false
	}

	if last := a.refresher.LastSuccess(); !last.IsZero() && a.clock.Now().Sub(last) < a.cfg.MinRefreshInterval {
		return false
	}
	if a.refresher.IsRefreshing() {
		return false
	}

	a.logger.Debug("renewing session on activity", zap.String("reason", reason), zap.Duration("remaining", left))
	if !a.refresher.RefreshNow(ctx) {
		return false
	}
	a.monitor.OnTokensRenewed()
	return true
}
