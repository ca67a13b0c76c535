package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Well known notice IDs. Showing a notice with an ID already on screen
// replaces it.
const (
	NoticeExpiring     = "session-expiring"
	NoticeExpired      = "session-expired"
	NoticeRenewed      = "session-renewed"
	NoticeManualLogout = "logout-manual"
)

// NoticeKind is the tone of a notice.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// NoticeAction is a button attached to a notice.
type NoticeAction struct {
	Label string
	Run   func(ctx context.Context)
}

// Notice is a user-facing message about the session.
type Notice struct {
	ID          string
	Kind        NoticeKind
	Title       string
	Description string
	Duration    time.Duration
	Sticky      bool // stays until dismissed; Duration is ignored
	Action      *NoticeAction
}

// Notifier is implemented by the host UI (toasts, terminal lines, ...).
// Show must replace any visible notice carrying the same ID.
type Notifier interface {
	Show(n Notice)
	Dismiss(id string)
	DismissAll()
}

// NopNotifier discards every notice.
type NopNotifier struct{}

func (NopNotifier) Show(Notice)    {}
func (NopNotifier) Dismiss(string) {}
func (NopNotifier) DismissAll()    {}

// NotificationSink sits in front of a Notifier and keeps at most one
// session-related notice visible.
type NotificationSink struct {
	mu     sync.Mutex
	out    Notifier
	lastID string
}

// NewNotificationSink wraps out. A nil out discards everything.
func NewNotificationSink(out Notifier) *NotificationSink {
	if out == nil {
		out = NopNotifier{}
	}
	return &NotificationSink{out: out}
}

// Success dismisses every visible notice before showing n.
func (s *NotificationSink) Success(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out.DismissAll()
	if n.ID == NoticeRenewed {
		s.out.Dismiss(NoticeExpiring)
		s.out.Dismiss(NoticeExpired)
	}
	n.Kind = NoticeSuccess
	s.lastID = n.ID
	s.out.Show(n)
}

// Warning replaces the previously shown notice with n.
func (s *NotificationSink) Warning(n Notice) {
	n.Kind = NoticeWarning
	s.replace(n)
}

// Error replaces the previously shown notice with n.
func (s *NotificationSink) Error(n Notice) {
	n.Kind = NoticeError
	s.replace(n)
}

// DismissAll clears the screen.
func (s *NotificationSink) DismissAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.DismissAll()
	s.lastID = ""
}

func (s *NotificationSink) replace(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastID != "" && s.lastID != n.ID {
		s.out.Dismiss(s.lastID)
	}
	s.lastID = n.ID
	s.out.Show(n)
}

// LogNotifier writes notices to a zap logger. Useful for headless clients.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs through logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Show(notice Notice) {
	fields := []zap.Field{
		zap.String("id", notice.ID),
		zap.String("title", notice.Title),
		zap.String("description", notice.Description),
	}
	if notice.Action != nil {
		fields = append(fields, zap.String("action", notice.Action.Label))
	}
	switch notice.Kind {
	case NoticeError:
		n.logger.Error("notice", fields...)
	case NoticeWarning:
		n.logger.Warn("notice", fields...)
	default:
		n.logger.Info("notice", fields...)
	}
}

func (n *LogNotifier) Dismiss(id string) {
	n.logger.Debug("notice dismissed", zap.String("id", id))
}

func (n *LogNotifier) DismissAll() {
	n.logger.Debug("all notices dismissed")
}
