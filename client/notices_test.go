package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNotificationSink_SuccessDismissesEverything(t *testing.T) {
	rec := newRecordingNotifier()
	sink := NewNotificationSink(rec)

	sink.Warning(Notice{ID: NoticeExpiring, Title: "Heads up!"})
	sink.Success(Notice{ID: NoticeRenewed, Title: "Woohoo!"})

	assert.Equal(t, 1, rec.dismissAll)
	assert.Contains(t, rec.dismissed, NoticeExpiring)
	assert.Contains(t, rec.dismissed, NoticeExpired)

	visible := rec.Visible()
	assert.Len(t, visible, 1)
	assert.Equal(t, NoticeSuccess, visible[NoticeRenewed].Kind)
}

func TestNotificationSink_ReplacesPrevious(t *testing.T) {
	rec := newRecordingNotifier()
	sink := NewNotificationSink(rec)

	sink.Warning(Notice{ID: NoticeExpiring})
	sink.Error(Notice{ID: NoticeExpired})

	assert.Equal(t, []string{NoticeExpiring}, rec.dismissed)
	visible := rec.Visible()
	assert.Len(t, visible, 1)
	assert.Equal(t, NoticeError, visible[NoticeExpired].Kind)
}

func TestNotificationSink_SameIDUpdatesInPlace(t *testing.T) {
	rec := newRecordingNotifier()
	sink := NewNotificationSink(rec)

	sink.Warning(Notice{ID: NoticeExpiring, Description: "4 minutes"})
	sink.Warning(Notice{ID: NoticeExpiring, Description: "3 minutes"})

	assert.Empty(t, rec.dismissed)
	assert.Equal(t, "3 minutes", rec.Visible()[NoticeExpiring].Description)
}

func TestNotificationSink_DismissAll(t *testing.T) {
	rec := newRecordingNotifier()
	sink := NewNotificationSink(rec)

	sink.Error(Notice{ID: NoticeExpired})
	sink.DismissAll()
	sink.Warning(Notice{ID: NoticeExpiring})

	// nothing left to dismiss individually after DismissAll
	assert.Empty(t, rec.dismissed)
	assert.Len(t, rec.Visible(), 1)
}

func TestNotificationSink_NilNotifier(t *testing.T) {
	sink := NewNotificationSink(nil)
	assert.NotPanics(t, func() {
		sink.Success(Notice{ID: NoticeRenewed})
		sink.Warning(Notice{ID: NoticeExpiring})
		sink.Error(Notice{ID: NoticeExpired})
		sink.DismissAll()
	})
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	n.Show(Notice{ID: NoticeExpiring, Kind: NoticeWarning, Title: "Heads up!", Action: &NoticeAction{Label: "Stay connected"}})
	n.Show(Notice{ID: NoticeExpired, Kind: NoticeError, Title: "Oops!"})
	n.Dismiss(NoticeExpired)

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
		assert.Equal(t, "Stay connected", entries[0].ContextMap()["action"])
		assert.Equal(t, zap.ErrorLevel, entries[1].Level)
		assert.Equal(t, NoticeExpired, entries[2].ContextMap()["id"])
	}
}
