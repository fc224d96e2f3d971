package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy() Policy {
	return Policy{
		StatusDelay:   20 * time.Millisecond,
		ReminderDelay: 40 * time.Millisecond,
		MaxRetained:   DefaultMaxRetained,
	}
}

func TestPolicy_AutoDismiss(t *testing.T) {
	p := DefaultPolicy()

	for _, kind := range []model.NotificationType{
		model.NotificationSessionRequest,
		model.NotificationSessionJoinReady,
		model.NotificationReminder15Minutes,
	} {
		_, ok := p.AutoDismissAfter(kind)
		assert.False(t, ok, kind)
	}

	d, ok := p.AutoDismissAfter(model.NotificationCreditDeduction)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, d)

	d, ok = p.AutoDismissAfter(model.NotificationReminder24Hours)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)
}

func TestDispatcher_SessionRequestPersistsCreditDeductionExpires(t *testing.T) {
	d := NewDispatcher(fastPolicy(), zap.NewNop())

	request := d.Publish(model.NotificationSessionRequest, model.NotificationPayload{SessionID: "s1", Skill: "Go"})
	credit := d.Publish(model.NotificationCreditDeduction, model.NotificationPayload{SessionID: "s1", Credits: 2})

	require.Eventually(t, func() bool {
		_, ok := d.Get(credit.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	_, ok := d.Get(request.ID)
	assert.True(t, ok, "session request must stay until dismissed")

	assert.True(t, d.Dismiss(request.ID))
	assert.False(t, d.Dismiss(request.ID))
	assert.Empty(t, d.List())
}

func TestDispatcher_NewestFirstAndCapped(t *testing.T) {
	d := NewDispatcher(Policy{MaxRetained: 3}, zap.NewNop())

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, d.Publish(model.NotificationSessionRequest, model.NotificationPayload{}).ID)
	}

	list := d.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[4], ids[3], ids[2]}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestDispatcher_DefaultCapIsFifty(t *testing.T) {
	d := NewDispatcher(Policy{}, zap.NewNop())
	for i := 0; i < 60; i++ {
		d.Publish(model.NotificationSessionRequest, model.NotificationPayload{})
	}
	assert.Len(t, d.List(), 50)
}

func TestDispatcher_ReadState(t *testing.T) {
	d := NewDispatcher(Policy{}, zap.NewNop())
	a := d.Publish(model.NotificationSessionRequest, model.NotificationPayload{})
	d.Publish(model.NotificationReminder15Minutes, model.NotificationPayload{})
	assert.Equal(t, 2, d.UnreadCount())

	assert.True(t, d.MarkRead(a.ID))
	assert.False(t, d.MarkRead(a.ID))
	assert.Equal(t, 1, d.UnreadCount())

	d.MarkAllRead()
	assert.Equal(t, 0, d.UnreadCount())

	d.Clear()
	assert.Empty(t, d.List())
}

func TestDispatcher_ListenersSeeLifecycle(t *testing.T) {
	d := NewDispatcher(fastPolicy(), zap.NewNop())

	var mu sync.Mutex
	var kinds []ChangeKind
	d.OnChange(func(c Change) {
		mu.Lock()
		kinds = append(kinds, c.Kind)
		mu.Unlock()
	})

	d.Publish(model.NotificationSessionCancelled, model.NotificationPayload{Skill: "Go", Reason: "sick"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []ChangeKind{ChangePublished, ChangeExpired}, kinds)
	mu.Unlock()
}

func TestDispatcher_ClearReportsEveryItem(t *testing.T) {
	d := NewDispatcher(DefaultPolicy(), zap.NewNop())
	a := d.Publish(model.NotificationSessionRequest, model.NotificationPayload{})
	b := d.Publish(model.NotificationCreditDeduction, model.NotificationPayload{})

	var dismissed []string
	d.OnChange(func(c Change) {
		if c.Kind == ChangeDismissed {
			dismissed = append(dismissed, c.Notification.ID)
		}
	})

	d.Clear()
	assert.Empty(t, d.List())
	assert.ElementsMatch(t, []string{a.ID, b.ID}, dismissed)
}

func TestDispatcher_CapReportsDroppedItems(t *testing.T) {
	d := NewDispatcher(Policy{MaxRetained: 1}, zap.NewNop())
	first := d.Publish(model.NotificationSessionRequest, model.NotificationPayload{})

	var expired []string
	d.OnChange(func(c Change) {
		if c.Kind == ChangeExpired {
			expired = append(expired, c.Notification.ID)
		}
	})

	d.Publish(model.NotificationSessionRequest, model.NotificationPayload{})
	assert.Equal(t, []string{first.ID}, expired)
}

func TestRender_Templates(t *testing.T) {
	title, body := Render(model.NotificationSessionRequest, model.NotificationPayload{
		PeerName: "Bob",
		Skill:    "Go",
		Duration: 60,
		Message:  "hi",
	})
	assert.Equal(t, "📩 New session request", title)
	assert.Contains(t, body, "Bob wants to learn Go")
	assert.Contains(t, body, "(60 min): hi")

	_, body = Render(model.NotificationSessionRejected, model.NotificationPayload{Skill: "Go", Reason: "busy"})
	assert.Equal(t, "Your Go session request was declined: busy", body)

	_, body = Render(model.NotificationReminder15Minutes, model.NotificationPayload{Skill: "Go"})
	assert.Equal(t, "Your Go session starts in 15 minutes", body)
}
