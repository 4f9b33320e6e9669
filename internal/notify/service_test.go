package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/notify"
	"marketchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresence map[string]bool

func (p fakePresence) IsOnline(userID string) bool { return p[userID] }

type recordingEmitter struct {
	mu   sync.Mutex
	sent map[string][]models.Event
}

func (r *recordingEmitter) SendToUsers(userIDs []string, ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string][]models.Event)
	}
	for _, id := range userIDs {
		r.sent[id] = append(r.sent[id], ev)
	}
}

func (r *recordingEmitter) eventsFor(userID string) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.sent[userID]...)
}

type chanSender struct {
	got chan *models.Notification
	err error
}

func (c *chanSender) SendOffline(_ context.Context, n *models.Notification) error {
	c.got <- n
	return c.err
}

func TestNotify_OnlineUserGetsLivePush(t *testing.T) {
	emitter := &recordingEmitter{}
	svc := notify.NewService(storage.NewMemoryStore(), fakePresence{"U": true}, emitter)
	offline := &chanSender{got: make(chan *models.Notification, 1)}
	svc.SetOfflineSender(offline)

	n, err := svc.Notify(context.Background(), "U", "Offer accepted", "Your offer was accepted")
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Read)

	events := emitter.eventsFor("U")
	require.Len(t, events, 1)
	assert.Equal(t, models.EventNotification, events[0].Name)
	pushed, ok := events[0].Payload.(*models.Notification)
	require.True(t, ok)
	assert.Equal(t, n.ID, pushed.ID)

	select {
	case <-offline.got:
		t.Fatal("online user must not get an offline push")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotify_OfflineUserReadsFeedLater(t *testing.T) {
	emitter := &recordingEmitter{}
	svc := notify.NewService(storage.NewMemoryStore(), fakePresence{}, emitter)
	offline := &chanSender{got: make(chan *models.Notification, 1), err: errors.New("telegram down")}
	svc.SetOfflineSender(offline)
	ctx := context.Background()

	n, err := svc.Notify(ctx, "U", "New task", "A task matches your skills")
	require.NoError(t, err)
	assert.Empty(t, emitter.eventsFor("U"))

	select {
	case got := <-offline.got:
		assert.Equal(t, n.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("offline sender was not called")
	}

	feed, err := svc.ListForUser(ctx, "U")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, n.ID, feed[0].ID)
	assert.False(t, feed[0].Read)
}

func TestNotify_Validation(t *testing.T) {
	svc := notify.NewService(storage.NewMemoryStore(), fakePresence{}, &recordingEmitter{})

	_, err := svc.Notify(context.Background(), "", "t", "m")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.Notify(context.Background(), "U", " ", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestMarkRead(t *testing.T) {
	svc := notify.NewService(storage.NewMemoryStore(), fakePresence{}, &recordingEmitter{})
	ctx := context.Background()

	n, err := svc.Notify(ctx, "U", "t", "m")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.MarkRead(ctx, "other", n.ID), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, "U", "missing"), apperr.ErrNotFound)

	require.NoError(t, svc.MarkRead(ctx, "U", n.ID))
	require.NoError(t, svc.MarkRead(ctx, "U", n.ID))

	feed, err := svc.ListForUser(ctx, "U")
	require.NoError(t, err)
	assert.True(t, feed[0].Read)
}

func TestMarkAllRead(t *testing.T) {
	svc := notify.NewService(storage.NewMemoryStore(), fakePresence{}, &recordingEmitter{})
	ctx := context.Background()

	a, err := svc.Notify(ctx, "U", "a", "a")
	require.NoError(t, err)
	b, err := svc.Notify(ctx, "U", "b", "b")
	require.NoError(t, err)
	foreign, err := svc.Notify(ctx, "V", "c", "c")
	require.NoError(t, err)

	changed, err := svc.MarkAllRead(ctx, "U", []string{a.ID, b.ID, a.ID, foreign.ID, "missing"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	changed, err = svc.MarkAllRead(ctx, "U", []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Zero(t, changed)

	changed, err = svc.MarkAllRead(ctx, "U", nil)
	require.NoError(t, err)
	assert.Zero(t, changed)

	other, err := svc.ListForUser(ctx, "V")
	require.NoError(t, err)
	assert.False(t, other[0].Read)
}
