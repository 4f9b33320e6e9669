package wsclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"marketchat/backend/internal/models"
	"marketchat/backend/internal/roomlist"
	"marketchat/backend/internal/wsclient"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer serves the room list and hands every accepted socket to the test.
type fakeServer struct {
	mu    sync.Mutex
	rooms []models.Room
	auth  []string

	conns chan *websocket.Conn
}

func (s *fakeServer) setRooms(rooms []models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = rooms
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	rooms := s.rooms
	s.mu.Unlock()

	switch r.URL.Path {
	case "/api/rooms":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rooms)
	case "/ws":
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	default:
		http.NotFound(w, r)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) models.InboundEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.InboundEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestManager_ResyncsAfterReconnect(t *testing.T) {
	srv := &fakeServer{conns: make(chan *websocket.Conn, 4)}
	srv.setRooms([]models.Room{{ID: "r1", LastMessage: "hi", UnreadCounts: map[string]int{"B": 1}}})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	reconciler := roomlist.NewReconciler("B", &wsclient.RoomsClient{BaseURL: ts.URL, Token: "tok"})
	changes := make(chan struct{}, 16)
	listener := &wsclient.ReconcilerListener{
		Reconciler: reconciler,
		OnChange:   func() { changes <- struct{}{} },
	}

	mgr, err := wsclient.NewManager(wsclient.Options{
		URL:               "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		Token:             "tok",
		UserID:            "B",
		HeartbeatInterval: time.Second,
		BackoffMin:        10 * time.Millisecond,
		BackoffMax:        20 * time.Millisecond,
	}, listener)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	first := <-srv.conns
	hello := readEvent(t, first)
	assert.Equal(t, models.EventUserOnline, hello.Name)
	var announced string
	require.NoError(t, hello.Decode(&announced))
	assert.Equal(t, "B", announced)

	waitChange(t, changes)
	assert.Equal(t, roomlist.Synced, reconciler.State())
	assert.Equal(t, 1, reconciler.TotalUnread())

	at := time.Now().UTC()
	require.NoError(t, first.WriteJSON(models.Event{
		Name:    models.EventUpdatedRoom,
		Payload: models.Room{ID: "r1", LastMessage: "again", LastMessageAt: &at, UnreadCounts: map[string]int{"B": 2}},
	}))
	waitChange(t, changes)
	assert.Equal(t, 2, reconciler.TotalUnread())

	// Server-side state moves on while the client is away.
	srv.setRooms([]models.Room{
		{ID: "r2", LastMessage: "new", UnreadCounts: map[string]int{"B": 4}},
		{ID: "r1", LastMessage: "again", UnreadCounts: map[string]int{"B": 0}},
	})
	require.NoError(t, first.Close())

	second := <-srv.conns
	defer second.Close()
	assert.Equal(t, models.EventUserOnline, readEvent(t, second).Name)
	waitChange(t, changes)

	assert.Equal(t, roomlist.Synced, reconciler.State())
	assert.Equal(t, 4, reconciler.TotalUnread())
	assert.Len(t, reconciler.Rooms(), 2)

	srv.mu.Lock()
	for _, h := range srv.auth {
		assert.Equal(t, "Bearer tok", h)
	}
	srv.mu.Unlock()
}

func TestManager_SendWithoutConnection(t *testing.T) {
	mgr, err := wsclient.NewManager(wsclient.Options{URL: "ws://127.0.0.1:1/ws", HeartbeatInterval: time.Second}, &wsclient.ReconcilerListener{
		Reconciler: roomlist.NewReconciler("B", &wsclient.RoomsClient{}),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Send(models.Event{Name: models.EventHeartbeat}), wsclient.ErrNotConnected)
}

func TestNewManager_RequiresHeartbeatInterval(t *testing.T) {
	_, err := wsclient.NewManager(wsclient.Options{URL: "ws://127.0.0.1:1/ws"}, &wsclient.ReconcilerListener{
		Reconciler: roomlist.NewReconciler("B", &wsclient.RoomsClient{}),
	})

	assert.ErrorIs(t, err, wsclient.ErrHeartbeatInterval)
}

func TestRoomsClient_Status(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := (&wsclient.RoomsClient{BaseURL: ts.URL}).ListRooms(context.Background())
	assert.ErrorContains(t, err, "401")
}

func waitChange(t *testing.T, changes <-chan struct{}) {
	t.Helper()
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("projection did not change")
	}
}
