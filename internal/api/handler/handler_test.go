package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"marketchat/backend/internal/api/handler"
	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/notify"
	"marketchat/backend/internal/presence"
	"marketchat/backend/internal/rooms"
	"marketchat/backend/internal/storage"
	"marketchat/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret        = "test-secret"
	internalToken = "internal-secret"
)

type testEnv struct {
	router  *gin.Engine
	hub     *chathub.ManagerService
	tracker *presence.Tracker
	store   *storage.MemoryStore
	handler *handler.Handler
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := storage.NewMemoryStore()
	hub := chathub.NewManagerService()
	tracker := presence.NewTracker(hub, nil, time.Minute)
	hub.SetHandler(tracker)
	go hub.Run(ctx)

	dir := rooms.NewDirectory(store, hub)
	notifications := notify.NewService(store, tracker, hub)

	r := gin.New()
	h := handler.NewHandler(hub, tracker, dir, notifications, secret, internalToken)
	h.Register(r)
	return &testEnv{router: r, hub: hub, tracker: tracker, store: store, handler: h}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(secret, userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestAuth(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodGet, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := auth.GenerateToken("other-secret", "A", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/rooms?token="+forged, nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := auth.GenerateToken(secret, "A", -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/rooms?token="+expired, nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/rooms?token="+token(t, "A"), nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRoomFlow(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/rooms", "A", gin.H{"peerId": "B", "contextRef": "job-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var room models.Room
	decode(t, w, &room)
	assert.Equal(t, []string{"A", "B"}, []string(room.Participants))

	w = env.do(t, http.MethodPost, "/api/rooms", "B", gin.H{"peerId": "A", "contextRef": "job-1"})
	var same models.Room
	decode(t, w, &same)
	assert.Equal(t, room.ID, same.ID)

	w = env.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", "A", gin.H{"body": "hi"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var updated models.Room
	decode(t, w, &updated)
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, updated.UnreadCounts)
	assert.Equal(t, "hi", updated.LastMessage)

	w = env.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=10", "B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []models.Message
	decode(t, w, &msgs)
	require.Len(t, msgs, 1)

	w = env.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/seen", "B", gin.H{"messageId": msgs[0].ID})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/rooms/"+room.ID, "A", nil)
	var current models.Room
	decode(t, w, &current)
	assert.Equal(t, map[string]int{"A": 0, "B": 0}, current.UnreadCounts)

	w = env.do(t, http.MethodGet, "/api/rooms", "B", nil)
	var list []models.Room
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, room.ID, list[0].ID)
}

func TestListMessages_CursorPaging(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/rooms", "A", gin.H{"peerId": "B"})
	var room models.Room
	decode(t, w, &room)
	for _, body := range []string{"one", "two", "three"} {
		w = env.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", "A", gin.H{"body": body})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	seen := map[string]bool{}
	path := "/api/rooms/" + room.ID + "/messages?limit=1"
	for i := 0; i < 3; i++ {
		w = env.do(t, http.MethodGet, path, "B", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var page []models.Message
		decode(t, w, &page)
		require.Len(t, page, 1)
		seen[page[0].ID] = true

		q := url.Values{}
		q.Set("limit", "1")
		q.Set("before", page[0].CreatedAt.Format(time.RFC3339Nano))
		q.Set("beforeId", page[0].ID)
		path = "/api/rooms/" + room.ID + "/messages?" + q.Encode()
	}
	assert.Len(t, seen, 3)

	w = env.do(t, http.MethodGet, path, "B", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRoomErrors(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/rooms", "A", gin.H{"peerId": "A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body handler.ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, "invalid_input", body.Code)

	w = env.do(t, http.MethodPost, "/api/rooms", "A", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms", "A", gin.H{"peerId": "B"})
	var room models.Room
	decode(t, w, &room)

	w = env.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", "C", gin.H{"body": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages", "C", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms/missing/messages", "A", gin.H{"body": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/seen", "A", gin.H{"messageId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?before=yesterday", "A", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=ten", "A", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotifications(t *testing.T) {
	env := newEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/notifications",
		strings.NewReader(`{"userId":"U","title":"Offer","message":"Accepted"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var ids []string
	for _, title := range []string{"Offer", "Payment"} {
		req = httptest.NewRequest(http.MethodPost, "/internal/notifications",
			strings.NewReader(`{"userId":"U","title":"`+title+`","message":"m"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Internal-Token", internalToken)
		w = httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var n models.Notification
		decode(t, w, &n)
		ids = append(ids, n.ID)
	}

	w = env.do(t, http.MethodGet, "/api/notifications", "U", nil)
	var feed []models.Notification
	decode(t, w, &feed)
	require.Len(t, feed, 2)

	w = env.do(t, http.MethodPost, "/api/notifications/"+ids[0]+"/read", "V", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/notifications/"+ids[0]+"/read", "U", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, "/api/notifications/read", "U", gin.H{"ids": ids})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/notifications", "U", nil)
	decode(t, w, &feed)
	for _, n := range feed {
		assert.True(t, n.Read)
	}
}

func TestWebSocket_PresenceAndLivePush(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token(t, "U")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.Event{Name: models.EventUserOnline, Payload: "U"}))

	ev := readUntil(t, conn, models.EventOnlineUsers)
	var online []string
	require.NoError(t, ev.Decode(&online))
	assert.Equal(t, []string{"U"}, online)
	assert.True(t, env.tracker.IsOnline("U"))

	w := env.do(t, http.MethodGet, "/api/presence", "U", nil)
	assert.JSONEq(t, `{"online":["U"]}`, w.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/internal/notifications",
		strings.NewReader(`{"userId":"U","title":"Offer","message":"Accepted"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", internalToken)
	env.router.ServeHTTP(httptest.NewRecorder(), req)

	ev = readUntil(t, conn, models.EventNotification)
	var n models.Notification
	require.NoError(t, ev.Decode(&n))
	assert.Equal(t, "Offer", n.Title)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !env.tracker.IsOnline("U") }, 2*time.Second, 10*time.Millisecond)
}

func TestTelegramLinkCode(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/telegram/link-code", "W", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "linking is off until a bot is configured")

	codes := telegram.NewLinkCodes(env.store, time.Minute)
	env.handler.SetTelegramLinking(codes, "marketbot")

	w = env.do(t, http.MethodPost, "/api/telegram/link-code", "W", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Code      string    `json:"code"`
		Link      string    `json:"link"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	decode(t, w, &resp)
	assert.LessOrEqual(t, len(resp.Code), 64)
	assert.Equal(t, "https://t.me/marketbot?start="+resp.Code, resp.Link)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	userID, err := codes.Redeem(context.Background(), resp.Code)
	require.NoError(t, err)
	assert.Equal(t, "W", userID)
}

func TestWebSocket_RequiresToken(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func readUntil(t *testing.T, conn *websocket.Conn, name string) models.InboundEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev models.InboundEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Name == name {
			return ev
		}
	}
}
