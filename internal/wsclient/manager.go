// Package wsclient is the client side of the realtime connection. A Manager
// owns one WebSocket, announces the user, keeps the session alive with
// heartbeats and reconnects with backoff. Whatever needs the connection gets
// the Manager injected; there is no package-level socket.
package wsclient

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// Listener receives the connection lifecycle and every server event.
type Listener interface {
	// OnConnected runs after the user was announced on a fresh connection.
	// An error drops the connection and schedules a reconnect.
	OnConnected(ctx context.Context) error
	OnEvent(ev models.InboundEvent)
	OnDisconnected(err error)
}

// Options configure a Manager.
type Options struct {
	URL    string
	Token  string
	UserID string
	// HeartbeatInterval is required. It must sit well inside the server's
	// PRESENCE_HEARTBEAT_TIMEOUT; a third of it leaves room for two lost beats.
	HeartbeatInterval time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Dialer            *websocket.Dialer
}

// ErrHeartbeatInterval is returned by NewManager when Options.HeartbeatInterval is unset.
var ErrHeartbeatInterval = errors.New("heartbeat interval is required")

// Manager keeps one live connection until its context is cancelled.
type Manager struct {
	opts     Options
	listener Listener

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewManager Constructor
func NewManager(opts Options, listener Listener) (*Manager, error) {
	if opts.HeartbeatInterval <= 0 {
		return nil, ErrHeartbeatInterval
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = config.ReconnectBackoffMin
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = config.ReconnectBackoffMax
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Manager{opts: opts, listener: listener}, nil
}

// Run connects, serves the connection and reconnects after every drop until
// ctx is done.
func (m *Manager) Run(ctx context.Context) {
	retry := m.newBackOff()
	for {
		connected, err := m.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			retry.Reset()
		}
		wait := retry.NextBackOff()
		log.Printf("WARNING: realtime connection lost, retrying in %s: %v", wait, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// newBackOff doubles the delay from BackoffMin up to BackoffMax with jitter
// and never gives up.
func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.BackoffMin
	b.MaxInterval = m.opts.BackoffMax
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// session serves one connection. It reports whether the connection got as
// far as a successful resync, which resets the backoff.
func (m *Manager) session(ctx context.Context) (bool, error) {
	header := http.Header{}
	if m.opts.Token != "" {
		header.Set("Authorization", "Bearer "+m.opts.Token)
	}
	conn, _, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, header)
	if err != nil {
		return false, err
	}

	m.writeMu.Lock()
	m.conn = conn
	m.writeMu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.writeMu.Lock()
		m.conn = nil
		m.writeMu.Unlock()
		conn.Close()
	}()

	// Closing the socket unblocks the read loop when ctx ends.
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	if err := m.Send(models.Event{Name: models.EventUserOnline, Payload: m.opts.UserID}); err != nil {
		m.listener.OnDisconnected(err)
		return false, err
	}
	if err := m.listener.OnConnected(sessionCtx); err != nil {
		m.listener.OnDisconnected(err)
		return false, err
	}

	go m.heartbeat(sessionCtx)

	for {
		var ev models.InboundEvent
		if err := conn.ReadJSON(&ev); err != nil {
			m.listener.OnDisconnected(err)
			return true, err
		}
		m.listener.OnEvent(ev)
	}
}

func (m *Manager) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Send(models.Event{Name: models.EventHeartbeat}); err != nil {
				return
			}
		}
	}
}

// ErrNotConnected is returned by Send between connections.
var ErrNotConnected = errors.New("not connected")

// Send writes one event on the current connection.
func (m *Manager) Send(ev models.Event) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.conn == nil {
		return ErrNotConnected
	}
	if err := m.conn.SetWriteDeadline(time.Now().Add(config.WriteWait)); err != nil {
		return err
	}
	return m.conn.WriteJSON(ev)
}
