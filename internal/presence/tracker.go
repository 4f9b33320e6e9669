// Package presence tracks which users are online. A user is online while at
// least one of their connections is alive; connections that stop sending
// heartbeats are expired by Sweep.
package presence

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"github.com/samber/lo"
)

// Broadcaster delivers the online snapshot to every connected client.
type Broadcaster interface {
	Broadcast(ev models.Event)
}

// Mirror receives online/offline transitions for out-of-process readers.
type Mirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

type mirrorOp struct {
	userID string
	online bool
}

// Tracker owns the process-wide presence set.
type Tracker struct {
	mu sync.Mutex
	// conns maps user -> connection -> last heartbeat. A user key exists only
	// while it has at least one connection.
	conns   map[string]map[string]time.Time
	timeout time.Duration
	now     func() time.Time

	bus      Broadcaster
	mirror   Mirror
	mirrorCh chan mirrorOp
}

// NewTracker creates a tracker. mirror may be nil.
func NewTracker(bus Broadcaster, mirror Mirror, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = config.HeartbeatTimeout
	}
	return &Tracker{
		conns:    make(map[string]map[string]time.Time),
		timeout:  timeout,
		now:      time.Now,
		bus:      bus,
		mirror:   mirror,
		mirrorCh: make(chan mirrorOp, config.PresenceMirrorBuffer),
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Connect registers connID for userID. The first connection of a user puts
// them online and broadcasts the new snapshot. Connecting the same
// connection twice only refreshes its heartbeat.
func (t *Tracker) Connect(userID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns, ok := t.conns[userID]
	if !ok {
		conns = make(map[string]time.Time)
		t.conns[userID] = conns
	}
	conns[connID] = t.now()
	if ok {
		return
	}

	log.Printf("INFO: user %s is online", userID)
	t.changed(userID, true)
}

// Disconnect drops connID. When the last connection of a user goes, the user
// goes offline and the snapshot is broadcast.
func (t *Tracker) Disconnect(userID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.drop(userID, connID) {
		log.Printf("INFO: user %s is offline", userID)
		t.changed(userID, false)
	}
}

// Heartbeat refreshes a known connection and the mirror's TTL. It reports false for connections
// the tracker does not know (never announced or already expired).
func (t *Tracker) Heartbeat(userID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns, ok := t.conns[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	conns[connID] = t.now()
	t.queueMirror(userID, true)
	return true
}

// Sweep expires connections whose last heartbeat is older than the timeout
// and returns the users that went offline.
func (t *Tracker) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := t.now().Add(-t.timeout)
	var offline []string
	for userID, conns := range t.conns {
		for connID, last := range conns {
			if last.Before(deadline) && t.drop(userID, connID) {
				offline = append(offline, userID)
			}
		}
	}
	if len(offline) == 0 {
		return nil
	}

	sort.Strings(offline)
	log.Printf("INFO: presence expired %d user(s) without heartbeat: %v", len(offline), offline)
	for _, userID := range offline {
		t.queueMirror(userID, false)
	}
	t.bus.Broadcast(models.Event{Name: models.EventOnlineUsers, Payload: t.snapshot()})
	return offline
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.conns[userID]
	return ok
}

// Count returns the number of live connections of the user.
func (t *Tracker) Count(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[userID])
}

// Online returns the sorted online set.
func (t *Tracker) Online() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// Run sweeps on every interval tick and feeds the mirror until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		case op := <-t.mirrorCh:
			t.applyMirror(ctx, op)
		}
	}
}

// HandleInbound implements chathub.InboundHandler.
func (t *Tracker) HandleInbound(userID, connID string, ev models.InboundEvent) {
	switch ev.Name {
	case models.EventUserOnline:
		var claimed string
		if len(ev.Payload) > 0 && ev.Decode(&claimed) == nil && claimed != "" && claimed != userID {
			log.Printf("WARNING: connection %s of user %s announced itself as %s; using authenticated id", connID, userID, claimed)
		}
		t.Connect(userID, connID)
	case models.EventHeartbeat:
		// The hub only forwards events of registered connections, so a
		// heartbeat the tracker does not know comes from a live socket that
		// Sweep expired. Bring it back instead of reporting it offline.
		if !t.Heartbeat(userID, connID) {
			log.Printf("INFO: heartbeat from expired connection %s of user %s, re-announcing", connID, userID)
			t.Connect(userID, connID)
		}
	default:
		log.Printf("WARNING: unknown event %q from user %s", ev.Name, userID)
	}
}

// ClientGone implements chathub.InboundHandler.
func (t *Tracker) ClientGone(userID, connID string) {
	t.Disconnect(userID, connID)
}

// drop removes one connection and reports whether the user went offline.
// Callers hold t.mu.
func (t *Tracker) drop(userID, connID string) bool {
	conns, ok := t.conns[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false
	}
	delete(t.conns, userID)
	return true
}

// changed broadcasts under t.mu so snapshots leave in transition order.
func (t *Tracker) changed(userID string, online bool) {
	t.queueMirror(userID, online)
	t.bus.Broadcast(models.Event{Name: models.EventOnlineUsers, Payload: t.snapshot()})
}

func (t *Tracker) snapshot() []string {
	online := lo.Keys(t.conns)
	sort.Strings(online)
	return online
}

func (t *Tracker) queueMirror(userID string, online bool) {
	if t.mirror == nil {
		return
	}
	select {
	case t.mirrorCh <- mirrorOp{userID: userID, online: online}:
	default:
		log.Printf("WARNING: presence mirror queue full, skipping %s", userID)
	}
}

func (t *Tracker) applyMirror(ctx context.Context, op mirrorOp) {
	var err error
	if op.online {
		err = t.mirror.SetOnline(ctx, op.userID)
	} else {
		err = t.mirror.SetOffline(ctx, op.userID)
	}
	if err != nil {
		log.Printf("ERROR: presence mirror update for %s failed: %v", op.userID, err)
	}
}
