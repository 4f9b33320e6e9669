// Package roomlist keeps a client's projection of its room list in step with
// the server. Deltas are merged while the connection is healthy; any gap in
// the connection invalidates the projection until a full fetch replaces it.
package roomlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"marketchat/backend/internal/models"

	"github.com/samber/lo"
)

// State of the local projection.
type State int

const (
	Synced State = iota
	Stale
	Resyncing
)

func (s State) String() string {
	switch s {
	case Synced:
		return "synced"
	case Stale:
		return "stale"
	case Resyncing:
		return "resyncing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrSuperseded is returned by Resync when a disconnect or a newer Resync
// happened while the fetch was in flight.
var ErrSuperseded = errors.New("resync superseded")

// Fetcher returns the authoritative room list of the local user.
type Fetcher interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
}

// Reconciler is safe for concurrent use. A new reconciler starts Stale and
// becomes Synced after its first Resync.
type Reconciler struct {
	userID  string
	fetcher Fetcher

	mu     sync.RWMutex
	state  State
	gen    uint64
	rooms  []*models.Room
	online []string
}

// NewReconciler creates a projection for userID.
func NewReconciler(userID string, fetcher Fetcher) *Reconciler {
	return &Reconciler{
		userID:  userID,
		fetcher: fetcher,
		state:   Stale,
	}
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// OnDisconnect marks the projection untrusted. Deltas are ignored until the
// next successful Resync.
func (r *Reconciler) OnDisconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Stale
	r.gen++
}

// Resync replaces the local list with a full fetch. Events that arrive while
// the fetch is in flight are discarded. A disconnect during the fetch wins
// over its result.
func (r *Reconciler) Resync(ctx context.Context) error {
	r.mu.Lock()
	r.state = Resyncing
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	fetched, err := r.fetcher.ListRooms(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return ErrSuperseded
	}
	if err != nil {
		r.state = Stale
		return fmt.Errorf("failed to fetch rooms: %w", err)
	}

	r.rooms = make([]*models.Room, 0, len(fetched))
	for i := range fetched {
		r.rooms = append(r.rooms, fetched[i].Clone())
	}
	r.state = Synced
	return nil
}

// Apply merges one server event. It reports whether the event changed the
// projection; events outside the Synced state are dropped.
func (r *Reconciler) Apply(ev models.InboundEvent) (bool, error) {
	switch ev.Name {
	case models.EventUpdatedRoom:
		var room models.Room
		if err := ev.Decode(&room); err != nil {
			return false, fmt.Errorf("bad %s payload: %w", ev.Name, err)
		}
		return r.ApplyUpdatedRoom(&room), nil
	case models.EventMessageSeen:
		var seen models.MessageSeen
		if err := ev.Decode(&seen); err != nil {
			return false, fmt.Errorf("bad %s payload: %w", ev.Name, err)
		}
		return r.ApplyMessageSeen(seen), nil
	case models.EventOnlineUsers:
		var online []string
		if err := ev.Decode(&online); err != nil {
			return false, fmt.Errorf("bad %s payload: %w", ev.Name, err)
		}
		r.setOnline(online)
		return true, nil
	default:
		return false, nil
	}
}

// ApplyUpdatedRoom shallow-merges the activity fields of a known room or
// prepends a room the client has not seen yet.
func (r *Reconciler) ApplyUpdatedRoom(in *models.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Synced {
		return false
	}

	existing, ok := lo.Find(r.rooms, func(room *models.Room) bool { return room.ID == in.ID })
	if !ok {
		r.rooms = append([]*models.Room{in.Clone()}, r.rooms...)
		return true
	}

	incoming := in.Clone()
	existing.LastMessage = incoming.LastMessage
	existing.LastMessageAt = incoming.LastMessageAt
	existing.UnreadCounts = incoming.UnreadCounts
	return true
}

// ApplyMessageSeen zeroes the local user's counter when the receipt is the
// local user's own. Receipts of other users do not touch counters.
func (r *Reconciler) ApplyMessageSeen(seen models.MessageSeen) bool {
	if seen.UserID != r.userID {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Synced {
		return false
	}

	room, ok := lo.Find(r.rooms, func(room *models.Room) bool { return room.ID == seen.RoomID })
	if !ok {
		log.Printf("WARNING: messageSeen for unknown room %s", seen.RoomID)
		return false
	}
	if room.UnreadCounts == nil {
		room.UnreadCounts = make(map[string]int)
	}
	room.UnreadCounts[r.userID] = 0
	return true
}

// Rooms returns a copy of the list, newest activity first.
func (r *Reconciler) Rooms() []models.Room {
	r.mu.RLock()
	out := make([]models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, *room.Clone())
	}
	r.mu.RUnlock()

	models.SortRoomsByActivity(out)
	return out
}

// TotalUnread sums the local user's counters over all rooms.
func (r *Reconciler) TotalUnread() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.SumBy(r.rooms, func(room *models.Room) int { return room.UnreadCounts[r.userID] })
}

// Online returns the last online-user set the server announced.
func (r *Reconciler) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.online...)
}

func (r *Reconciler) setOnline(online []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = append([]string(nil), online...)
}
