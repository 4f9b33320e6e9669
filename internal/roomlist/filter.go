package roomlist

import (
	"strings"
	"sync"
	"time"

	"marketchat/backend/internal/models"

	"github.com/samber/lo"
)

// Filter narrows the room list by a search query. Query changes are
// debounced; the owner must call Stop when the view goes away so no pending
// timer outlives it.
type Filter struct {
	source   func() []models.Room
	onResult func([]models.Room)
	delay    time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// NewFilter creates a filter over source that reports matches to onResult.
func NewFilter(source func() []models.Room, delay time.Duration, onResult func([]models.Room)) *Filter {
	return &Filter{source: source, onResult: onResult, delay: delay}
}

// SetQuery schedules a filter run, cancelling any pending one.
func (f *Filter) SetQuery(query string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.seq++
	seq := f.seq
	f.timer = time.AfterFunc(f.delay, func() { f.fire(seq, query) })
}

// Stop cancels the pending run. The filter cannot be reused.
func (f *Filter) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *Filter) fire(seq uint64, query string) {
	f.mu.Lock()
	current := !f.stopped && seq == f.seq
	f.mu.Unlock()
	if !current {
		return
	}
	f.onResult(Match(f.source(), query))
}

// Match returns the rooms whose participants, last message or context
// reference contain query, case-insensitively. An empty query matches all.
func Match(rooms []models.Room, query string) []models.Room {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rooms
	}
	return lo.Filter(rooms, func(room models.Room, _ int) bool {
		if strings.Contains(strings.ToLower(room.LastMessage), q) {
			return true
		}
		if room.ContextRef != nil && strings.Contains(strings.ToLower(*room.ContextRef), q) {
			return true
		}
		return lo.SomeBy([]string(room.Participants), func(p string) bool {
			return strings.Contains(strings.ToLower(p), q)
		})
	})
}
