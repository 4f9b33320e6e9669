package wsclient

import (
	"context"
	"fmt"
	"log"

	"marketchat/backend/internal/models"
	"marketchat/backend/internal/roomlist"
)

// ReconcilerListener drives a room-list projection from the connection:
// a drop marks it stale, a fresh connection triggers a full resync.
type ReconcilerListener struct {
	Reconciler *roomlist.Reconciler
	// OnChange, when set, runs after every event that changed the projection.
	OnChange func()
}

func (l *ReconcilerListener) OnConnected(ctx context.Context) error {
	if err := l.Reconciler.Resync(ctx); err != nil {
		return fmt.Errorf("room list resync failed: %w", err)
	}
	l.changed()
	return nil
}

func (l *ReconcilerListener) OnEvent(ev models.InboundEvent) {
	changed, err := l.Reconciler.Apply(ev)
	if err != nil {
		log.Printf("WARNING: %v", err)
		return
	}
	if changed {
		l.changed()
	}
}

func (l *ReconcilerListener) OnDisconnected(error) {
	l.Reconciler.OnDisconnect()
}

func (l *ReconcilerListener) changed() {
	if l.OnChange != nil {
		l.OnChange()
	}
}
