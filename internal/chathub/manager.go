// Package chathub is the event bus between connected clients and the server.
// A single goroutine (Run) owns the connection registry; everything else talks
// to it through channels. Delivery is best effort and fire-and-forget.
package chathub

import (
	"context"
	"log"

	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
)

// InboundHandler consumes client-to-server events and connection teardown.
// It is called from the hub goroutine and must not block on the hub.
type InboundHandler interface {
	HandleInbound(userID, connID string, ev models.InboundEvent)
	ClientGone(userID, connID string)
}

type inbound struct {
	client Client
	event  models.InboundEvent
}

type delivery struct {
	userIDs   []string
	broadcast bool
	event     models.Event
	// query runs on the hub goroutine in queue order instead of delivering.
	query func()
}

// ManagerService routes events to every live connection of the addressed users.
type ManagerService struct {
	clients map[string]map[string]Client

	// Channels
	RegisterCh   chan Client
	UnregisterCh chan Client
	incomingCh   chan inbound
	deliverCh    chan delivery
	done         chan struct{}

	handler InboundHandler
}

// NewManagerService creates an idle hub; call Run to start it.
func NewManagerService() *ManagerService {
	return &ManagerService{
		clients:      make(map[string]map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		incomingCh:   make(chan inbound),
		deliverCh:    make(chan delivery, config.HubDeliveryBuffer),
		done:         make(chan struct{}),
	}
}

// SetHandler installs the consumer of inbound events. Call before Run.
func (m *ManagerService) SetHandler(h InboundHandler) {
	m.handler = h
}

// Run is the hub's dispatch loop. It returns when ctx is cancelled, after
// closing every registered client.
func (m *ManagerService) Run(ctx context.Context) {
	log.Println("INFO: chat hub started")
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			for _, conns := range m.clients {
				for _, c := range conns {
					m.remove(c)
				}
			}
			log.Println("INFO: chat hub stopped")
			return

		case c := <-m.RegisterCh:
			conns, ok := m.clients[c.GetUserID()]
			if !ok {
				conns = make(map[string]Client)
				m.clients[c.GetUserID()] = conns
			}
			conns[c.GetConnID()] = c

		case c := <-m.UnregisterCh:
			m.remove(c)

		case in := <-m.incomingCh:
			if !m.registered(in.client) || m.handler == nil {
				continue
			}
			m.handler.HandleInbound(in.client.GetUserID(), in.client.GetConnID(), in.event)

		case d := <-m.deliverCh:
			if d.query != nil {
				d.query()
				continue
			}
			m.deliver(d)
		}
	}
}

// Register adds a connection. It blocks until the hub accepted it.
func (m *ManagerService) Register(c Client) {
	select {
	case m.RegisterCh <- c:
	case <-m.done:
	}
}

// Unregister removes a connection. Unknown or already removed clients are ignored.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Receive hands an inbound event from c to the handler.
func (m *ManagerService) Receive(c Client, ev models.InboundEvent) {
	select {
	case m.incomingCh <- inbound{client: c, event: ev}:
	case <-m.done:
	}
}

// SendToUsers queues ev for every connection of the given users.
func (m *ManagerService) SendToUsers(userIDs []string, ev models.Event) {
	m.enqueue(delivery{userIDs: userIDs, event: ev})
}

// Broadcast queues ev for every connection.
func (m *ManagerService) Broadcast(ev models.Event) {
	m.enqueue(delivery{broadcast: true, event: ev})
}

// Connections returns how many live connections userID has. It is answered
// after every delivery queued before the call.
func (m *ManagerService) Connections(userID string) int {
	res := make(chan int, 1)
	select {
	case m.deliverCh <- delivery{query: func() { res <- len(m.clients[userID]) }}:
	case <-m.done:
		return 0
	}
	select {
	case n := <-res:
		return n
	case <-m.done:
		return 0
	}
}

func (m *ManagerService) enqueue(d delivery) {
	select {
	case m.deliverCh <- d:
	default:
		log.Printf("WARNING: hub delivery queue full, dropping %s", d.event.Name)
	}
}

func (m *ManagerService) deliver(d delivery) {
	if d.broadcast {
		for _, conns := range m.clients {
			for _, c := range conns {
				m.push(c, d.event)
			}
		}
		return
	}
	for _, userID := range d.userIDs {
		for _, c := range m.clients[userID] {
			m.push(c, d.event)
		}
	}
}

// push never blocks the hub: a client whose buffer is full is dropped and
// will resync after reconnecting.
func (m *ManagerService) push(c Client, ev models.Event) {
	select {
	case c.GetSendChannel() <- ev:
	default:
		log.Printf("WARNING: send buffer full for user %s (conn %s), dropping connection", c.GetUserID(), c.GetConnID())
		m.remove(c)
	}
}

func (m *ManagerService) registered(c Client) bool {
	current, ok := m.clients[c.GetUserID()][c.GetConnID()]
	return ok && current == c
}

func (m *ManagerService) remove(c Client) {
	if !m.registered(c) {
		return
	}
	userID, connID := c.GetUserID(), c.GetConnID()
	delete(m.clients[userID], connID)
	if len(m.clients[userID]) == 0 {
		delete(m.clients, userID)
	}
	c.Close()
	if m.handler != nil {
		m.handler.ClientGone(userID, connID)
	}
}
