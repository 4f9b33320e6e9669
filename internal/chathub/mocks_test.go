package chathub_test

import (
	"sync"

	"marketchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockClient is a test double for the chathub.Client interface.
type MockClient struct {
	userID string
	connID string
	send   chan models.Event

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID, connID string, buffer int) *MockClient {
	return &MockClient{
		userID: userID,
		connID: connID,
		send:   make(chan models.Event, buffer),
	}
}

func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetConnID() string                   { return c.connID }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.send }
func (c *MockClient) Run()                                {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	close(c.send)
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DrainEvents returns every event currently buffered for the client.
func (c *MockClient) DrainEvents() []models.Event {
	var events []models.Event
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

// MockHandler records inbound events and teardown notifications.
type MockHandler struct {
	mock.Mock
}

func (h *MockHandler) HandleInbound(userID, connID string, ev models.InboundEvent) {
	h.Called(userID, connID, ev.Name)
}

func (h *MockHandler) ClientGone(userID, connID string) {
	h.Called(userID, connID)
}
