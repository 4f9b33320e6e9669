package chathub

import "marketchat/backend/internal/models"

// Client is the interface for one live connection of a user. A user may hold
// several clients at once (tabs, devices); the hub addresses them by user.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string
	// GetConnID uniquely identifies this connection.
	GetConnID() string

	// GetSendChannel returns the channel the hub writes outbound events to.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the outbound side down. The hub calls it exactly once.
	Close()
}
