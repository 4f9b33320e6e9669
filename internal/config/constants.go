package config

import "time"

const (
	// Presence
	HeartbeatTimeout      = 90 * time.Second
	PresenceSweepInterval = 15 * time.Second
	PresenceMirrorBuffer  = 256

	// WebSocket
	WriteWait         = 10 * time.Second
	PongWait          = 60 * time.Second
	PingPeriod        = (PongWait * 9) / 10
	MaxMessageSize    = 4096
	ClientSendBuffer  = 256
	HubDeliveryBuffer = 1024

	// Rooms
	MaxMessageBodyLength = 4000
	LastMessageSnippet   = 140
	DefaultHistoryLimit  = 50
	MaxHistoryLimit      = 100

	// Notifications
	NotificationRequestChannel = "notifications:requests"
	OfflinePushTimeout         = 10 * time.Second
	TelegramLinkCodeTTL        = 10 * time.Minute

	// Client reconnect
	ReconnectBackoffMin = 500 * time.Millisecond
	ReconnectBackoffMax = 30 * time.Second
	FilterDebounce      = 300 * time.Millisecond
)
