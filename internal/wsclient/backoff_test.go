package wsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackOff_GrowsToCapAndResets(t *testing.T) {
	m, err := NewManager(Options{
		HeartbeatInterval: time.Second,
		BackoffMin:        100 * time.Millisecond,
		BackoffMax:        time.Second,
	}, nil)
	require.NoError(t, err)
	b := m.newBackOff()

	// Default jitter spreads each wait by half the current interval.
	first := b.NextBackOff()
	assert.GreaterOrEqual(t, first, 50*time.Millisecond)
	assert.LessOrEqual(t, first, 150*time.Millisecond)

	for i := 0; i < 20; i++ {
		wait := b.NextBackOff()
		assert.Positive(t, wait, "never gives up")
		assert.LessOrEqual(t, wait, 1500*time.Millisecond)
	}

	b.Reset()
	assert.LessOrEqual(t, b.NextBackOff(), 150*time.Millisecond)
}
