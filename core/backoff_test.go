package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmond/linkmond/state"
)

// TestOnFlapDoublesWithCap exercises invariant 5: the interface is only
// damped for exactly the doubling-with-cap interval computed at each flap.
func TestOnFlapDoublesWithCap(t *testing.T) {
	var bs state.BackoffState
	init := 1 * time.Second
	max := 4 * time.Second
	now := time.Now()

	onFlap(&bs, now, init, max)
	assert.Equal(t, init, bs.NextInterval)

	onFlap(&bs, now, init, max)
	assert.Equal(t, 2*time.Second, bs.NextInterval)

	onFlap(&bs, now, init, max)
	assert.Equal(t, 4*time.Second, bs.NextInterval)

	// Capped at max on further flaps.
	onFlap(&bs, now, init, max)
	assert.Equal(t, max, bs.NextInterval)
}

// TestTickBackoffElapses: invariant 5, "active only once backoff has
// elapsed since the last flap".
func TestTickBackoffElapses(t *testing.T) {
	var bs state.BackoffState
	now := time.Now()
	onFlap(&bs, now, 100*time.Millisecond, time.Second)

	require.True(t, tickBackoff(&bs, now))
	require.True(t, tickBackoff(&bs, now.Add(50*time.Millisecond)))
	require.False(t, tickBackoff(&bs, now.Add(150*time.Millisecond)))
	assert.Equal(t, time.Duration(0), bs.BackoffRemaining)
}

func TestActiveRequiresUpAndNoBackoff(t *testing.T) {
	iface := &state.Interface{Up: true}
	assert.True(t, iface.Active())

	iface.Backoff.BackoffRemaining = time.Second
	assert.False(t, iface.Active())

	iface.Up = false
	iface.Backoff.BackoffRemaining = 0
	assert.False(t, iface.Active())
}
