package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_EnforcesBurst(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(), "request %d should be allowed (within burst)", i)
	}
	assert.False(t, limiter.Allow(), "request beyond burst should be rejected")
}

func TestNew_ZeroRateIsUnlimited(t *testing.T) {
	limiter := New(0, 0)

	for i := 0; i < 10_000; i++ {
		require.True(t, limiter.Allow())
	}
}

func TestWait_RespectsContext(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}

func TestKeyed_SeparateBuckets(t *testing.T) {
	k := NewKeyed(1, 2, time.Minute)

	assert.True(t, k.Allow("alice"))
	assert.True(t, k.Allow("alice"))
	assert.False(t, k.Allow("alice"))

	assert.True(t, k.Allow("bob"), "one owner's usage must not affect another")
	assert.Equal(t, 2, k.Len())
}

func TestKeyed_Unlimited(t *testing.T) {
	k := NewKeyed(0, 0, time.Minute)

	for i := 0; i < 1000; i++ {
		require.True(t, k.Allow("alice"))
	}
	assert.Equal(t, 0, k.Len())
}

func TestKeyed_EvictsIdleKeys(t *testing.T) {
	k := NewKeyed(5, 5, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return now }

	k.Allow("alice")
	k.Allow("bob")
	require.Equal(t, 2, k.Len())

	now = now.Add(2 * time.Minute)
	k.Allow("carol")

	assert.Equal(t, 1, k.Len())
}
