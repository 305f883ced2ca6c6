// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemory()

	_, ok := c.Get("recordings:50")
	assert.False(t, ok)

	c.Set("recordings:50", []byte(`[]`), time.Minute)
	val, ok := c.Get("recordings:50")
	require.True(t, ok)
	assert.Equal(t, []byte(`[]`), val)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemory()
	c.Set("k", []byte("v"), 10*time.Millisecond)

	_, ok := c.Get("k")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestNoopCache(t *testing.T) {
	c := NewNoop()
	c.Set("k", []byte("v"), time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedis(RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, ok := c.Get("recordings:50")
	assert.False(t, ok)

	c.Set("recordings:50", []byte(`[{"event_id":"100"}]`), time.Minute)
	val, ok := c.Get("recordings:50")
	require.True(t, ok)
	assert.Equal(t, `[{"event_id":"100"}]`, string(val))

	// TTL is honoured.
	mr.FastForward(2 * time.Minute)
	_, ok = c.Get("recordings:50")
	assert.False(t, ok)
}

func TestRedisCache_ConnectFailure(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	require.Error(t, err)
}
