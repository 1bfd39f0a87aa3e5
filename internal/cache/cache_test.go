package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestCache_GetSet(t *testing.T) {
	c := New[string, int](10, 0)
	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_LRUEviction(t *testing.T) {
	c := New[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	// Touch a so b becomes least recently used.
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, string](10, time.Hour, WithClock(clock.Now))
	c.Set("k", "v")

	clock.Advance(59 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire exactly at ttl")
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetRefreshesTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New[int, int](10, time.Minute, WithClock(clock.Now))
	c.Set(1, 1)
	clock.Advance(50 * time.Second)
	c.Set(1, 2)
	clock.Advance(50 * time.Second)
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_PurgeAndDelete(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New[string, int](0, time.Second, WithClock(clock.Now))
	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(2 * time.Second)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Purge())
	assert.Equal(t, 1, c.Len())

	c.Delete("c")
	assert.Equal(t, 0, c.Len())
}

func TestCache_DeleteFunc(t *testing.T) {
	type key struct{ doc, chunk string }
	c := New[key, string](0, 0)
	c.Set(key{"d1", "d1:0"}, "x")
	c.Set(key{"d1", "d1:1"}, "y")
	c.Set(key{"d2", "d2:0"}, "z")

	n := c.DeleteFunc(func(k key) bool { return k.doc == "d1" })
	assert.Equal(t, 2, n)
	_, ok := c.Get(key{"d2", "d2:0"})
	assert.True(t, ok)
}
