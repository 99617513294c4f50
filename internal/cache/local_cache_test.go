package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func TestLocalCache_GetSet(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLocalCache[[]string](10, time.Minute)
	c.SetClock(clock.Now)

	_, ok := c.Get("domains")
	assert.False(t, ok)

	c.Set("domains", []string{"a.test"}, 0)
	value, ok := c.Get("domains")
	assert.True(t, ok)
	assert.Equal(t, []string{"a.test"}, value)

	t.Run("过期后不可读取", func(t *testing.T) {
		clock.now = clock.now.Add(time.Minute)
		_, ok := c.Get("domains")
		assert.False(t, ok)
		assert.Equal(t, 0, len(c.data))
	})
}

func TestLocalCache_CustomTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLocalCache[int](10, time.Minute)
	c.SetClock(clock.Now)

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)

	clock.now = clock.now.Add(2 * time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok)
	v, ok := c.Get("long")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLocalCache_Eviction(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLocalCache[int](2, time.Minute)
	c.SetClock(clock.Now)

	c.Set("first", 1, 0)
	clock.now = clock.now.Add(time.Second)
	c.Set("second", 2, 0)
	clock.now = clock.now.Add(time.Second)
	c.Set("third", 3, 0)

	assert.Equal(t, 2, len(c.data))
	_, ok := c.Get("first")
	assert.False(t, ok, "最早过期的条目应被淘汰")
	_, ok = c.Get("third")
	assert.True(t, ok)
}
