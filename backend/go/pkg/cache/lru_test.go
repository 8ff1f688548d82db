package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)

	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Put("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUReplaceKeepsSize(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	c.Put("a", 5)

	v, _ := c.Get("a")
	assert.Equal(t, 5, v)
	assert.Equal(t, 1, c.Len())

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRUExpiresEntries(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New[string, int](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Put("a", 1)
	now = now.Add(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
