package cache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("tuition", 35000, time.Minute)
	c.Set("forever", 1, 0)

	v, ok := c.Get("tuition")
	assert.True(t, ok)
	assert.Equal(t, 35000, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("tuition")
	assert.False(t, ok)

	_, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCacheDeleteFunc(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("1:tuition:a", "x", time.Hour)
	c.Set("1:route:b", "y", time.Hour)
	c.Set("2:tuition:a", "z", time.Hour)

	c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "1:") })

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("2:tuition:a")
	assert.True(t, ok)
}

func TestTTLCacheConcurrentAccess(t *testing.T) {
	c := NewTTLCache[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(j, n, time.Minute)
				c.Get(j)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, c.Len())
}
