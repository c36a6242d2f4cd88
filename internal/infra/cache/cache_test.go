package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/infra/cache"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ port.Cache[domain.Principal] = (*cache.InMemory[domain.Principal])(nil)

func alice() domain.Principal {
	return domain.Principal{UserID: uuid.New(), Username: "alice", Role: domain.RoleUser}
}

func TestInMemory_StoresPrincipalByUsername(t *testing.T) {
	c := cache.New[domain.Principal](time.Minute)
	t.Cleanup(c.Close)
	p := alice()

	_, ok := c.Get("alice")
	assert.False(t, ok)

	c.Set("alice", p)
	got, ok := c.Get("alice")
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestInMemory_EntryExpires(t *testing.T) {
	c := cache.New[domain.Principal](40 * time.Millisecond)
	t.Cleanup(c.Close)

	c.Set("alice", alice())
	time.Sleep(80 * time.Millisecond)

	_, ok := c.Get("alice")
	assert.False(t, ok)
}

func TestInMemory_DeleteInvalidates(t *testing.T) {
	c := cache.New[domain.Principal](time.Minute)
	t.Cleanup(c.Close)

	c.Set("alice", alice())
	c.Delete("alice")
	c.Delete("never-set")

	_, ok := c.Get("alice")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestInMemory_SweeperDropsExpired(t *testing.T) {
	c := cache.New[domain.Principal](20 * time.Millisecond)
	t.Cleanup(c.Close)

	c.Set("alice", alice())
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestInMemory_CloseIsIdempotent(t *testing.T) {
	c := cache.New[domain.Principal](time.Minute)
	p := alice()
	c.Set("alice", p)

	c.Close()
	c.Close()

	got, ok := c.Get("alice")
	require.True(t, ok)
	assert.Equal(t, p.UserID, got.UserID)
}

func TestInMemory_ConcurrentAccess(t *testing.T) {
	c := cache.New[domain.Principal](time.Minute)
	t.Cleanup(c.Close)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("alice", alice())
				c.Get("alice")
				c.Delete("alice")
			}
		}()
	}
	wg.Wait()
}
