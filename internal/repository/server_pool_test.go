package repository

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
)

func newPool() *ServerPool {
	return NewServerPool([]*domain.Backend{
		domain.NewBackend("http://a:8081", true),
		domain.NewBackend("http://b:8082", true),
		domain.NewBackend("http://c:8083", false),
	})
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	pool := newPool()

	backends := pool.List()
	require.Len(t, backends, 3)
	assert.Equal(t, "http://a:8081", backends[0].Identity)
	assert.Equal(t, "http://b:8082", backends[1].Identity)
	assert.Equal(t, "http://c:8083", backends[2].Identity)
}

func TestAvailableFiltersAndKeepsOrder(t *testing.T) {
	pool := newPool()

	available := pool.Available()
	require.Len(t, available, 2)
	assert.Equal(t, "http://a:8081", available[0].Identity)
	assert.Equal(t, "http://b:8082", available[1].Identity)
}

func TestFindByIdentity(t *testing.T) {
	pool := newPool()

	backend, ok := pool.FindByIdentity("http://b:8082")
	require.True(t, ok)
	assert.Equal(t, "http://b:8082", backend.Identity)

	_, ok = pool.FindByIdentity("http://nope:1")
	assert.False(t, ok)
}

func TestSetAvailable(t *testing.T) {
	pool := newPool()

	pool.SetAvailable("http://c:8083", true)
	assert.Len(t, pool.Available(), 3)

	pool.SetAvailable("http://a:8081", false)
	assert.Len(t, pool.Available(), 2)

	// Unknown identity is a no-op, not a panic.
	pool.SetAvailable("http://nope:1", true)
	assert.Len(t, pool.Available(), 2)
}

func TestInFlightAccounting(t *testing.T) {
	pool := newPool()
	backend, _ := pool.FindByIdentity("http://a:8081")

	pool.IncrementInFlight("http://a:8081")
	pool.IncrementInFlight("http://a:8081")
	assert.Equal(t, int64(2), backend.InFlight())

	pool.DecrementInFlight("http://a:8081")
	assert.Equal(t, int64(1), backend.InFlight())

	// Unknown identity no-ops.
	pool.IncrementInFlight("http://nope:1")
	pool.DecrementInFlight("http://nope:1")
	assert.Equal(t, int64(1), backend.InFlight())
}

func TestInFlightNeverNegative(t *testing.T) {
	pool := newPool()
	backend, _ := pool.FindByIdentity("http://a:8081")

	pool.DecrementInFlight("http://a:8081")
	pool.DecrementInFlight("http://a:8081")
	assert.Equal(t, int64(0), backend.InFlight())
}

func TestInFlightUnderConcurrency(t *testing.T) {
	pool := newPool()
	backend, _ := pool.FindByIdentity("http://a:8081")

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				pool.IncrementInFlight("http://a:8081")
				pool.DecrementInFlight("http://a:8081")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), backend.InFlight())
}
