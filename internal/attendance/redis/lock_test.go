package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client using miniredis for testing
// miniredis is an in-memory Redis mock that doesn't require a real Redis server
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	return client, mr
}

func cleanupTestRedis(client *redis.Client, mr *miniredis.Miniredis) {
	if client != nil {
		client.Close()
	}
	if mr != nil {
		mr.Close()
	}
}

func TestAcquireWrite_Contention(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	r := &Redis{Client: client, Logger: log.Default()}

	// Instance A takes the lease
	ok, err := r.AcquireWrite("evt1", "inst-A")
	require.NoError(t, err)
	assert.True(t, ok, "First acquire should take the lease")

	// Instance B is denied while A holds it
	ok, err = r.AcquireWrite("evt1", "inst-B")
	require.NoError(t, err)
	assert.False(t, ok, "Second acquire must be denied while the lease is held")

	// A different event's lease is independent
	ok, err = r.AcquireWrite("evt2", "inst-B")
	require.NoError(t, err)
	assert.True(t, ok, "Leases are per event")

	// After A releases, B gets in
	require.NoError(t, r.ReleaseWrite("evt1", "inst-A"))
	ok, err = r.AcquireWrite("evt1", "inst-B")
	require.NoError(t, err)
	assert.True(t, ok, "Acquire should succeed after release")
}

func TestReleaseWrite_OnlyReleasesOwnLease(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	r := &Redis{Client: client, Logger: log.Default()}

	ok, err := r.AcquireWrite("evt1", "inst-A")
	require.NoError(t, err)
	require.True(t, ok)

	// B releasing A's lease is a no-op, not an error
	require.NoError(t, r.ReleaseWrite("evt1", "inst-B"))

	// A still holds it
	ok, err = r.AcquireWrite("evt1", "inst-B")
	require.NoError(t, err)
	assert.False(t, ok, "Lease must survive a release by a non-owner")

	require.NoError(t, r.ReleaseWrite("evt1", "inst-A"))
	ok, err = r.AcquireWrite("evt1", "inst-B")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseWrite_AfterExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	t.Setenv("EVENT_WRITE_LEASE_SECONDS", "1")
	r := &Redis{Client: client, Logger: log.Default()}

	ok, err := r.AcquireWrite("evt1", "inst-A")
	require.NoError(t, err)
	require.True(t, ok)

	// The TTL backstop frees a lease whose holder crashed
	mr.FastForward(2 * time.Second)

	// Releasing an already expired lease is a no-op
	require.NoError(t, r.ReleaseWrite("evt1", "inst-A"))

	ok, err = r.AcquireWrite("evt1", "inst-B")
	require.NoError(t, err)
	assert.True(t, ok, "Lease should be acquirable after expiry")
}

func TestAcquireWrite_SingleHolderUnderRace(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	r := &Redis{Client: client, Logger: log.Default()}

	// Concurrent acquires without releases: SetNX admits exactly one
	const numGoroutines = 10
	var wg sync.WaitGroup
	successCount := 0
	var mu sync.Mutex

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(instNum int) {
			defer wg.Done()

			ok, err := r.AcquireWrite("evt1", fmt.Sprintf("inst-%d", instNum))
			if err == nil && ok {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 1, successCount, "Exactly one instance may hold the lease")
}

func TestGetWriteLeaseDuration(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	r := &Redis{Client: client, Logger: log.Default()}

	t.Setenv("EVENT_WRITE_LEASE_SECONDS", "")
	assert.Equal(t, 30*time.Second, r.getWriteLeaseDuration())

	t.Setenv("EVENT_WRITE_LEASE_SECONDS", "90")
	assert.Equal(t, 90*time.Second, r.getWriteLeaseDuration())

	// Garbage falls back to the default
	t.Setenv("EVENT_WRITE_LEASE_SECONDS", "soon")
	assert.Equal(t, 30*time.Second, r.getWriteLeaseDuration())
}
