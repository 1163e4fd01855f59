package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		Client: client,
		Logger: log.Default(),
	}
}

// getWriteLeaseDuration returns the writer lease TTL from the environment
// or the default value. The TTL is a crash backstop: leases are released
// explicitly after every commit.
func (r *Redis) getWriteLeaseDuration() time.Duration {
	defaultDuration := 30 * time.Second

	leaseTTLStr := os.Getenv("EVENT_WRITE_LEASE_SECONDS")
	if leaseTTLStr == "" {
		return defaultDuration
	}

	leaseTTLSec, err := strconv.Atoi(leaseTTLStr)
	if err != nil {
		r.Logger.Println("REDIS: Invalid EVENT_WRITE_LEASE_SECONDS value '" + leaseTTLStr + "', using default 30 seconds")
		return defaultDuration
	}

	return time.Duration(leaseTTLSec) * time.Second
}

// AcquireWrite takes the per-event writer lease. Returns false when another
// instance currently holds it.
func (r *Redis) AcquireWrite(eventID, ownerID string) (bool, error) {
	key := "event_write:" + eventID
	ok, err := r.Client.SetNX(context.Background(), key, ownerID, r.getWriteLeaseDuration()).Result()
	return ok, err
}

// ReleaseWrite drops the lease if this owner still holds it. Releasing a
// lease that expired or belongs to another owner is not an error.
func (r *Redis) ReleaseWrite(eventID, ownerID string) error {
	ctx := context.Background()
	key := fmt.Sprintf("event_write:%s", eventID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == ownerID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
