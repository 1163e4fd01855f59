package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// subjectKeyPrefix namespaces cached token subjects in Redis
	subjectKeyPrefix = "auth_subject:"
	// maxSubjectTTL caps how long a verified token is trusted from cache
	maxSubjectTTL = 5 * time.Minute
)

// SubjectCache remembers the subject of recently verified tokens so hot
// counting endpoints do not re-verify the same token on every tap. Keys are
// token hashes; raw tokens never land in Redis.
type SubjectCache struct {
	Client *redis.Client
}

func NewSubjectCache(client *redis.Client) *SubjectCache {
	return &SubjectCache{Client: client}
}

func (c *SubjectCache) key(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return subjectKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached subject for a token, if still present.
func (c *SubjectCache) Get(ctx context.Context, rawToken string) (string, bool) {
	val, err := c.Client.Get(ctx, c.key(rawToken)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set caches a verified token's subject until the token expires, capped at
// maxSubjectTTL.
func (c *SubjectCache) Set(ctx context.Context, rawToken, subject string, expiry time.Time) {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return
	}
	if ttl > maxSubjectTTL {
		ttl = maxSubjectTTL
	}
	_ = c.Client.Set(ctx, c.key(rawToken), subject, ttl).Err()
}
