package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

func GenerateEventID() string {
	return fmt.Sprintf("evt_%s", uuid.NewString())
}

func GenerateCounterID() string {
	return fmt.Sprintf("ctr_%s", uuid.NewString())
}

// GenerateInstanceID identifies one running service instance, used as the
// owner value of Redis writer leases.
func GenerateInstanceID() string {
	return fmt.Sprintf("inst_%s", uuid.NewString())
}

// GenerateRequestID creates a timestamped ID for request tracing when no
// UUID source is required.
func GenerateRequestID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("req_%d_%06d", timestamp, randomNum.Int64())
}
