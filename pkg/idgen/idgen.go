package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// UUID returns a random v4 UUID string
func UUID() string {
	return uuid.New().String()
}

// CUID returns a collision-resistant id: "c" followed by 32 random hex chars
func CUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return "c" + hex.EncodeToString(buf)
}

// Timestamp returns the current wall clock in milliseconds
func Timestamp() int64 {
	return time.Now().UnixMilli()
}
