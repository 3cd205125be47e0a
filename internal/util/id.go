package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUID; every primary key column is UUID typed.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns an opaque random token of n bytes, hex encoded.
func NewToken(n int) string {
	bytes := make([]byte, n)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
