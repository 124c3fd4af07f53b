package common

import (
	"crypto/rand"
)

// WipeByteArray zeroes b in place. Used for key material once it is no
// longer needed.
func WipeByteArray(b []byte) {
	clear(b)
}

// GenerateRandByteArray returns size bytes read from crypto/rand.
// It panics if the system random source fails, which is not recoverable.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
