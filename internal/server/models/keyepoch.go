package models

import "time"

// KeyEpoch is a persisted chat key. WrappedKey is sealed under the server's
// key-encryption key; the raw key never leaves the keystore.
type KeyEpoch struct {
	ChatID     string
	Epoch      int64
	WrappedKey []byte
	WrapNonce  []byte
	UsageCount int64
	CreatedAt  time.Time
	RetiredAt  *time.Time
}
