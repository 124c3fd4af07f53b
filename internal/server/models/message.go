package models

import "time"

// Envelope is the output of encryption: opaque ciphertext bound to one key epoch.
type Envelope struct {
	Ciphertext []byte
	Nonce      []byte
	Epoch      int64
}

type Message struct {
	ID             string
	ChatID         string
	SenderID       string
	Ciphertext     []byte
	Nonce          []byte
	KeyEpoch       int64
	MediaURL       string
	IsCompressed   bool
	IsDisappearing bool
	ExpiresAt      *time.Time
	Sequence       int64
	ClientSentAt   *time.Time
	CreatedAt      time.Time
}

func (m *Message) Envelope() Envelope {
	return Envelope{Ciphertext: m.Ciphertext, Nonce: m.Nonce, Epoch: m.KeyEpoch}
}

// ExpiredAt reports whether a disappearing message is past its deadline.
func (m *Message) ExpiredAt(now time.Time) bool {
	return m.IsDisappearing && m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// DeliveryState only moves forward: sent, delivered, read.
type DeliveryState int

const (
	StateSent DeliveryState = iota
	StateDelivered
	StateRead
)

func (s DeliveryState) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateDelivered:
		return "delivered"
	case StateRead:
		return "read"
	default:
		return "unknown"
	}
}

type Receipt struct {
	MessageID string
	UserID    string
	State     DeliveryState
	UpdatedAt time.Time
}

// PendingExpiry is a disappearing message that has not been purged yet.
type PendingExpiry struct {
	MessageID string
	ExpiresAt time.Time
}
