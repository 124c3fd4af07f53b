// Package cursors remembers, per chat, the highest message sequence the
// client has shown, so live feeds resume without replaying history.
package cursors

import (
	"context"
	"time"
)

type Repository interface {
	// Get returns 0 for chats never seen.
	Get(ctx context.Context, chatID string) (int64, error)
	// Advance stores seq unless a higher sequence is already recorded.
	Advance(ctx context.Context, chatID string, seq int64, at time.Time) error
	List(ctx context.Context) (map[string]int64, error)
}
