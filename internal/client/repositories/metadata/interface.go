// Package metadata persists small client settings such as the open chat.
package metadata

import "context"

// Well-known keys.
const (
	KeyCurrentChat = "current_chat"
	KeyDisplayName = "display_name"
)

type Repository interface {
	// Get returns ok=false when key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
