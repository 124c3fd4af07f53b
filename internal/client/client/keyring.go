package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/arcticchat/internal/server/keystore"
)

type bundleFetcher func(ctx context.Context, chatID string, epoch int64) ([]byte, error)

type epochRef struct {
	chatID string
	epoch  int64
}

// Keyring caches chat epoch keys opened with the local age identity. Keys
// of past epochs never change, so entries are kept until Forget.
type Keyring struct {
	identity string
	fetch    bundleFetcher

	mu   sync.Mutex
	keys map[epochRef][]byte
}

func NewKeyring(identity string, fetch bundleFetcher) *Keyring {
	return &Keyring{identity: identity, fetch: fetch, keys: make(map[epochRef][]byte)}
}

// Key returns the key of the given epoch, fetching and opening its sealed
// bundle on a cache miss.
func (k *Keyring) Key(ctx context.Context, chatID string, epoch int64) ([]byte, error) {
	ref := epochRef{chatID, epoch}

	k.mu.Lock()
	key, ok := k.keys[ref]
	k.mu.Unlock()
	if ok {
		return key, nil
	}

	if k.identity == "" {
		return nil, ErrNoIdentity
	}
	sealed, err := k.fetch(ctx, chatID, epoch)
	if err != nil {
		return nil, err
	}
	b, err := keystore.OpenBundle(sealed, k.identity)
	if err != nil {
		return nil, fmt.Errorf("open key bundle: %w", err)
	}
	if b.ChatID != chatID || b.Epoch != epoch {
		return nil, fmt.Errorf("key bundle for %s/%d does not match request %s/%d", b.ChatID, b.Epoch, chatID, epoch)
	}

	k.mu.Lock()
	k.keys[ref] = b.Key
	k.mu.Unlock()
	return b.Key, nil
}

// Forget drops every cached key of chatID.
func (k *Keyring) Forget(chatID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for ref := range k.keys {
		if ref.chatID == chatID {
			delete(k.keys, ref)
		}
	}
}
