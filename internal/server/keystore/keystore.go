// Package keystore owns chat key material. Each chat has a ring of key
// epochs; exactly one epoch is current and used for new ciphertext, older
// epochs stay available for decryption only. Raw keys never leave the
// package: they are persisted wrapped under a key-encryption key and handed
// to participants only inside age-sealed bundles.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/arcticchat/internal/codec"
	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/cryptox"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
	"github.com/jonboulle/clockwork"
)

// DefaultRotateAfterMessages bounds how many messages one epoch encrypts.
const DefaultRotateAfterMessages = 10000

// maxNonceAttempts bounds regeneration when a random nonce collides with
// one already used in the epoch.
const maxNonceAttempts = 4

type Reason string

const (
	ReasonBootstrap  Reason = "bootstrap"
	ReasonMembership Reason = "membership"
	ReasonUsage      Reason = "usage"
	ReasonManual     Reason = "manual"
)

type ring struct {
	// mu is held shared by encryption and decryption and exclusively by
	// rotation, so an in-flight encryption finishes under the epoch it began with.
	mu      sync.RWMutex
	current int64
	keys    map[int64][]byte

	nonceMu sync.Mutex
	nonces  map[int64]map[string]struct{}
}

// Engine is the crypto envelope engine.
type Engine struct {
	repos       repomanager.RepositoryManager
	kek         []byte
	clock       clockwork.Clock
	log         logging.Logger
	rotateAfter int64

	mu    sync.Mutex
	rings map[string]*ring
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithRotateAfter(n int64) Option { return func(e *Engine) { e.rotateAfter = n } }

// New builds an engine. kek must be a 32-byte key-encryption key.
func New(repos repomanager.RepositoryManager, kek []byte, log logging.Logger, opts ...Option) (*Engine, error) {
	if len(kek) != cryptox.KeySize {
		return nil, fmt.Errorf("keystore: key-encryption key must be %d bytes", cryptox.KeySize)
	}
	e := &Engine{
		repos:       repos,
		kek:         append([]byte(nil), kek...),
		clock:       clockwork.NewRealClock(),
		log:         log,
		rotateAfter: DefaultRotateAfterMessages,
		rings:       make(map[string]*ring),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func wrapAAD(chatID string, epoch int64) []byte {
	return []byte("arctic/keywrap|" + chatID + "|" + strconv.FormatInt(epoch, 10))
}

// MessageAAD binds ciphertext to its chat and epoch.
func MessageAAD(chatID string, epoch int64) []byte {
	return []byte(chatID + "|" + strconv.FormatInt(epoch, 10))
}

func (e *Engine) ringFor(chatID string) *ring {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rings[chatID]
	if !ok {
		r = &ring{}
		e.rings[chatID] = r
	}
	return r
}

// load fills r from storage. Caller holds r.mu exclusively.
func (e *Engine) load(ctx context.Context, chatID string, r *ring) error {
	rows, err := e.repos.Epochs(e.repos.Conn()).ListByChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load key epochs: %w", err)
	}
	if len(rows) == 0 {
		return common.ErrChatNotFound
	}

	keys := make(map[int64][]byte, len(rows))
	var current int64
	for _, row := range rows {
		key, err := cryptox.UnwrapKey(e.kek, row.WrappedKey, row.WrapNonce, wrapAAD(chatID, row.Epoch))
		if err != nil {
			return fmt.Errorf("unwrap epoch %d of chat %s: %w", row.Epoch, chatID, err)
		}
		keys[row.Epoch] = key
		if row.Epoch > current {
			current = row.Epoch
		}
	}

	r.keys = keys
	r.current = current
	if r.nonces == nil {
		r.nonces = make(map[int64]map[string]struct{})
	}
	return nil
}

// acquireRead returns the ring read-locked and loaded. The caller must RUnlock.
func (e *Engine) acquireRead(ctx context.Context, chatID string) (*ring, error) {
	r := e.ringFor(chatID)
	r.mu.RLock()
	if r.keys != nil {
		return r, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	if r.keys == nil {
		if err := e.load(ctx, chatID, r); err != nil {
			r.mu.Unlock()
			return nil, err
		}
	}
	r.mu.Unlock()

	r.mu.RLock()
	return r, nil
}

// refresh reloads the ring from storage, picking up epochs created elsewhere.
func (e *Engine) refresh(ctx context.Context, chatID string) error {
	r := e.ringFor(chatID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.load(ctx, chatID, r)
}

// CurrentEpoch returns the epoch new messages must be encrypted under.
func (e *Engine) CurrentEpoch(ctx context.Context, chatID string) (int64, error) {
	r, err := e.acquireRead(ctx, chatID)
	if err != nil {
		return 0, err
	}
	defer r.mu.RUnlock()
	return r.current, nil
}

func (r *ring) freshNonce(epoch int64) ([]byte, error) {
	r.nonceMu.Lock()
	defer r.nonceMu.Unlock()
	used := r.nonces[epoch]
	if used == nil {
		used = make(map[string]struct{})
		r.nonces[epoch] = used
	}
	for i := 0; i < maxNonceAttempts; i++ {
		n := cryptox.NewNonce()
		if _, dup := used[string(n)]; dup {
			continue
		}
		used[string(n)] = struct{}{}
		return n, nil
	}
	return nil, errors.New("keystore: could not draw an unused nonce")
}

// Encrypt seals plaintext under the chat's current epoch. epoch must equal
// the current epoch, otherwise a *common.StaleEpochError is returned.
func (e *Engine) Encrypt(ctx context.Context, chatID string, epoch int64, plaintext []byte) (models.Envelope, error) {
	env, usage, err := e.encrypt(ctx, chatID, epoch, plaintext)
	if err != nil {
		var stale *common.StaleEpochError
		if errors.As(err, &stale) && stale.Requested > stale.Current {
			// Another node may have rotated; pick up its epochs and try once more.
			if rerr := e.refresh(ctx, chatID); rerr == nil {
				env, usage, err = e.encrypt(ctx, chatID, epoch, plaintext)
			}
		}
		if err != nil {
			return models.Envelope{}, err
		}
	}

	if e.rotateAfter > 0 && usage >= e.rotateAfter {
		if _, rerr := e.rotate(ctx, chatID, env.Epoch, ReasonUsage, nil); rerr != nil {
			e.log.Warn(ctx, "usage rotation failed", "chat_id", chatID, "epoch", env.Epoch, "error", rerr)
		}
	}
	return env, nil
}

func (e *Engine) encrypt(ctx context.Context, chatID string, epoch int64, plaintext []byte) (models.Envelope, int64, error) {
	r, err := e.acquireRead(ctx, chatID)
	if err != nil {
		return models.Envelope{}, 0, err
	}
	defer r.mu.RUnlock()

	if epoch != r.current {
		return models.Envelope{}, 0, &common.StaleEpochError{ChatID: chatID, Requested: epoch, Current: r.current}
	}

	nonce, err := r.freshNonce(epoch)
	if err != nil {
		return models.Envelope{}, 0, err
	}
	ct, err := cryptox.Seal(r.keys[epoch], nonce, plaintext, MessageAAD(chatID, epoch))
	if err != nil {
		return models.Envelope{}, 0, fmt.Errorf("seal: %w", err)
	}

	usage, err := e.repos.Epochs(e.repos.Conn()).IncrementUsage(ctx, chatID, epoch)
	if err != nil {
		return models.Envelope{}, 0, fmt.Errorf("count key usage: %w", err)
	}
	return models.Envelope{Ciphertext: ct, Nonce: nonce, Epoch: epoch}, usage, nil
}

// Decrypt opens an envelope. Unknown chats, unknown epochs and authentication
// failures all yield an error wrapping common.ErrDecryption; no plaintext is
// returned.
func (e *Engine) Decrypt(ctx context.Context, chatID string, env models.Envelope) ([]byte, error) {
	pt, err := e.decrypt(ctx, chatID, env)
	if errors.Is(err, errUnknownEpoch) {
		if rerr := e.refresh(ctx, chatID); rerr == nil {
			pt, err = e.decrypt(ctx, chatID, env)
		}
	}
	switch {
	case errors.Is(err, errUnknownEpoch):
		return nil, fmt.Errorf("%w: unknown epoch %d", common.ErrDecryption, env.Epoch)
	case errors.Is(err, common.ErrChatNotFound):
		return nil, fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}
	return pt, err
}

var errUnknownEpoch = errors.New("unknown epoch")

func (e *Engine) decrypt(ctx context.Context, chatID string, env models.Envelope) ([]byte, error) {
	r, err := e.acquireRead(ctx, chatID)
	if err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()

	key, ok := r.keys[env.Epoch]
	if !ok {
		return nil, errUnknownEpoch
	}
	pt, err := cryptox.Open(key, env.Nonce, env.Ciphertext, MessageAAD(chatID, env.Epoch))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	return pt, nil
}

// Bootstrap writes epoch 1 for a freshly created chat through db, which may be
// a transaction. The ring is loaded lazily on first use.
func (e *Engine) Bootstrap(ctx context.Context, db dbx.DBTX, chatID string) error {
	if err := e.persistEpoch(ctx, db, chatID, 1, cryptox.GenerateKey()); err != nil {
		return err
	}
	e.log.Info(ctx, "key epoch created", "chat_id", chatID, "epoch", 1, "reason", ReasonBootstrap)
	return nil
}

func (e *Engine) persistEpoch(ctx context.Context, db dbx.DBTX, chatID string, epoch int64, key []byte) error {
	wrapped, nonce, err := cryptox.WrapKey(e.kek, key, wrapAAD(chatID, epoch))
	if err != nil {
		return fmt.Errorf("wrap key: %w", err)
	}
	if err := e.repos.Epochs(db).Create(ctx, &models.KeyEpoch{
		ChatID: chatID, Epoch: epoch, WrappedKey: wrapped, WrapNonce: nonce,
	}); err != nil {
		return fmt.Errorf("store key epoch: %w", err)
	}
	if err := e.repos.Chats(db).SetCurrentEpoch(ctx, chatID, epoch); err != nil {
		return fmt.Errorf("advance chat epoch: %w", err)
	}
	return nil
}

// Rotate creates a new current epoch and retires the previous one.
func (e *Engine) Rotate(ctx context.Context, chatID string, reason Reason) (int64, error) {
	return e.rotate(ctx, chatID, 0, reason, nil)
}

// ApplyFunc mutates storage through tx as part of a rotation. next is the
// epoch being created.
type ApplyFunc func(ctx context.Context, tx dbx.DBTX, next int64) error

// RotateWith runs apply and the rotation in one transaction: either both
// commit or neither does. An error from apply is returned as is.
func (e *Engine) RotateWith(ctx context.Context, chatID string, reason Reason, apply ApplyFunc) (int64, error) {
	return e.rotate(ctx, chatID, 0, reason, apply)
}

// rotate is a no-op when expect is non-zero and no longer current, so two
// concurrent usage-triggered rotations produce a single new epoch.
func (e *Engine) rotate(ctx context.Context, chatID string, expect int64, reason Reason, apply ApplyFunc) (int64, error) {
	r := e.ringFor(chatID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.keys == nil {
		if err := e.load(ctx, chatID, r); err != nil {
			return 0, err
		}
	}
	if expect != 0 && r.current != expect {
		return r.current, nil
	}

	prev := r.current
	next := prev + 1
	key := cryptox.GenerateKey()
	var applyErr error
	err := e.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if apply != nil {
			if applyErr = apply(ctx, tx, next); applyErr != nil {
				return applyErr
			}
		}
		if err := e.persistEpoch(ctx, tx, chatID, next, key); err != nil {
			return err
		}
		return e.repos.Epochs(tx).Retire(ctx, chatID, prev, e.clock.Now())
	})
	if applyErr != nil {
		return 0, applyErr
	}
	if err != nil {
		return 0, fmt.Errorf("rotate chat %s: %w", chatID, err)
	}

	r.keys[next] = key
	r.current = next
	e.log.Info(ctx, "key epoch rotated", "chat_id", chatID, "epoch", next, "previous", prev, "reason", reason)
	return next, nil
}

// Bundle is the plaintext inside a sealed key bundle.
type Bundle struct {
	ChatID string `cbor:"chat_id"`
	Epoch  int64  `cbor:"epoch"`
	Key    []byte `cbor:"key"`
}

// KeyBundle seals the key of epoch to the given age recipients. Only holders
// of a matching identity can recover the key.
func (e *Engine) KeyBundle(ctx context.Context, chatID string, epoch int64, recipients []string) ([]byte, error) {
	r, err := e.acquireRead(ctx, chatID)
	if err != nil {
		return nil, err
	}
	key, ok := r.keys[epoch]
	if ok {
		key = append([]byte(nil), key...)
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown epoch %d", common.ErrDecryption, epoch)
	}
	defer common.WipeByteArray(key)

	payload, err := codec.Marshal(Bundle{ChatID: chatID, Epoch: epoch, Key: key})
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(payload)
	return cryptox.SealForRecipients(payload, recipients...)
}

// OpenBundle is the client-side counterpart of KeyBundle.
func OpenBundle(sealed []byte, identity string) (*Bundle, error) {
	payload, err := cryptox.OpenWithIdentity(sealed, identity)
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := codec.Unmarshal(payload, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Forget drops the cached ring for chatID.
func (e *Engine) Forget(chatID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rings, chatID)
}
