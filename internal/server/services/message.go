package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/compressx"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/delivery"
	"github.com/dmitrijs2005/arcticchat/internal/server/expiry"
	"github.com/dmitrijs2005/arcticchat/internal/server/keystore"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
)

// MaxDisappearAfter caps the lifetime of a disappearing message.
const MaxDisappearAfter = 7 * 24 * time.Hour

// MaxPlaintextBytes caps a single message body before compression.
const MaxPlaintextBytes = 64 << 10

type MessageService struct {
	repos  repomanager.RepositoryManager
	authz  *authz.Engine
	keys   *keystore.Engine
	dlog   *delivery.Log
	expiry *expiry.Scheduler
	logger logging.Logger
}

func NewMessageService(repos repomanager.RepositoryManager, az *authz.Engine, keys *keystore.Engine, dl *delivery.Log, exp *expiry.Scheduler, log logging.Logger) *MessageService {
	return &MessageService{repos: repos, authz: az, keys: keys, dlog: dl, expiry: exp, logger: log.With("module", "messages")}
}

type SendOptions struct {
	MediaURL string
	// DisappearAfter makes the message disappearing when positive.
	DisappearAfter time.Duration
	ClientSentAt   *time.Time
}

func (o SendOptions) validate(plaintext []byte) error {
	if len(plaintext) == 0 && o.MediaURL == "" {
		return common.Validation("message is empty")
	}
	if len(plaintext) > MaxPlaintextBytes {
		return common.Validation("message exceeds %d bytes", MaxPlaintextBytes)
	}
	if o.DisappearAfter < 0 || o.DisappearAfter > MaxDisappearAfter {
		return common.Validation("disappear-after must be between 0 and %s", MaxDisappearAfter)
	}
	return nil
}

// Send encrypts plaintext under the chat's current epoch and appends it to
// the delivery log. A rotation racing the encryption is retried once.
func (s *MessageService) Send(ctx context.Context, actorID, chatID string, plaintext []byte, opts SendOptions) (*models.Message, error) {
	if err := opts.validate(plaintext); err != nil {
		return nil, err
	}
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	t, err := chatTarget(ctx, s.repos, chatID, actor.ID, "")
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionSendMessage, t); err != nil {
		return nil, err
	}

	body, compressed := compressx.MaybeCompress(plaintext)
	env, err := s.encrypt(ctx, chatID, body)
	if err != nil {
		return nil, err
	}

	req := delivery.AppendRequest{
		ChatID:       chatID,
		SenderID:     actor.ID,
		Envelope:     env,
		MediaURL:     opts.MediaURL,
		IsCompressed: compressed,
		ClientSentAt: opts.ClientSentAt,
	}
	if opts.DisappearAfter > 0 {
		at := s.authz.Now().Add(opts.DisappearAfter).UTC()
		req.ExpiresAt = &at
	}

	m, err := s.dlog.Append(ctx, req)
	if err != nil {
		return nil, err
	}
	if m.ExpiresAt != nil {
		s.expiry.Schedule(m.ID, *m.ExpiresAt)
	}
	return m, nil
}

func (s *MessageService) encrypt(ctx context.Context, chatID string, body []byte) (models.Envelope, error) {
	for attempt := 0; ; attempt++ {
		epoch, err := s.keys.CurrentEpoch(ctx, chatID)
		if err != nil {
			return models.Envelope{}, err
		}
		env, err := s.keys.Encrypt(ctx, chatID, epoch, body)
		if errors.Is(err, common.ErrStaleEpoch) && attempt == 0 {
			continue
		}
		return env, err
	}
}

// Open decrypts a message for a participant of its chat.
func (s *MessageService) Open(ctx context.Context, actorID, messageID string) (*models.Message, []byte, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.dlog.Get(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	t, err := chatTarget(ctx, s.repos, m.ChatID, actor.ID, "")
	if err != nil {
		return nil, nil, err
	}
	t.Epoch = m.KeyEpoch
	if err := s.authz.Check(actor, authz.ActionFetchKey, t); err != nil {
		return nil, nil, err
	}

	pt, err := s.keys.Decrypt(ctx, m.ChatID, m.Envelope())
	if err != nil {
		return nil, nil, err
	}
	if m.IsCompressed {
		if pt, err = compressx.Decompress(pt); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
		}
	}
	return m, pt, nil
}

// History lists readable messages after the given sequence. Messages sealed
// under epochs from before the actor joined are skipped.
func (s *MessageService) History(ctx context.Context, actorID, chatID string, after int64) (iter.Seq2[*models.Message, error], error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	t, err := chatTarget(ctx, s.repos, chatID, actor.ID, "")
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionReadChat, t); err != nil {
		return nil, err
	}
	if after < 0 {
		after = 0
	}
	from := t.ActorMembership.EffectiveFirstEpoch()
	all := s.dlog.ListSince(ctx, chatID, after)
	return func(yield func(*models.Message, error) bool) {
		for m, err := range all {
			if err == nil && m.KeyEpoch < from {
				continue
			}
			if !yield(m, err) {
				return
			}
		}
	}, nil
}

// authorizeAck authorizes a receipt update by actorID on messageID.
func (s *MessageService) authorizeAck(ctx context.Context, actorID, messageID string) error {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return err
	}
	m, err := s.dlog.Get(ctx, messageID)
	if err != nil {
		return err
	}
	t, err := chatTarget(ctx, s.repos, m.ChatID, actor.ID, "")
	if err != nil {
		return err
	}
	t.Message = m
	return s.authz.Check(actor, authz.ActionAckMessage, t)
}

func (s *MessageService) MarkDelivered(ctx context.Context, actorID, messageID string) error {
	if err := s.authorizeAck(ctx, actorID, messageID); err != nil {
		return err
	}
	return s.dlog.MarkDelivered(ctx, messageID, actorID)
}

func (s *MessageService) MarkRead(ctx context.Context, actorID, messageID string) error {
	if err := s.authorizeAck(ctx, actorID, messageID); err != nil {
		return err
	}
	return s.dlog.MarkRead(ctx, messageID, actorID)
}

func (s *MessageService) Receipts(ctx context.Context, actorID, messageID string) ([]*models.Receipt, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	m, err := s.dlog.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	t, err := chatTarget(ctx, s.repos, m.ChatID, actor.ID, "")
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionReadChat, t); err != nil {
		return nil, err
	}
	return s.dlog.Receipts(ctx, messageID)
}

// Delete removes a message before its deadline. Senders may delete their
// own messages, group moderators any message of the chat.
func (s *MessageService) Delete(ctx context.Context, actorID, messageID string) error {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return err
	}
	m, err := s.dlog.Get(ctx, messageID)
	if err != nil {
		return err
	}
	t, err := chatTarget(ctx, s.repos, m.ChatID, actor.ID, "")
	if err != nil {
		return err
	}
	t.Message = m
	if err := s.authz.Check(actor, authz.ActionDeleteMessage, t); err != nil {
		return err
	}
	s.expiry.Revoke(messageID)
	if err := s.dlog.Purge(ctx, messageID); err != nil {
		return err
	}
	s.logger.Info(ctx, "message deleted", "actor_id", actor.ID, "chat_id", m.ChatID, "message_id", messageID)
	return nil
}
