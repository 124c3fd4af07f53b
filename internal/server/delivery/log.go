// Package delivery is the per-chat ordered message log. It assigns gapless
// sequence numbers in arrival order, persists envelopes before acknowledging
// them and tracks forward-only delivery receipts.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/dbx"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/events"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/arcticchat/internal/syncx"
	"github.com/jonboulle/clockwork"
	"github.com/segmentio/ksuid"
)

const DefaultPageSize = 100

type Log struct {
	repos    repomanager.RepositoryManager
	pub      events.Publisher
	clock    clockwork.Clock
	log      logging.Logger
	locks    *syncx.KeyedMutex
	gate     *floodGate
	pageSize int
}

type Option func(*Log)

func WithClock(c clockwork.Clock) Option { return func(l *Log) { l.clock = c } }

func WithPageSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithRateLimit admits perSecond appends per (chat, sender) with the given
// burst. Zero disables flood control.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(l *Log) { l.gate = newFloodGate(perSecond, burst) }
}

func New(repos repomanager.RepositoryManager, pub events.Publisher, log logging.Logger, opts ...Option) *Log {
	if pub == nil {
		pub = events.Nop{}
	}
	l := &Log{
		repos:    repos,
		pub:      pub,
		clock:    clockwork.NewRealClock(),
		log:      log.With("module", "delivery"),
		locks:    syncx.NewKeyedMutex(),
		pageSize: DefaultPageSize,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

type AppendRequest struct {
	ChatID       string
	SenderID     string
	Envelope     models.Envelope
	MediaURL     string
	IsCompressed bool
	// ExpiresAt makes the message disappearing.
	ExpiresAt    *time.Time
	ClientSentAt *time.Time
}

func (r *AppendRequest) validate() error {
	switch {
	case r.ChatID == "":
		return common.Validation("chat id is required")
	case r.SenderID == "":
		return common.Validation("sender id is required")
	case len(r.Envelope.Ciphertext) == 0:
		return common.Validation("ciphertext is required")
	case len(r.Envelope.Nonce) == 0:
		return common.Validation("nonce is required")
	case r.Envelope.Epoch < 1:
		return common.Validation("key epoch must be positive")
	}
	return nil
}

// activeParticipant fails with ErrParticipantNotAllowed unless userID belongs
// to chatID and is neither banned nor timed out.
func (l *Log) activeParticipant(ctx context.Context, chatID, userID string) error {
	conn := l.repos.Conn()
	if _, err := l.repos.Chats(conn).Get(ctx, chatID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrChatNotFound
		}
		return err
	}
	if _, err := l.repos.Chats(conn).GetParticipant(ctx, chatID, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrParticipantNotAllowed
		}
		return err
	}
	u, err := l.repos.Users(conn).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrParticipantNotAllowed
		}
		return err
	}
	if u.Restricted(l.clock.Now()) {
		return common.ErrParticipantNotAllowed
	}
	return nil
}

// Append stores an envelope at the chat's next sequence position. The
// message is durable when Append returns. Cancelling ctx only aborts the wait
// for the chat lock; a commit already under way runs to completion.
func (l *Log) Append(ctx context.Context, req AppendRequest) (*models.Message, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := l.activeParticipant(ctx, req.ChatID, req.SenderID); err != nil {
		return nil, err
	}
	if !l.gate.allow(req.ChatID, req.SenderID, l.clock.Now()) {
		return nil, common.ErrRateLimited
	}

	unlock, err := l.locks.Lock(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx = context.WithoutCancel(ctx)
	m := &models.Message{
		ID:             ksuid.New().String(),
		ChatID:         req.ChatID,
		SenderID:       req.SenderID,
		Ciphertext:     req.Envelope.Ciphertext,
		Nonce:          req.Envelope.Nonce,
		KeyEpoch:       req.Envelope.Epoch,
		MediaURL:       req.MediaURL,
		IsCompressed:   req.IsCompressed,
		IsDisappearing: req.ExpiresAt != nil,
		ExpiresAt:      req.ExpiresAt,
		ClientSentAt:   req.ClientSentAt,
	}
	err = l.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		seq, err := l.repos.Chats(tx).IncrementSequence(ctx, req.ChatID)
		if err != nil {
			return fmt.Errorf("reserve sequence: %w", err)
		}
		m.Sequence = seq
		if err := l.repos.Messages(tx).Insert(ctx, m); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrChatNotFound
		}
		return nil, err
	}

	l.publish(ctx, events.Event{Kind: events.KindMessage, ChatID: m.ChatID, Sequence: m.Sequence, MessageID: m.ID, Message: m})
	l.log.Debug(ctx, "message appended", "chat_id", m.ChatID, "message_id", m.ID, "sequence", m.Sequence)
	return m, nil
}

func (l *Log) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = l.clock.Now()
	if err := l.pub.Publish(ctx, ev); err != nil {
		l.log.Warn(ctx, "event publish failed", "chat_id", ev.ChatID, "kind", ev.Kind, "error", err)
	}
}

// Get returns a readable message. Purged and expired messages are both
// reported as common.ErrMessageUnavailable.
func (l *Log) Get(ctx context.Context, messageID string) (*models.Message, error) {
	m, err := l.repos.Messages(l.repos.Conn()).Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrMessageUnavailable
		}
		return nil, err
	}
	if m.ExpiredAt(l.clock.Now()) {
		return nil, common.ErrMessageUnavailable
	}
	return m, nil
}

// ListSince yields the chat's readable messages with sequence > after in
// ascending order, fetching one page at a time. Iteration stops at the first
// error, which is yielded with a nil message.
func (l *Log) ListSince(ctx context.Context, chatID string, after int64) iter.Seq2[*models.Message, error] {
	return func(yield func(*models.Message, error) bool) {
		cursor := after
		for {
			page, err := l.repos.Messages(l.repos.Conn()).ListAfter(ctx, chatID, cursor, l.pageSize)
			if err != nil {
				yield(nil, fmt.Errorf("list messages: %w", err))
				return
			}
			now := l.clock.Now()
			for _, m := range page {
				cursor = m.Sequence
				if m.ExpiredAt(now) {
					continue
				}
				if !yield(m, nil) {
					return
				}
			}
			if len(page) < l.pageSize {
				return
			}
		}
	}
}

// MarkDelivered advances userID's receipt to delivered.
func (l *Log) MarkDelivered(ctx context.Context, messageID, userID string) error {
	return l.advance(ctx, messageID, userID, models.StateDelivered)
}

// MarkRead advances userID's receipt to read. Repeats and regressions are no-ops.
func (l *Log) MarkRead(ctx context.Context, messageID, userID string) error {
	return l.advance(ctx, messageID, userID, models.StateRead)
}

func (l *Log) advance(ctx context.Context, messageID, userID string, state models.DeliveryState) error {
	m, err := l.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID == userID {
		return nil
	}
	if _, err := l.repos.Chats(l.repos.Conn()).GetParticipant(ctx, m.ChatID, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrParticipantNotAllowed
		}
		return err
	}

	rc := &models.Receipt{MessageID: messageID, UserID: userID, State: state, UpdatedAt: l.clock.Now()}
	changed, err := l.repos.Receipts(l.repos.Conn()).Advance(ctx, rc)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || dbx.IsForeignKeyViolation(err) {
			// Purged between the read and the write.
			return common.ErrMessageUnavailable
		}
		return fmt.Errorf("advance receipt: %w", err)
	}
	if changed {
		l.publish(ctx, events.Event{Kind: events.KindReceipt, ChatID: m.ChatID, Sequence: m.Sequence, MessageID: messageID, Receipt: rc})
	}
	return nil
}

// Receipts returns the state of the message for every current participant
// other than the sender. Participants without a stored receipt are at sent.
func (l *Log) Receipts(ctx context.Context, messageID string) ([]*models.Receipt, error) {
	m, err := l.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conn := l.repos.Conn()
	parts, err := l.repos.Chats(conn).ListParticipants(ctx, m.ChatID)
	if err != nil {
		return nil, err
	}
	stored, err := l.repos.Receipts(conn).ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]*models.Receipt, len(stored))
	for _, rc := range stored {
		byUser[rc.UserID] = rc
	}

	out := make([]*models.Receipt, 0, len(parts))
	for _, p := range parts {
		if p.UserID == m.SenderID {
			continue
		}
		rc, ok := byUser[p.UserID]
		if !ok {
			rc = &models.Receipt{MessageID: messageID, UserID: p.UserID, State: models.StateSent, UpdatedAt: m.CreatedAt}
		}
		out = append(out, rc)
	}
	return out, nil
}

// Purge hard-deletes a message with its receipts. Purging a message that is
// already gone is a no-op.
func (l *Log) Purge(ctx context.Context, messageID string) error {
	repo := l.repos.Messages(l.repos.Conn())
	m, err := repo.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	removed, err := repo.Delete(ctx, messageID)
	if err != nil {
		return fmt.Errorf("purge message: %w", err)
	}
	if removed {
		l.publish(ctx, events.Event{Kind: events.KindPurge, ChatID: m.ChatID, Sequence: m.Sequence, MessageID: messageID})
	}
	return nil
}
