// Package events fans delivery-log changes out to live subscribers. The
// in-process Broker feeds gRPC streams on this node; RabbitPublisher and
// Relay carry the same events between nodes.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/server/models"
)

type Kind string

const (
	KindMessage Kind = "message"
	KindReceipt Kind = "receipt"
	KindPurge   Kind = "purge"
)

// Event is published after the change it describes has been committed.
type Event struct {
	Kind       Kind            `cbor:"kind"`
	ChatID     string          `cbor:"chat_id"`
	Sequence   int64           `cbor:"sequence,omitempty"`
	MessageID  string          `cbor:"message_id,omitempty"`
	Message    *models.Message `cbor:"message,omitempty"`
	Receipt    *models.Receipt `cbor:"receipt,omitempty"`
	OccurredAt time.Time       `cbor:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
