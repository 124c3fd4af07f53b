package events

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/arcticchat/internal/codec"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "arctic.events"
	contentType     = "application/cbor"
)

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Rabbit publishes events to a topic exchange with routing keys
// chat.<id>.<kind> and relays them back into a local publisher.
type Rabbit struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	log      logging.Logger
}

func DialRabbit(url, exchange string, log logging.Logger) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	r, err := NewRabbit(ch, exchange, log)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	r.conn = conn
	return r, nil
}

func NewRabbit(ch Channel, exchange string, log logging.Logger) (*Rabbit, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Rabbit{ch: ch, exchange: exchange, log: log}, nil
}

func RoutingKey(ev Event) string {
	return "chat." + ev.ChatID + "." + string(ev.Kind)
}

func (r *Rabbit) Publish(ctx context.Context, ev Event) error {
	body, err := codec.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.ch.PublishWithContext(ctx, r.exchange, RoutingKey(ev), false, false, amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
}

// Relay consumes every chat event from a node-private queue and hands it to
// into until ctx is done or the delivery channel closes. Undecodable
// messages are dropped; failed hand-offs are requeued.
func (r *Rabbit) Relay(ctx context.Context, into Publisher) error {
	q, err := r.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := r.ch.QueueBind(q.Name, "chat.#", r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := r.ch.ConsumeWithContext(ctx, q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			r.handle(ctx, d, into)
		}
	}
}

func (r *Rabbit) handle(ctx context.Context, d amqp.Delivery, into Publisher) {
	var ev Event
	if err := codec.Unmarshal(d.Body, &ev); err != nil {
		r.log.Warn(ctx, "dropping undecodable event", "routing_key", d.RoutingKey, "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := into.Publish(ctx, ev); err != nil {
		r.log.Warn(ctx, "relay failed, requeueing", "routing_key", d.RoutingKey, "error", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (r *Rabbit) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
