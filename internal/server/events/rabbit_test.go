package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/codec"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	declareErr error
	publishErr error

	mu         sync.Mutex
	exchanges  []string
	bindings   []string
	published  []published
	deliveries chan amqp.Delivery
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, name+"/"+kind)
	return f.declareErr
}

func (f *fakeChannel) QueueDeclare(string, bool, bool, bool, bool, amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: "amq.gen-1"}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, name+"<"+key+"@"+exchange)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) ConsumeWithContext(context.Context, string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type acks struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue int
}

func (a *acks) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *acks) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked++
	if requeue {
		a.requeue++
	}
	return nil
}

func (a *acks) Reject(uint64, bool) error { return nil }

func TestRabbit_Publish(t *testing.T) {
	ch := &fakeChannel{}
	r, err := NewRabbit(ch, "", logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, []string{"arctic.events/topic"}, ch.exchanges)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := Event{
		Kind: KindMessage, ChatID: "c1", Sequence: 7, OccurredAt: at,
		Message: &models.Message{ID: "m1", ChatID: "c1", Sequence: 7, Ciphertext: []byte{1, 2}},
	}
	require.NoError(t, r.Publish(context.Background(), ev))

	require.Len(t, ch.published, 1)
	p := ch.published[0]
	assert.Equal(t, "arctic.events", p.exchange)
	assert.Equal(t, "chat.c1.message", p.key)
	assert.Equal(t, "application/cbor", p.msg.ContentType)

	var got Event
	require.NoError(t, codec.Unmarshal(p.msg.Body, &got))
	assert.Equal(t, "m1", got.Message.ID)
	assert.Equal(t, []byte{1, 2}, got.Message.Ciphertext)

	require.NoError(t, r.Close())
	assert.True(t, ch.closed)
}

func TestRabbit_Errors(t *testing.T) {
	_, err := NewRabbit(&fakeChannel{declareErr: errors.New("denied")}, "x", logging.Discard())
	assert.ErrorContains(t, err, "declare exchange")

	r, err := NewRabbit(&fakeChannel{publishErr: amqp.ErrClosed}, "x", logging.Discard())
	require.NoError(t, err)
	assert.ErrorIs(t, r.Publish(context.Background(), Event{ChatID: "c"}), amqp.ErrClosed)
}

func TestRabbit_Relay(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 3)}
	r, err := NewRabbit(ch, "ex", logging.Discard())
	require.NoError(t, err)

	a := &acks{}
	good, err := codec.Marshal(Event{Kind: KindReceipt, ChatID: "c1", MessageID: "m1"})
	require.NoError(t, err)
	ch.deliveries <- amqp.Delivery{Acknowledger: a, Body: good, RoutingKey: "chat.c1.receipt"}
	ch.deliveries <- amqp.Delivery{Acknowledger: a, Body: []byte{0xff, 0x00}}
	close(ch.deliveries)

	b := NewBroker(4)
	s := b.Subscribe("c1")
	require.NoError(t, r.Relay(context.Background(), b))

	ev := <-s.C()
	assert.Equal(t, KindReceipt, ev.Kind)
	assert.Equal(t, "m1", ev.MessageID)
	assert.Equal(t, 1, a.acked)
	assert.Equal(t, 1, a.nacked)
	assert.Equal(t, 0, a.requeue)
	assert.Equal(t, []string{"amq.gen-1<chat.#@ex"}, ch.bindings)
}

func TestRabbit_RelayRequeuesOnFailure(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	r, err := NewRabbit(ch, "ex", logging.Discard())
	require.NoError(t, err)

	a := &acks{}
	body, err := codec.Marshal(Event{Kind: KindMessage, ChatID: "c1"})
	require.NoError(t, err)
	ch.deliveries <- amqp.Delivery{Acknowledger: a, Body: body}
	close(ch.deliveries)

	require.NoError(t, r.Relay(context.Background(), failing{errors.New("down")}))
	assert.Equal(t, 1, a.requeue)
}
