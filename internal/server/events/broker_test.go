package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_DeliversPerChat(t *testing.T) {
	b := NewBroker(4)
	s1 := b.Subscribe("c1")
	s2 := b.Subscribe("c2")
	defer s1.Close()
	defer s2.Close()

	require.NoError(t, b.Publish(context.Background(), Event{Kind: KindMessage, ChatID: "c1", Sequence: 1}))

	ev := <-s1.C()
	assert.Equal(t, int64(1), ev.Sequence)
	assert.Len(t, s2.C(), 0)
	assert.Equal(t, 1, b.Subscribers("c1"))
}

func TestBroker_DropsSlowConsumer(t *testing.T) {
	b := NewBroker(1)
	s := b.Subscribe("c1")
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, Event{ChatID: "c1", Sequence: 1}))
	require.NoError(t, b.Publish(ctx, Event{ChatID: "c1", Sequence: 2}))

	ev, ok := <-s.C()
	require.True(t, ok)
	assert.Equal(t, int64(1), ev.Sequence)
	_, ok = <-s.C()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), ErrSlowConsumer)
	assert.Equal(t, 0, b.Subscribers("c1"))

	// Closing twice is harmless.
	s.Close()
	assert.ErrorIs(t, s.Err(), ErrSlowConsumer)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(0)
	s := b.Subscribe("c1")
	s.Close()
	_, ok := <-s.C()
	assert.False(t, ok)
	assert.NoError(t, s.Err())
	assert.NoError(t, b.Publish(context.Background(), Event{ChatID: "c1"}))
}

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestMulti_JoinsErrors(t *testing.T) {
	b := NewBroker(1)
	s := b.Subscribe("c1")
	boom := errors.New("boom")

	err := Multi{failing{boom}, b, Nop{}}.Publish(context.Background(), Event{ChatID: "c1"})
	assert.ErrorIs(t, err, boom)
	// Later publishers still run.
	_, ok := <-s.C()
	assert.True(t, ok)
}
