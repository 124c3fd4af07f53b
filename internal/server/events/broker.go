package events

import (
	"context"
	"errors"
	"sync"
)

// ErrSlowConsumer closes a subscription whose buffer overflowed. The
// subscriber is expected to resubscribe and backfill from its last sequence.
var ErrSlowConsumer = errors.New("events: subscriber fell behind")

const DefaultBuffer = 256

// Broker is an in-process pub/sub keyed by chat id.
type Broker struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

type Subscription struct {
	b      *Broker
	chatID string
	ch     chan Event

	once sync.Once
	err  error
}

// C yields events until the subscription is closed.
func (s *Subscription) C() <-chan Event { return s.ch }

// Err reports why the channel was closed; nil after a regular Close.
func (s *Subscription) Err() error {
	s.b.mu.RLock()
	defer s.b.mu.RUnlock()
	return s.err
}

func (s *Subscription) Close() { s.b.remove(s, nil) }

func (b *Broker) Subscribe(chatID string) *Subscription {
	s := &Subscription{b: b, chatID: chatID, ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[chatID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		b.subs[chatID] = set
	}
	set[s] = struct{}{}
	return s
}

func (b *Broker) remove(s *Subscription, cause error) {
	s.once.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set := b.subs[s.chatID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, s.chatID)
			}
		}
		s.err = cause
		close(s.ch)
	})
}

// Publish never blocks. Subscribers with a full buffer are dropped with
// ErrSlowConsumer.
func (b *Broker) Publish(_ context.Context, ev Event) error {
	var slow []*Subscription
	b.mu.RLock()
	for s := range b.subs[ev.ChatID] {
		select {
		case s.ch <- ev:
		default:
			slow = append(slow, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range slow {
		b.remove(s, ErrSlowConsumer)
	}
	return nil
}

// Subscribers returns the number of live subscriptions for chatID.
func (b *Broker) Subscribers(chatID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[chatID])
}
