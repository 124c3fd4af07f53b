// Package expiry purges disappearing messages once their deadline passes.
// Reads are gated on expires_at by the delivery log, so the scheduler only
// has to bound how long expired ciphertext stays in storage.
package expiry

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/jonboulle/clockwork"
	"go.uber.org/ratelimit"
)

const (
	DefaultSweepInterval        = 10 * time.Second
	DefaultLagBound             = 60 * time.Second
	DefaultRetryAttempts        = 5
	DefaultRetryInitialInterval = 200 * time.Millisecond
)

type Purger interface {
	Purge(ctx context.Context, messageID string) error
}

// Source lists disappearing messages that are still stored.
type Source interface {
	ListPendingExpiry(ctx context.Context) ([]models.PendingExpiry, error)
}

type Config struct {
	SweepInterval time.Duration
	// LagBound is the documented ceiling between expires_at and purge.
	LagBound             time.Duration
	PurgesPerSecond      int
	RetryAttempts        uint64
	RetryInitialInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		SweepInterval:        DefaultSweepInterval,
		LagBound:             DefaultLagBound,
		RetryAttempts:        DefaultRetryAttempts,
		RetryInitialInterval: DefaultRetryInitialInterval,
	}
}

func (c Config) Validate() error {
	if c.SweepInterval <= 0 {
		return errors.New("expiry: sweep interval must be positive")
	}
	if c.LagBound < c.SweepInterval {
		return fmt.Errorf("expiry: lag bound %s is shorter than sweep interval %s", c.LagBound, c.SweepInterval)
	}
	if c.PurgesPerSecond < 0 {
		return errors.New("expiry: purges per second must not be negative")
	}
	return nil
}

type Scheduler struct {
	cfg     Config
	purger  Purger
	source  Source
	clock   clockwork.Clock
	log     logging.Logger
	limiter ratelimit.Limiter

	mu    sync.Mutex
	queue deadlines
	index map[string]*deadline
	// inflight holds ids popped by a sweep and not yet purged. Revoke drops
	// them so a failed purge does not resurrect a revoked deadline.
	inflight map[string]struct{}
}

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option { return func(s *Scheduler) { s.clock = c } }

func New(cfg Config, purger Purger, source Source, log logging.Logger, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:      cfg,
		purger:   purger,
		source:   source,
		clock:    clockwork.NewRealClock(),
		log:      log.With("module", "expiry"),
		index:    make(map[string]*deadline),
		inflight: make(map[string]struct{}),
	}
	if cfg.PurgesPerSecond > 0 {
		s.limiter = ratelimit.New(cfg.PurgesPerSecond)
	} else {
		s.limiter = ratelimit.NewUnlimited()
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Schedule registers or moves the deadline of messageID.
func (s *Scheduler) Schedule(messageID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.index[messageID]; ok {
		d.at = expiresAt
		heap.Fix(&s.queue, d.index)
		return
	}
	d := &deadline{messageID: messageID, at: expiresAt}
	heap.Push(&s.queue, d)
	s.index[messageID] = d
}

// Revoke forgets messageID. It reports whether a deadline was pending.
func (s *Scheduler) Revoke(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, sweeping := s.inflight[messageID]
	delete(s.inflight, messageID)
	d, ok := s.index[messageID]
	if !ok {
		return sweeping
	}
	heap.Remove(&s.queue, d.index)
	delete(s.index, messageID)
	return true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Deadline returns the pending deadline of messageID.
func (s *Scheduler) Deadline(messageID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.index[messageID]
	if !ok {
		return time.Time{}, false
	}
	return d.at, true
}

// Restore loads every stored disappearing message, so deadlines survive a
// restart. Already expired ones are purged by the next sweep.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	pending, err := s.source.ListPendingExpiry(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore expiry deadlines: %w", err)
	}
	for _, p := range pending {
		s.Schedule(p.MessageID, p.ExpiresAt)
	}
	s.log.Info(ctx, "expiry deadlines restored", "count", len(pending))
	return len(pending), nil
}

func (s *Scheduler) due(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for len(s.queue) > 0 && !s.queue[0].at.After(now) {
		d := heap.Pop(&s.queue).(*deadline)
		delete(s.index, d.messageID)
		s.inflight[d.messageID] = struct{}{}
		ids = append(ids, d.messageID)
	}
	return ids
}

// settle ends the sweep of id. A failed id goes back on the queue at at,
// unless it was revoked or rescheduled meanwhile.
func (s *Scheduler) settle(id string, failed bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	delete(s.inflight, id)
	if !failed || !ok {
		return
	}
	if _, queued := s.index[id]; queued {
		return
	}
	d := &deadline{messageID: id, at: at}
	heap.Push(&s.queue, d)
	s.index[id] = d
}

func (s *Scheduler) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitialInterval
	b.MaxElapsedTime = s.cfg.LagBound
	return backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.RetryAttempts), ctx)
}

// SweepOnce purges every message whose deadline has passed and returns how
// many were purged. A message that still fails after all retries is put
// back and tried again on the next sweep, unless it was revoked meanwhile.
func (s *Scheduler) SweepOnce(ctx context.Context) int {
	now := s.clock.Now()
	purged := 0
	for _, id := range s.due(now) {
		s.limiter.Take()

		attempt := 0
		err := backoff.RetryNotify(func() error {
			attempt++
			return s.purger.Purge(ctx, id)
		}, s.newBackOff(ctx), func(err error, wait time.Duration) {
			s.log.Warn(ctx, "purge failed, retrying", "message_id", id, "attempt", attempt, "wait", wait, "error", err)
		})
		s.settle(id, err != nil, now)
		if err != nil {
			s.log.Error(ctx, "purge failed", "message_id", id, "attempts", attempt, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		s.log.Debug(ctx, "expired messages purged", "count", purged)
	}
	return purged
}

// Run sweeps every SweepInterval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := s.clock.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()

	s.log.Info(ctx, "expiry scheduler started", "sweep_interval", s.cfg.SweepInterval, "lag_bound", s.cfg.LagBound)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			s.SweepOnce(ctx)
		}
	}
}
