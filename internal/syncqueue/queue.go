// Package syncqueue delivers pending remote mutations one at a time, in
// order, retrying transient failures with capped exponential backoff.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrRetriesExhausted wraps the last error of an operation that hit the
// configured attempt ceiling.
var ErrRetriesExhausted = errors.New("sync: retries exhausted")

// State is the drain state of a Queue.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
	StateBackoff  State = "backoff"
)

// Operation is one remote mutation.
type Operation struct {
	Name string
	Run  func(ctx context.Context) error
}

type Config struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxJitter    time.Duration
	PollInterval time.Duration
	// MaxAttempts caps attempts per operation. Zero retries indefinitely.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		MaxJitter:    time.Second,
		PollInterval: time.Second,
	}
}

// Status is a snapshot of the queue.
type Status struct {
	State   State `json:"state"`
	Pending int   `json:"pending"`
	Online  bool  `json:"online"`
}

type pending struct {
	op       Operation
	attempts int
	backoff  retry.Backoff
}

type Queue struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	items  []*pending
	state  State
	online bool
	idle   chan struct{} // closed while the queue is empty
	drops  []func(Operation, error)

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Queue. Zero delays and intervals in cfg take their
// defaults; a zero MaxJitter disables jitter.
func New(cfg Config, logger *slog.Logger) *Queue {
	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		cfg:    cfg,
		logger: logger,
		state:  StateIdle,
		online: true,
		idle:   idle,
		wake:   make(chan struct{}, 1),
	}
}

// newBackoff returns the retry schedule for one operation:
// min(MaxDelay, BaseDelay*2^(n-1) + jitter) with jitter in [0, MaxJitter).
func newBackoff(cfg Config) retry.Backoff {
	b := withPositiveJitter(cfg.MaxJitter, retry.NewExponential(cfg.BaseDelay))
	b = retry.WithCappedDuration(cfg.MaxDelay, b)
	if cfg.MaxAttempts > 0 {
		b = retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), b)
	}
	return b
}

func withPositiveJitter(maxJitter time.Duration, next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop {
			return 0, true
		}
		if maxJitter > 0 {
			d += rand.N(maxJitter)
		}
		return d, false
	})
}

// OnDrop registers fn to be called for every operation removed without
// succeeding.
func (q *Queue) OnDrop(fn func(Operation, error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drops = append(q.drops, fn)
}

// Enqueue appends op to the tail and starts draining when possible.
func (q *Queue) Enqueue(op Operation) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.idle = make(chan struct{})
	}
	q.items = append(q.items, &pending{op: op, backoff: newBackoff(q.cfg)})
	n := len(q.items)
	q.mu.Unlock()

	q.logger.Debug("operation queued", "op", op.Name, "pending", n)
	q.poke()
}

// SetOnline records network reachability. Coming online resumes draining.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	changed := q.online != online
	q.online = online
	q.mu.Unlock()

	if changed {
		q.logger.Info("network state changed", "online", online)
	}
	if online {
		q.poke()
	}
}

// Busy reports whether operations are pending or in flight.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{State: q.state, Pending: len(q.items), Online: q.online}
}

// Wait blocks until the queue is empty or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) poke() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start runs the drain loop until Stop is called or ctx is done.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})

	go func() {
		defer close(q.done)
		q.run(ctx)
	}()
}

// Stop ends the drain loop. An operation interrupted mid-flight stays at
// the head of the queue.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	if q.done != nil {
		<-q.done
	}
}

func (q *Queue) run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		case <-timerC:
			timerC = nil
			q.mu.Lock()
			if q.state == StateBackoff {
				q.state = StateIdle
			}
			q.mu.Unlock()
		}

		if delay, ok := q.drain(ctx); ok {
			if timer == nil {
				timer = time.NewTimer(delay)
			} else {
				timer.Reset(delay)
			}
			timerC = timer.C
		}
	}
}

// drain executes head operations until the queue empties, the network goes
// away, or a retryable failure arms a backoff. It returns the backoff delay
// when one was armed.
func (q *Queue) drain(ctx context.Context) (time.Duration, bool) {
	for {
		q.mu.Lock()
		if q.state == StateBackoff || !q.online || len(q.items) == 0 {
			if q.state == StateDraining {
				q.state = StateIdle
			}
			q.mu.Unlock()
			return 0, false
		}
		head := q.items[0]
		head.attempts++
		q.state = StateDraining
		q.mu.Unlock()

		err := head.op.Run(ctx)

		if err != nil && ctx.Err() != nil {
			q.mu.Lock()
			head.attempts--
			q.state = StateIdle
			q.mu.Unlock()
			return 0, false
		}

		if err == nil {
			q.pop()
			q.logger.Debug("operation synced", "op", head.op.Name, "attempts", head.attempts)
			continue
		}

		if IsRetryable(err) {
			delay, stop := head.backoff.Next()
			if !stop {
				q.mu.Lock()
				q.state = StateBackoff
				q.mu.Unlock()
				q.logger.Warn("operation failed, retrying",
					"op", head.op.Name, "attempt", head.attempts, "delay", delay, "error", err)
				return delay, true
			}
			err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, head.attempts, err)
		}

		q.pop()
		q.logger.Error("operation dropped", "op", head.op.Name, "attempts", head.attempts, "error", err)
		q.notifyDrop(head.op, err)
	}
}

func (q *Queue) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.state = StateIdle
		close(q.idle)
	}
}

func (q *Queue) notifyDrop(op Operation, err error) {
	q.mu.Lock()
	fns := slices.Clone(q.drops)
	q.mu.Unlock()
	for _, fn := range fns {
		fn(op, err)
	}
}
