package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "digestbot/pkg/logx"
)

// Supervisor runs named goroutines against one cancellable context. It
// recovers panics, keeps the first failure for Wait, and can optionally
// cancel the whole group as soon as any member fails.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg      sync.WaitGroup
	started atomic.Uint64
	active  atomic.Int64

	errMu sync.Mutex
	err   error

	waitOnce sync.Once
	waitCh   chan struct{}
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError makes the first goroutine failure cancel the context
// shared by all the others.
func WithCancelOnError(on bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = on }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		waitCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel stops the group without waiting for members to exit.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first recorded failure, if any.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Counters is a point-in-time view of goroutine accounting, for
// diagnostics only.
type Counters struct {
	Active  int64
	Started uint64
}

func (s *Supervisor) Snapshot() Counters {
	if s == nil {
		return Counters{}
	}
	return Counters{Active: s.active.Load(), Started: s.started.Load()}
}

// Go runs fn until it returns. A non-nil result other than
// context.Canceled, or a panic, becomes the supervisor's error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.started.Add(1)
	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)

		err := s.attempt(name, fn)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		s.record(named(name, err))
		if s.cancelOnErr {
			s.cancel()
		}
	}()
}

// Go0 adapts a loop that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// attempt invokes fn once with panic capture.
func (s *Supervisor) attempt(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked",
				logx.String("name", name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = &panicError{name: name, val: r}
		}
	}()
	s.log.Debug("goroutine started", logx.String("name", name))
	defer s.log.Debug("goroutine stopped", logx.String("name", name))
	return fn(s.ctx)
}

type panicError struct {
	name string
	val  any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic in %s: %v", e.name, e.val) }

// named prefixes err with the goroutine name. Panic errors already carry
// it.
func named(name string, err error) error {
	var pe *panicError
	if errors.As(err, &pe) {
		return err
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RestartOption configures GoRestart.
type RestartOption func(*restartConfig)

type restartConfig struct {
	floor   time.Duration
	ceil    time.Duration
	publish bool
}

// WithRestartBackoff bounds the delay between reruns.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartConfig) {
		if min > 0 {
			c.floor = min
		}
		if max > 0 {
			c.ceil = max
		}
	}
}

// WithPublishFirstError surfaces the first failure through Err while the
// loop keeps restarting, so it shows up in diagnostics.
func WithPublishFirstError(on bool) RestartOption {
	return func(c *restartConfig) { c.publish = on }
}

// GoRestart keeps fn running: an error or panic schedules a rerun with
// exponential backoff, a clean exit or cancellation ends the loop. Meant
// for servers and watchers that should outlive transient failures.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	rc := restartConfig{floor: 250 * time.Millisecond, ceil: 30 * time.Second}
	for _, o := range opts {
		o(&rc)
	}
	if rc.ceil < rc.floor {
		rc.ceil = rc.floor
	}

	s.Go0(name+".restart", func(ctx context.Context) {
		delay := rc.floor
		for ctx.Err() == nil {
			began := time.Now()
			err := s.attempt(name, fn)

			if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if rc.publish {
				s.record(named(name, err))
			}

			// A long healthy stretch earns a fresh backoff.
			if time.Since(began) >= 30*time.Second {
				delay = rc.floor
			}
			s.log.Warn("goroutine restarting",
				logx.String("name", name),
				logx.Duration("backoff", delay),
				logx.Err(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(delay)):
			}
			delay *= 2
			if delay > rc.ceil {
				delay = rc.ceil
			}
		}
	})
}

// jitter spreads restarts by up to 20% so loops don't thunder in step.
func jitter(d time.Duration) time.Duration {
	span := int64(d) / 5
	if span <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(span+1))
}

// Stop cancels the group and waits for it to drain.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine exits or ctx expires. On a clean
// drain it returns the first recorded failure, if any.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.waitCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.waitCh:
		return s.Err()
	}
}

// record keeps the first failure; later ones appear only in logs.
func (s *Supervisor) record(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}
