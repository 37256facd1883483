// Package feed runs one recurring refresh per data stream and publishes the
// latest successful snapshot to subscribers.
package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"cryptodash/internal/market"

	"go.uber.org/zap"
)

// FetchFunc performs one refresh attempt. It is called with a context bounded
// by the feed timeout.
type FetchFunc[T any] func(ctx context.Context) (T, error)

type Config struct {
	Name     string        // e.g. "listing", "global"
	Interval time.Duration // time between scheduled attempts
	Timeout  time.Duration // upper bound for a single attempt
}

// Validate reports invalid settings as *market.ConfigError.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return market.NewConfigError("feed name", "must not be empty")
	}
	if c.Interval <= 0 {
		return market.NewConfigError(c.Name+" interval", "must be positive, got %s", c.Interval)
	}
	if c.Timeout <= 0 {
		return market.NewConfigError(c.Name+" timeout", "must be positive, got %s", c.Timeout)
	}
	return nil
}

type Option func(*options)

type options struct {
	recorder Recorder
	now      func() time.Time
}

// WithRecorder reports fetch and publish events to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Feed fetches immediately on Start and then every Interval. A tick that
// fires while a fetch is still running is dropped, so at most one fetch is in
// flight. Stop cancels the timer; a fetch already running is left to finish
// and its result is discarded.
type Feed[T any] struct {
	cfg      Config
	fetch    FetchFunc[T]
	cell     *Cell[T]
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	fetching bool
	gen      uint64 // bumped on every Start
	stopCh   chan struct{}
	doneCh   chan struct{}
	trigger  chan struct{}
	inflight sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan State[T]
	nextSub int
}

func New[T any](cfg Config, fetch FetchFunc[T], logger *zap.Logger, opts ...Option) (*Feed[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetch == nil {
		return nil, market.NewConfigError(cfg.Name+" fetch", "must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := options{recorder: nopRecorder{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Feed[T]{
		cfg:      cfg,
		fetch:    fetch,
		cell:     NewCell[T](),
		logger:   logger.With(zap.String("feed", cfg.Name)),
		recorder: o.recorder,
		now:      o.now,
		subs:     make(map[int]chan State[T]),
	}, nil
}

func (f *Feed[T]) Name() string { return f.cfg.Name }

// Start runs one fetch right away and schedules the rest. Calling Start on a
// running feed is a no-op.
func (f *Feed[T]) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.gen++
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.trigger = make(chan struct{}, 1)
	stop, done, trigger := f.stopCh, f.doneCh, f.trigger
	f.mu.Unlock()

	go f.loop(stop, done, trigger)
	f.logger.Info("feed started", zap.Duration("interval", f.cfg.Interval), zap.Duration("timeout", f.cfg.Timeout))
}

// Stop cancels the schedule and waits for the timer goroutine to exit. It
// does not wait for an in-flight fetch. If the feed is started again before
// that fetch returns, the new schedule fetches as soon as it does.
func (f *Feed[T]) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopCh)
	f.cell.Seal()
	done := f.doneCh
	f.mu.Unlock()

	<-done
	f.logger.Info("feed stopped")
}

func (f *Feed[T]) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Refresh asks for an out-of-schedule fetch. Like a tick, it is coalesced
// when a fetch is already running. It returns false if the feed is stopped.
func (f *Feed[T]) Refresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return false
	}
	select {
	case f.trigger <- struct{}{}:
	default:
	}
	return true
}

// Latest returns the current state.
func (f *Feed[T]) Latest() State[T] {
	return f.cell.Load()
}

// Subscribe returns a channel that receives the state after every accepted
// attempt. Only the newest undelivered state is buffered. The returned func
// unsubscribes and closes the channel.
func (f *Feed[T]) Subscribe() (<-chan State[T], func()) {
	ch := make(chan State[T], 1)

	f.subMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch
	if st := f.cell.Load(); st.Attempt > 0 {
		ch <- st
	}
	f.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.subMu.Lock()
			delete(f.subs, id)
			close(ch)
			f.subMu.Unlock()
		})
	}
}

func (f *Feed[T]) loop(stop <-chan struct{}, done chan<- struct{}, trigger <-chan struct{}) {
	defer close(done)

	// Run immediately once at startup
	f.tryFetch(stop)

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.tryFetch(stop)
		case <-trigger:
			f.tryFetch(stop)
		}
	}
}

// tryFetch starts an attempt unless one is running or the schedule that
// owns stop has been cancelled.
func (f *Feed[T]) tryFetch(stop <-chan struct{}) {
	f.mu.Lock()
	if !f.running || f.stopCh != stop {
		f.mu.Unlock()
		return
	}
	if f.fetching {
		f.mu.Unlock()
		f.recorder.Coalesced(f.cfg.Name)
		f.logger.Debug("tick dropped, fetch still in flight")
		return
	}
	f.fetching = true
	gen := f.gen
	seq := f.cell.Issue()
	f.inflight.Add(1)
	f.mu.Unlock()

	go f.run(seq, gen)
}

func (f *Feed[T]) run(seq, gen uint64) {
	defer f.inflight.Done()

	f.recorder.FetchStarted(f.cfg.Name)
	start := time.Now()

	// The attempt is bounded by Timeout only; Stop does not cancel it.
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.Timeout)
	v, err := f.fetch(ctx)
	if err == nil && ctx.Err() != nil {
		err = &market.FetchError{Op: f.cfg.Name, Err: ctx.Err()}
	}
	cancel()

	f.recorder.FetchFinished(f.cfg.Name, time.Since(start), err)

	f.mu.Lock()
	f.fetching = false
	// A restart while this attempt ran had its startup fetch dropped.
	restarted := f.running && f.gen != gen
	trigger := f.trigger
	f.mu.Unlock()
	if restarted {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	at := f.now()
	var accepted bool
	if err != nil {
		accepted = f.cell.Fail(seq, err, at)
	} else {
		accepted = f.cell.Publish(seq, v, at)
	}
	if !accepted {
		f.recorder.Discarded(f.cfg.Name)
		f.logger.Debug("discarded stale result", zap.Uint64("seq", seq))
		return
	}

	st := f.cell.Load()
	if err != nil {
		f.logger.Warn("refresh failed, keeping previous snapshot",
			zap.Uint64("seq", seq), zap.Bool("has_value", st.HasValue), zap.Error(err))
	} else {
		f.logger.Debug("snapshot published", zap.Uint64("seq", seq))
	}
	f.recorder.Published(f.cfg.Name, st.Failed(), st.UpdatedAt)
	f.notify()
}

func (f *Feed[T]) notify() {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	// Load under subMu so the last notifier always delivers the newest state.
	st := f.cell.Load()
	for _, ch := range f.subs {
		select {
		case ch <- st:
		default:
			// Replace the undelivered older state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// wait blocks until every started fetch has returned.
func (f *Feed[T]) wait() {
	f.inflight.Wait()
}
