package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"barbridge/internal/domain"
	"barbridge/internal/infra/tracer"
)

// Default bounds on controller operations.
const (
	defaultSubscribeTimeout = 10 * time.Second
	defaultStopTimeout      = 5 * time.Second
)

type taskState int

const (
	stateIdle taskState = iota
	stateRunning
	stateRestarting
)

// taskHandle owns one running dispatcher task. At most one exists per
// controller; a replacement is spawned only after done is closed.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error // dispatcher exit cause; written before done is closed
}

// Option configures a Controller.
type Option func(*Controller)

// WithSubscribeTimeout bounds connect+subscribe during a restart.
// Non-positive values keep the default.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.subscribeTimeout = d
		}
	}
}

// WithStopTimeout bounds the wait for a prior dispatcher to terminate.
// Non-positive values keep the default.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// Controller owns the subscription lifecycle for one external source: the
// listener registry and the handle of the single background dispatcher task.
// Both are guarded by one mutex and only ever mutated together; no other
// code may spawn or cancel the dispatcher.
type Controller struct {
	source Source
	logger *slog.Logger

	subscribeTimeout time.Duration
	stopTimeout      time.Duration

	mu    sync.Mutex
	reg   registry
	task  *taskHandle
	state taskState

	// seq is atomic, not guarded by mu: the dispatcher stamps events while
	// stopTaskLocked may be holding mu waiting for it to terminate, so the
	// dispatch loop must never acquire the controller lock.
	seq atomic.Uint64
}

// NewController creates a controller for source. No connection is opened
// until the first EnsureSubscription call.
func NewController(source Source, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		source:           source,
		logger:           logger,
		subscribeTimeout: defaultSubscribeTimeout,
		stopTimeout:      defaultStopTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EnsureSubscription registers cb for kind and restarts the dispatcher so
// the live subscription covers the union of all registered kinds. The
// transport's subscribe call binds a connection exclusively, so a fresh
// connection is opened on every call.
//
// Events the source emits between the old dispatcher terminating and the
// new subscribe completing are lost. Subscribers tolerate this: every
// domain stream opens with a full snapshot, so a resubscribe heals state.
func (c *Controller) EnsureSubscription(ctx context.Context, kind domain.EventKind, cb domain.Callback) error {
	ctx, span := tracer.StartSpan(ctx, "bridge.EnsureSubscription",
		tracer.WithAttributes(tracer.StringAttr("event.kind", string(kind))))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stopTaskLocked(); err != nil {
		tracer.RecordError(span, err)
		return err
	}

	c.reg.add(kind, cb)

	stream, err := c.openStreamLocked(ctx)
	if err != nil {
		// The registry keeps the new entry: a later EnsureSubscription
		// (caller-driven retry) resubscribes for the full set.
		tracer.RecordError(span, err)
		return err
	}

	c.startTaskLocked(stream, c.reg.snapshot())
	c.logger.Info("dispatcher restarted",
		"kinds", c.reg.kinds(),
		"listeners", len(c.reg.entries),
	)
	return nil
}

// Kinds returns the active subscription kind set.
func (c *Controller) Kinds() []domain.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.kinds()
}

// Running reports whether a dispatcher task is currently live.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task == nil {
		return false
	}
	select {
	case <-c.task.done:
		return false
	default:
		return true
	}
}

// Close cancels the dispatcher and waits for it to terminate. The
// controller is unusable afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTaskLocked()
}

// stopTaskLocked cancels the running dispatcher and waits for it to fully
// terminate. A task that fails to stop within the bound leaves the
// controller in an inconsistent state, reported as ErrRegistrationRace:
// the source is unusable until the controller is recreated.
func (c *Controller) stopTaskLocked() error {
	if c.task == nil {
		return nil
	}
	c.state = stateRestarting
	c.task.cancel()

	select {
	case <-c.task.done:
	case <-time.After(c.stopTimeout):
		return domain.NewBridgeError("bridge.stop", domain.ErrRegistrationRace,
			"previous dispatcher did not terminate")
	}

	if err := c.task.err; err != nil && !errors.Is(err, io.EOF) {
		c.logger.Debug("previous dispatcher exited with error", "error", err)
	}
	c.task = nil
	c.state = stateIdle
	return nil
}

// openStreamLocked opens a brand-new connection and subscribes it for the
// full registered kind set, bounded by the subscribe timeout.
func (c *Controller) openStreamLocked(ctx context.Context) (EventStream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.subscribeTimeout)
	defer cancel()

	conn, err := c.source.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: connect: %w", err)
	}
	stream, err := c.source.Subscribe(ctx, conn, c.reg.kinds())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bridge: subscribe: %w", err)
	}
	return stream, nil
}

// startTaskLocked spawns the dispatcher over an immutable registry snapshot
// and stores its handle. Callers must have stopped any prior task.
func (c *Controller) startTaskLocked(stream EventStream, entries []entry) {
	taskCtx, cancel := context.WithCancel(context.Background())
	task := &taskHandle{cancel: cancel, done: make(chan struct{})}
	c.task = task
	c.state = stateRunning

	go func() {
		defer close(task.done)
		defer stream.Close()
		task.err = c.dispatch(taskCtx, stream, entries)
	}()
}
