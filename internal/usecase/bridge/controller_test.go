package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"barbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeStream struct {
	events    chan *domain.RawEvent
	closeOnce sync.Once
	closed    chan struct{}
	// stuck streams ignore cancellation, simulating a read that never
	// returns
	stuck bool
	// deliverOnCancel streams hold their first event until cancellation
	// and then return it instead of ctx.Err(), simulating a read that wins
	// the race against cancel.
	deliverOnCancel bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan *domain.RawEvent, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Next(ctx context.Context) (*domain.RawEvent, error) {
	if s.stuck {
		select {}
	}
	if s.deliverOnCancel {
		s.deliverOnCancel = false
		<-ctx.Done()
		return &domain.RawEvent{Kind: domain.EventWorkspace, Payload: []byte(`{}`)}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) emit(kind domain.EventKind) {
	s.events <- &domain.RawEvent{Kind: kind, Payload: []byte(`{}`)}
}

type fakeSource struct {
	mu              sync.Mutex
	connects        int
	subscribes      [][]domain.EventKind
	streams         []*fakeStream
	connectErr      error
	subscribeErr    error
	nextStuck       bool
	firstCancelRace bool
}

func (s *fakeSource) Connect(ctx context.Context) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	s.connects++
	return &fakeConn{}, nil
}

func (s *fakeSource) Subscribe(ctx context.Context, conn Conn, kinds []domain.EventKind) (EventStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	kindsCopy := append([]domain.EventKind(nil), kinds...)
	s.subscribes = append(s.subscribes, kindsCopy)
	stream := newFakeStream()
	stream.stuck = s.nextStuck
	if s.firstCancelRace {
		stream.deliverOnCancel = true
		s.firstCancelRace = false
	}
	s.streams = append(s.streams, stream)
	return stream, nil
}

func (s *fakeSource) lastStream() *fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[len(s.streams)-1]
}

func (s *fakeSource) lastKinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes[len(s.subscribes)-1]
}

func waitEvent(t *testing.T, ch <-chan *domain.RawEvent) *domain.RawEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestEnsureSubscriptionDispatchesEvents(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, testLogger())
	defer c.Close()

	got := make(chan *domain.RawEvent, 1)
	err := c.EnsureSubscription(context.Background(), domain.EventWorkspace, func(ev *domain.RawEvent) {
		got <- ev
	})
	if err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}
	if !c.Running() {
		t.Fatal("dispatcher not running after EnsureSubscription")
	}

	src.lastStream().emit(domain.EventWorkspace)
	ev := waitEvent(t, got)
	if ev.Kind != domain.EventWorkspace {
		t.Errorf("kind = %v, want %v", ev.Kind, domain.EventWorkspace)
	}
	if ev.Seq != 1 {
		t.Errorf("seq = %d, want 1", ev.Seq)
	}
}

func TestSecondRegistrationRestartsWithUnionKindSet(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, testLogger())
	defer c.Close()

	wsEvents := make(chan *domain.RawEvent, 4)
	modeEvents := make(chan *domain.RawEvent, 4)

	if err := c.EnsureSubscription(context.Background(), domain.EventWorkspace, func(ev *domain.RawEvent) {
		wsEvents <- ev
	}); err != nil {
		t.Fatalf("first EnsureSubscription: %v", err)
	}
	first := src.lastStream()

	if err := c.EnsureSubscription(context.Background(), domain.EventMode, func(ev *domain.RawEvent) {
		modeEvents <- ev
	}); err != nil {
		t.Fatalf("second EnsureSubscription: %v", err)
	}

	// The old stream must be torn down before the new one is live.
	select {
	case <-first.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("first stream never closed")
	}

	if src.connects != 2 {
		t.Errorf("connects = %d, want 2 (fresh connection per registration)", src.connects)
	}

	kinds := src.lastKinds()
	want := []domain.EventKind{domain.EventWorkspace, domain.EventMode}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("subscribed kinds = %v, want %v", kinds, want)
	}

	// Both listeners receive off the single new dispatcher.
	second := src.lastStream()
	second.emit(domain.EventMode)
	second.emit(domain.EventWorkspace)
	waitEvent(t, modeEvents)
	ev := waitEvent(t, wsEvents)
	if ev.Seq != 2 {
		t.Errorf("seq = %d, want 2 (monotone across restarts)", ev.Seq)
	}
}

func TestSameKindCallbacksRunInRegistrationOrder(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, testLogger())
	defer c.Close()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, 1)

	for i := 1; i <= 3; i++ {
		i := i
		err := c.EnsureSubscription(context.Background(), domain.EventTick, func(ev *domain.RawEvent) {
			mu.Lock()
			order = append(order, i)
			n := len(order)
			mu.Unlock()
			if n == 3 {
				done <- struct{}{}
			}
		})
		if err != nil {
			t.Fatalf("EnsureSubscription %d: %v", i, err)
		}
	}

	src.lastStream().emit(domain.EventTick)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callbacks")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i+1 {
			t.Fatalf("order = %v, want [1 2 3]", order)
		}
	}
}

func TestPanickingCallbackDoesNotKillSiblings(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, testLogger())
	defer c.Close()

	if err := c.EnsureSubscription(context.Background(), domain.EventTick, func(ev *domain.RawEvent) {
		panic("listener bug")
	}); err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}

	got := make(chan *domain.RawEvent, 2)
	if err := c.EnsureSubscription(context.Background(), domain.EventTick, func(ev *domain.RawEvent) {
		got <- ev
	}); err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}

	stream := src.lastStream()
	stream.emit(domain.EventTick)
	waitEvent(t, got)

	// Dispatcher survived the panic and keeps delivering.
	stream.emit(domain.EventTick)
	waitEvent(t, got)
}

func TestConnectErrorLeavesRegistrationForRetry(t *testing.T) {
	src := &fakeSource{
		connectErr: domain.NewBridgeError("test.connect", domain.ErrConnectivity, "down"),
	}
	c := NewController(src, testLogger())
	defer c.Close()

	err := c.EnsureSubscription(context.Background(), domain.EventWorkspace, func(*domain.RawEvent) {})
	if !errors.Is(err, domain.ErrConnectivity) {
		t.Fatalf("err = %v, want ErrConnectivity", err)
	}
	if c.Running() {
		t.Fatal("dispatcher running after failed subscribe")
	}

	// Source recovers; a new registration resubscribes for both kinds.
	src.mu.Lock()
	src.connectErr = nil
	src.mu.Unlock()

	if err := c.EnsureSubscription(context.Background(), domain.EventMode, func(*domain.RawEvent) {}); err != nil {
		t.Fatalf("retry EnsureSubscription: %v", err)
	}
	kinds := src.lastKinds()
	if len(kinds) != 2 {
		t.Errorf("subscribed kinds = %v, want both registered kinds", kinds)
	}
}

func TestEventRacingCancellationDoesNotFailRestart(t *testing.T) {
	src := &fakeSource{firstCancelRace: true}
	c := NewController(src, testLogger(), WithStopTimeout(time.Second))
	defer c.Close()

	got := make(chan *domain.RawEvent, 1)
	if err := c.EnsureSubscription(context.Background(), domain.EventWorkspace, func(ev *domain.RawEvent) {
		got <- ev
	}); err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}

	// The restart cancels the old dispatcher while an event is in flight:
	// the read returns the event rather than the cancellation error. The
	// dispatcher must deliver it and terminate without touching the
	// controller lock, or the stop wait here would time out and report a
	// registration race for a healthy source.
	if err := c.EnsureSubscription(context.Background(), domain.EventMode, func(*domain.RawEvent) {}); err != nil {
		t.Fatalf("EnsureSubscription during in-flight event: %v", err)
	}

	ev := waitEvent(t, got)
	if ev.Seq != 1 {
		t.Errorf("seq = %d, want 1", ev.Seq)
	}
	if !c.Running() {
		t.Fatal("dispatcher not running after restart")
	}
}

func TestStuckDispatcherReportsRegistrationRace(t *testing.T) {
	src := &fakeSource{nextStuck: true}
	c := NewController(src, testLogger(), WithStopTimeout(50*time.Millisecond))

	if err := c.EnsureSubscription(context.Background(), domain.EventWorkspace, func(*domain.RawEvent) {}); err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}

	err := c.EnsureSubscription(context.Background(), domain.EventMode, func(*domain.RawEvent) {})
	if !errors.Is(err, domain.ErrRegistrationRace) {
		t.Fatalf("err = %v, want ErrRegistrationRace", err)
	}
}

func TestCloseStopsDispatcher(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, testLogger())

	if err := c.EnsureSubscription(context.Background(), domain.EventWorkspace, func(*domain.RawEvent) {}); err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.Running() {
		t.Fatal("dispatcher still running after Close")
	}
}

func TestKindsUnion(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, testLogger())
	defer c.Close()

	ctx := context.Background()
	cb := func(*domain.RawEvent) {}
	for _, k := range []domain.EventKind{domain.EventWorkspace, domain.EventMode, domain.EventWorkspace} {
		if err := c.EnsureSubscription(ctx, k, cb); err != nil {
			t.Fatalf("EnsureSubscription(%v): %v", k, err)
		}
	}

	kinds := c.Kinds()
	want := []domain.EventKind{domain.EventWorkspace, domain.EventMode}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("Kinds = %v, want %v", kinds, want)
	}
}
