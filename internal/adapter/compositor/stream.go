package compositor

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"barbridge/internal/domain"
)

// streamItem carries one read result from the reader goroutine.
type streamItem struct {
	ev  *domain.RawEvent
	err error
}

// eventStream adapts the connection's blocking reads into a cancellable
// Next. A reader goroutine owns the socket reads; Next selects over its
// output and the caller's context.
type eventStream struct {
	conn      *Conn
	items     chan streamItem
	done      chan struct{}
	closeOnce sync.Once
}

func newEventStream(conn *Conn) *eventStream {
	s := &eventStream{
		conn:  conn,
		items: make(chan streamItem),
		done:  make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *eventStream) readLoop() {
	for {
		typ, payload, err := s.conn.readEvent()
		var item streamItem
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
				err = io.EOF
			}
			item = streamItem{err: err}
		} else {
			item = streamItem{ev: &domain.RawEvent{
				Kind:    classifyEvent(typ),
				Payload: payload,
			}}
		}

		select {
		case s.items <- item:
		case <-s.done:
			return
		}
		if item.err != nil {
			return
		}
	}
}

// Next implements bridge.EventStream.
func (s *eventStream) Next(ctx context.Context) (*domain.RawEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item := <-s.items:
		if item.err != nil {
			return nil, item.err
		}
		return item.ev, nil
	}
}

// Close releases the connection; the reader goroutine exits on the
// resulting read error or the done signal, whichever it observes first.
func (s *eventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
