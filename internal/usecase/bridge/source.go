package bridge

import (
	"context"

	"barbridge/internal/domain"
)

// Conn is one live connection to an external source. Connections are
// replaced, never rebound: once a subscription consumes a connection it
// stays bound to that subscription until closed.
type Conn interface {
	Close() error
}

// EventStream delivers raw events off one live subscription. Next must
// observe ctx so the dispatcher can be cancelled while blocked on a read.
type EventStream interface {
	// Next returns the next event. It returns ctx.Err() when cancelled and
	// io.EOF (or a transport error) when the stream ends.
	Next(ctx context.Context) (*domain.RawEvent, error)
	Close() error
}

// Source abstracts the external transport the controller manages. Subscribe
// consumes conn: the transport cannot add kinds to a live subscription, so
// every change to the kind set requires a fresh connection.
type Source interface {
	// Connect establishes a new connection. Implementations return an error
	// wrapping domain.ErrConnectivity when the source is unreachable.
	Connect(ctx context.Context) (Conn, error)

	// Subscribe issues one subscribe call for the full kind set against a
	// freshly connected conn and returns the resulting event stream. On
	// success the stream owns conn.
	Subscribe(ctx context.Context, conn Conn, kinds []domain.EventKind) (EventStream, error)
}
