package compositor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"barbridge/internal/domain"
)

// Conn is one connection to the compositor IPC socket. A connection used
// for a subscription belongs to that subscription exclusively; queries and
// commands use a separate connection.
type Conn struct {
	id string
	c  net.Conn
	r  *bufio.Reader

	mu sync.Mutex // serializes request/reply round trips
}

// SocketPath resolves the IPC socket path: explicit override first, then
// $SWAYSOCK, then $I3SOCK.
func SocketPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if p := os.Getenv("SWAYSOCK"); p != "" {
		return p, nil
	}
	if p := os.Getenv("I3SOCK"); p != "" {
		return p, nil
	}
	return "", domain.NewBridgeError("compositor.socket", domain.ErrConnectivity,
		"no socket path configured and neither SWAYSOCK nor I3SOCK is set")
}

// DialContext opens a new IPC connection.
func DialContext(ctx context.Context, socketPath string) (*Conn, error) {
	path, err := SocketPath(socketPath)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, domain.NewBridgeError("compositor.dial", domain.ErrConnectivity, err.Error())
	}
	return &Conn{
		id: ulid.Make().String(),
		c:  nc,
		r:  bufio.NewReader(nc),
	}, nil
}

// ID identifies this connection in logs.
func (c *Conn) ID() string { return c.id }

// Close releases the underlying socket.
func (c *Conn) Close() error { return c.c.Close() }

// roundTrip sends one request and reads its reply, honoring any deadline on
// ctx. Replies for a request type arrive in order on a connection that is
// not subscribed to events.
func (c *Conn) roundTrip(ctx context.Context, typ uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.c.SetDeadline(deadline); err != nil {
			return nil, err
		}
		defer c.c.SetDeadline(time.Time{})
	}

	if err := writeMessage(c.c, typ, payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	replyType, reply, err := readMessage(c.r)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if replyType != typ {
		return nil, domain.NewBridgeError("compositor.roundTrip", domain.ErrProtocol,
			fmt.Sprintf("reply type %#x does not match request type %#x", replyType, typ))
	}
	return reply, nil
}

// readEvent reads the next framed message off a subscribed connection.
func (c *Conn) readEvent() (uint32, []byte, error) {
	return readMessage(c.r)
}
