package compositor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"

	"barbridge/internal/domain"
	"barbridge/internal/infra/config"
	"barbridge/internal/usecase/bridge"
	"barbridge/internal/usecase/broadcast"
)

// Client bridges the compositor IPC socket. It holds one connection for
// queries and commands, and hands the event side to a bridge.Controller
// that opens a dedicated connection per subscription change.
type Client struct {
	logger     *slog.Logger
	socket     string
	controller *bridge.Controller
	breaker    *gobreaker.CircuitBreaker[[]byte]

	cmdMu sync.Mutex
	cmd   *Conn

	wsOnce sync.Once
	wsErr  error
	wsCast *broadcast.Broadcaster[domain.WorkspaceUpdate]

	modeOnce sync.Once
	modeErr  error
	modeCast *broadcast.Broadcaster[domain.KeymodeEvent]
}

// NewClient creates a compositor client. No connection is opened until the
// first query or subscription.
func NewClient(cfg config.CompositorConfig, logger *slog.Logger) *Client {
	c := &Client{
		logger:   logger,
		socket:   cfg.Socket,
		wsCast:   broadcast.New[domain.WorkspaceUpdate](),
		modeCast: broadcast.New[domain.KeymodeEvent](),
	}
	c.controller = bridge.NewController(c, logger,
		bridge.WithSubscribeTimeout(cfg.SubscribeTimeout))

	// Commands fail fast once the compositor stops answering, instead of
	// stalling every caller on a dead socket.
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "compositor-commands",
		MaxRequests: 1,
		Timeout:     cfg.CommandBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CommandBreaker.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c
}

// Connect implements bridge.Source.
func (c *Client) Connect(ctx context.Context) (bridge.Conn, error) {
	conn, err := DialContext(ctx, c.socket)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("compositor connection opened", "conn_id", conn.ID())
	return conn, nil
}

// Subscribe implements bridge.Source. The subscribe call binds conn to the
// returned stream; the compositor cannot add kinds to a live subscription.
func (c *Client) Subscribe(ctx context.Context, conn bridge.Conn, kinds []domain.EventKind) (bridge.EventStream, error) {
	cc, ok := conn.(*Conn)
	if !ok {
		return nil, fmt.Errorf("compositor: unexpected conn type %T", conn)
	}

	payload, err := json.Marshal(subscribeNames(kinds))
	if err != nil {
		return nil, fmt.Errorf("compositor: encode subscribe payload: %w", err)
	}
	reply, err := cc.roundTrip(ctx, msgSubscribe, payload)
	if err != nil {
		return nil, fmt.Errorf("compositor: subscribe: %w", err)
	}
	if !gjson.GetBytes(reply, "success").Bool() {
		return nil, domain.NewBridgeError("compositor.Subscribe", domain.ErrProtocol,
			fmt.Sprintf("subscribe rejected: %s", reply))
	}

	c.logger.Info("compositor subscription established", "kinds", kinds, "conn_id", cc.ID())
	return newEventStream(cc), nil
}

// Workspaces synchronously queries the full workspace set.
func (c *Client) Workspaces(ctx context.Context) ([]domain.Workspace, error) {
	reply, err := c.query(ctx, msgGetWorkspaces, nil)
	if err != nil {
		return nil, domain.WrapOp("compositor.Workspaces", err)
	}
	var nodes []workspaceNode
	if err := json.Unmarshal(reply, &nodes); err != nil {
		return nil, domain.NewBridgeError("compositor.Workspaces", domain.ErrProtocol, err.Error())
	}
	workspaces := make([]domain.Workspace, len(nodes))
	for i, n := range nodes {
		workspaces[i] = n.toDomain()
	}
	return workspaces, nil
}

// Version queries the compositor version string. Used by health checks.
func (c *Client) Version(ctx context.Context) (string, error) {
	reply, err := c.query(ctx, msgGetVersion, nil)
	if err != nil {
		return "", domain.WrapOp("compositor.Version", err)
	}
	return gjson.GetBytes(reply, "human_readable").String(), nil
}

// FocusWorkspace asks the compositor to focus the named workspace.
// Fire-and-forget from the caller's perspective: failure surfaces as an
// error, never a panic.
func (c *Client) FocusWorkspace(ctx context.Context, name string) error {
	return c.runCommand(ctx, "workspace "+name)
}

func (c *Client) runCommand(ctx context.Context, cmd string) error {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		reply, err := c.query(ctx, msgRunCommand, []byte(cmd))
		if err != nil {
			return nil, err
		}
		if !gjson.GetBytes(reply, "0.success").Bool() {
			return nil, fmt.Errorf("command %q rejected: %s",
				cmd, gjson.GetBytes(reply, "0.error").String())
		}
		return reply, nil
	})
	return domain.WrapOp("compositor.runCommand", err)
}

// query runs one request/reply exchange on the shared command connection,
// dialing lazily and discarding the connection on any error so the next
// query starts fresh.
func (c *Client) query(ctx context.Context, typ uint32, payload []byte) ([]byte, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.cmd == nil {
		conn, err := DialContext(ctx, c.socket)
		if err != nil {
			return nil, err
		}
		c.cmd = conn
	}
	reply, err := c.cmd.roundTrip(ctx, typ, payload)
	if err != nil {
		c.cmd.Close()
		c.cmd = nil
		return nil, err
	}
	return reply, nil
}

// Close stops the dispatcher, closes broadcast streams, and releases the
// command connection.
func (c *Client) Close() error {
	err := c.controller.Close()
	c.wsCast.Close()
	c.modeCast.Close()

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	if c.cmd != nil {
		c.cmd.Close()
		c.cmd = nil
	}
	return err
}

// workspaceNode is the wire shape of one workspace in GET_WORKSPACES
// replies and workspace event payloads.
type workspaceNode struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	Focused bool   `json:"focused"`
	Visible bool   `json:"visible"`
}

func (n workspaceNode) toDomain() domain.Workspace {
	visibility := domain.VisibilityHidden
	switch {
	case n.Focused:
		visibility = domain.VisibilityFocused
	case n.Visible:
		visibility = domain.VisibilityVisible
	}
	return domain.Workspace{
		ID:         n.ID,
		Name:       n.Name,
		Monitor:    n.Output,
		Visibility: visibility,
	}
}
