package network

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/robfig/cron/v3"

	"barbridge/internal/domain"
	"barbridge/internal/infra/config"
	"barbridge/internal/usecase/broadcast"
)

const (
	busName     = "org.freedesktop.NetworkManager"
	objectPath  = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmInterface = "org.freedesktop.NetworkManager"

	propsChangedSignal = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// propertyStore is the slice of the system bus the client needs. Tests
// substitute a fake; production uses the real bus via dbusStore.
type propertyStore interface {
	GetAll(iface string) (map[string]dbus.Variant, error)
	Signals() (<-chan *dbus.Signal, error)
	Close() error
}

// dbusStore implements propertyStore over a godbus system-bus connection.
type dbusStore struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func newDBusStore() (*dbusStore, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, domain.NewBridgeError("network.connect", domain.ErrConnectivity, err.Error())
	}
	return &dbusStore{
		conn: conn,
		obj:  conn.Object(busName, objectPath),
	}, nil
}

func (s *dbusStore) GetAll(iface string) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	err := s.obj.Call("org.freedesktop.DBus.Properties.GetAll", 0, iface).Store(&props)
	return props, err
}

func (s *dbusStore) Signals() (<-chan *dbus.Signal, error) {
	if err := s.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, err
	}
	ch := make(chan *dbus.Signal, 16)
	s.conn.Signal(ch)
	return ch, nil
}

func (s *dbusStore) Close() error { return s.conn.Close() }

// Client projects NetworkManager properties into a categorical connectivity
// state. One background task re-reads the properties on every relevant
// PropertiesChanged signal; only the latest state is broadcast, so new
// subscribers see the current value and nothing older.
type Client struct {
	logger   *slog.Logger
	store    propertyStore
	cast     *broadcast.Broadcaster[domain.ConnectivityState]
	schedule string
	sched    *cron.Cron
}

// NewClient connects to the system bus. Connection failure is fatal for
// this source; the core performs no retry.
func NewClient(cfg config.NetworkConfig, logger *slog.Logger) (*Client, error) {
	store, err := newDBusStore()
	if err != nil {
		return nil, err
	}
	return newClientWithStore(store, cfg.RefreshSchedule, logger), nil
}

func newClientWithStore(store propertyStore, schedule string, logger *slog.Logger) *Client {
	return &Client{
		logger:   logger,
		store:    store,
		cast:     broadcast.New[domain.ConnectivityState](),
		schedule: schedule,
	}
}

// Run reads the initial state, then recomputes it on every
// PropertiesChanged signal for the NetworkManager interface until ctx is
// cancelled. When a refresh schedule is configured, the properties are also
// re-read periodically to heal missed signals.
//
// Run returns nil on cancellation. Any other return is fatal for this
// source: the state stream simply stops updating, which consumers surface
// as "unavailable" rather than crashing.
func (c *Client) Run(ctx context.Context) error {
	if err := c.refresh(); err != nil {
		return err
	}

	signals, err := c.store.Signals()
	if err != nil {
		return domain.WrapOp("network.Run", err)
	}

	if c.schedule != "" {
		c.sched = cron.New()
		if _, err := c.sched.AddFunc(c.schedule, func() {
			if err := c.refresh(); err != nil {
				c.logger.Warn("scheduled connectivity refresh failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("network: refresh schedule: %w", err)
		}
		c.sched.Start()
		defer c.sched.Stop()
	}

	c.logger.Info("network state bridge started", "schedule", c.schedule)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return domain.NewBridgeError("network.Run", domain.ErrConnectivity,
					"signal stream closed")
			}
			if !relevantSignal(sig) {
				continue
			}
			c.logger.Debug("event", "kind", domain.EventPropertiesChanged, "path", sig.Path)
			if err := c.refresh(); err != nil {
				return err
			}
		}
	}
}

// Subscribe returns a receive end primed with the current state, if known.
func (c *Client) Subscribe() (<-chan domain.ConnectivityState, func()) {
	return c.cast.SubscribeReplay()
}

// Close tears down the broadcast stream and the bus connection.
func (c *Client) Close() error {
	c.cast.Close()
	return c.store.Close()
}

// refresh re-reads the relevant properties and broadcasts the recomputed
// state. Property shape mismatches are contract breaches by NetworkManager
// and surface as ErrProtocol.
func (c *Client) refresh() error {
	props, err := c.store.GetAll(nmInterface)
	if err != nil {
		return domain.NewBridgeError("network.refresh", domain.ErrConnectivity, err.Error())
	}
	state, err := stateFromProperties(props)
	if err != nil {
		return err
	}
	c.logger.Debug("connectivity state", "state", state)
	c.cast.Publish(state)
	return nil
}

// relevantSignal reports whether sig is a PropertiesChanged for the
// NetworkManager interface. Signal bodies carry the interface name first.
func relevantSignal(sig *dbus.Signal) bool {
	if sig.Name != propsChangedSignal || len(sig.Body) < 1 {
		return false
	}
	iface, ok := sig.Body[0].(string)
	return ok && iface == nmInterface
}

// stateFromProperties applies DetermineState to a GetAll result.
func stateFromProperties(props map[string]dbus.Variant) (domain.ConnectivityState, error) {
	primary, err := pathProp(props, "PrimaryConnection")
	if err != nil {
		return domain.ConnectivityUnknown, err
	}
	connType, err := stringProp(props, "PrimaryConnectionType")
	if err != nil {
		return domain.ConnectivityUnknown, err
	}
	wireless, err := boolProp(props, "WirelessEnabled")
	if err != nil {
		return domain.ConnectivityUnknown, err
	}
	return DetermineState(primary, connType, wireless), nil
}

func pathProp(props map[string]dbus.Variant, name string) (string, error) {
	v, ok := props[name]
	if !ok {
		return "", missingProp(name)
	}
	p, ok := v.Value().(dbus.ObjectPath)
	if !ok {
		return "", badProp(name, "an object path")
	}
	return string(p), nil
}

func stringProp(props map[string]dbus.Variant, name string) (string, error) {
	v, ok := props[name]
	if !ok {
		return "", missingProp(name)
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", badProp(name, "a string")
	}
	return s, nil
}

func boolProp(props map[string]dbus.Variant, name string) (bool, error) {
	v, ok := props[name]
	if !ok {
		return false, missingProp(name)
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, badProp(name, "a boolean")
	}
	return b, nil
}

func missingProp(name string) error {
	return domain.NewBridgeError("network.refresh", domain.ErrProtocol,
		name+" missing from properties")
}

func badProp(name, want string) error {
	return domain.NewBridgeError("network.refresh", domain.ErrProtocol,
		fmt.Sprintf("%s was not %s", name, want))
}
