package monitor

import (
	"github.com/godbus/dbus/v5"
)

// DBusClient is the subset of a session bus connection the MPRIS source uses.
//
//go:generate mockgen -destination=mocks/dbus_client_mock.go -package=mocks github.com/genricoloni/nowpanel/internal/monitor DBusClient
type DBusClient interface {
	Close() error
	AddMatchSignal(options ...dbus.MatchOption) error
	// Signal registers ch to receive every matched signal
	Signal(ch chan<- *dbus.Signal)
	ListNames() ([]string, error)
	// GetNameOwner maps a well-known name to the unique name (":1.42") owning it
	GetNameOwner(name string) (string, error)
	// GetProperty reads prop from the object at path owned by dest
	GetProperty(dest, path, prop string) (dbus.Variant, error)
}

// sessionBus implements DBusClient on a private session bus connection
type sessionBus struct {
	conn *dbus.Conn
}

// dialSessionBus opens a private connection so closing it never affects
// other users of the shared session bus in the process
func dialSessionBus() (DBusClient, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &sessionBus{conn: conn}, nil
}

func (c *sessionBus) Close() error {
	return c.conn.Close()
}

func (c *sessionBus) AddMatchSignal(options ...dbus.MatchOption) error {
	return c.conn.AddMatchSignal(options...)
}

func (c *sessionBus) Signal(ch chan<- *dbus.Signal) {
	c.conn.Signal(ch)
}

func (c *sessionBus) ListNames() ([]string, error) {
	var names []string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (c *sessionBus) GetNameOwner(name string) (string, error) {
	var owner string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner)
	return owner, err
}

func (c *sessionBus) GetProperty(dest, path, prop string) (dbus.Variant, error) {
	return c.conn.Object(dest, dbus.ObjectPath(path)).GetProperty(prop)
}
