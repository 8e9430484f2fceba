package infra

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const (
	atspiRegistry    = "org.a11y.atspi.Registry"
	atspiRootPath    = dbus.ObjectPath("/org/a11y/atspi/accessible/root")
	atspiAccessible  = "org.a11y.atspi.Accessible"
	atspiStateActive = 1
)

// ATSPIReader reads the window tree of one application over the AT-SPI
// accessibility bus.
type ATSPIReader struct {
	app    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewATSPIReader creates a reader for the application named app
// (as reported by the AT-SPI registry, e.g. "gnome-control-center").
func NewATSPIReader(app string, logger *zap.Logger) *ATSPIReader {
	return &ATSPIReader{app: strings.ToLower(app), logger: logger}
}

// ActiveRoot returns the active frame of the application, or its first frame.
func (r *ATSPIReader) ActiveRoot(ctx context.Context) (domain.Node, error) {
	conn, err := r.connection()
	if err != nil {
		return nil, err
	}

	registry := &atspiNode{ctx: ctx, conn: conn, dest: atspiRegistry, path: atspiRootPath}
	count, err := registry.ChildCount()
	if err != nil {
		r.reset()
		return nil, err
	}
	for i := 0; i < count; i++ {
		child, err := registry.Child(i)
		if err != nil {
			continue
		}
		app := child.(*atspiNode)
		name, err := app.Text()
		if err != nil || strings.ToLower(name) != r.app {
			continue
		}
		return app.activeFrame()
	}
	return nil, domain.ErrNoActiveWindow
}

// Close drops the accessibility bus connection.
func (r *ATSPIReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *ATSPIReader) connection() (*dbus.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil && r.conn.Connected() {
		return r.conn, nil
	}

	session, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	var addr string
	if err := session.Object("org.a11y.Bus", "/org/a11y/bus").
		Call("org.a11y.Bus.GetAddress", 0).Store(&addr); err != nil {
		return nil, fmt.Errorf("failed to get accessibility bus address: %w", err)
	}
	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to accessibility bus: %w", err)
	}
	r.logger.Debug("connected to accessibility bus", zap.String("address", addr))
	r.conn = conn
	return conn, nil
}

func (r *ATSPIReader) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// atspiNode is one accessible object. Every accessor is a D-Bus round trip
// bounded by the context of the scan that produced it.
type atspiNode struct {
	ctx  context.Context
	conn *dbus.Conn
	dest string
	path dbus.ObjectPath
}

func (n *atspiNode) Text() (string, error) {
	return n.stringProperty("Name")
}

func (n *atspiNode) Description() (string, error) {
	return n.stringProperty("Description")
}

func (n *atspiNode) ChildCount() (int, error) {
	v, err := n.property("ChildCount")
	if err != nil {
		return 0, err
	}
	count, ok := v.Value().(int32)
	if !ok {
		return 0, fmt.Errorf("%w: ChildCount is %s", domain.ErrNodeGone, v.Signature())
	}
	return int(count), nil
}

func (n *atspiNode) Child(i int) (domain.Node, error) {
	var ref struct {
		Dest string
		Path dbus.ObjectPath
	}
	if err := n.call("GetChildAtIndex", int32(i)).Store(&ref); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNodeGone, err)
	}
	return &atspiNode{ctx: n.ctx, conn: n.conn, dest: ref.Dest, path: ref.Path}, nil
}

func (n *atspiNode) Key() string {
	return n.dest + string(n.path)
}

func (n *atspiNode) activeFrame() (domain.Node, error) {
	count, err := n.ChildCount()
	if err != nil {
		return nil, err
	}
	var first domain.Node
	for i := 0; i < count; i++ {
		child, err := n.Child(i)
		if err != nil {
			continue
		}
		if first == nil {
			first = child
		}
		var states []uint32
		if err := child.(*atspiNode).call("GetState").Store(&states); err == nil && hasState(states, atspiStateActive) {
			return child, nil
		}
	}
	if first == nil {
		return nil, domain.ErrNoActiveWindow
	}
	return first, nil
}

func (n *atspiNode) call(method string, args ...interface{}) *dbus.Call {
	return n.conn.Object(n.dest, n.path).CallWithContext(n.ctx, atspiAccessible+"."+method, 0, args...)
}

func (n *atspiNode) property(name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := n.conn.Object(n.dest, n.path).
		CallWithContext(n.ctx, "org.freedesktop.DBus.Properties.Get", 0, atspiAccessible, name).
		Store(&v)
	if err != nil {
		return dbus.Variant{}, fmt.Errorf("%w: %v", domain.ErrNodeGone, err)
	}
	return v, nil
}

func (n *atspiNode) stringProperty(name string) (string, error) {
	v, err := n.property(name)
	if err != nil {
		return "", err
	}
	s, _ := v.Value().(string)
	return s, nil
}

// hasState reports whether bit is set in an AT-SPI state set.
func hasState(states []uint32, bit int) bool {
	word := bit / 32
	if word >= len(states) {
		return false
	}
	return states[word]&(1<<uint(bit%32)) != 0
}

// Ensure ATSPIReader implements domain.ScreenReader.
var _ domain.ScreenReader = (*ATSPIReader)(nil)

// NoopScreenReader never exposes a window.
type NoopScreenReader struct{}

// ActiveRoot implements domain.ScreenReader.
func (NoopScreenReader) ActiveRoot(ctx context.Context) (domain.Node, error) {
	return nil, domain.ErrNoActiveWindow
}
