package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Signals that mean the display went dark or the session got locked.
const (
	sigScreenSaverActive = "org.freedesktop.ScreenSaver.ActiveChanged"
	sigGnomeSaverActive  = "org.gnome.ScreenSaver.ActiveChanged"
	sigPrepareForSleep   = "org.freedesktop.login1.Manager.PrepareForSleep"
	sigSessionLock       = "org.freedesktop.login1.Session.Lock"
)

// DBusScreenSource reports screen-off from screensaver and logind signals.
type DBusScreenSource struct {
	logger *zap.Logger
}

// NewDBusScreenSource creates a screen state source on the session and system buses.
func NewDBusScreenSource(logger *zap.Logger) *DBusScreenSource {
	return &DBusScreenSource{logger: logger}
}

// WatchScreenOff calls fn for every screen-off signal until ctx is done.
// It runs with whichever of the two buses is reachable.
func (s *DBusScreenSource) WatchScreenOff(ctx context.Context, fn func()) error {
	signals := make(chan *dbus.Signal, 16)

	var conns []*dbus.Conn
	defer func() {
		for _, c := range conns {
			c.RemoveSignal(signals)
			c.Close()
		}
	}()

	session, err := s.subscribe(dbus.ConnectSessionBus, signals,
		[]string{"org.freedesktop.ScreenSaver", "org.gnome.ScreenSaver"}, "ActiveChanged")
	if err != nil {
		s.logger.Warn("screensaver signals unavailable", zap.Error(err))
	} else {
		conns = append(conns, session)
	}

	system, err := s.subscribe(dbus.ConnectSystemBus, signals,
		[]string{"org.freedesktop.login1.Manager"}, "PrepareForSleep")
	if err != nil {
		s.logger.Warn("logind sleep signals unavailable", zap.Error(err))
	} else {
		conns = append(conns, system)
		if err := system.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.login1.Session"),
			dbus.WithMatchMember("Lock"),
		); err != nil {
			s.logger.Warn("failed to subscribe to session lock", zap.Error(err))
		}
	}

	if len(conns) == 0 {
		return errors.New("no D-Bus connection for screen state")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if isScreenOffSignal(sig) {
				s.logger.Debug("screen off signal", zap.String("signal", sig.Name))
				fn()
			}
		}
	}
}

func (s *DBusScreenSource) subscribe(
	connect func(...dbus.ConnOption) (*dbus.Conn, error),
	signals chan *dbus.Signal,
	ifaces []string,
	member string,
) (*dbus.Conn, error) {
	conn, err := connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	for _, iface := range ifaces {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(iface),
			dbus.WithMatchMember(member),
		); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to match %s.%s: %w", iface, member, err)
		}
	}
	conn.Signal(signals)
	return conn, nil
}

// isScreenOffSignal reports whether sig turns the screen off or locks it.
func isScreenOffSignal(sig *dbus.Signal) bool {
	if sig == nil {
		return false
	}
	switch sig.Name {
	case sigScreenSaverActive, sigGnomeSaverActive, sigPrepareForSleep:
		if len(sig.Body) == 0 {
			return false
		}
		active, ok := sig.Body[0].(bool)
		return ok && active
	case sigSessionLock:
		return true
	}
	return false
}

// NoopScreenSource never reports screen-off; it blocks until ctx is done.
type NoopScreenSource struct{}

// WatchScreenOff implements domain.ScreenStateSource.
func (NoopScreenSource) WatchScreenOff(ctx context.Context, fn func()) error {
	<-ctx.Done()
	return nil
}

// Ensure implementations satisfy domain.ScreenStateSource.
var (
	_ domain.ScreenStateSource = (*DBusScreenSource)(nil)
	_ domain.ScreenStateSource = NoopScreenSource{}
)
