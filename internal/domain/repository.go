package domain

import "context"

// ConfigStore is the persisted configuration written by the external UI.
// The engine only reads it, on every relevant event.
type ConfigStore interface {
	// LockedSet returns the identifiers configured as locked.
	LockedSet(ctx context.Context) ([]AppID, error)

	// SetLockedSet replaces the locked identifiers.
	SetLockedSet(ctx context.Context, ids []AppID) error

	// ProtectSelf reports whether the settings surface is guarded (default true).
	ProtectSelf(ctx context.Context) (bool, error)

	// SetProtectSelf stores the settings-protection toggle.
	SetProtectSelf(ctx context.Context, enabled bool) error
}

// AllowanceStore persists the engine-owned allowance and left sets.
// SaveAllowances must replace both sets atomically with respect to readers.
type AllowanceStore interface {
	LoadAllowances(ctx context.Context) (allowed, left []AppID, err error)
	SaveAllowances(ctx context.Context, allowed, left []AppID) error
}

// BootRecorder remembers which boot the persisted allowances belong to.
type BootRecorder interface {
	BootID(ctx context.Context) (string, error)
	SetBootID(ctx context.Context, id string) error
}

// HostInfo exposes host facts the engine needs.
type HostInfo interface {
	// BootID identifies the current boot of the device.
	BootID() (string, error)
}

// Node is one element of the displayed screen's UI tree.
// Any accessor may fail with ErrNodeGone when the screen redraws.
type Node interface {
	Text() (string, error)
	Description() (string, error)
	ChildCount() (int, error)
	Child(i int) (Node, error)

	// Key identifies the node for cycle detection. Empty means unknown.
	Key() string
}

// ScreenReader gives read access to the currently displayed element tree.
type ScreenReader interface {
	// ActiveRoot returns the root node of the active window, or ErrNoActiveWindow.
	ActiveRoot(ctx context.Context) (Node, error)
}

// HomeAction removes the current app from the visible foreground.
type HomeAction interface {
	GoHome(ctx context.Context) error
}

// LockPrompter asks the external Lock-Prompt UI to show the credential screen.
type LockPrompter interface {
	Present(target AppID) error
}

// ForegroundSource delivers foreground-change notifications in order.
// Watch blocks until ctx is canceled; fn is never called concurrently.
type ForegroundSource interface {
	Watch(ctx context.Context, fn func(ForegroundEvent)) error
}

// ScreenStateSource delivers screen-off signals.
// WatchScreenOff blocks until ctx is canceled.
type ScreenStateSource interface {
	WatchScreenOff(ctx context.Context, fn func()) error
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// NameOf returns the executable name of a process.
	NameOf(pid int) (string, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry provides daemon discovery and registration.
// Watcher and guardian find each other through it.
type DaemonRegistry interface {
	// Register saves the daemon's PID under its role.
	Register(ctx context.Context, daemon Daemon) error

	// GetPartner returns the partner daemon info (watcher<->guardian).
	GetPartner(ctx context.Context, role DaemonRole) (*Daemon, error)

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat(ctx context.Context, role DaemonRole) error

	// IsPartnerAlive checks if partner daemon is running via PID.
	IsPartnerAlive(ctx context.Context, role DaemonRole) (bool, error)

	// GetAll returns full registry state (for status command).
	GetAll(ctx context.Context) (*RegistryEntry, error)
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}
