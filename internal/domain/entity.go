// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"errors"
	"time"
)

// AppID is the platform identifier of an installed application
// (Android package name, or process name on a desktop).
type AppID string

// Persisted record keys. The external UI writes locked_packages and
// protect_applock_in_settings; the engine owns the other two.
const (
	KeyLockedPackages    = "locked_packages"
	KeyAllowedPackages   = "allowed_packages"
	KeyUserLeftPackages  = "user_left_packages"
	KeyProtectInSettings = "protect_applock_in_settings"
)

var (
	// ErrNoActiveWindow is returned by a ScreenReader when nothing is displayed.
	ErrNoActiveWindow = errors.New("no active window")

	// ErrNodeGone is returned when a UI node disappeared while being read.
	ErrNodeGone = errors.New("ui node no longer available")

	// ErrNotRegistered is returned when a daemon is missing from the registry.
	ErrNotRegistered = errors.New("daemon not registered")
)

// ForegroundEvent is a single foreground-change notification.
type ForegroundEvent struct {
	Package AppID
	At      time.Time
}

// PendingTrigger is the most recent lock decision, kept in memory only.
type PendingTrigger struct {
	ID     string // correlation id for logs
	Target AppID
	At     time.Time
}

// TriggerKind distinguishes the two lock paths of the correlator.
type TriggerKind string

const (
	TriggerApp      TriggerKind = "app"
	TriggerSettings TriggerKind = "settings"
)

// RevokeReason records why an allowance was withdrawn.
type RevokeReason string

const (
	RevokeLeft      RevokeReason = "left"
	RevokeScreenOff RevokeReason = "screen_off"
	RevokeBoot      RevokeReason = "boot"
)

// AllowanceSnapshot is a point-in-time copy of the engine-owned sets.
type AllowanceSnapshot struct {
	Allowed []AppID `json:"allowed"`
	Left    []AppID `json:"user_left"`
}

// EngineStatus is reported to the external UI and the CLI.
type EngineStatus struct {
	Locked          []AppID `json:"locked"`
	Allowed         []AppID `json:"allowed"`
	Left            []AppID `json:"user_left"`
	ProtectSettings bool    `json:"protect_applock_in_settings"`
	Foreground      AppID   `json:"foreground,omitempty"`
	LastTarget      AppID   `json:"last_target,omitempty"`
	PromptListening bool    `json:"prompt_listening"`
	PendingPrompt   AppID   `json:"pending_prompt,omitempty"`
	SettingsSurface AppID   `json:"settings_surface"`
	SelfPackage     AppID   `json:"self_package"`
}

// DaemonRole identifies the type of daemon process.
type DaemonRole string

const (
	RoleWatcher  DaemonRole = "watcher"
	RoleGuardian DaemonRole = "guardian"
)

// Daemon represents a running daemon process.
type Daemon struct {
	PID        int
	Role       DaemonRole
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry stores the state of both daemons for mutual discovery.
type RegistryEntry struct {
	WatcherPID    int    `json:"watcher_pid"`
	GuardianPID   int    `json:"guardian_pid"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}
