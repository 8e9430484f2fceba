// Package policy describes settings surfaces per platform: which identifier
// is the system settings app and which markers reveal that it is showing one
// of applock's own screens.
package policy

import (
	"strings"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// SurfacePolicy defines the settings surface of one platform.
type SurfacePolicy interface {
	// ID returns unique identifier (e.g., "android", "gnome").
	ID() string

	// Name returns human-readable name for display.
	Name() string

	// SettingsPackage returns the identifier reported when settings is foregrounded.
	SettingsPackage() domain.AppID

	// Markers returns brand strings shown on applock's own settings screens.
	// Matched case-insensitively.
	Markers() []string
}

// MarkersFor combines the policy markers, our own identifier and any extra
// markers into one lowercase, de-duplicated list.
func MarkersFor(p SurfacePolicy, self domain.AppID, extra ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(mk string) {
		mk = strings.ToLower(strings.TrimSpace(mk))
		if mk == "" {
			return
		}
		if _, ok := seen[mk]; ok {
			return
		}
		seen[mk] = struct{}{}
		out = append(out, mk)
	}

	for _, mk := range p.Markers() {
		add(mk)
	}
	add(string(self))
	for _, mk := range extra {
		add(mk)
	}
	return out
}
