package policy

import "github.com/eliteGoblin/focusd/app_lock/internal/domain"

// GnomePolicy covers GNOME Settings. On X11 the foreground identifier is
// the process name of the active window.
type GnomePolicy struct{}

// NewGnomePolicy creates the GNOME settings surface policy.
func NewGnomePolicy() *GnomePolicy {
	return &GnomePolicy{}
}

func (p *GnomePolicy) ID() string {
	return "gnome"
}

func (p *GnomePolicy) Name() string {
	return "GNOME Settings"
}

func (p *GnomePolicy) SettingsPackage() domain.AppID {
	return "gnome-control-center"
}

// Markers includes the autostart entry name, which is how applock shows
// up under Settings > Apps.
func (p *GnomePolicy) Markers() []string {
	return []string{"applock", "app lock", "applock.desktop"}
}

// KDEPolicy covers KDE System Settings.
type KDEPolicy struct{}

// NewKDEPolicy creates the KDE settings surface policy.
func NewKDEPolicy() *KDEPolicy {
	return &KDEPolicy{}
}

func (p *KDEPolicy) ID() string {
	return "kde"
}

func (p *KDEPolicy) Name() string {
	return "KDE System Settings"
}

func (p *KDEPolicy) SettingsPackage() domain.AppID {
	return "systemsettings"
}

func (p *KDEPolicy) Markers() []string {
	return []string{"applock", "app lock"}
}

var (
	_ SurfacePolicy = (*GnomePolicy)(nil)
	_ SurfacePolicy = (*KDEPolicy)(nil)
)
