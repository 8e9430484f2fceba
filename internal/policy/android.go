package policy

import "github.com/eliteGoblin/focusd/app_lock/internal/domain"

// AndroidPolicy covers the stock Android Settings app
// (Apps > AppLock, Accessibility > AppLock).
type AndroidPolicy struct{}

// NewAndroidPolicy creates the Android settings surface policy.
func NewAndroidPolicy() *AndroidPolicy {
	return &AndroidPolicy{}
}

func (p *AndroidPolicy) ID() string {
	return "android"
}

func (p *AndroidPolicy) Name() string {
	return "Android Settings"
}

func (p *AndroidPolicy) SettingsPackage() domain.AppID {
	return "com.android.settings"
}

func (p *AndroidPolicy) Markers() []string {
	return []string{"applock", "app lock"}
}

var _ SurfacePolicy = (*AndroidPolicy)(nil)
