package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

func TestNewRegistry_BuiltIns(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"android", "gnome", "kde"}, r.List())
}

func TestRegistry_Resolve(t *testing.T) {
	tests := []struct {
		name         string
		id           string
		wantSettings domain.AppID
		wantErr      bool
	}{
		{name: "android", id: "android", wantSettings: "com.android.settings"},
		{name: "gnome", id: "gnome", wantSettings: "gnome-control-center"},
		{name: "kde", id: "kde", wantSettings: "systemsettings"},
		{name: "unknown", id: "windows", wantErr: true},
	}

	r := NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Resolve(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "android")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSettings, p.SettingsPackage())
			assert.NotEmpty(t, p.Name())
		})
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistryWithPolicies(NewAndroidPolicy())
	r.Register(&stubPolicy{id: "android", settings: "com.vendor.settings"})

	p, ok := r.Get("android")
	require.True(t, ok)
	assert.Equal(t, domain.AppID("com.vendor.settings"), p.SettingsPackage())
}

func TestMarkersFor(t *testing.T) {
	markers := MarkersFor(NewAndroidPolicy(), "com.applock.secure", "AppLock", " ", "Secure Vault")

	// Original Android markers plus our package, lowercased and de-duplicated.
	assert.Equal(t, []string{"applock", "app lock", "com.applock.secure", "secure vault"}, markers)
}

type stubPolicy struct {
	id       string
	settings domain.AppID
}

func (s *stubPolicy) ID() string                    { return s.id }
func (s *stubPolicy) Name() string                  { return s.id }
func (s *stubPolicy) SettingsPackage() domain.AppID { return s.settings }
func (s *stubPolicy) Markers() []string             { return nil }
