package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

func TestDefaultGuardianConfig(t *testing.T) {
	config := DefaultGuardianConfig()

	assert.Equal(t, 30*time.Second, config.WatcherCheckInterval)
	assert.Equal(t, 30*time.Second, config.HeartbeatInterval)
}

func TestGuardian_CheckAndRestartWatcher(t *testing.T) {
	tests := []struct {
		name    string
		reg     *fakeRegistry
		spawned []domain.DaemonRole
	}{
		{"dead watcher restarted", &fakeRegistry{alive: false}, []domain.DaemonRole{domain.RoleWatcher}},
		{"alive watcher left alone", &fakeRegistry{alive: true}, nil},
		{"unregistered watcher left alone", &fakeRegistry{aliveErr: domain.ErrNotRegistered}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spawner := &fakeSpawner{}
			g := NewGuardian(DefaultGuardianConfig(), tt.reg, spawner,
				domain.Daemon{Role: domain.RoleGuardian}, zap.NewNop())

			g.checkAndRestartWatcher(testContext(t))

			assert.Equal(t, tt.spawned, spawner.roles())
		})
	}
}

func TestGuardian_CheckAndRestartWatcher_SpawnFailure(t *testing.T) {
	spawner := &fakeSpawner{err: errBoom}
	g := NewGuardian(DefaultGuardianConfig(), &fakeRegistry{alive: false}, spawner,
		domain.Daemon{Role: domain.RoleGuardian}, zap.NewNop())

	assert.NotPanics(t, func() { g.checkAndRestartWatcher(testContext(t)) })
	assert.Equal(t, []domain.DaemonRole{domain.RoleWatcher}, spawner.roles())
}

func TestGuardian_Run_RestartsDeadWatcher(t *testing.T) {
	registry := &fakeRegistry{alive: false}
	spawner := &fakeSpawner{}
	g := NewGuardian(GuardianConfig{
		WatcherCheckInterval: 10 * time.Millisecond,
		HeartbeatInterval:    10 * time.Millisecond,
	}, registry, spawner, domain.Daemon{PID: 7, Role: domain.RoleGuardian}, zap.NewNop())

	ctx, cancel := context.WithTimeout(testContext(t), 100*time.Millisecond)
	defer cancel()

	err := g.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []domain.DaemonRole{domain.RoleGuardian}, registry.registeredRoles())
	assert.NotEmpty(t, spawner.roles())
	assert.Positive(t, registry.heartbeats)
}

func TestGuardian_Run_RegisterFailure(t *testing.T) {
	g := NewGuardian(DefaultGuardianConfig(), &fakeRegistry{registerErr: errBoom}, &fakeSpawner{},
		domain.Daemon{Role: domain.RoleGuardian}, zap.NewNop())

	assert.ErrorIs(t, g.Run(testContext(t)), errBoom)
}
