package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// GuardianConfig holds guardian daemon configuration.
type GuardianConfig struct {
	WatcherCheckInterval time.Duration // How often to check watcher
	HeartbeatInterval    time.Duration // How often to update heartbeat
}

// DefaultGuardianConfig returns default guardian configuration.
func DefaultGuardianConfig() GuardianConfig {
	return GuardianConfig{
		WatcherCheckInterval: 30 * time.Second,
		HeartbeatInterval:    30 * time.Second,
	}
}

// Guardian keeps the watcher alive. A restarted watcher reloads the
// allowances from the store, so a kill does not grant or lose unlocks.
type Guardian struct {
	config   GuardianConfig
	registry domain.DaemonRegistry
	spawner  Spawner
	logger   *zap.Logger
	daemon   domain.Daemon
}

// NewGuardian creates a new guardian daemon.
func NewGuardian(
	config GuardianConfig,
	registry domain.DaemonRegistry,
	spawner Spawner,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Guardian {
	return &Guardian{
		config:   config,
		registry: registry,
		spawner:  spawner,
		daemon:   daemon,
		logger:   logger,
	}
}

// Run starts the guardian daemon loop.
// This blocks until context is canceled.
func (g *Guardian) Run(ctx context.Context) error {
	if err := g.registry.Register(ctx, g.daemon); err != nil {
		g.logger.Error("failed to register guardian", zap.Error(err))
		return err
	}

	g.logger.Info("guardian daemon started", zap.Int("pid", g.daemon.PID))

	watcherCheckTicker := time.NewTicker(g.config.WatcherCheckInterval)
	heartbeatTicker := time.NewTicker(g.config.HeartbeatInterval)
	defer func() {
		watcherCheckTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("guardian daemon stopping")
			return ctx.Err()

		case <-watcherCheckTicker.C:
			g.checkAndRestartWatcher(ctx)

		case <-heartbeatTicker.C:
			if err := g.registry.UpdateHeartbeat(ctx, domain.RoleGuardian); err != nil {
				g.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// checkAndRestartWatcher checks if watcher is alive and restarts if needed.
func (g *Guardian) checkAndRestartWatcher(ctx context.Context) {
	alive, err := g.registry.IsPartnerAlive(ctx, domain.RoleGuardian)
	if errors.Is(err, domain.ErrNotRegistered) {
		g.logger.Debug("no watcher registered yet")
		return
	}
	if err != nil {
		g.logger.Warn("failed to check watcher", zap.Error(err))
		return
	}

	if !alive {
		g.logger.Info("watcher not running, restarting...")
		if err := g.spawner.Spawn(domain.RoleWatcher); err != nil {
			g.logger.Error("failed to restart watcher", zap.Error(err))
		} else {
			g.logger.Info("watcher restarted successfully")
		}
	}
}
