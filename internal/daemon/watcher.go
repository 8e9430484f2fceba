// Package daemon implements the watcher and guardian daemons.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Engine is the part of usecase.Engine the watcher feeds.
type Engine interface {
	Init(ctx context.Context) error
	HandleForeground(ctx context.Context, ev domain.ForegroundEvent)
	ScreenOff()
}

// APIServer serves the control API until ctx is canceled.
type APIServer interface {
	Run(ctx context.Context) error
}

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	HeartbeatInterval    time.Duration // How often to update heartbeat
	PartnerCheckInterval time.Duration // How often to check guardian
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		HeartbeatInterval:    30 * time.Second,
		PartnerCheckInterval: 60 * time.Second,
	}
}

// Watcher is the lock daemon. It hosts the engine, feeds it foreground and
// screen-off signals, serves the control API and restarts the guardian.
type Watcher struct {
	config     WatcherConfig
	engine     Engine
	foreground domain.ForegroundSource
	screen     domain.ScreenStateSource
	api        APIServer
	registry   domain.DaemonRegistry
	spawner    Spawner
	daemon     domain.Daemon
	logger     *zap.Logger
}

// NewWatcher creates a new watcher daemon. spawner may be nil to disable
// guardian restarts.
func NewWatcher(
	config WatcherConfig,
	engine Engine,
	foreground domain.ForegroundSource,
	screen domain.ScreenStateSource,
	api APIServer,
	registry domain.DaemonRegistry,
	spawner Spawner,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		config:     config,
		engine:     engine,
		foreground: foreground,
		screen:     screen,
		api:        api,
		registry:   registry,
		spawner:    spawner,
		daemon:     daemon,
		logger:     logger,
	}
}

// Run starts the watcher daemon loop.
// This blocks until context is canceled or the control API fails.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.registry.Register(ctx, w.daemon); err != nil {
		w.logger.Error("failed to register watcher", zap.Error(err))
		return err
	}

	if err := w.engine.Init(ctx); err != nil {
		w.logger.Error("failed to initialize lock engine", zap.Error(err))
		return err
	}

	w.logger.Info("watcher daemon started",
		zap.Int("pid", w.daemon.PID),
		zap.String("version", w.daemon.AppVersion))

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	apiErr := make(chan error, 1)

	wg.Add(3)
	go func() {
		defer wg.Done()
		err := w.foreground.Watch(ctx, func(ev domain.ForegroundEvent) {
			w.engine.HandleForeground(ctx, ev)
		})
		if err != nil && ctx.Err() == nil {
			w.logger.Error("foreground source stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		err := w.screen.WatchScreenOff(ctx, w.engine.ScreenOff)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("screen state source stopped, allowances only end on leave", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := w.api.Run(ctx); err != nil {
			apiErr <- err
		}
	}()

	heartbeatTicker := time.NewTicker(w.config.HeartbeatInterval)
	partnerCheckTicker := time.NewTicker(w.config.PartnerCheckInterval)
	defer func() {
		heartbeatTicker.Stop()
		partnerCheckTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher daemon stopping")
			return ctx.Err()

		case err := <-apiErr:
			w.logger.Error("control API failed", zap.Error(err))
			return err

		case <-heartbeatTicker.C:
			if err := w.registry.UpdateHeartbeat(ctx, domain.RoleWatcher); err != nil {
				w.logger.Warn("failed to update heartbeat", zap.Error(err))
			}

		case <-partnerCheckTicker.C:
			w.checkAndRestartGuardian(ctx)
		}
	}
}

// checkAndRestartGuardian checks if guardian is alive and restarts if needed.
func (w *Watcher) checkAndRestartGuardian(ctx context.Context) {
	if w.spawner == nil {
		return
	}
	alive, err := w.registry.IsPartnerAlive(ctx, domain.RoleWatcher)
	if errors.Is(err, domain.ErrNotRegistered) {
		w.logger.Debug("no guardian registered yet")
		return
	}
	if err != nil {
		w.logger.Warn("failed to check guardian", zap.Error(err))
		return
	}

	if !alive {
		w.logger.Info("guardian not running, restarting...")
		if err := w.spawner.Spawn(domain.RoleGuardian); err != nil {
			w.logger.Error("failed to restart guardian", zap.Error(err))
		} else {
			w.logger.Info("guardian restarted successfully")
		}
	}
}
