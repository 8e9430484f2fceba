package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/config"
	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
	"github.com/eliteGoblin/focusd/app_lock/internal/prompt"
	"github.com/eliteGoblin/focusd/app_lock/internal/server"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
)

// BuildEngineConfig maps the file/env configuration onto the engine.
// The settings identifier comes from the surface policy unless
// engine.settings_package overrides it.
func BuildEngineConfig(cfg *config.Config, policies *policy.Registry) (usecase.EngineConfig, error) {
	self := domain.AppID(cfg.Engine.SelfPackage)

	p, err := policies.Resolve(cfg.SettingsSurfaceID())
	if err != nil {
		return usecase.EngineConfig{}, err
	}
	settings := p.SettingsPackage()
	if cfg.Engine.SettingsPackage != "" {
		settings = domain.AppID(cfg.Engine.SettingsPackage)
	}

	return usecase.EngineConfig{
		Correlator: usecase.CorrelatorConfig{
			SelfPackage:         self,
			SettingsPackage:     settings,
			SettingsRenderDelay: cfg.Engine.SettingsRenderDelay,
			MatchTimeout:        cfg.Engine.MatchTimeout,
		},
		Trigger: usecase.TriggerConfig{
			DebounceWindow: cfg.Engine.DebounceWindow,
			PromptDelay:    cfg.Engine.PromptDelay,
			ActionTimeout:  cfg.Engine.ActionTimeout,
		},
		Markers:      policy.MarkersFor(p, self, cfg.Engine.ExtraMarkers...),
		MaxTreeDepth: cfg.Engine.MaxTreeDepth,
	}, nil
}

// Runtime is the fully wired lock engine with its collaborators.
type Runtime struct {
	Store      *infra.EncryptedStore
	Metrics    *metrics.Metrics
	Mailbox    *prompt.Mailbox
	Engine     *usecase.Engine
	Server     *server.Server
	Foreground domain.ForegroundSource
	Screen     domain.ScreenStateSource

	processManager domain.ProcessManager
	reader         *infra.ATSPIReader
}

// NewRuntime opens the store and builds the engine, the control API and the
// desktop collaborators selected by cfg.
func NewRuntime(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	engineConfig, err := BuildEngineConfig(cfg, policy.NewRegistry())
	if err != nil {
		return nil, err
	}

	pm := infra.NewProcessManager()
	store, err := infra.OpenStore(cfg.Store.DataDir, pm)
	if err != nil {
		return nil, err
	}
	token, err := infra.EnsureAPIToken(cfg.Store.DataDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	rt := &Runtime{
		Store:          store,
		Metrics:        metrics.New(),
		processManager: pm,
	}
	rt.Mailbox = prompt.NewMailbox(rt.Metrics, logger.Named("prompt"))

	var reader domain.ScreenReader = infra.NoopScreenReader{}
	if cfg.Desktop.Accessibility {
		rt.reader = infra.NewATSPIReader(string(engineConfig.Correlator.SettingsPackage), logger.Named("atspi"))
		reader = rt.reader
	}

	var home domain.HomeAction = infra.NoopHomeAction{}
	if len(cfg.Desktop.HomeCommand) > 0 {
		home = infra.NewCommandHomeAction(cfg.Desktop.HomeCommand)
	}

	switch cfg.Desktop.Backend {
	case "x11":
		rt.Foreground = infra.NewX11ForegroundSource(cfg.Desktop.XpropPath, cfg.Desktop.PollInterval, pm, logger.Named("x11"))
	default:
		rt.Foreground = idleForeground{}
	}

	if cfg.Desktop.ScreenSignals {
		rt.Screen = infra.NewDBusScreenSource(logger.Named("screen"))
	} else {
		rt.Screen = infra.NoopScreenSource{}
	}

	rt.Engine = usecase.NewEngine(engineConfig, store, infra.NewHostInfo(), reader, home, rt.Mailbox, rt.Metrics, logger.Named("engine"))
	rt.Server = server.New(cfg.Server.Addr, token, rt.Engine, store, rt.Mailbox, rt.Metrics, logger.Named("api"))

	if cfg.Desktop.Backend == "x11" && cfg.SettingsSurfaceID() == "android" {
		logger.Warn("android settings surface under an x11 desktop; settings protection will not see the desktop settings app")
	}
	logger.Info("lock engine configured",
		zap.String("self", string(engineConfig.Correlator.SelfPackage)),
		zap.String("surface", cfg.SettingsSurfaceID()),
		zap.String("settings", string(engineConfig.Correlator.SettingsPackage)),
		zap.Strings("markers", engineConfig.Markers),
		zap.String("backend", cfg.Desktop.Backend),
		zap.String("store", store.Path()))
	return rt, nil
}

// Self describes the current process in the given role.
func (rt *Runtime) Self(role domain.DaemonRole, version string) domain.Daemon {
	return domain.Daemon{
		PID:        rt.processManager.GetCurrentPID(),
		Role:       role,
		StartedAt:  time.Now(),
		AppVersion: version,
	}
}

// Close releases the store and the accessibility connection.
func (rt *Runtime) Close() error {
	if rt.reader != nil {
		_ = rt.reader.Close()
	}
	if err := rt.Store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// NewWatcherFromRuntime assembles the watcher daemon around rt.
func NewWatcherFromRuntime(cfg *config.Config, rt *Runtime, spawner Spawner, version string, logger *zap.Logger) *Watcher {
	return NewWatcher(
		WatcherConfig{
			HeartbeatInterval:    cfg.Daemon.HeartbeatInterval,
			PartnerCheckInterval: cfg.Daemon.PartnerCheckInterval,
		},
		rt.Engine,
		rt.Foreground,
		rt.Screen,
		rt.Server,
		rt.Store,
		spawner,
		rt.Self(domain.RoleWatcher, version),
		logger,
	)
}

// idleForeground is used when no foreground backend is configured; events
// then only arrive through the control API.
type idleForeground struct{}

func (idleForeground) Watch(ctx context.Context, fn func(domain.ForegroundEvent)) error {
	<-ctx.Done()
	return nil
}

// OpenRegistry opens the store for the guardian, which only needs the registry.
func OpenRegistry(cfg *config.Config) (*infra.EncryptedStore, domain.ProcessManager, error) {
	pm := infra.NewProcessManager()
	store, err := infra.OpenStore(cfg.Store.DataDir, pm)
	if err != nil {
		return nil, nil, err
	}
	return store, pm, nil
}
