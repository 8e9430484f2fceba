package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
)

// EngineStore is everything the engine persists or reads.
type EngineStore interface {
	domain.ConfigStore
	domain.AllowanceStore
	domain.BootRecorder
}

// PromptState is implemented by the prompt hand-off (see prompt.Mailbox).
type PromptState interface {
	domain.LockPrompter
	Listening() bool
	Pending() (domain.AppID, bool)
}

// EngineConfig groups the settings of all engine components.
type EngineConfig struct {
	Correlator   CorrelatorConfig
	Trigger      TriggerConfig
	Markers      []string
	MaxTreeDepth int
}

// DefaultEngineConfig returns default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Correlator:   DefaultCorrelatorConfig(),
		Trigger:      DefaultTriggerConfig(),
		Markers:      []string{"applock", "app lock", "com.applock.secure"},
		MaxTreeDepth: DefaultMaxTreeDepth,
	}
}

// Engine wires the lock components together and is the single entry point
// for the signals collaborators deliver.
type Engine struct {
	config     EngineConfig
	store      EngineStore
	host       domain.HostInfo
	prompt     PromptState
	allowance  *Allowance
	trigger    *LockTrigger
	matcher    *SettingsMatcher
	correlator *Correlator
	logger     *zap.Logger
}

// NewEngine creates the lock engine.
func NewEngine(
	config EngineConfig,
	store EngineStore,
	host domain.HostInfo,
	reader domain.ScreenReader,
	home domain.HomeAction,
	prompt PromptState,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Engine {
	allowance := NewAllowance(store, m, logger.Named("allowance"))
	trigger := NewLockTrigger(config.Trigger, home, prompt, m, logger.Named("trigger"))
	matcher := NewSettingsMatcher(reader, config.Markers, config.MaxTreeDepth, m, logger.Named("matcher"))
	correlator := NewCorrelator(config.Correlator, store, allowance, matcher, trigger, m, logger.Named("correlator"))

	return &Engine{
		config:     config,
		store:      store,
		host:       host,
		prompt:     prompt,
		allowance:  allowance,
		trigger:    trigger,
		matcher:    matcher,
		correlator: correlator,
		logger:     logger,
	}
}

// Init reloads persisted allowances, clearing them if the device rebooted
// since they were written. Called on every (re)start of the engine.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.allowance.Load(ctx); err != nil {
		return fmt.Errorf("failed to load allowances: %w", err)
	}

	if e.host == nil {
		return nil
	}
	current, err := e.host.BootID()
	if err != nil {
		e.logger.Warn("failed to read boot id, keeping allowances", zap.Error(err))
		return nil
	}
	stored, err := e.store.BootID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored boot id: %w", err)
	}
	if stored != current {
		e.logger.Info("device rebooted since last run, clearing allowances",
			zap.String("stored_boot", stored),
			zap.String("current_boot", current))
		e.allowance.ResetForBoot()
		if err := e.store.SetBootID(ctx, current); err != nil {
			return fmt.Errorf("failed to store boot id: %w", err)
		}
	}
	return nil
}

// HandleForeground feeds one foreground-change notification to the correlator.
func (e *Engine) HandleForeground(ctx context.Context, ev domain.ForegroundEvent) {
	e.correlator.HandleForeground(ctx, ev)
}

// UnlockSucceeded is called by the prompt UI after correct credential entry.
func (e *Engine) UnlockSucceeded(id domain.AppID) error {
	if id == "" {
		return fmt.Errorf("empty package")
	}
	e.allowance.Allow(id)
	return nil
}

// ScreenOff revokes every allowance.
func (e *Engine) ScreenOff() {
	e.allowance.ScreenOff()
}

// Status assembles the state shown to the UI.
func (e *Engine) Status(ctx context.Context) (domain.EngineStatus, error) {
	locked, err := e.store.LockedSet(ctx)
	if err != nil {
		return domain.EngineStatus{}, fmt.Errorf("failed to read locked apps: %w", err)
	}
	protect, err := e.store.ProtectSelf(ctx)
	if err != nil {
		return domain.EngineStatus{}, fmt.Errorf("failed to read settings protection: %w", err)
	}

	snap := e.allowance.Snapshot()
	status := domain.EngineStatus{
		Locked:          locked,
		Allowed:         snap.Allowed,
		Left:            snap.Left,
		ProtectSettings: protect,
		Foreground:      e.correlator.Foreground(),
		PromptListening: e.prompt.Listening(),
		SettingsSurface: e.config.Correlator.SettingsPackage,
		SelfPackage:     e.config.Correlator.SelfPackage,
	}
	if p := e.trigger.Pending(); p != nil {
		status.LastTarget = p.Target
	}
	if pending, ok := e.prompt.Pending(); ok {
		status.PendingPrompt = pending
	}
	return status, nil
}

// Allowance exposes the allowance lifecycle (read-mostly, for tests and status).
func (e *Engine) Allowance() *Allowance {
	return e.allowance
}
