package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
)

// CorrelatorConfig holds foreground correlation settings.
type CorrelatorConfig struct {
	SelfPackage         domain.AppID  // Our own identifier, never locked through this path
	SettingsPackage     domain.AppID  // The system settings surface
	SettingsRenderDelay time.Duration // Wait for the settings screen to render before scanning
	MatchTimeout        time.Duration // Bound for one settings screen scan
}

// DefaultCorrelatorConfig returns default correlator configuration.
func DefaultCorrelatorConfig() CorrelatorConfig {
	return CorrelatorConfig{
		SelfPackage:         "com.applock.secure",
		SettingsPackage:     "com.android.settings",
		SettingsRenderDelay: 150 * time.Millisecond,
		MatchTimeout:        2 * time.Second,
	}
}

// Correlator consumes foreground-change notifications, revokes allowances of
// apps the user left and hands lock decisions to the LockTrigger.
type Correlator struct {
	config    CorrelatorConfig
	store     domain.ConfigStore
	allowance *Allowance
	matcher   *SettingsMatcher
	trigger   *LockTrigger
	metrics   *metrics.Metrics
	logger    *zap.Logger

	serial   sync.Mutex // one notification at a time
	mu       sync.Mutex // guards previous
	previous domain.AppID

	after func(time.Duration, func())
}

// NewCorrelator creates a foreground event correlator.
func NewCorrelator(
	config CorrelatorConfig,
	store domain.ConfigStore,
	allowance *Allowance,
	matcher *SettingsMatcher,
	trigger *LockTrigger,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Correlator {
	return &Correlator{
		config:    config,
		store:     store,
		allowance: allowance,
		matcher:   matcher,
		trigger:   trigger,
		metrics:   m,
		logger:    logger,
		after:     func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// HandleForeground processes one notification to completion, or to the
// hand-off of the delayed settings scan.
func (c *Correlator) HandleForeground(ctx context.Context, ev domain.ForegroundEvent) {
	pkg := ev.Package
	if pkg == "" || pkg == c.config.SelfPackage {
		return
	}
	c.metrics.ForegroundEvents.Inc()

	c.serial.Lock()
	defer c.serial.Unlock()

	c.mu.Lock()
	// Revoke with the identifier tracked before this notification, then
	// track the new one before deciding anything about it.
	if prev := c.previous; prev != "" && prev != pkg {
		c.allowance.Revoke(prev)
	}
	c.previous = pkg
	c.mu.Unlock()

	if pkg == c.config.SettingsPackage {
		c.handleSettings(ctx, pkg)
		return
	}

	locked, err := c.isLocked(ctx, pkg)
	if err != nil {
		c.metrics.StoreErrors.WithLabelValues("locked_set").Inc()
		c.logger.Warn("failed to read locked apps, skipping event",
			zap.String("package", string(pkg)),
			zap.Error(err))
		return
	}
	if !locked || c.allowance.IsAllowed(pkg) {
		return
	}
	c.trigger.Trigger(ctx, pkg, domain.TriggerApp)
}

func (c *Correlator) handleSettings(ctx context.Context, pkg domain.AppID) {
	if !c.settingsGuarded(ctx, pkg) {
		return
	}
	c.after(c.config.SettingsRenderDelay, func() { c.checkSettings(pkg) })
}

// checkSettings runs off the event path. The scan itself is unserialized;
// applying its result holds serial so no foreground event interleaves
// between the still-foreground check and the lock.
func (c *Correlator) checkSettings(pkg domain.AppID) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.MatchTimeout)
	defer cancel()

	if !c.matcher.Matches(ctx) {
		c.logger.Debug("settings screen does not expose this app, not locking")
		return
	}

	c.serial.Lock()
	defer c.serial.Unlock()

	c.mu.Lock()
	stillForeground := c.previous == pkg
	c.mu.Unlock()
	if !stillForeground {
		c.logger.Debug("settings no longer in foreground, not locking")
		return
	}
	if !c.settingsGuarded(ctx, pkg) {
		return
	}
	c.trigger.Trigger(ctx, pkg, domain.TriggerSettings)
}

// settingsGuarded reports whether the settings surface should be inspected:
// protection enabled and the surface not currently allowed.
func (c *Correlator) settingsGuarded(ctx context.Context, pkg domain.AppID) bool {
	protect, err := c.store.ProtectSelf(ctx)
	if err != nil {
		c.metrics.StoreErrors.WithLabelValues("protect_self").Inc()
		c.logger.Warn("failed to read settings protection flag, skipping event", zap.Error(err))
		return false
	}
	return protect && !c.allowance.IsAllowed(pkg)
}

func (c *Correlator) isLocked(ctx context.Context, pkg domain.AppID) (bool, error) {
	locked, err := c.store.LockedSet(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range locked {
		if id == pkg {
			return true, nil
		}
	}
	return false, nil
}

// Foreground returns the currently tracked foreground identifier.
func (c *Correlator) Foreground() domain.AppID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous
}
