package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
)

// TriggerConfig holds the debounced lock trigger timings.
type TriggerConfig struct {
	DebounceWindow time.Duration // Same target within this window is ignored
	PromptDelay    time.Duration // Wait between home action and prompt
	ActionTimeout  time.Duration // Bound for the home action
}

// DefaultTriggerConfig returns default trigger configuration.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		DebounceWindow: 800 * time.Millisecond,
		PromptDelay:    80 * time.Millisecond,
		ActionTimeout:  2 * time.Second,
	}
}

// LockTrigger neutralizes the foreground app and then surfaces the lock
// prompt, absorbing duplicate notifications for the same target.
//
// The last PendingTrigger is kept behind an atomic pointer. A delayed prompt
// only fires if its trigger is still the latest one.
type LockTrigger struct {
	config   TriggerConfig
	home     domain.HomeAction
	prompter domain.LockPrompter
	metrics  *metrics.Metrics
	logger   *zap.Logger

	last  atomic.Pointer[domain.PendingTrigger]
	now   func() time.Time
	after func(time.Duration, func())
}

// NewLockTrigger creates a new debounced lock trigger.
func NewLockTrigger(
	config TriggerConfig,
	home domain.HomeAction,
	prompter domain.LockPrompter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *LockTrigger {
	return &LockTrigger{
		config:   config,
		home:     home,
		prompter: prompter,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		after:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Trigger locks target. It returns false when the call was debounced.
func (t *LockTrigger) Trigger(ctx context.Context, target domain.AppID, kind domain.TriggerKind) bool {
	now := t.now()

	var next *domain.PendingTrigger
	for {
		prev := t.last.Load()
		if prev != nil && prev.Target == target && now.Sub(prev.At) < t.config.DebounceWindow {
			t.metrics.Debounced.Inc()
			t.logger.Debug("lock trigger debounced",
				zap.String("package", string(target)),
				zap.Duration("since_last", now.Sub(prev.At)))
			return false
		}
		next = &domain.PendingTrigger{ID: uuid.NewString(), Target: target, At: now}
		if t.last.CompareAndSwap(prev, next) {
			break
		}
	}

	t.metrics.Triggers.WithLabelValues(string(kind)).Inc()
	t.logger.Info("locked app opened, blocking and showing lock screen",
		zap.String("package", string(target)),
		zap.String("kind", string(kind)),
		zap.String("trigger_id", next.ID))

	homeCtx, cancel := context.WithTimeout(ctx, t.config.ActionTimeout)
	if err := t.home.GoHome(homeCtx); err != nil {
		t.logger.Warn("failed to return to home",
			zap.String("trigger_id", next.ID),
			zap.Error(err))
	}
	cancel()

	pending := next
	t.after(t.config.PromptDelay, func() { t.present(pending) })
	return true
}

// present hands the target to the prompt UI unless a newer trigger replaced it.
func (t *LockTrigger) present(p *domain.PendingTrigger) {
	if cur := t.last.Load(); cur == nil || cur.ID != p.ID {
		t.metrics.Superseded.Inc()
		t.logger.Debug("lock prompt superseded by newer trigger",
			zap.String("package", string(p.Target)),
			zap.String("trigger_id", p.ID))
		return
	}

	if err := t.prompter.Present(p.Target); err != nil {
		t.logger.Warn("failed to present lock prompt",
			zap.String("package", string(p.Target)),
			zap.String("trigger_id", p.ID),
			zap.Error(err))
	}
}

// Pending returns a copy of the most recent trigger, or nil.
func (t *LockTrigger) Pending() *domain.PendingTrigger {
	p := t.last.Load()
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
