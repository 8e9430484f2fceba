// Package prompt hands lock targets to the external Lock-Prompt UI.
package prompt

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
)

// Listener delivers one lock target to an attached prompt UI.
type Listener func(target domain.AppID) error

// Mailbox is a single-slot hand-off. When a listener is attached targets are
// pushed to it immediately; otherwise only the most recent target is kept
// and delivered once when a listener attaches.
type Mailbox struct {
	mu         sync.Mutex
	listener   Listener
	generation uint64
	pending    domain.AppID
	hasPending bool

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewMailbox creates an empty mailbox.
func NewMailbox(m *metrics.Metrics, logger *zap.Logger) *Mailbox {
	return &Mailbox{metrics: m, logger: logger}
}

// Present pushes target to the listener, or replaces the pending target.
func (mb *Mailbox) Present(target domain.AppID) error {
	mb.mu.Lock()
	l := mb.listener
	if l == nil {
		if mb.hasPending && mb.pending != target {
			mb.logger.Debug("replacing unconsumed lock target",
				zap.String("previous", string(mb.pending)),
				zap.String("package", string(target)))
		}
		mb.pending = target
		mb.hasPending = true
		mb.mu.Unlock()

		mb.metrics.Prompts.WithLabelValues("queued").Inc()
		mb.logger.Info("prompt UI not listening, lock target pending",
			zap.String("package", string(target)))
		return nil
	}
	mb.mu.Unlock()

	if err := l(target); err != nil {
		mb.metrics.Prompts.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to push lock target %s: %w", target, err)
	}
	mb.metrics.Prompts.WithLabelValues("push").Inc()
	mb.logger.Debug("sent lock target to prompt UI", zap.String("package", string(target)))
	return nil
}

// Attach installs l as the listener, replacing any previous one, and drains
// the pending target into it. The returned function detaches l; it is a no-op
// once another listener has been attached.
func (mb *Mailbox) Attach(l Listener) (detach func()) {
	mb.mu.Lock()
	mb.generation++
	gen := mb.generation
	mb.listener = l
	target, drain := mb.pending, mb.hasPending
	mb.pending, mb.hasPending = "", false
	mb.mu.Unlock()

	mb.metrics.PromptListeners.Set(1)

	if drain {
		if err := l(target); err != nil {
			mb.metrics.Prompts.WithLabelValues("failed").Inc()
			mb.logger.Warn("failed to send pending lock target",
				zap.String("package", string(target)),
				zap.Error(err))
		} else {
			mb.metrics.Prompts.WithLabelValues("drained").Inc()
			mb.logger.Info("sent pending lock target to prompt UI",
				zap.String("package", string(target)))
		}
	}

	return func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		if mb.generation != gen {
			return
		}
		mb.listener = nil
		mb.metrics.PromptListeners.Set(0)
	}
}

// Listening reports whether a prompt UI is attached.
func (mb *Mailbox) Listening() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.listener != nil
}

// Pending returns the unconsumed target, if any.
func (mb *Mailbox) Pending() (domain.AppID, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.pending, mb.hasPending
}

// Ensure Mailbox implements domain.LockPrompter.
var _ domain.LockPrompter = (*Mailbox)(nil)
