// Package usecase contains the lock engine: foreground correlation, settings
// matching, debounced triggering and the allowance lifecycle.
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
)

// storeWriteTimeout bounds a single allowance persistence write.
const storeWriteTimeout = 2 * time.Second

// Allowance tracks which identifiers are exempt from prompting.
//
// The in-memory sets are authoritative. Every mutation writes both sets to
// the store; a failed write leaves the state dirty and the next mutation
// writes the full state again.
type Allowance struct {
	mu      sync.RWMutex
	allowed map[domain.AppID]struct{}
	left    map[domain.AppID]struct{}
	dirty   bool

	store   domain.AllowanceStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewAllowance creates an empty allowance lifecycle backed by store.
func NewAllowance(store domain.AllowanceStore, m *metrics.Metrics, logger *zap.Logger) *Allowance {
	return &Allowance{
		allowed: make(map[domain.AppID]struct{}),
		left:    make(map[domain.AppID]struct{}),
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// Load replaces the in-memory sets with the persisted ones.
// Called on engine start so a restarted process keeps earlier unlocks.
func (a *Allowance) Load(ctx context.Context) error {
	allowed, left, err := a.store.LoadAllowances(ctx)
	if err != nil {
		a.metrics.StoreErrors.WithLabelValues("load_allowances").Inc()
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowed = toSet(allowed)
	a.left = toSet(left)
	a.dirty = false
	return nil
}

// IsAllowed reports whether id is currently exempt from prompting.
func (a *Allowance) IsAllowed(id domain.AppID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.allowed[id]
	return ok
}

// Allow records a successful unlock of id.
func (a *Allowance) Allow(id domain.AppID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.allowed[id] = struct{}{}
	delete(a.left, id)
	a.metrics.Unlocks.Inc()
	a.logger.Info("unlock succeeded, allowing until leave or screen off",
		zap.String("package", string(id)))
	a.persistLocked()
}

// Revoke withdraws the allowance of an app the user just left.
// It returns false, and writes nothing, when id was not allowed.
func (a *Allowance) Revoke(id domain.AppID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.allowed[id]; !ok {
		return false
	}
	delete(a.allowed, id)
	a.left[id] = struct{}{}
	a.metrics.Revocations.WithLabelValues(string(domain.RevokeLeft)).Inc()
	a.logger.Info("user left unlocked app, prompt required on next open",
		zap.String("package", string(id)))
	a.persistLocked()
	return true
}

// ScreenOff clears every allowance and the left set unconditionally.
func (a *Allowance) ScreenOff() {
	a.clear(domain.RevokeScreenOff)
}

// ResetForBoot clears all allowances because the device rebooted.
func (a *Allowance) ResetForBoot() {
	a.clear(domain.RevokeBoot)
}

func (a *Allowance) clear(reason domain.RevokeReason) {
	a.mu.Lock()
	defer a.mu.Unlock()

	revoked := len(a.allowed)
	a.allowed = make(map[domain.AppID]struct{})
	a.left = make(map[domain.AppID]struct{})
	a.metrics.Revocations.WithLabelValues(string(reason)).Add(float64(revoked))
	a.logger.Info("revoked all allowed apps",
		zap.String("reason", string(reason)),
		zap.Int("revoked", revoked))
	a.persistLocked()
}

// Snapshot returns sorted copies of both sets.
func (a *Allowance) Snapshot() domain.AllowanceSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return domain.AllowanceSnapshot{
		Allowed: sortedIDs(a.allowed),
		Left:    sortedIDs(a.left),
	}
}

// persistLocked writes both sets. Caller must hold a.mu.
func (a *Allowance) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	if err := a.store.SaveAllowances(ctx, sortedIDs(a.allowed), sortedIDs(a.left)); err != nil {
		a.dirty = true
		a.metrics.StoreErrors.WithLabelValues("save_allowances").Inc()
		a.logger.Warn("failed to persist allowances, will retry on next change",
			zap.Error(err))
		return
	}
	if a.dirty {
		a.logger.Info("allowances persisted after earlier failure")
	}
	a.dirty = false
}

// Dirty reports whether the last write failed.
func (a *Allowance) Dirty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dirty
}

func toSet(ids []domain.AppID) map[domain.AppID]struct{} {
	set := make(map[domain.AppID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedIDs(set map[domain.AppID]struct{}) []domain.AppID {
	ids := make([]domain.AppID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
