package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
)

// memStore implements EngineStore in memory with failure injection.
type memStore struct {
	mu      sync.Mutex
	locked  []domain.AppID
	protect bool
	allowed []domain.AppID
	left    []domain.AppID
	bootID  string
	saves   int

	lockedErr  error
	protectErr error
	loadErr    error
	saveErr    error
}

func newMemStore(locked ...domain.AppID) *memStore {
	return &memStore{locked: locked, protect: true}
}

func (s *memStore) LockedSet(ctx context.Context) ([]domain.AppID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockedErr != nil {
		return nil, s.lockedErr
	}
	return append([]domain.AppID(nil), s.locked...), nil
}

func (s *memStore) SetLockedSet(ctx context.Context, ids []domain.AppID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = append([]domain.AppID(nil), ids...)
	return nil
}

func (s *memStore) ProtectSelf(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protect, s.protectErr
}

func (s *memStore) SetProtectSelf(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protect = enabled
	return nil
}

func (s *memStore) LoadAllowances(ctx context.Context) ([]domain.AppID, []domain.AppID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, nil, s.loadErr
	}
	return append([]domain.AppID(nil), s.allowed...), append([]domain.AppID(nil), s.left...), nil
}

func (s *memStore) SaveAllowances(ctx context.Context, allowed, left []domain.AppID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.allowed = append([]domain.AppID(nil), allowed...)
	s.left = append([]domain.AppID(nil), left...)
	return nil
}

func (s *memStore) BootID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootID, nil
}

func (s *memStore) SetBootID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootID = id
	return nil
}

func (s *memStore) persisted() (allowed, left []domain.AppID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AppID(nil), s.allowed...), append([]domain.AppID(nil), s.left...)
}

func (s *memStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// scheduler collects delayed callbacks so tests decide when they run.
type scheduler struct {
	mu    sync.Mutex
	funcs []func()
	delay []time.Duration
}

func (s *scheduler) after(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs = append(s.funcs, f)
	s.delay = append(s.delay, d)
}

// runAll runs every queued callback in order and clears the queue.
func (s *scheduler) runAll() {
	s.mu.Lock()
	funcs := s.funcs
	s.funcs, s.delay = nil, nil
	s.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.funcs)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testDeps() (*metrics.Metrics, *zap.Logger) {
	return metrics.New(), zap.NewNop()
}
