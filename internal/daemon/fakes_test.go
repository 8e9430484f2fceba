package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

type fakeRegistry struct {
	mu          sync.Mutex
	registered  []domain.Daemon
	heartbeats  int
	alive       bool
	aliveErr    error
	registerErr error
}

func (r *fakeRegistry) Register(ctx context.Context, d domain.Daemon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return r.registerErr
	}
	r.registered = append(r.registered, d)
	return nil
}

func (r *fakeRegistry) GetPartner(ctx context.Context, role domain.DaemonRole) (*domain.Daemon, error) {
	return nil, domain.ErrNotRegistered
}

func (r *fakeRegistry) UpdateHeartbeat(ctx context.Context, role domain.DaemonRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats++
	return nil
}

func (r *fakeRegistry) IsPartnerAlive(ctx context.Context, role domain.DaemonRole) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive, r.aliveErr
}

func (r *fakeRegistry) GetAll(ctx context.Context) (*domain.RegistryEntry, error) {
	return nil, nil
}

func (r *fakeRegistry) registeredRoles() []domain.DaemonRole {
	r.mu.Lock()
	defer r.mu.Unlock()
	var roles []domain.DaemonRole
	for _, d := range r.registered {
		roles = append(roles, d.Role)
	}
	return roles
}

type fakeSpawner struct {
	mu      sync.Mutex
	spawned []domain.DaemonRole
	err     error
	failOn  domain.DaemonRole
}

func (s *fakeSpawner) Spawn(role domain.DaemonRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawned = append(s.spawned, role)
	if s.err != nil && (s.failOn == "" || s.failOn == role) {
		return s.err
	}
	return nil
}

func (s *fakeSpawner) roles() []domain.DaemonRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DaemonRole(nil), s.spawned...)
}

type fakeEngine struct {
	mu         sync.Mutex
	initErr    error
	inits      int
	events     []domain.AppID
	screenOffs int
}

func (e *fakeEngine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inits++
	return e.initErr
}

func (e *fakeEngine) HandleForeground(ctx context.Context, ev domain.ForegroundEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev.Package)
}

func (e *fakeEngine) ScreenOff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.screenOffs++
}

func (e *fakeEngine) snapshot() (inits int, events []domain.AppID, screenOffs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inits, append([]domain.AppID(nil), e.events...), e.screenOffs
}

// scriptedForeground emits its events once, then waits for cancellation.
type scriptedForeground struct {
	events []domain.AppID
}

func (f scriptedForeground) Watch(ctx context.Context, fn func(domain.ForegroundEvent)) error {
	for _, id := range f.events {
		fn(domain.ForegroundEvent{Package: id})
	}
	<-ctx.Done()
	return ctx.Err()
}

type scriptedScreen struct {
	offs int
	err  error
}

func (s scriptedScreen) WatchScreenOff(ctx context.Context, fn func()) error {
	if s.err != nil {
		return s.err
	}
	for i := 0; i < s.offs; i++ {
		fn()
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeAPI struct {
	err error
}

func (a fakeAPI) Run(ctx context.Context) error {
	if a.err != nil {
		return a.err
	}
	<-ctx.Done()
	return nil
}

var errBoom = errors.New("boom")

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context, which needs Go 1.24).
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
