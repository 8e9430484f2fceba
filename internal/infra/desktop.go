package infra

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes real system commands.
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Output executes a command and returns its stdout.
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// errNoPID is returned when a window does not advertise _NET_WM_PID.
var errNoPID = errors.New("window has no _NET_WM_PID")

// X11ForegroundSource reports the process owning the active X11 window.
// The identifier of a window is its owner's executable name.
type X11ForegroundSource struct {
	xprop    string
	interval time.Duration
	runner   CommandRunner
	pm       domain.ProcessManager
	logger   *zap.Logger
}

// NewX11ForegroundSource creates a polling foreground source.
func NewX11ForegroundSource(xprop string, interval time.Duration, pm domain.ProcessManager, logger *zap.Logger) *X11ForegroundSource {
	return NewX11ForegroundSourceWithRunner(xprop, interval, pm, &RealCommandRunner{}, logger)
}

// NewX11ForegroundSourceWithRunner creates a foreground source with a custom command runner (for testing).
func NewX11ForegroundSourceWithRunner(xprop string, interval time.Duration, pm domain.ProcessManager, runner CommandRunner, logger *zap.Logger) *X11ForegroundSource {
	if xprop == "" {
		xprop = "xprop"
	}
	return &X11ForegroundSource{
		xprop:    xprop,
		interval: interval,
		runner:   runner,
		pm:       pm,
		logger:   logger,
	}
}

// Watch polls the active window and calls fn whenever it changes.
func (s *X11ForegroundSource) Watch(ctx context.Context, fn func(domain.ForegroundEvent)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var lastWindow string
	for {
		window, pkg, err := s.Active(ctx)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				s.logger.Debug("failed to read active window", zap.Error(err))
			}
		case window != lastWindow:
			lastWindow = window
			fn(domain.ForegroundEvent{Package: pkg, At: time.Now()})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Active returns the active window id and its owner's identifier.
func (s *X11ForegroundSource) Active(ctx context.Context) (window string, pkg domain.AppID, err error) {
	out, err := s.runner.Output(ctx, s.xprop, "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return "", "", fmt.Errorf("xprop failed (no X11?): %w", err)
	}
	window, err = parseActiveWindow(string(out))
	if err != nil {
		return "", "", err
	}

	out, err = s.runner.Output(ctx, s.xprop, "-id", window, "_NET_WM_PID")
	if err != nil {
		return "", "", fmt.Errorf("failed to query _NET_WM_PID of %s: %w", window, err)
	}
	pid, err := parseWMPID(string(out))
	if err != nil {
		return "", "", err
	}
	name, err := s.pm.NameOf(pid)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve process %d: %w", pid, err)
	}
	return window, domain.AppID(name), nil
}

// parseActiveWindow extracts the window id from
// "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007".
func parseActiveWindow(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) < 5 {
		return "", fmt.Errorf("unexpected xprop output %q", strings.TrimSpace(out))
	}
	id := strings.TrimSuffix(fields[4], ",")
	if id == "0x0" {
		return "", domain.ErrNoActiveWindow
	}
	return id, nil
}

// parseWMPID extracts the pid from "_NET_WM_PID(CARDINAL) = 4242".
func parseWMPID(out string) (int, error) {
	_, value, ok := strings.Cut(out, "=")
	if !ok {
		return 0, errNoPID
	}
	pid, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid _NET_WM_PID %q", strings.TrimSpace(value))
	}
	return pid, nil
}

// CommandHomeAction moves the active window out of view with a configured command.
type CommandHomeAction struct {
	argv   []string
	runner CommandRunner
}

// NewCommandHomeAction creates a home action running argv.
func NewCommandHomeAction(argv []string) *CommandHomeAction {
	return NewCommandHomeActionWithRunner(argv, &RealCommandRunner{})
}

// NewCommandHomeActionWithRunner creates a home action with a custom command runner (for testing).
func NewCommandHomeActionWithRunner(argv []string, runner CommandRunner) *CommandHomeAction {
	return &CommandHomeAction{argv: argv, runner: runner}
}

// GoHome implements domain.HomeAction.
func (h *CommandHomeAction) GoHome(ctx context.Context) error {
	if len(h.argv) == 0 {
		return errors.New("no home command configured")
	}
	if err := h.runner.Run(ctx, h.argv[0], h.argv[1:]...); err != nil {
		return fmt.Errorf("home command %s failed: %w", h.argv[0], err)
	}
	return nil
}

// NoopHomeAction is used when no desktop backend is available.
type NoopHomeAction struct{}

// GoHome does nothing.
func (NoopHomeAction) GoHome(ctx context.Context) error { return nil }

// Ensure implementations satisfy their interfaces.
var (
	_ domain.ForegroundSource = (*X11ForegroundSource)(nil)
	_ domain.HomeAction       = (*CommandHomeAction)(nil)
	_ domain.HomeAction       = NoopHomeAction{}
)
