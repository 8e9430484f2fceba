package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Spawner starts a detached daemon process for a role.
type Spawner interface {
	Spawn(role domain.DaemonRole) error
}

// ExecSpawner re-executes the applock binary in daemon mode.
type ExecSpawner struct {
	executable string
	configPath string
}

// NewExecSpawner creates a spawner for the running executable.
// configPath is forwarded so restarted daemons load the same configuration.
func NewExecSpawner(configPath string) (*ExecSpawner, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	return NewExecSpawnerWithPath(executable, configPath), nil
}

// NewExecSpawnerWithPath creates a spawner for a specific binary.
func NewExecSpawnerWithPath(executable, configPath string) *ExecSpawner {
	return &ExecSpawner{executable: executable, configPath: configPath}
}

// Command builds the daemon command line: applock daemon --role <role> [--config <path>].
func (s *ExecSpawner) Command(role domain.DaemonRole) *exec.Cmd {
	args := []string{"daemon", "--role", string(role)}
	if s.configPath != "" {
		args = append(args, "--config", s.configPath)
	}
	cmd := exec.Command(s.executable, args...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}

// Spawn starts the daemon and reaps it in the background so a killed child
// does not linger as a zombie that still looks alive.
func (s *ExecSpawner) Spawn(role domain.DaemonRole) error {
	cmd := s.Command(role)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", role, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// StartBothDaemons starts the watcher and then the guardian.
func StartBothDaemons(s Spawner) error {
	if err := s.Spawn(domain.RoleWatcher); err != nil {
		return err
	}
	return s.Spawn(domain.RoleGuardian)
}
