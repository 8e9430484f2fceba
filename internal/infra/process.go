// Package infra implements the platform side of the lock engine: the
// encrypted store, foreground and screen sources, accessibility reader and
// process helpers.
package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// NameOf returns the executable name of pid.
func (pm *ProcessManagerImpl) NameOf(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Name()
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

const linuxBootIDPath = "/proc/sys/kernel/random/boot_id"

// HostInfoImpl implements domain.HostInfo. It prefers the kernel boot id and
// falls back to the gopsutil boot time where that file does not exist.
type HostInfoImpl struct {
	bootIDPath string
}

// NewHostInfo creates a host info reader.
func NewHostInfo() domain.HostInfo {
	return HostInfoImpl{bootIDPath: linuxBootIDPath}
}

// BootID returns an identifier that changes on every boot and nowhere else.
func (h HostInfoImpl) BootID() (string, error) {
	if h.bootIDPath != "" {
		raw, err := os.ReadFile(h.bootIDPath)
		if err == nil {
			if id := strings.TrimSpace(string(raw)); id != "" {
				return id, nil
			}
		}
	}

	// btime shifts when the wall clock is stepped.
	boot, err := host.BootTime()
	if err != nil {
		return "", fmt.Errorf("failed to read boot time: %w", err)
	}
	return strconv.FormatUint(boot, 10), nil
}

// Ensure the implementations satisfy their interfaces.
var (
	_ domain.ProcessManager = (*ProcessManagerImpl)(nil)
	_ domain.HostInfo       = HostInfoImpl{}
)
