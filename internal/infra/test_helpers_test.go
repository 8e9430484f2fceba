package infra

import (
	"context"
	"fmt"
	"os"
	"testing"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	names       map[int]string
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	name, ok := m.names[pid]
	if !ok {
		return "", fmt.Errorf("process %d not found", pid)
	}
	return name, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

func (m *mockProcessManager) SetName(pid int, name string) {
	m.names[pid] = name
}

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context, which needs Go 1.24).
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
