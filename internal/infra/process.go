package infra

import (
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/studyfocus/focusmon/internal/domain"
)

// GopsutilProcessManager implements domain.ProcessManager using gopsutil.
type GopsutilProcessManager struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &GopsutilProcessManager{}
}

// FindByName returns PIDs of processes matching the pattern (case-insensitive).
func (pm *GopsutilProcessManager) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	patternLower := strings.ToLower(pattern)

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.Contains(strings.ToLower(name), patternLower) {
			found = append(found, int(p.Pid))
		}
	}

	return found, nil
}

// IsRunning checks if a PID exists and is running.
func (pm *GopsutilProcessManager) IsRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

// GetCurrentPID returns the current process PID.
func (pm *GopsutilProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

var _ domain.ProcessManager = (*GopsutilProcessManager)(nil)
