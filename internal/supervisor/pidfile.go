package supervisor

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// acquirePIDLock writes the current PID to the file and checks for
// stale locks. Cross-process protection is best-effort; the in-process
// singleton is the supervisor mutex.
func acquirePIDLock(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, err := strconv.Atoi(string(data))
		if err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("another instance is running (PID %d)", pid)
				}
			}
		}
		// Stale PID file — remove it.
		_ = os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600)
}

// releasePIDLock removes the pidfile.
func releasePIDLock(path string) {
	_ = os.Remove(path)
}

// PIDAlive reads the pidfile and probes whether the recorded process
// still exists. Used by the CLI when the HTTP API is unreachable.
func PIDAlive(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	return pid, process.Signal(syscall.Signal(0)) == nil
}
