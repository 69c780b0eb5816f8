package bridge

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// WritePIDFile records the current process id. An empty path is a no-op.
func WritePIDFile(path string) error {
	if path == "" {
		return nil
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", path, err)
	}
	return nil
}

// RemovePIDFile deletes the PID file, ignoring a missing one.
func RemovePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file %s: %w", path, err)
	}
	return nil
}

// ReadPIDFile returns the process id stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("PID file %s does not hold a process id", path)
	}
	return pid, nil
}

// Signal sends sig to the bridge whose id is stored at path.
func Signal(path string, sig syscall.Signal) (int, error) {
	pid, err := ReadPIDFile(path)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return pid, fmt.Errorf("signal %d: %w", pid, err)
	}
	return pid, nil
}

// Alive reports whether the process recorded at path is running.
func Alive(path string) (int, bool) {
	pid, err := Signal(path, 0)
	if err != nil {
		// EPERM means the process exists but belongs to someone else.
		return pid, pid > 0 && errors.Is(err, syscall.EPERM)
	}
	return pid, true
}
