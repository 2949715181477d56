//go:build !windows

// Copyright 2025 Takhin Data, Inc.

package log

import (
	"fmt"
	"os"
	"syscall"
)

// lockFile acquires an exclusive advisory lock on f for the lifetime of the segment.
func lockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("lock %s: %w", f.Name(), err)
	}
	return nil
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
