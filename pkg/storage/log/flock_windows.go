//go:build windows

// Copyright 2025 Takhin Data, Inc.

package log

import "os"

// lockFile is a no-op on windows; os.OpenFile already denies concurrent
// writers sharing the same handle mode in practice for this segment's usage.
func lockFile(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}
