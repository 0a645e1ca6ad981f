// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path so a crash leaves either the old
// file or the complete new one, never a partial write: the data goes to
// a temp file in the same directory, is fsynced, then renamed over the
// target.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return AtomicWriteFileWithDir(path, data, perm, 0755)
}

// AtomicWriteFileWithDir is AtomicWriteFile with control over the
// permissions of a parent directory created along the way. The store
// uses this to keep transcript directories owner-only.
func AtomicWriteFileWithDir(path string, data []byte, filePerm, dirPerm os.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Temp file must live in the target directory: rename is only atomic
	// within one filesystem.
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	cleanup := func(cause string, err error) error {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to %s: %w", cause, err)
	}

	if _, err := f.Write(data); err != nil {
		return cleanup("write data", err)
	}
	// Data must reach disk before the rename makes it the real file.
	if err := f.Sync(); err != nil {
		return cleanup("sync data to disk", err)
	}
	if err := f.Close(); err != nil {
		return cleanup("close temp file", err)
	}
	if err := os.Chmod(tempPath, filePerm); err != nil {
		return cleanup("set file permissions", err)
	}
	if err := os.Rename(tempPath, absPath); err != nil {
		return cleanup("rename temp file", err)
	}
	return nil
}
