//go:build !windows

// Package storage checks destination filesystems before a run starts.
package storage

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/enmassa-dl/enmassa/pkg/errors"
)

// AvailableSpace returns the number of bytes available to the current user
// on the filesystem holding path.
func AvailableSpace(path string) (int64, error) {
	var stat unix.Statfs_t

	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}

	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// CheckAvailableSpace fails when the filesystem holding path has less than
// required bytes free. Used as a setup-time gate before any task starts.
func CheckAvailableSpace(path string, required int64) error {
	if required <= 0 {
		return nil
	}

	available, err := AvailableSpace(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeFilesystem, "checking destination free space")
	}

	if available < required {
		return errors.Wrap(errors.ErrInsufficientSpace, errors.CodeInsufficientSpace,
			fmt.Sprintf("destination has %d bytes free, need %d", available, required))
	}

	return nil
}
