//go:build windows

package storage

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/enmassa-dl/enmassa/pkg/errors"
)

// AvailableSpace returns the number of bytes available to the current user
// on the volume holding path.
func AvailableSpace(path string) (int64, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, fmt.Errorf("encoding path %s: %w", path, err)
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64

	err = windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes)
	if err != nil {
		return 0, fmt.Errorf("querying free space for %s: %w", path, err)
	}

	return int64(freeBytesAvailable), nil
}

// CheckAvailableSpace fails when the volume holding path has less than
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
