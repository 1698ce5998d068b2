//go:build windows

package daemon

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func diskSpace(path string) (free, total uint64, err error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}

	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, nil); err != nil {
		return 0, 0, fmt.Errorf("failed to query disk space: %w", err)
	}

	return free, total, nil
}
