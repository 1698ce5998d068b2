//go:build !linux && !darwin && !freebsd && !windows

package daemon

import "errors"

func diskSpace(string) (uint64, uint64, error) {
	return 0, 0, errors.New("free space not supported on this platform")
}
