//go:build linux || darwin || freebsd

package daemon

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func diskSpace(path string) (free, total uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	bsize := uint64(st.Bsize)
	return uint64(st.Bavail) * bsize, uint64(st.Blocks) * bsize, nil
}
