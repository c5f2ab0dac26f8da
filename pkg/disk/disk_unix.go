//go:build !windows

package disk

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Space returns usage of the file system holding path. When path does
// not exist yet its parent is inspected.
func Space(path string) (*Info, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(path), &stat); err != nil {
			return nil, fmt.Errorf("disk: failed to get disk stats: %w", err)
		}
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	return newInfo(total, free, stat.Bavail*uint64(stat.Bsize)), nil
}
