//go:build windows

package config

import (
	"errors"
	"fmt"
	"os"
)

// openConfigFile opens the config file. Windows has no O_NOFOLLOW; creating
// symlinks there requires special privileges.
func openConfigFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("config: failed to open config file: %w", err)
	}
	return f, nil
}

// checkFileOwnership is a no-op; Windows uses ACLs.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
