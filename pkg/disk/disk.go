// Package disk reports free space on the volume holding a path.
package disk

import (
	"errors"
	"fmt"
)

// ErrInsufficient is returned by Check when the volume is too full.
var ErrInsufficient = errors.New("disk: insufficient disk space")

// Info contains disk usage information.
type Info struct {
	Total     uint64 `json:"total"`
	Free      uint64 `json:"free"`
	Available uint64 `json:"available"` // to non-root users
	UsedPct   int    `json:"used_pct"`
}

func newInfo(total, free, available uint64) *Info {
	usedPct := 0
	if total > 0 {
		usedPct = int(100 * (total - free) / total)
	}
	return &Info{Total: total, Free: free, Available: available, UsedPct: usedPct}
}

// Check requires room for need bytes plus minFree on the volume of path.
func Check(path string, need int64, minFree uint64) error {
	info, err := Space(path)
	if err != nil {
		return err
	}
	required := minFree
	if need > 0 {
		required += uint64(need)
	}
	if info.Available < required {
		return fmt.Errorf("%w: %d MB available, need %d MB",
			ErrInsufficient, info.Available/(1024*1024), required/(1024*1024))
	}
	return nil
}
