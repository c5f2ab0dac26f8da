package disk

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSpace(t *testing.T) {
	info, err := Space(filepath.Join(t.TempDir(), "not-yet-created"))
	if err != nil {
		t.Fatalf("Space() error = %v", err)
	}
	if info.Total == 0 {
		t.Error("Space() reported a zero-sized volume")
	}
	if info.UsedPct < 0 || info.UsedPct > 100 {
		t.Errorf("UsedPct = %d, want 0..100", info.UsedPct)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	if err := Check(dir, 1, 0); err != nil {
		t.Errorf("Check() with no reserve error = %v", err)
	}
	if err := Check(dir, 1, ^uint64(0)>>1); !errors.Is(err, ErrInsufficient) {
		t.Errorf("Check() with huge reserve error = %v, want ErrInsufficient", err)
	}
}
