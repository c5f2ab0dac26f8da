package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("failed to chmod config file: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.KV.MaxValueSize != 2048 || cfg.KV.Margin != 128 {
		t.Errorf("unexpected kv defaults: %+v", cfg.KV)
	}
	if cfg.Assets.Backend != BackendLocal || cfg.Assets.Dir != "assets" {
		t.Errorf("unexpected asset defaults: %+v", cfg.Assets)
	}
	if cfg.Vault.FlushRetryDelay != 2*time.Second {
		t.Errorf("FlushRetryDelay = %v, want 2s", cfg.Vault.FlushRetryDelay)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `kv:
  call_timeout: 750ms
  retries: 5
log:
  level: debug
`, 0600)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.KV.CallTimeout != 750*time.Millisecond {
		t.Errorf("CallTimeout = %v, want 750ms", cfg.KV.CallTimeout)
	}
	if cfg.KV.Retries != 5 {
		t.Errorf("Retries = %d, want 5", cfg.KV.Retries)
	}
	if cfg.KV.MaxValueSize != 2048 {
		t.Errorf("MaxValueSize = %d, want default 2048", cfg.KV.MaxValueSize)
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, %v", level, err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"margin above ceiling", "kv:\n  max_value_size: 100\n  margin: 100\n"},
		{"zero timeout", "kv:\n  call_timeout: 0s\n"},
		{"unknown backend", "assets:\n  backend: ftp\n"},
		{"minio without bucket", "assets:\n  backend: minio\n  minio:\n    endpoint: localhost:9000\n"},
		{"unknown level", "log:\n  level: chatty\n"},
		{"malformed yaml", "kv: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content, 0600)
			if _, err := Load(dir); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}

	dir := t.TempDir()
	writeConfig(t, dir, "log:\n  level: info\n", 0o666)
	if _, err := Load(dir); !errors.Is(err, ErrConfigInsecure) {
		t.Errorf("expected ErrConfigInsecure for world-writable file, got %v", err)
	}

	writeConfig(t, dir, "log:\n  level: info\n", 0o644)
	if _, err := Load(dir); err != nil {
		t.Errorf("readable file without secrets should load: %v", err)
	}

	writeConfig(t, dir, `assets:
  backend: minio
  minio:
    endpoint: localhost:9000
    bucket: idlocker
    secret_key: hunter2
`, 0o644)
	if _, err := Load(dir); !errors.Is(err, ErrConfigInsecure) {
		t.Errorf("expected ErrConfigInsecure for readable secret, got %v", err)
	}
}

func TestLoad_Symlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "real.yaml")
	if err := os.WriteFile(target, []byte("log:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(dir, FileName)); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrConfigSymlink) {
		t.Errorf("expected ErrConfigSymlink, got %v", err)
	}
}

func TestLoad_EnvSecretOverride(t *testing.T) {
	t.Setenv(EnvMinioSecret, "from-env")
	dir := t.TempDir()
	writeConfig(t, dir, `assets:
  backend: minio
  minio:
    endpoint: localhost:9000
    bucket: idlocker
`, 0600)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Assets.Minio.SecretKey != "from-env" {
		t.Errorf("SecretKey = %q, want from-env", cfg.Assets.Minio.SecretKey)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.KV.CallTimeout = 3 * time.Second
	abs := filepath.Join(t.TempDir(), "blobs")
	cfg.Assets.Dir = abs
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.KV.CallTimeout != 3*time.Second {
		t.Errorf("CallTimeout = %v, want 3s", got.KV.CallTimeout)
	}
	if got.AssetDir(dir) != abs {
		t.Errorf("AssetDir() = %q, want %q", got.AssetDir(dir), abs)
	}
	if Default().AssetDir(dir) != filepath.Join(dir, "assets") {
		t.Errorf("relative AssetDir not joined with home")
	}
}

func TestHome(t *testing.T) {
	t.Setenv(EnvHome, "/tmp/custom-vault")
	home, err := Home()
	if err != nil {
		t.Fatalf("Home failed: %v", err)
	}
	if home != "/tmp/custom-vault" {
		t.Errorf("Home() = %q", home)
	}
}
