// Package config loads the optional config.yaml of a vault directory.
//
// Every setting has a default, so a missing file is not an error. The file
// is opened without following symlinks and must not be writable by other
// users; when it carries the MinIO secret key it must not be readable by
// them either.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/chunk"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/docstore"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/kv"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// FileName is the name of the config file inside the vault directory.
const FileName = "config.yaml"

// Environment overrides
const (
	EnvHome        = "IDLOCKER_HOME"
	EnvPassword    = "IDLOCKER_PASSWORD"
	EnvMinioSecret = "IDLOCKER_MINIO_SECRET_KEY"
)

// Asset backends
const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

// DefaultMinFreeBytes is the free disk space kept when ingesting assets.
const DefaultMinFreeBytes = 10 * 1024 * 1024

// Errors
var (
	ErrInvalidConfig  = errors.New("config: invalid configuration")
	ErrConfigInsecure = errors.New("config: config file has insecure permissions")
	ErrConfigSymlink  = errors.New("config: config file is a symlink")
	ErrNotOwnedByUser = errors.New("config: config file not owned by current user")
)

// Config is the content of config.yaml.
type Config struct {
	KV     KVConfig     `yaml:"kv"`
	Vault  VaultConfig  `yaml:"vault"`
	Assets AssetsConfig `yaml:"assets"`
	Log    LogConfig    `yaml:"log"`
}

// KVConfig tunes the secure key-value backend and the document stores.
type KVConfig struct {
	MaxValueSize int           `yaml:"max_value_size"`
	Margin       int           `yaml:"margin"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	Retries      int           `yaml:"retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// VaultConfig tunes the background flusher.
type VaultConfig struct {
	FlushRetryDelay time.Duration `yaml:"flush_retry_delay"`
	FlushTimeout    time.Duration `yaml:"flush_timeout"`
}

// AssetsConfig selects where asset bytes live.
type AssetsConfig struct {
	Backend      string      `yaml:"backend"`
	Dir          string      `yaml:"dir"`
	MinFreeBytes uint64      `yaml:"min_free_bytes"`
	Minio        MinioConfig `yaml:"minio"`
}

// MinioConfig holds the S3-compatible endpoint used by the minio backend.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LogConfig sets the diagnostic log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		KV: KVConfig{
			MaxValueSize: kv.DefaultMaxValueSize,
			Margin:       chunk.DefaultMargin,
			CallTimeout:  docstore.DefaultCallTimeout,
			Retries:      docstore.DefaultRetries,
			RetryBackoff: docstore.DefaultBackoff,
		},
		Vault: VaultConfig{
			FlushRetryDelay: vault.DefaultRetryDelay,
			FlushTimeout:    vault.DefaultFlushTimeout,
		},
		Assets: AssetsConfig{
			Backend:      BackendLocal,
			Dir:          "assets",
			MinFreeBytes: DefaultMinFreeBytes,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Home returns the vault directory: $IDLOCKER_HOME, else ~/.idlocker.
func Home() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".idlocker"), nil
}

// Load reads dir/config.yaml over the defaults and applies environment
// overrides.
func Load(dir string) (*Config, error) {
	cfg := Default()

	f, err := openConfigFile(filepath.Join(dir, FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.applyEnv()
		return cfg, cfg.Validate()
	case err != nil:
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config: failed to stat config file: %w", err)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}
	perm := info.Mode().Perm()
	if perm&0o022 != 0 {
		return nil, fmt.Errorf("%w: %o is writable by others", ErrConfigInsecure, perm)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Assets.Minio.SecretKey != "" && perm&0o077 != 0 {
		return nil, fmt.Errorf("%w: %o (expected 0600 when secret_key is set)", ErrConfigInsecure, perm)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// Save writes cfg to dir/config.yaml with 0600 permissions.
func Save(dir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: failed to marshal config: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("config: failed to write config file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvMinioSecret); v != "" {
		c.Assets.Minio.SecretKey = v
	}
}

// Validate checks value ranges and backend settings.
func (c *Config) Validate() error {
	if c.KV.MaxValueSize <= 0 {
		return fmt.Errorf("%w: kv.max_value_size must be positive", ErrInvalidConfig)
	}
	if c.KV.Margin < 0 || c.KV.Margin >= c.KV.MaxValueSize {
		return fmt.Errorf("%w: kv.margin must be in [0, %d)", ErrInvalidConfig, c.KV.MaxValueSize)
	}
	if c.KV.CallTimeout <= 0 {
		return fmt.Errorf("%w: kv.call_timeout must be positive", ErrInvalidConfig)
	}
	if c.KV.Retries < 0 || c.KV.RetryBackoff < 0 {
		return fmt.Errorf("%w: kv.retries and kv.retry_backoff must not be negative", ErrInvalidConfig)
	}
	if c.Vault.FlushRetryDelay <= 0 || c.Vault.FlushTimeout <= 0 {
		return fmt.Errorf("%w: vault.flush_retry_delay and vault.flush_timeout must be positive", ErrInvalidConfig)
	}

	switch c.Assets.Backend {
	case BackendLocal:
		if c.Assets.Dir == "" {
			return fmt.Errorf("%w: assets.dir is required for the local backend", ErrInvalidConfig)
		}
	case BackendMinio:
		if c.Assets.Minio.Endpoint == "" || c.Assets.Minio.Bucket == "" {
			return fmt.Errorf("%w: assets.minio.endpoint and assets.minio.bucket are required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown assets.backend %q", ErrInvalidConfig, c.Assets.Backend)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// AssetDir resolves assets.dir against the vault directory.
func (c *Config) AssetDir(home string) string {
	if filepath.IsAbs(c.Assets.Dir) {
		return c.Assets.Dir
	}
	return filepath.Join(home, c.Assets.Dir)
}

// SlogLevel maps the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log.level %q", ErrInvalidConfig, l.Level)
	}
}
