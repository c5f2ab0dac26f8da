// Package app wires the vault components of one vault directory together.
//
// An App owns the directory for the lifetime of the process (guarded by a
// file lock), opens the encrypted key-value store and the asset index, and
// keeps the item manager, category registry and settings in step with the
// master-password gate: unlocking installs the data key and loads every
// document, locking saves pending items and then drops the key.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/config"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/asset"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/audit"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/docstore"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/kv"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/lock"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/settings"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// Files inside the vault directory
const (
	StoreFileName = "vault.db"
	IndexFileName = "assets.db"
	LockFileName  = ".idlocker.lock"
	AuditDirName  = "audit"
	SpoolDirName  = "tmp"

	// ItemsPrefix is the key prefix of the item document.
	ItemsPrefix = "vault.items"
)

// Errors
var (
	ErrVaultBusy      = errors.New("app: vault is in use by another process")
	ErrItemNotFound   = errors.New("app: item not found")
	ErrUnknownType    = errors.New("app: unknown item type")
	ErrNotInitialized = lock.ErrGateNotFound
)

// App is an open vault directory.
type App struct {
	Home   string
	Config *config.Config

	Gate       *lock.PasswordGate
	Vault      *vault.Manager
	Assets     *asset.Store
	Categories *category.Registry
	Settings   *settings.Service
	Audit      *audit.Journal
	AutoLock   *lock.AutoLock

	logger   *slog.Logger
	source   string
	fileLock *flock.Flock
	store    *kv.SQLite
	index    *asset.Index

	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the diagnostic logger of every component.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithSource sets the caller recorded in the audit journal.
func WithSource(source string) Option {
	return func(a *App) { a.source = source }
}

// Open locks the vault directory home for this process and wires the
// components. The vault starts locked.
func Open(ctx context.Context, home string, opts ...Option) (a *App, err error) {
	a = &App{Home: home, logger: slog.Default(), source: audit.SourceCLI}
	for _, opt := range opts {
		opt(a)
	}

	if err := os.MkdirAll(home, lock.DirMode); err != nil {
		return nil, fmt.Errorf("app: failed to create vault directory: %w", err)
	}
	a.Config, err = config.Load(home)
	if err != nil {
		return nil, err
	}

	a.fileLock = flock.New(filepath.Join(home, LockFileName))
	locked, err := a.fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("app: failed to lock vault directory: %w", err)
	}
	if !locked {
		return nil, ErrVaultBusy
	}
	defer func() {
		if err != nil {
			if a.Vault != nil {
				_ = a.Vault.Close(ctx)
			}
			a.release()
		}
	}()

	if err := a.wire(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	var err error

	a.store, err = kv.OpenSQLite(filepath.Join(a.Home, StoreFileName), cfg.KV.MaxValueSize)
	if err != nil {
		return err
	}
	docOpts := []docstore.Option{
		docstore.WithMargin(cfg.KV.Margin),
		docstore.WithCallTimeout(cfg.KV.CallTimeout),
		docstore.WithRetries(cfg.KV.Retries, cfg.KV.RetryBackoff),
		docstore.WithLogger(a.logger),
	}

	items, err := docstore.New(a.store, ItemsPrefix, func() []vault.Item { return nil }, docOpts...)
	if err != nil {
		return err
	}
	a.Vault = vault.NewManager(items,
		vault.WithLogger(a.logger),
		vault.WithRetryDelay(cfg.Vault.FlushRetryDelay),
		vault.WithFlushTimeout(cfg.Vault.FlushTimeout),
	)

	cats, err := docstore.New(a.store, category.DocumentPrefix, category.Defaults, docOpts...)
	if err != nil {
		return err
	}
	a.Categories = category.NewRegistry(cats, a.Vault, category.WithLogger(a.logger))

	prefs, err := docstore.New(a.store, settings.DocumentPrefix, settings.Defaults, docOpts...)
	if err != nil {
		return err
	}
	a.Settings = settings.NewService(prefs, a.logger)

	if err := a.openAssets(ctx); err != nil {
		return err
	}

	a.Audit = audit.New(filepath.Join(a.Home, AuditDirName), audit.WithLogger(a.logger))
	a.Gate = lock.NewPasswordGate(a.Home, lock.WithLogger(a.logger))
	a.AutoLock = lock.NewAutoLock(a.Gate, settings.Defaults().AutoLock())
	a.Settings.OnChange(func(s settings.AppSettings) {
		if !a.Gate.Locked() {
			a.AutoLock.SetTimeout(s.AutoLock())
		}
	})
	a.unsubscribe = a.Gate.Subscribe(a.onLockChange)
	return nil
}

func (a *App) openAssets(ctx context.Context) error {
	cfg := a.Config
	var err error
	a.index, err = asset.OpenIndex(filepath.Join(a.Home, IndexFileName))
	if err != nil {
		return err
	}

	spool := filepath.Join(a.Home, SpoolDirName)
	if err := os.MkdirAll(spool, lock.DirMode); err != nil {
		return fmt.Errorf("app: failed to create spool directory: %w", err)
	}
	opts := []asset.Option{asset.WithLogger(a.logger), asset.WithSpoolDir(spool)}

	var blobs asset.Blobs
	switch cfg.Assets.Backend {
	case config.BackendMinio:
		m := cfg.Assets.Minio
		blobs, err = asset.NewMinioBlobs(ctx, asset.MinioConfig{
			Endpoint:        m.Endpoint,
			AccessKeyID:     m.AccessKey,
			SecretAccessKey: m.SecretKey,
			Bucket:          m.Bucket,
			Region:          m.Region,
			UseSSL:          m.UseSSL,
		}, a.logger)
	default:
		dir := cfg.AssetDir(a.Home)
		blobs, err = asset.NewLocalBlobs(dir)
		opts = append(opts, asset.WithDiskCheck(dir, cfg.Assets.MinFreeBytes))
	}
	if err != nil {
		return err
	}
	a.Assets = asset.NewStore(a.index, blobs, a.Vault, opts...)
	return nil
}

// onLockChange runs synchronously inside the gate's Unlock and Lock.
func (a *App) onLockChange(locked bool) {
	if locked {
		a.AutoLock.Stop()
		// Pending items are written before the key goes away.
		a.Vault.HandleLockChange(context.Background(), true)
		a.store.ClearKey()
		a.Audit.ClearKey()
		return
	}

	dek, err := a.Gate.DataKey()
	if err != nil {
		a.logger.Error("unlock notification without data key", "error", err)
		return
	}
	defer crypto.SecureWipe(dek)
	if err := a.store.SetKey(dek); err != nil {
		a.logger.Error("failed to install data key", "error", err)
		return
	}
	if err := a.Audit.SetKey(dek); err != nil {
		a.logger.Warn("audit journal unavailable", "error", err)
	}

	ctx := context.Background()
	a.Vault.HandleLockChange(ctx, false)
	if err := a.Categories.Load(ctx); err != nil {
		a.logger.Warn("categories unavailable, using presets", "error", err)
	}
	if err := a.Settings.Load(ctx); err != nil {
		a.logger.Warn("settings unavailable, using defaults", "error", err)
	}
	a.AutoLock.SetTimeout(a.Settings.Get().AutoLock())
}

// Initialized reports whether the vault has a master password.
func (a *App) Initialized() bool { return a.Gate.Exists() }

// Init sets the master password of a new vault, writes the default config
// and leaves the vault unlocked.
func (a *App) Init(ctx context.Context, password string) error {
	if err := a.Gate.Init(password); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(a.Home, config.FileName)); errors.Is(err, os.ErrNotExist) {
		if err := config.Save(a.Home, a.Config); err != nil {
			a.logger.Warn("failed to write default config", "error", err)
		}
	}
	if err := a.Unlock(ctx, password); err != nil {
		return err
	}
	a.record(audit.OpVaultInit, "", nil, nil)
	return nil
}

// Unlock opens the vault. It fails only when the gate refuses; a failed
// item load leaves an empty, usable vault and is reported by LoadErr.
func (a *App) Unlock(ctx context.Context, password string) error {
	dek, err := a.Gate.Unlock(password)
	if err != nil {
		a.logger.Warn("unlock failed", "error", err)
		return err
	}
	crypto.SecureWipe(dek)
	a.record(audit.OpVaultUnlock, "", nil, nil)
	return nil
}

// LoadErr returns the error of the last item load. While it is set the
// vault is open and shows no items.
func (a *App) LoadErr() error { return a.Vault.Err() }

// Reload reads the items again. Pending changes are saved first.
func (a *App) Reload(ctx context.Context) error {
	a.Touch()
	return a.Vault.Refresh(ctx)
}

// Lock closes the vault.
func (a *App) Lock() {
	if a.Gate.Locked() {
		return
	}
	a.record(audit.OpVaultLock, "", nil, nil)
	a.Gate.Lock()
}

// ChangePassword re-wraps the data key under a new master password.
func (a *App) ChangePassword(oldPassword, newPassword string) error {
	err := a.Gate.ChangePassword(oldPassword, newPassword)
	a.record(audit.OpPasswordChange, "", err, nil)
	return err
}

// Close flushes pending items, locks the vault and releases the directory.
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		if a.Vault != nil {
			err = a.Vault.Close(ctx)
		}
		if a.Gate != nil {
			a.Lock()
		}
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		a.release()
	})
	return err
}

func (a *App) release() {
	if a.AutoLock != nil {
		a.AutoLock.Stop()
	}
	if a.store != nil {
		a.store.ClearKey()
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Warn("failed to close asset index", "error", err)
		}
	}
	if err := a.fileLock.Unlock(); err != nil {
		a.logger.Warn("failed to release vault lock", "path", a.fileLock.Path(), "error", err)
	}
}

// Touch records user activity for auto-lock.
func (a *App) Touch() {
	if !a.Gate.Locked() {
		a.AutoLock.Touch()
	}
}

// record writes an audit event. Journal failures never fail the operation.
func (a *App) record(op, subject string, opErr error, ctx map[string]string) {
	if err := a.Audit.Record(op, a.source, subject, opErr, ctx); err != nil && !errors.Is(err, audit.ErrNoKey) {
		a.logger.Warn("failed to write audit event", "op", op, "error", err)
	}
}
