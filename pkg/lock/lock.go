// Package lock gates access to the vault behind a master password.
//
// A random data key (DEK) seals everything at rest. The DEK is stored only
// wrapped by a key derived from the master password with Argon2id, so the
// vault is unreadable until Unlock succeeds. Repeated failures trigger an
// escalating cooldown that survives restarts.
package lock

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
)

// Constants
const (
	StateFileName    = "gate.json"
	AttemptsFileName = "gate.lock"
	FileMode         = 0600
	DirMode          = 0700

	gateVersion = 1

	// 5 attempts -> 30s, 10 attempts -> 5min, 20 attempts -> 30min
	CooldownThreshold1 = 5
	CooldownThreshold2 = 10
	CooldownThreshold3 = 20
	CooldownDuration1  = 30 * time.Second
	CooldownDuration2  = 5 * time.Minute
	CooldownDuration3  = 30 * time.Minute
)

// Errors
var (
	ErrGateAlreadyExists = errors.New("lock: vault already initialized")
	ErrGateNotFound      = errors.New("lock: vault not initialized")
	ErrGateCorrupted     = errors.New("lock: key file is corrupted")
	ErrLocked            = errors.New("lock: vault is locked")
	ErrInvalidPassword   = errors.New("lock: invalid master password")
	ErrTooManyAttempts   = errors.New("lock: too many failed unlock attempts")
	ErrCooldownActive    = errors.New("lock: cooldown period active")
)

// Gate exposes the lock state of the vault to interested components.
type Gate interface {
	Locked() bool
	// Subscribe registers fn for lock state changes. The returned func
	// removes the subscription.
	Subscribe(fn func(locked bool)) (cancel func())
}

// gateFile is the persisted key material.
type gateFile struct {
	Version    int       `json:"version"`
	Salt       []byte    `json:"salt"`
	WrappedKey []byte    `json:"wrapped_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// AttemptState tracks failed unlock attempts for cooldown enforcement.
type AttemptState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
	LockoutCount   int       `json:"lockout_count"`
}

// PasswordGate is a Gate unlocked with the master password.
type PasswordGate struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	mu  sync.Mutex
	dek []byte

	subMu  sync.Mutex
	subs   map[int]func(bool)
	nextID int
}

// Option configures a PasswordGate.
type Option func(*PasswordGate)

// WithNow overrides the clock used for cooldowns.
func WithNow(now func() time.Time) Option {
	return func(g *PasswordGate) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *PasswordGate) { g.logger = l }
}

// NewPasswordGate returns a locked gate keeping its files in dir.
func NewPasswordGate(dir string, opts ...Option) *PasswordGate {
	g := &PasswordGate{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default(),
		subs:   make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dir returns the directory holding the gate files.
func (g *PasswordGate) Dir() string { return g.dir }

// Exists reports whether Init has been run for the directory.
func (g *PasswordGate) Exists() bool {
	_, err := os.Stat(filepath.Join(g.dir, StateFileName))
	return err == nil
}

// Init creates a new data key wrapped by password. The gate stays locked.
func (g *PasswordGate) Init(password string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Exists() {
		return ErrGateAlreadyExists
	}
	if err := CheckPassword(password); err != nil {
		return err
	}
	if err := os.MkdirAll(g.dir, DirMode); err != nil {
		return fmt.Errorf("lock: failed to create vault directory: %w", err)
	}

	dek, err := crypto.NewKey()
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(dek)

	return g.writeKeyFile(password, dek, g.now().UTC())
}

// Unlock verifies password and returns a copy of the data key.
func (g *PasswordGate) Unlock(password string) ([]byte, error) {
	g.mu.Lock()
	if g.dek != nil {
		dek := bytes.Clone(g.dek)
		g.mu.Unlock()
		return dek, nil
	}

	dek, err := g.unwrap(password)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.dek = dek
	g.mu.Unlock()

	if err := g.clearAttempts(); err != nil {
		g.logger.Warn("failed to clear unlock attempts", "error", err)
	}
	g.checkPermissions()
	g.notify(false)
	return bytes.Clone(dek), nil
}

// Lock wipes the data key from memory.
func (g *PasswordGate) Lock() {
	g.mu.Lock()
	wasUnlocked := g.dek != nil
	if wasUnlocked {
		crypto.SecureWipe(g.dek)
		g.dek = nil
	}
	g.mu.Unlock()

	if wasUnlocked {
		g.notify(true)
	}
}

// Locked reports whether the data key is absent.
func (g *PasswordGate) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dek == nil
}

// DataKey returns a copy of the data key, or ErrLocked.
func (g *PasswordGate) DataKey() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dek == nil {
		return nil, ErrLocked
	}
	return bytes.Clone(g.dek), nil
}

// ChangePassword re-wraps the data key under newPassword. The data key
// itself is unchanged, so nothing sealed with it needs rewriting.
func (g *PasswordGate) ChangePassword(oldPassword, newPassword string) error {
	if err := CheckPassword(newPassword); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	dek, err := g.unwrap(oldPassword)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(dek)

	state, err := g.readKeyFile()
	if err != nil {
		return err
	}
	return g.writeKeyFile(newPassword, dek, state.CreatedAt)
}

// Subscribe registers fn for lock state changes.
func (g *PasswordGate) Subscribe(fn func(locked bool)) (cancel func()) {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	return func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()
		delete(g.subs, id)
	}
}

func (g *PasswordGate) notify(locked bool) {
	g.subMu.Lock()
	ids := make([]int, 0, len(g.subs))
	for id := range g.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, g.subs[id])
	}
	g.subMu.Unlock()

	for _, fn := range fns {
		fn(locked)
	}
}

// unwrap derives the key-encryption key and opens the data key. Callers
// hold g.mu.
func (g *PasswordGate) unwrap(password string) ([]byte, error) {
	if !g.Exists() {
		return nil, ErrGateNotFound
	}
	if remaining, err := g.checkCooldown(); err != nil {
		if errors.Is(err, ErrCooldownActive) {
			return nil, fmt.Errorf("%w: please wait %v", ErrCooldownActive, remaining.Round(time.Second))
		}
		return nil, err
	}

	state, err := g.readKeyFile()
	if err != nil {
		return nil, err
	}

	kek := crypto.DeriveKey([]byte(password), state.Salt)
	defer crypto.SecureWipe(kek)

	dek, err := crypto.Open(kek, state.WrappedKey)
	if err != nil {
		if !errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, fmt.Errorf("%w: %w", ErrGateCorrupted, err)
		}
		cooldown, recordErr := g.recordFailedAttempt()
		if recordErr != nil {
			g.logger.Warn("failed to record unlock attempt", "error", recordErr)
		}
		if cooldown > 0 {
			return nil, fmt.Errorf("%w: cooldown activated for %v", ErrTooManyAttempts, cooldown.Round(time.Second))
		}
		return nil, ErrInvalidPassword
	}
	if len(dek) != crypto.KeyLength {
		crypto.SecureWipe(dek)
		return nil, ErrGateCorrupted
	}
	return dek, nil
}

func (g *PasswordGate) readKeyFile() (*gateFile, error) {
	data, err := os.ReadFile(filepath.Join(g.dir, StateFileName))
	if os.IsNotExist(err) {
		return nil, ErrGateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock: failed to read key file: %w", err)
	}
	var state gateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateCorrupted, err)
	}
	if state.Version != gateVersion || len(state.Salt) != crypto.SaltLength || len(state.WrappedKey) == 0 {
		return nil, ErrGateCorrupted
	}
	return &state, nil
}

func (g *PasswordGate) writeKeyFile(password string, dek []byte, createdAt time.Time) error {
	salt, err := crypto.RandomBytes(crypto.SaltLength)
	if err != nil {
		return err
	}
	kek := crypto.DeriveKey([]byte(password), salt)
	defer crypto.SecureWipe(kek)

	wrapped, err := crypto.Seal(kek, dek)
	if err != nil {
		return fmt.Errorf("lock: failed to wrap data key: %w", err)
	}

	data, err := json.MarshalIndent(gateFile{
		Version:    gateVersion,
		Salt:       salt,
		WrappedKey: wrapped,
		CreatedAt:  createdAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("lock: failed to marshal key file: %w", err)
	}
	return writeFile(filepath.Join(g.dir, StateFileName), data)
}

// checkPermissions warns when gate files are readable by others.
func (g *PasswordGate) checkPermissions() {
	for _, name := range []string{StateFileName, AttemptsFileName} {
		info, err := os.Stat(filepath.Join(g.dir, name))
		if err != nil {
			continue
		}
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			g.logger.Warn("insecure file permissions", "file", name, "mode", fmt.Sprintf("%04o", perm))
		}
	}
}

func writeFile(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("lock: failed to write %s: %w", filepath.Base(path), err)
	}
	// atomic.WriteFile doesn't set permissions for new files.
	if err := os.Chmod(path, FileMode); err != nil {
		return fmt.Errorf("lock: failed to set permissions on %s: %w", filepath.Base(path), err)
	}
	return nil
}
