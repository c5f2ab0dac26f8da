package lock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const testPassword = "testpassword123"

func newInitializedGate(t *testing.T, opts ...Option) *PasswordGate {
	t.Helper()
	g := NewPasswordGate(t.TempDir(), opts...)
	if err := g.Init(testPassword); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return g
}

func TestInit(t *testing.T) {
	g := newInitializedGate(t)

	if !g.Exists() {
		t.Fatal("expected gate to exist after Init")
	}
	if !g.Locked() {
		t.Error("gate should stay locked after Init")
	}

	info, err := os.Stat(filepath.Join(g.Dir(), StateFileName))
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != FileMode {
		t.Errorf("expected key file mode %04o, got %04o", FileMode, perm)
	}

	if err := g.Init(testPassword); !errors.Is(err, ErrGateAlreadyExists) {
		t.Errorf("expected ErrGateAlreadyExists, got %v", err)
	}
}

func TestInitRejectsShortPassword(t *testing.T) {
	g := NewPasswordGate(t.TempDir())
	if err := g.Init("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
	if g.Exists() {
		t.Error("gate must not exist after a rejected Init")
	}
}

func TestUnlockLock(t *testing.T) {
	g := newInitializedGate(t)

	dek, err := g.Unlock(testPassword)
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if len(dek) != 32 {
		t.Fatalf("expected 32-byte data key, got %d", len(dek))
	}
	if g.Locked() {
		t.Error("gate should be unlocked")
	}

	again, err := g.Unlock(testPassword)
	if err != nil {
		t.Fatalf("second Unlock failed: %v", err)
	}
	if string(again) != string(dek) {
		t.Error("data key changed between unlocks")
	}

	g.Lock()
	if !g.Locked() {
		t.Error("gate should be locked")
	}
	if _, err := g.DataKey(); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}

	// The data key is stable across lock cycles.
	dek2, err := g.Unlock(testPassword)
	if err != nil {
		t.Fatalf("Unlock after Lock failed: %v", err)
	}
	if string(dek2) != string(dek) {
		t.Error("data key changed after relock")
	}
}

func TestUnlockUninitialized(t *testing.T) {
	g := NewPasswordGate(t.TempDir())
	if _, err := g.Unlock(testPassword); !errors.Is(err, ErrGateNotFound) {
		t.Errorf("expected ErrGateNotFound, got %v", err)
	}
}

func TestUnlockCorruptedKeyFile(t *testing.T) {
	g := newInitializedGate(t)
	if err := os.WriteFile(filepath.Join(g.Dir(), StateFileName), []byte("{not json"), FileMode); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Unlock(testPassword); !errors.Is(err, ErrGateCorrupted) {
		t.Errorf("expected ErrGateCorrupted, got %v", err)
	}
}

func TestFailedAttemptTracking(t *testing.T) {
	g := newInitializedGate(t)

	for i := 0; i < CooldownThreshold1-1; i++ {
		if _, err := g.Unlock("wrongpassword"); !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("attempt %d: expected ErrInvalidPassword, got %v", i+1, err)
		}
	}

	state, err := g.Attempts()
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if state.FailedAttempts != CooldownThreshold1-1 {
		t.Errorf("expected %d failed attempts, got %d", CooldownThreshold1-1, state.FailedAttempts)
	}

	_, err = g.Unlock("wrongpassword")
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("5th attempt should trigger cooldown, got %v", err)
	}

	remaining := g.RemainingCooldown()
	if remaining <= 0 || remaining > CooldownDuration1 {
		t.Errorf("expected cooldown in (0, %v], got %v", CooldownDuration1, remaining)
	}
}

func TestCooldownBlocksUnlock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	g := newInitializedGate(t, WithNow(clock))

	for i := 0; i < CooldownThreshold1; i++ {
		_, _ = g.Unlock("wrongpassword")
	}

	if _, err := g.Unlock(testPassword); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("expected ErrCooldownActive, got %v", err)
	}

	mu.Lock()
	now = now.Add(CooldownDuration1 + time.Second)
	mu.Unlock()

	if _, err := g.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock after cooldown failed: %v", err)
	}
	state, _ := g.Attempts()
	if state.FailedAttempts != 0 {
		t.Errorf("expected failed attempts to be cleared, got %d", state.FailedAttempts)
	}
}

func TestChangePassword(t *testing.T) {
	g := newInitializedGate(t)
	dek, err := g.Unlock(testPassword)
	if err != nil {
		t.Fatal(err)
	}
	g.Lock()

	if err := g.ChangePassword("wrongpassword", "newpassword456"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
	if err := g.ChangePassword(testPassword, "newpassword456"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := g.Unlock(testPassword); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("old password should no longer unlock, got %v", err)
	}
	got, err := g.Unlock("newpassword456")
	if err != nil {
		t.Fatalf("Unlock with new password failed: %v", err)
	}
	if string(got) != string(dek) {
		t.Error("data key must survive a password change")
	}
}

func TestSubscribe(t *testing.T) {
	g := newInitializedGate(t)

	var events []bool
	cancel := g.Subscribe(func(locked bool) { events = append(events, locked) })

	if _, err := g.Unlock(testPassword); err != nil {
		t.Fatal(err)
	}
	g.Lock()
	g.Lock() // no-op: already locked

	cancel()
	if _, err := g.Unlock(testPassword); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 || events[0] != false || events[1] != true {
		t.Errorf("unexpected events %v", events)
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
		strength PasswordStrength
	}{
		{"too short", "abc123", false, PasswordWeak},
		{"empty", "", false, PasswordWeak},
		{"too long", string(make([]byte, MaxPasswordLength+1)), false, PasswordWeak},
		{"lowercase only", "abcdefgh", true, PasswordWeak},
		{"two classes", "abcdefg1", true, PasswordFair},
		{"good", "abcdefgh1234", true, PasswordGood},
		{"strong", "Abcdefgh1234!xyz", true, PasswordStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidatePassword(tt.password)
			if r.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", r.Valid, tt.valid)
			}
			if r.Strength != tt.strength {
				t.Errorf("Strength = %v, want %v", r.Strength, tt.strength)
			}
		})
	}
}

type countingLocker struct {
	mu    sync.Mutex
	locks int
}

func (c *countingLocker) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locks++
}

func (c *countingLocker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locks
}

func TestAutoLock(t *testing.T) {
	target := &countingLocker{}
	a := NewAutoLock(target, 20*time.Millisecond)
	a.Touch()

	deadline := time.Now().Add(2 * time.Second)
	for target.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if target.count() != 1 {
		t.Fatalf("expected one auto lock, got %d", target.count())
	}
}

func TestAutoLockStopAndDisable(t *testing.T) {
	target := &countingLocker{}
	a := NewAutoLock(target, 20*time.Millisecond)
	a.Touch()
	a.Stop()

	a.SetTimeout(0)
	time.Sleep(60 * time.Millisecond)
	if target.count() != 0 {
		t.Errorf("expected no lock, got %d", target.count())
	}
}
