package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Attempts returns the persisted failed-attempt state.
func (g *PasswordGate) Attempts() (*AttemptState, error) {
	return g.loadAttempts()
}

// RemainingCooldown returns how long unlocking stays blocked, or 0.
func (g *PasswordGate) RemainingCooldown() time.Duration {
	state, err := g.loadAttempts()
	if err != nil {
		return 0
	}
	now := g.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now)
	}
	return 0
}

func (g *PasswordGate) loadAttempts() (*AttemptState, error) {
	data, err := os.ReadFile(filepath.Join(g.dir, AttemptsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &AttemptState{}, nil
		}
		return nil, fmt.Errorf("lock: failed to read attempt state: %w", err)
	}

	var state AttemptState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupted attempt file - reset state
		return &AttemptState{}, nil
	}
	return &state, nil
}

func (g *PasswordGate) saveAttempts(state *AttemptState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("lock: failed to marshal attempt state: %w", err)
	}
	return writeFile(filepath.Join(g.dir, AttemptsFileName), data)
}

func (g *PasswordGate) clearAttempts() error {
	err := os.Remove(filepath.Join(g.dir, AttemptsFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: failed to clear attempt state: %w", err)
	}
	return nil
}

func (g *PasswordGate) checkCooldown() (time.Duration, error) {
	state, err := g.loadAttempts()
	if err != nil {
		return 0, err
	}
	now := g.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now), ErrCooldownActive
	}
	return 0, nil
}

// recordFailedAttempt counts a failure and starts a cooldown at the
// configured thresholds.
func (g *PasswordGate) recordFailedAttempt() (time.Duration, error) {
	state, err := g.loadAttempts()
	if err != nil {
		return 0, err
	}

	now := g.now()
	state.FailedAttempts++
	state.LastAttempt = now

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= CooldownThreshold3:
		cooldown = CooldownDuration3
	case state.FailedAttempts >= CooldownThreshold2:
		cooldown = CooldownDuration2
	case state.FailedAttempts >= CooldownThreshold1:
		cooldown = CooldownDuration1
	}
	if cooldown > 0 {
		state.CooldownUntil = now.Add(cooldown)
		state.LockoutCount++
	}

	if err := g.saveAttempts(state); err != nil {
		return cooldown, err
	}
	return cooldown, nil
}
