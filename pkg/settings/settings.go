// Package settings holds the application preferences document.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/docstore"
)

// DocumentPrefix is the key prefix of the settings document.
const DocumentPrefix = "app.settings"

// Auto-lock bounds in seconds. Zero disables auto-lock.
const (
	DefaultAutoLockTimeout = 300
	MinAutoLockTimeout     = 30
	MaxAutoLockTimeout     = 24 * 60 * 60
)

// Theme is the UI color scheme.
type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// ErrInvalidSettings is returned by Validate.
var ErrInvalidSettings = errors.New("settings: invalid settings")

// AppSettings are the user's preferences.
type AppSettings struct {
	HasCompletedOnboarding bool  `json:"hasCompletedOnboarding"`
	AutoLockTimeout        int   `json:"autoLockTimeout"` // seconds
	Theme                  Theme `json:"theme"`
}

// Defaults returns the settings of a new vault.
func Defaults() AppSettings {
	return AppSettings{
		HasCompletedOnboarding: false,
		AutoLockTimeout:        DefaultAutoLockTimeout,
		Theme:                  ThemeSystem,
	}
}

// UnmarshalJSON fills attributes missing from data with their defaults.
func (s *AppSettings) UnmarshalJSON(data []byte) error {
	type plain AppSettings
	p := plain(Defaults())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = AppSettings(p)
	return nil
}

// AutoLock returns the auto-lock timeout, zero when disabled.
func (s AppSettings) AutoLock() time.Duration {
	return time.Duration(s.AutoLockTimeout) * time.Second
}

// Validate checks value ranges.
func (s AppSettings) Validate() error {
	if s.AutoLockTimeout != 0 && (s.AutoLockTimeout < MinAutoLockTimeout || s.AutoLockTimeout > MaxAutoLockTimeout) {
		return fmt.Errorf("%w: auto-lock timeout must be 0 or between %d and %d seconds",
			ErrInvalidSettings, MinAutoLockTimeout, MaxAutoLockTimeout)
	}
	switch s.Theme {
	case ThemeSystem, ThemeLight, ThemeDark:
	default:
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidSettings, s.Theme)
	}
	return nil
}

// Service caches the settings document.
type Service struct {
	store  *docstore.Store[AppSettings]
	logger *slog.Logger

	mu       sync.RWMutex
	cur      AppSettings
	onChange []func(AppSettings)
}

// NewService returns a service holding the defaults until Load.
func NewService(store *docstore.Store[AppSettings], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, cur: Defaults()}
}

// Load reads the stored settings. Invalid or unreadable settings fall back
// to the defaults; a read error is returned.
func (s *Service) Load(ctx context.Context) error {
	loaded, err := s.store.Load(ctx)
	if err == nil {
		if verr := loaded.Validate(); verr != nil {
			s.logger.Warn("stored settings invalid, using defaults", "error", verr)
			loaded = Defaults()
		}
	}

	s.mu.Lock()
	s.cur = loaded
	s.mu.Unlock()
	s.notify(loaded)
	return err
}

// Get returns the current settings.
func (s *Service) Get() AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to a copy of the settings, validates and persists it.
// Nothing changes when validation or the save fails.
func (s *Service) Update(ctx context.Context, fn func(*AppSettings)) (AppSettings, error) {
	s.mu.Lock()
	cur := s.cur
	next := cur
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return cur, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return cur, err
	}
	s.cur = next
	s.mu.Unlock()

	s.notify(next)
	return next, nil
}

// OnChange registers fn to run after settings are loaded or updated.
func (s *Service) OnChange(fn func(AppSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Service) notify(v AppSettings) {
	s.mu.RLock()
	fns := append([]func(AppSettings){}, s.onChange...)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}
