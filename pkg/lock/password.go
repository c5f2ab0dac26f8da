package lock

import (
	"errors"
	"fmt"
	"unicode"
)

// Master password length limits.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// Errors
var (
	ErrPasswordTooShort = errors.New("lock: password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("lock: password must be at most 128 characters")
)

// PasswordStrength represents the strength level of a password
type PasswordStrength int

const (
	PasswordWeak PasswordStrength = iota
	PasswordFair
	PasswordGood
	PasswordStrong
)

func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "weak"
	case PasswordFair:
		return "fair"
	case PasswordGood:
		return "good"
	case PasswordStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// PasswordReport is the outcome of ValidatePassword.
type PasswordReport struct {
	Valid    bool
	Strength PasswordStrength
	Warnings []string // suggestions, not errors
}

// CheckPassword enforces the hard length limits.
func CheckPassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}

// ValidatePassword checks the hard limits and estimates strength. Weak
// complexity only produces warnings.
func ValidatePassword(password string) *PasswordReport {
	if err := CheckPassword(password); err != nil {
		var msg string
		if errors.Is(err, ErrPasswordTooShort) {
			msg = fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
		} else {
			msg = fmt.Sprintf("Password must be at most %d characters", MaxPasswordLength)
		}
		return &PasswordReport{Strength: PasswordWeak, Warnings: []string{msg}}
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	complexity := 0
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if ok {
			complexity++
		}
	}

	report := &PasswordReport{Valid: true}
	if complexity < 2 {
		report.Warnings = append(report.Warnings, "Consider using a mix of uppercase, lowercase, numbers, and symbols")
	}
	if len(password) < 12 {
		report.Warnings = append(report.Warnings, "Longer passwords (12+ characters) are more secure")
	}

	switch {
	case complexity >= 3 && len(password) >= 16:
		report.Strength = PasswordStrong
	case complexity >= 2 && len(password) >= 12:
		report.Strength = PasswordGood
	case complexity >= 2 || len(password) >= 12:
		report.Strength = PasswordFair
	default:
		report.Strength = PasswordWeak
	}
	return report
}
