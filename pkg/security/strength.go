// Package security provides security analysis and scoring for vault items.
package security

import (
	"strings"
	"unicode/utf8"
)

// PasswordStrength represents the strength level of a password or token.
type PasswordStrength int

const (
	// PasswordWeak indicates an insecure password (less than 8 chars for passwords, 16 for tokens).
	PasswordWeak PasswordStrength = iota
	// PasswordFair indicates a minimally acceptable password.
	PasswordFair
	// PasswordGood indicates a good password.
	PasswordGood
	// PasswordStrong indicates a strong password.
	PasswordStrong
)

// FieldKind selects how a secret field is rated.
type FieldKind string

const (
	// KindPassword is a human-chosen password.
	KindPassword FieldKind = "password"
	// KindToken is a machine-generated secret such as a TOTP seed or API key.
	KindToken FieldKind = "token"
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the score points for this strength level.
// Used in StrengthScore calculation: Weak=0, Fair=8, Good=17, Strong=25.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordWeak:
		return 0
	case PasswordFair:
		return 8
	case PasswordGood:
		return 17
	case PasswordStrong:
		return 25
	default:
		return 0
	}
}

// CalculateFieldStrength rates value as the given kind. Tokens are rated by
// entropy, passwords length-first.
func CalculateFieldStrength(value string, kind FieldKind) PasswordStrength {
	if kind == KindToken {
		return calculateTokenStrength(value)
	}
	return calculatePasswordStrength(value)
}

// calculatePasswordStrength evaluates human-created passwords.
// Length is the primary factor per NIST SP 800-63B, which discourages
// composition rules. Length counts characters, not bytes.
func calculatePasswordStrength(value string) PasswordStrength {
	length := utf8.RuneCountInString(value)

	switch {
	case length >= 20:
		return PasswordStrong
	case length >= 14:
		return PasswordGood
	case length >= 8:
		return PasswordFair
	default:
		return PasswordWeak
	}
}

// calculateTokenStrength evaluates machine-generated tokens.
// For random strings, length directly correlates with entropy:
// - 32+ chars (~128 bits for alphanumeric): Strong
// - 20+ chars (~80 bits): Good
// - 16+ chars (~64 bits): Fair
// - Less than 16: Weak
func calculateTokenStrength(value string) PasswordStrength {
	length := utf8.RuneCountInString(value)

	switch {
	case length >= 32:
		return PasswordStrong
	case length >= 20:
		return PasswordGood
	case length >= 16:
		return PasswordFair
	default:
		return PasswordWeak
	}
}

var (
	passwordNames = []string{
		"password", "pwd", "pass", "passwd",
		"secret", "credential", "credentials",
	}
	tokenNames = []string{"totp", "token", "apikey", "api_key"}
	// Identity fields that merely contain a password name.
	notSecretNames = []string{"passport", "passbook"}
)

// FieldKindOf classifies a field key or custom-field label. ok is false for
// fields that are not passwords or tokens.
func FieldKindOf(name string) (kind FieldKind, ok bool) {
	lower := strings.ToLower(name)
	for _, n := range notSecretNames {
		if strings.Contains(lower, n) {
			return "", false
		}
	}
	for _, n := range tokenNames {
		if strings.Contains(lower, n) {
			return KindToken, true
		}
	}
	for _, n := range passwordNames {
		if strings.Contains(lower, n) {
			return KindPassword, true
		}
	}
	return "", false
}

// IsPasswordField reports whether name looks like a password field.
func IsPasswordField(name string) bool {
	kind, ok := FieldKindOf(name)
	return ok && kind == KindPassword
}
