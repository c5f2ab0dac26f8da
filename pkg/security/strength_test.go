package security

import "testing"

func TestPasswordStrength_String(t *testing.T) {
	tests := []struct {
		strength PasswordStrength
		want     string
	}{
		{PasswordWeak, "Weak"},
		{PasswordFair, "Fair"},
		{PasswordGood, "Good"},
		{PasswordStrong, "Strong"},
		{PasswordStrength(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.strength.String(); got != tt.want {
				t.Errorf("PasswordStrength.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPasswordStrength_Points(t *testing.T) {
	tests := []struct {
		strength PasswordStrength
		want     int
	}{
		{PasswordWeak, 0},
		{PasswordFair, 8},
		{PasswordGood, 17},
		{PasswordStrong, 25},
		{PasswordStrength(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.strength.String(), func(t *testing.T) {
			if got := tt.strength.Points(); got != tt.want {
				t.Errorf("PasswordStrength.Points() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateFieldStrength_Password(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  PasswordStrength
	}{
		{"empty", "", PasswordWeak},
		{"very_short", "abc", PasswordWeak},
		{"7_chars", "1234567", PasswordWeak},
		{"8_chars", "12345678", PasswordFair},
		{"13_chars", "1234567890abc", PasswordFair},
		{"14_chars", "1234567890abcd", PasswordGood},
		{"19_chars", "1234567890abcdefghi", PasswordGood},
		{"20_chars", "1234567890abcdefghij", PasswordStrong},
		// 8 characters but 24 bytes
		{"multibyte", "पासवर्डक", PasswordFair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateFieldStrength(tt.value, KindPassword)
			if got != tt.want {
				t.Errorf("CalculateFieldStrength(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCalculateFieldStrength_Token(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  PasswordStrength
	}{
		{"token_empty", "", PasswordWeak},
		{"token_15", "123456789012345", PasswordWeak},
		{"token_16", "1234567890123456", PasswordFair},
		{"token_20", "12345678901234567890", PasswordGood},
		{"token_31", "1234567890123456789012345678901", PasswordGood},
		{"token_32", "12345678901234567890123456789012", PasswordStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateFieldStrength(tt.value, KindToken)
			if got != tt.want {
				t.Errorf("CalculateFieldStrength(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFieldKindOf(t *testing.T) {
	tests := []struct {
		name   string
		want   FieldKind
		wantOK bool
	}{
		{"password", KindPassword, true},
		{"Password", KindPassword, true},
		{"pwd", KindPassword, true},
		{"db_pass", KindPassword, true},
		{"Net banking secret", KindPassword, true},
		{"totp", KindToken, true},
		{"API token", KindToken, true},
		{"api_key", KindToken, true},
		{"Passport", "", false},
		{"passportNumber", "", false},
		{"username", "", false},
		{"cardNumber", "", false},
		{"url", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FieldKindOf(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("FieldKindOf(%q) = %q, %v, want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsPasswordField(t *testing.T) {
	if !IsPasswordField("my_password") {
		t.Error("my_password should be a password field")
	}
	if IsPasswordField("totp") {
		t.Error("totp is a token, not a password")
	}
}
