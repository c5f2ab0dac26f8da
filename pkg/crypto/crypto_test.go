package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey failed: %v", err)
	}
	return key
}

func TestDeriveKey(t *testing.T) {
	salt, err := RandomBytes(SaltLength)
	if err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}

	key := DeriveKey([]byte("test-password-123"), salt)
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}
	if !bytes.Equal(key, DeriveKey([]byte("test-password-123"), salt)) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}
	if bytes.Equal(key, DeriveKey([]byte("different-password"), salt)) {
		t.Error("DeriveKey() with different password should produce different key")
	}
}

func TestDeriveSubkey(t *testing.T) {
	secret := testKey(t)

	audit, err := DeriveSubkey(secret, "audit")
	if err != nil {
		t.Fatalf("DeriveSubkey failed: %v", err)
	}
	backup, err := DeriveSubkey(secret, "backup")
	if err != nil {
		t.Fatalf("DeriveSubkey failed: %v", err)
	}
	again, _ := DeriveSubkey(secret, "audit")

	if len(audit) != KeyLength {
		t.Errorf("subkey length = %d, want %d", len(audit), KeyLength)
	}
	if bytes.Equal(audit, backup) {
		t.Error("different info strings should produce different subkeys")
	}
	if !bytes.Equal(audit, again) {
		t.Error("DeriveSubkey should be deterministic")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("4532")},
		{"chunk sized", bytes.Repeat([]byte("a"), 2048)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(key, tt.plaintext)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(sealed) != len(tt.plaintext)+Overhead {
				t.Errorf("sealed length = %d, want %d", len(sealed), len(tt.plaintext)+Overhead)
			}
			got, err := Open(key, sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("Open() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	key := testKey(t)
	sealed, err := Seal(key, []byte("account 12345678"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := Open(key, sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Open() error = %v, want ErrDecryptionFailed", err)
	}

	if _, err := Open(testKey(t), sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Open() with wrong key error = %v, want ErrDecryptionFailed", err)
	}

	if _, err := Open(key, sealed[:4]); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Open() short blob error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 48} {
		if _, _, err := Encrypt(make([]byte, n), []byte("x")); err != ErrInvalidKeyLength {
			t.Errorf("Encrypt() with %d-byte key error = %v, want ErrInvalidKeyLength", n, err)
		}
	}
}

func TestEncryptProducesUniqueNonce(t *testing.T) {
	key := testKey(t)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, nonce, err := Encrypt(key, []byte("same"))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if seen[string(nonce)] {
			t.Fatal("Encrypt() reused a nonce")
		}
		seen[string(nonce)] = true
	}
}

func TestSecureWipe(t *testing.T) {
	b := []byte("sensitive-data-key")
	SecureWipe(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not wiped: %x", i, v)
		}
	}
	SecureWipe(nil)
}
