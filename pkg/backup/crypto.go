package backup

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
)

const (
	// SaltLength is the length of the backup salt in bytes.
	SaltLength = 32

	// HMACLength is the length of the HMAC-SHA256 in bytes.
	HMACLength = sha256.Size
)

// HKDF info strings for key derivation.
const (
	infoEncryption = "idlocker-backup-encryption"
	infoMAC        = "idlocker-backup-mac"
)

// deriveKeys derives independent encryption and MAC keys from secret.
func deriveKeys(secret []byte) (encKey, macKey []byte, err error) {
	encKey, err = crypto.DeriveSubkey(secret, infoEncryption)
	if err != nil {
		return nil, nil, err
	}
	macKey, err = crypto.DeriveSubkey(secret, infoMAC)
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, err
	}
	return encKey, macKey, nil
}

// DerivePasswordKeys stretches password with Argon2id and derives the
// encryption and MAC keys.
func DerivePasswordKeys(password, salt []byte) (encKey, macKey []byte, err error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}
	master := crypto.DeriveKey(password, salt)
	defer crypto.SecureWipe(master)
	return deriveKeys(master)
}

func computeHMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// ReadKeyFile reads a 32-byte key from path.
func ReadKeyFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read key file: %w", err)
	}
	if len(key) != crypto.KeyLength {
		crypto.SecureWipe(key)
		return nil, ErrInvalidKeyFile
	}
	return key, nil
}

// GenerateKeyFile writes a fresh random key to path with 0600 permissions.
func GenerateKeyFile(path string) error {
	key, err := crypto.NewKey()
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(key)

	if err := atomic.WriteFile(path, bytes.NewReader(key)); err != nil {
		return fmt.Errorf("backup: failed to write key file: %w", err)
	}
	return os.Chmod(path, 0o600)
}
