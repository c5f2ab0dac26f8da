package backup

import "errors"

// Backup/Restore errors
var (
	// ErrInvalidMagic indicates the file is not an idlocker backup.
	ErrInvalidMagic = errors.New("backup: invalid backup file: magic number mismatch")

	// ErrUnsupportedVersion indicates the backup format version is not supported.
	ErrUnsupportedVersion = errors.New("backup: unsupported backup format version")

	// ErrTruncated indicates the file ends before the declared content.
	ErrTruncated = errors.New("backup: backup file truncated")

	// ErrIntegrityFailed indicates the HMAC verification failed.
	ErrIntegrityFailed = errors.New("backup: integrity check failed: HMAC mismatch")

	// ErrDecryptionFailed indicates decryption failed due to a wrong key or corruption.
	ErrDecryptionFailed = errors.New("backup: decryption failed: invalid password or corrupted data")

	// ErrInvalidKeyFile indicates the key file is invalid or wrong size.
	ErrInvalidKeyFile = errors.New("backup: invalid key file: must be exactly 32 bytes")

	// ErrEmptyPassword indicates neither a password nor a key file was given.
	ErrEmptyPassword = errors.New("backup: password cannot be empty")

	// ErrKeyMismatch indicates the key source does not match how the backup was sealed.
	ErrKeyMismatch = errors.New("backup: backup was sealed with a different kind of key")
)
