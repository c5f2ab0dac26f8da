// Package backup writes and reads encrypted single-file vault backups.
//
// A backup carries the items, categories, settings and every asset with its
// bytes. The layout is
//
//	magic(8) | header length(4) | header JSON | payload length(4) | payload | HMAC(32)
//
// where the payload is the AES-256-GCM sealed snapshot and the HMAC-SHA256
// covers everything before it. Keys come either from a password stretched
// with Argon2id under a fresh salt, or from a 32-byte key file.
package backup

import (
	"bytes"
	"crypto/hmac"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
)

// Options selects the key of a backup. KeyFile wins over Password.
type Options struct {
	Password []byte
	KeyFile  string
	Now      func() time.Time
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	Valid      bool
	Version    int
	CreatedAt  time.Time
	ItemCount  int
	AssetCount int
	Error      string
}

// Write seals snap and writes the backup to w.
func Write(w io.Writer, snap *Snapshot, opts Options) (*Header, error) {
	if w == nil {
		return nil, errors.New("backup: output writer is required")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	header := &Header{
		Version:    FormatVersion,
		CreatedAt:  now().UTC(),
		ItemCount:  len(snap.Items),
		AssetCount: len(snap.Assets),
	}

	var encKey, macKey []byte
	if opts.KeyFile != "" {
		header.EncryptionMode = EncryptionModeKey
		key, err := ReadKeyFile(opts.KeyFile)
		if err != nil {
			return nil, err
		}
		encKey, macKey, err = deriveKeys(key)
		crypto.SecureWipe(key)
		if err != nil {
			return nil, err
		}
	} else {
		salt, err := crypto.RandomBytes(SaltLength)
		if err != nil {
			return nil, err
		}
		encKey, macKey, err = DerivePasswordKeys(opts.Password, salt)
		if err != nil {
			return nil, err
		}
		header.EncryptionMode = EncryptionModePassword
		header.KDFParams = &KDFParams{
			Salt:        salt,
			Memory:      crypto.Argon2Memory,
			Iterations:  crypto.Argon2Time,
			Parallelism: crypto.Argon2Threads,
		}
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	plaintext, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to marshal snapshot: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	sealed, err := crypto.Seal(encKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("backup: encryption failed: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(sealed))); err != nil {
		return nil, err
	}
	buf.Write(sealed)
	mac := computeHMAC(buf.Bytes(), macKey)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("backup: failed to write backup: %w", err)
	}
	if _, err := w.Write(mac); err != nil {
		return nil, fmt.Errorf("backup: failed to write HMAC: %w", err)
	}
	return header, nil
}

// Read authenticates and decrypts a backup.
func Read(r io.Reader, opts Options) (*Header, *Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("backup: failed to read backup: %w", err)
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	var sealedLen uint32
	if err := binary.Read(reader, binary.BigEndian, &sealedLen); err != nil {
		return nil, nil, ErrTruncated
	}
	if reader.Len() < int(sealedLen)+HMACLength {
		return nil, nil, ErrTruncated
	}
	bodyEnd := len(data) - reader.Len() + int(sealedLen)
	sealed := data[bodyEnd-int(sealedLen) : bodyEnd]
	storedMAC := data[bodyEnd : bodyEnd+HMACLength]

	encKey, macKey, err := opts.keysFor(header)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if !hmac.Equal(computeHMAC(data[:bodyEnd], macKey), storedMAC) {
		return nil, nil, ErrIntegrityFailed
	}

	plaintext, err := crypto.Open(encKey, sealed)
	if err != nil {
		return nil, nil, ErrDecryptionFailed
	}
	defer crypto.SecureWipe(plaintext)

	var snap Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return nil, nil, fmt.Errorf("backup: failed to unmarshal snapshot: %w", err)
	}
	return header, &snap, nil
}

// Verify checks a backup without returning its content.
func Verify(r io.Reader, opts Options) *VerifyResult {
	header, _, err := Read(r, opts)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}
	}
	return &VerifyResult{
		Valid:      true,
		Version:    header.Version,
		CreatedAt:  header.CreatedAt,
		ItemCount:  header.ItemCount,
		AssetCount: header.AssetCount,
	}
}

// Inspect returns the header without authenticating it.
func Inspect(r io.Reader) (*Header, error) {
	return ReadHeader(r)
}

func (o Options) keysFor(h *Header) (encKey, macKey []byte, err error) {
	switch h.EncryptionMode {
	case EncryptionModeKey:
		if o.KeyFile == "" {
			return nil, nil, fmt.Errorf("%w: a key file is required", ErrKeyMismatch)
		}
		key, err := ReadKeyFile(o.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		defer crypto.SecureWipe(key)
		return deriveKeys(key)
	case EncryptionModePassword:
		if h.KDFParams == nil {
			return nil, nil, fmt.Errorf("backup: header lacks key derivation parameters")
		}
		if o.KeyFile != "" {
			return nil, nil, fmt.Errorf("%w: a password is required", ErrKeyMismatch)
		}
		return DerivePasswordKeys(o.Password, h.KDFParams.Salt)
	default:
		return nil, nil, fmt.Errorf("backup: unknown encryption mode %q", h.EncryptionMode)
	}
}
