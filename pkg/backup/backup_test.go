package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/asset"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/settings"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func testSnapshot() *Snapshot {
	w, h := 4, 3
	st := settings.Defaults()
	st.Theme = settings.ThemeDark
	return &Snapshot{
		Items: []vault.Item{
			{
				ID:        "item-1",
				Type:      category.Card,
				Label:     "Visa",
				Fields:    map[string]string{"lastFourDigits": "4532"},
				AssetRefs: []vault.AssetRef{{AssetID: "asset-1", AddedAt: fixedNow}},
				CreatedAt: fixedNow,
				UpdatedAt: fixedNow,
			},
		},
		Categories: []category.Category{
			{ID: "pets", Label: "Pets", Fields: []category.FieldDefinition{{Key: "name", Label: "Name", Type: category.FieldText}}, CreatedAt: fixedNow, UpdatedAt: fixedNow},
		},
		Settings: &st,
		Assets: []AssetEntry{
			{
				Asset: asset.Asset{
					ID:          "asset-1",
					Type:        asset.TypeImage,
					MimeType:    "image/png",
					Size:        5,
					Width:       &w,
					Height:      &h,
					ContentHash: "abc",
					CreatedAt:   fixedNow,
				},
				Data: []byte("\x89PNG!"),
			},
		},
	}
}

func writeBackup(t *testing.T, snap *Snapshot, opts Options) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := Write(&buf, snap, opts); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.Bytes()
}

func TestWriteRead_RoundTrip(t *testing.T) {
	opts := Options{Password: []byte("backup-password"), Now: func() time.Time { return fixedNow }}
	data := writeBackup(t, testSnapshot(), opts)

	header, snap, err := Read(bytes.NewReader(data), opts)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if header.EncryptionMode != EncryptionModePassword || header.KDFParams == nil {
		t.Errorf("unexpected header: %+v", header)
	}
	if header.ItemCount != 1 || header.AssetCount != 1 {
		t.Errorf("unexpected counts: %d items, %d assets", header.ItemCount, header.AssetCount)
	}
	if !header.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", header.CreatedAt, fixedNow)
	}
	if diff := cmp.Diff(testSnapshot(), snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_FreshSaltPerBackup(t *testing.T) {
	opts := Options{Password: []byte("pw")}
	a, err := Inspect(bytes.NewReader(writeBackup(t, &Snapshot{}, opts)))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	b, err := Inspect(bytes.NewReader(writeBackup(t, &Snapshot{}, opts)))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if bytes.Equal(a.KDFParams.Salt, b.KDFParams.Salt) {
		t.Error("two backups should not share a salt")
	}
}

func TestWrite_EmptyPassword(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Write(&buf, &Snapshot{}, Options{}); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("expected ErrEmptyPassword, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written on failure")
	}
}

func TestRead_WrongPassword(t *testing.T) {
	data := writeBackup(t, testSnapshot(), Options{Password: []byte("right")})
	_, _, err := Read(bytes.NewReader(data), Options{Password: []byte("wrong")})
	if !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("expected ErrIntegrityFailed, got %v", err)
	}
}

func TestRead_DetectsTampering(t *testing.T) {
	opts := Options{Password: []byte("pw")}
	data := writeBackup(t, testSnapshot(), opts)

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)-HMACLength-1] ^= 0xFF
	if _, _, err := Read(bytes.NewReader(tampered), opts); !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("expected ErrIntegrityFailed for modified payload, got %v", err)
	}
}

func TestRead_Truncated(t *testing.T) {
	opts := Options{Password: []byte("pw")}
	data := writeBackup(t, testSnapshot(), opts)
	if _, _, err := Read(bytes.NewReader(data[:len(data)-10]), opts); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReadHeader_InvalidMagic(t *testing.T) {
	if _, err := ReadHeader(bytes.NewReader([]byte("NOT_A_BACKUP_FILE"))); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
	if _, err := ReadHeader(bytes.NewReader([]byte("IDL"))); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic for short input, got %v", err)
	}
}

func TestReadHeader_UnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeader(&buf, &Header{Version: FormatVersion + 1}); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	if _, err := ReadHeader(&buf); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestKeyFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "backup.key")
	if err := GenerateKeyFile(keyPath); err != nil {
		t.Fatalf("GenerateKeyFile failed: %v", err)
	}
	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", info.Mode().Perm())
	}

	opts := Options{KeyFile: keyPath}
	data := writeBackup(t, testSnapshot(), opts)
	header, snap, err := Read(bytes.NewReader(data), opts)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if header.EncryptionMode != EncryptionModeKey || header.KDFParams != nil {
		t.Errorf("unexpected header: %+v", header)
	}
	if len(snap.Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(snap.Items))
	}

	if _, _, err := Read(bytes.NewReader(data), Options{Password: []byte("pw")}); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("expected ErrKeyMismatch, got %v", err)
	}

	otherPath := filepath.Join(dir, "other.key")
	if err := GenerateKeyFile(otherPath); err != nil {
		t.Fatalf("GenerateKeyFile failed: %v", err)
	}
	if _, _, err := Read(bytes.NewReader(data), Options{KeyFile: otherPath}); !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("expected ErrIntegrityFailed with another key, got %v", err)
	}
}

func TestReadKeyFile_InvalidSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.key")
	if err := os.WriteFile(path, []byte("too short"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadKeyFile(path); !errors.Is(err, ErrInvalidKeyFile) {
		t.Errorf("expected ErrInvalidKeyFile, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	opts := Options{Password: []byte("pw")}
	data := writeBackup(t, testSnapshot(), opts)

	res := Verify(bytes.NewReader(data), opts)
	if !res.Valid || res.ItemCount != 1 || res.AssetCount != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	res = Verify(bytes.NewReader(data), Options{Password: []byte("nope")})
	if res.Valid || res.Error == "" {
		t.Errorf("expected invalid result with error, got %+v", res)
	}
}
