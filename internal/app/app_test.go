package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/asset"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/backup"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/chunk"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/importer"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/lock"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/settings"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

const testPassword = "correct horse battery"

func openApp(t *testing.T, home string) *App {
	t.Helper()
	a, err := Open(context.Background(), home, WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func newVault(t *testing.T) (*App, string) {
	t.Helper()
	home := t.TempDir()
	a := openApp(t, home)
	require.NoError(t, a.Init(context.Background(), testPassword))
	return a, home
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func flush(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Vault.Flush(ctx))
}

func TestOpen_DirectoryIsExclusive(t *testing.T) {
	home := t.TempDir()
	openApp(t, home)

	_, err := Open(context.Background(), home, WithLogger(slog.New(slog.DiscardHandler)))
	assert.ErrorIs(t, err, ErrVaultBusy)
}

func TestInit_UnlocksAndWritesConfig(t *testing.T) {
	a, home := newVault(t)

	assert.True(t, a.Initialized())
	assert.False(t, a.Gate.Locked())
	assert.Equal(t, vault.StateReady, a.Vault.State())
	assert.FileExists(t, filepath.Join(home, "config.yaml"))
	assert.Len(t, a.Categories.List(), len(category.PresetIDs))
	assert.Equal(t, settings.Defaults(), a.Settings.Get())
}

func TestItems_PersistAcrossLockAndReopen(t *testing.T) {
	a, home := newVault(t)

	it, err := a.AddItem(vault.Draft{
		Type:   category.Bank,
		Label:  "Salary account",
		Fields: map[string]string{"bankName": "SBI", "accountNumber": "00112233"},
	})
	require.NoError(t, err)

	a.Lock()
	assert.Equal(t, vault.StateLocked, a.Vault.State())
	assert.Empty(t, a.Vault.Items())
	_, err = a.AddItem(vault.Draft{Type: category.Note, Label: "x"})
	assert.ErrorIs(t, err, vault.ErrLocked)

	require.NoError(t, a.Unlock(context.Background(), testPassword))
	got := a.SearchItems("2233")
	require.Len(t, got, 1)
	assert.Equal(t, it.ID, got[0].ID)

	require.NoError(t, a.Close(context.Background()))

	b := openApp(t, home)
	assert.ErrorIs(t, b.Unlock(context.Background(), "wrong password"), lock.ErrInvalidPassword)
	require.NoError(t, b.Unlock(context.Background(), testPassword))
	reopened, err := b.GetItem(it.ID)
	require.NoError(t, err)
	assert.Equal(t, "Salary account", reopened.Label)
}

func TestUnlock_CorruptItemsOpenEmptyVault(t *testing.T) {
	a, _ := newVault(t)
	ctx := context.Background()

	_, err := a.AddItem(vault.Draft{Type: category.Note, Label: "lost"})
	require.NoError(t, err)
	flush(t, a)
	require.NoError(t, a.store.Set(ctx, ItemsPrefix+".chunk.0", []byte("garbage")))
	a.Lock()

	require.NoError(t, a.Unlock(ctx, testPassword))
	assert.ErrorIs(t, a.LoadErr(), chunk.ErrCorrupt)
	assert.Equal(t, vault.StateReady, a.Vault.State())
	assert.Empty(t, a.SearchItems(""))
	assert.False(t, a.Vault.Dirty())

	assert.ErrorIs(t, a.Reload(ctx), chunk.ErrCorrupt)

	_, err = a.AddItem(vault.Draft{Type: category.Note, Label: "still usable"})
	require.NoError(t, err)
	assert.Len(t, a.SearchItems(""), 1)
}

func TestAddItem_ValidatesAgainstCategory(t *testing.T) {
	a, _ := newVault(t)

	_, err := a.AddItem(vault.Draft{Type: "pets", Label: "Rex"})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = a.AddItem(vault.Draft{Type: category.Bank, Label: "No number", Fields: map[string]string{"bankName": "SBI"}})
	assert.ErrorIs(t, err, category.ErrInvalidFields)

	it, err := a.AddItem(vault.Draft{Type: category.Note, Label: "ok"})
	require.NoError(t, err)

	bank := category.Bank
	_, err = a.UpdateItem(context.Background(), it.ID, vault.Patch{Type: &bank})
	assert.ErrorIs(t, err, category.ErrInvalidFields)
	_, err = a.UpdateItem(context.Background(), "missing", vault.Patch{})
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.ErrorIs(t, a.DeleteItem("missing"), ErrItemNotFound)
}

func TestAssets_DeleteGatedByReferences(t *testing.T) {
	a, _ := newVault(t)
	ctx := context.Background()

	it, err := a.AddItem(vault.Draft{Type: category.Identity, Label: "Passport", Fields: map[string]string{
		"documentType": "Passport", "documentNumber": "Z1234567",
	}})
	require.NoError(t, err)

	path := writeFile(t, "scan.txt", "passport scan")
	updated, x, err := a.AttachFile(ctx, it.ID, path, asset.TypeDocument)
	require.NoError(t, err)
	assert.True(t, updated.HasAsset(x.ID))

	again, created, err := a.AddAsset(ctx, path, asset.TypeDocument, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, x.ID, again.ID)

	assert.ErrorIs(t, a.DeleteAsset(ctx, x.ID), asset.ErrAssetInUse)

	var out bytes.Buffer
	_, err = a.ExportAsset(ctx, x.ID, &out)
	require.NoError(t, err)
	assert.Equal(t, "passport scan", out.String())

	refs := []vault.AssetRef{{AssetID: x.ID}, {AssetID: "no-such-asset"}}
	_, err = a.UpdateItem(ctx, it.ID, vault.Patch{AssetRefs: &refs})
	assert.ErrorIs(t, err, asset.ErrAssetNotFound)
	assert.Equal(t, []string{x.ID}, a.Vault.GetItem(it.ID).AssetIDs())

	_, err = a.DetachAsset(it.ID, x.ID)
	require.NoError(t, err)
	ids, err := a.CollectGarbage(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{x.ID}, ids)

	ids, err = a.CollectGarbage(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{x.ID}, ids)
	_, err = a.Assets.Get(ctx, x.ID)
	assert.ErrorIs(t, err, asset.ErrAssetNotFound)
}

func TestAssets_DeleteRefusedWhileLocked(t *testing.T) {
	a, _ := newVault(t)
	ctx := context.Background()

	x, _, err := a.AddAsset(ctx, writeFile(t, "a.txt", "alpha"), asset.TypeDocument, "")
	require.NoError(t, err)

	a.Lock()
	assert.ErrorIs(t, a.DeleteAsset(ctx, x.ID), vault.ErrLocked)
}

func TestBackupRestore(t *testing.T) {
	src, _ := newVault(t)
	ctx := context.Background()

	pets, err := src.Categories.Create(ctx, category.Draft{
		Label:  "Pets",
		Fields: []category.FieldDefinition{{Key: "chip", Label: "Chip", Type: category.FieldText, Required: true}},
	})
	require.NoError(t, err)
	it, err := src.AddItem(vault.Draft{Type: pets.ID, Label: "Rex", Fields: map[string]string{"chip": "985"}})
	require.NoError(t, err)
	_, _, err = src.AttachFile(ctx, it.ID, writeFile(t, "vaccination.txt", "rabies 2026"), asset.TypeDocument)
	require.NoError(t, err)
	_, err = src.Settings.Update(ctx, func(s *settings.AppSettings) { s.Theme = settings.ThemeDark })
	require.NoError(t, err)

	opts := backup.Options{Password: []byte("backup password")}
	var buf bytes.Buffer
	header, err := src.Backup(ctx, &buf, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, header.ItemCount)
	assert.Equal(t, 1, header.AssetCount)

	dst, _ := newVault(t)
	res, err := dst.Restore(ctx, bytes.NewReader(buf.Bytes()), opts, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemsRestored)
	assert.Equal(t, 1, res.AssetsCreated)
	assert.Equal(t, 1, res.Categories)

	restored, err := dst.GetItem(it.ID)
	require.NoError(t, err)
	require.Len(t, restored.AssetRefs, 1)
	n, err := dst.Vault.ReferenceCount(restored.AssetRefs[0].AssetID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, dst.Categories.Known(pets.ID))
	assert.Equal(t, settings.ThemeDark, dst.Settings.Get().Theme)

	var out bytes.Buffer
	_, err = dst.ExportAsset(ctx, restored.AssetRefs[0].AssetID, &out)
	require.NoError(t, err)
	assert.Equal(t, "rabies 2026", out.String())

	again, err := dst.Restore(ctx, bytes.NewReader(buf.Bytes()), opts, false)
	require.NoError(t, err)
	assert.Equal(t, 0, again.ItemsRestored)
	assert.Equal(t, 1, again.ItemsSkipped)
	assert.Equal(t, 1, again.AssetsExisting)
}

func TestImportBitwarden(t *testing.T) {
	a, _ := newVault(t)

	res, err := a.Import(importer.SourceBitwarden, []byte(`{
		"items": [
			{"type": 1, "name": "GitHub", "login": {"username": "me", "password": "pw"}},
			{"type": 3, "name": "Visa", "card": {"number": "4111111111114532"}},
			{"type": 4, "name": "Passport", "identity": {"passportNumber": "P1"}},
			{"type": 9, "name": "Unknown"}
		]
	}`))
	require.NoError(t, err)
	assert.Len(t, res.Added, 3)
	assert.Len(t, res.Skipped, 1)

	hits := a.SearchItems("4532")
	require.Len(t, hits, 1)
	assert.Equal(t, "Visa", hits[0].Label)
}

func TestAuditJournalRecordsOperations(t *testing.T) {
	a, _ := newVault(t)

	_, err := a.AddItem(vault.Draft{Type: category.Note, Label: "n"})
	require.NoError(t, err)

	events, err := a.Audit.Events(0, time.Time{})
	require.NoError(t, err)
	var ops []string
	for _, e := range events {
		ops = append(ops, e.Operation)
	}
	assert.Contains(t, ops, "vault.unlock")
	assert.Contains(t, ops, "vault.init")
	assert.Contains(t, ops, "item.add")

	res, err := a.Audit.Verify()
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Errors)
}

func TestChangePassword(t *testing.T) {
	a, _ := newVault(t)
	_, err := a.AddItem(vault.Draft{Type: category.Note, Label: "kept"})
	require.NoError(t, err)
	flush(t, a)

	require.NoError(t, a.ChangePassword(testPassword, "a brand new secret"))
	a.Lock()
	require.NoError(t, a.Unlock(context.Background(), "a brand new secret"))
	assert.Len(t, a.Vault.Items(), 1)
}

func TestSecurityReport(t *testing.T) {
	a, _ := newVault(t)
	for _, svc := range []string{"mail", "forum"} {
		_, err := a.AddItem(vault.Draft{
			Type:   category.Credential,
			Label:  svc,
			Fields: map[string]string{"service": svc, "password": "hunter2"},
		})
		require.NoError(t, err)
	}

	report, err := a.SecurityReport(true, 0)
	require.NoError(t, err)
	assert.Less(t, report.Overall, 100)
	assert.NotEmpty(t, report.Suggestions)

	groups, err := a.DuplicatePasswords()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
	assert.Len(t, groups[0].ItemIDs, 2)

	weak, err := a.WeakPasswords()
	require.NoError(t, err)
	assert.Len(t, weak, 2)

	a.Lock()
	_, err = a.SecurityReport(false, 0)
	assert.ErrorIs(t, err, vault.ErrLocked)
}
