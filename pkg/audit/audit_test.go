package audit

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func newTestJournal(t *testing.T, dir string, c *clock) *Journal {
	t.Helper()
	j := New(dir, WithNow(c.now), WithLogger(slog.New(slog.DiscardHandler)), WithMinFree(0))
	if err := j.SetKey(testKey()); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}
	return j
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestRecordWithoutKey(t *testing.T) {
	j := New(t.TempDir())
	if err := j.Record(OpItemAdd, SourceCLI, "item-1", nil, nil); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey, got %v", err)
	}
}

func TestRecordSuccess(t *testing.T) {
	dir := t.TempDir()
	c := &clock{time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)}
	j := newTestJournal(t, dir, c)

	if err := j.Record(OpItemAdd, SourceCLI, "item-1", nil, map[string]string{"type": "card"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	events, err := j.Events(0, time.Time{})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Operation != OpItemAdd || e.Subject != "item-1" || e.Source != SourceCLI {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Result != ResultSuccess {
		t.Errorf("expected result %s, got %s", ResultSuccess, e.Result)
	}
	if e.Timestamp != "2026-03-04T05:06:07Z" {
		t.Errorf("unexpected timestamp %s", e.Timestamp)
	}
	if e.Chain.Sequence != 1 || e.Chain.PrevHash != "genesis" || e.Chain.HMAC == "" {
		t.Errorf("unexpected chain: %+v", e.Chain)
	}
	if e.Context["type"] != "card" {
		t.Errorf("expected context type card, got %v", e.Context)
	}
	if _, err := os.Stat(filepath.Join(dir, "2026-03.jsonl")); err != nil {
		t.Errorf("expected monthly log file: %v", err)
	}
}

func TestRecordErrorAndDenied(t *testing.T) {
	c := &clock{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	j := newTestJournal(t, t.TempDir(), c)

	if err := j.Record(OpVaultUnlockFailed, SourceCLI, "", errors.New("invalid password"), nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Denied(OpAssetDelete, SourceCLI, "asset-1", "referenced by 2 items"); err != nil {
		t.Fatalf("Denied failed: %v", err)
	}

	events, _ := j.Events(0, time.Time{})
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Result != ResultError || events[0].Error != "invalid password" {
		t.Errorf("unexpected error event: %+v", events[0])
	}
	if events[1].Result != ResultDenied || events[1].Context["reason"] != "referenced by 2 items" {
		t.Errorf("unexpected denied event: %+v", events[1])
	}
}

func TestVerifyIntactChain(t *testing.T) {
	c := &clock{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	j := newTestJournal(t, t.TempDir(), c)
	for i := 0; i < 5; i++ {
		c.t = c.t.Add(time.Minute)
		if err := j.Record(OpItemUpdate, SourceCLI, "item-1", nil, nil); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	res, err := j.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.Valid || res.RecordsTotal != 5 || res.RecordsVerified != 5 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	c := &clock{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	j := newTestJournal(t, dir, c)
	for i := 0; i < 3; i++ {
		if err := j.Record(OpItemRead, SourceMCP, "item-1", nil, nil); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	path := filepath.Join(dir, "2026-03.jsonl")
	lines := readLines(t, path)
	lines[1] = strings.Replace(lines[1], `"subject":"item-1"`, `"subject":"item-2"`, 1)
	writeLines(t, path, lines)

	res, err := j.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Valid {
		t.Error("expected tampered chain to be invalid")
	}
	if res.RecordsVerified != 2 {
		t.Errorf("expected 2 verified records, got %d", res.RecordsVerified)
	}
}

func TestVerifyDetectsDeletedRecord(t *testing.T) {
	dir := t.TempDir()
	c := &clock{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	j := newTestJournal(t, dir, c)
	for i := 0; i < 3; i++ {
		if err := j.Record(OpItemDelete, SourceCLI, "item", nil, nil); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	path := filepath.Join(dir, "2026-03.jsonl")
	lines := readLines(t, path)
	writeLines(t, path, []string{lines[0], lines[2]})

	res, err := j.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Valid {
		t.Error("expected chain with a missing record to be invalid")
	}
}

func TestVerifyWithWrongKey(t *testing.T) {
	dir := t.TempDir()
	c := &clock{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	j := newTestJournal(t, dir, c)
	if err := j.Record(OpVaultUnlock, SourceCLI, "", nil, nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	other := New(dir, WithNow(c.now))
	if err := other.SetKey(make([]byte, 32)); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}
	res, err := other.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Valid {
		t.Error("expected verification with another key to fail")
	}
}

func TestChainResumesAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	c := &clock{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	first := newTestJournal(t, dir, c)
	if err := first.Record(OpVaultUnlock, SourceCLI, "", nil, nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	first.ClearKey()
	if err := first.Record(OpVaultLock, SourceCLI, "", nil, nil); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey after ClearKey, got %v", err)
	}

	second := newTestJournal(t, dir, c)
	if err := second.Record(OpVaultLock, SourceCLI, "", nil, nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	events, _ := second.Events(0, time.Time{})
	if len(events) != 2 || events[1].Chain.Sequence != 2 {
		t.Fatalf("expected chain to continue at sequence 2, got %+v", events)
	}
	if events[0].SessionID == events[1].SessionID {
		t.Error("expected a new session id per journal")
	}
	res, _ := second.Verify()
	if !res.Valid {
		t.Errorf("expected resumed chain to verify: %v", res.Errors)
	}
}

func TestEventsFilters(t *testing.T) {
	c := &clock{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	j := newTestJournal(t, t.TempDir(), c)
	for i := 0; i < 4; i++ {
		c.t = c.t.Add(time.Hour)
		if err := j.Record(OpItemRead, SourceCLI, "item", nil, nil); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	last, _ := j.Events(2, time.Time{})
	if len(last) != 2 || last[1].Chain.Sequence != 4 {
		t.Errorf("expected the two most recent events, got %+v", last)
	}
	since, _ := j.Events(0, time.Date(2026, 3, 4, 2, 30, 0, 0, time.UTC))
	if len(since) != 2 {
		t.Errorf("expected 2 events after 02:30, got %d", len(since))
	}
}

func TestExport(t *testing.T) {
	c := &clock{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	j := newTestJournal(t, t.TempDir(), c)
	if err := j.Record(OpImport, SourceCLI, "=HYPERLINK(\"x\")", nil, nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	var buf bytes.Buffer
	if err := j.Export(&buf, "csv", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("Export csv failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "timestamp,operation,subject,source,result\n") {
		t.Errorf("unexpected csv header: %q", out)
	}
	if !strings.Contains(out, `"'=HYPERLINK(""x"")"`) {
		t.Errorf("expected formula to be neutralized, got %q", out)
	}

	buf.Reset()
	if err := j.Export(&buf, "json", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("Export json failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"op": "import"`) {
		t.Errorf("unexpected json export: %s", buf.String())
	}

	if err := j.Export(io.Discard, "xml", time.Time{}, time.Time{}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	c := &clock{time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)}
	j := newTestJournal(t, dir, c)
	for i := 0; i < 2; i++ {
		if err := j.Record(OpVaultUnlock, SourceCLI, "", nil, nil); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	c.t = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := j.Record(OpVaultUnlock, SourceCLI, "", nil, nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	n, err := j.Prune(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned events, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "2026-01.jsonl")); !os.IsNotExist(err) {
		t.Error("expected January log to be removed")
	}

	// A fresh journal picks up the anchor from disk.
	reopened := newTestJournal(t, dir, c)
	res, err := reopened.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.Valid || res.RecordsTotal != 1 {
		t.Errorf("expected pruned chain to verify, got %+v", res)
	}
}
