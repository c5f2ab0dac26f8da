// Package audit keeps a tamper-evident journal of security-relevant vault
// operations. Every record carries an HMAC over its content and the HMAC of
// its predecessor, so deleting, reordering or editing a line breaks the chain.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/disk"
)

// MinDiskSpace is the free space required before appending a record.
const MinDiskSpace = 1024 * 1024

const (
	genesis      = "genesis"
	stateFile    = "audit.meta"
	subkeyInfo   = "idlocker-audit-v1"
	eventVersion = 1
)

// Operation types
const (
	OpVaultInit         = "vault.init"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpPasswordChange    = "vault.password_change"

	OpItemAdd    = "item.add"
	OpItemUpdate = "item.update"
	OpItemDelete = "item.delete"
	OpItemRead   = "item.read"

	OpAssetIngest = "asset.ingest"
	OpAssetDelete = "asset.delete"
	OpAssetShare  = "asset.share"

	OpCategoryChange = "category.change"
	OpBackup         = "backup.create"
	OpRestore        = "backup.restore"
	OpImport         = "import"
)

// Sources
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Results
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// ErrNoKey is returned while the journal has no HMAC key.
var ErrNoKey = errors.New("audit: HMAC key not set")

// Event is one journal record.
type Event struct {
	Version   int               `json:"v"`
	ID        string            `json:"id"`
	Timestamp string            `json:"ts"` // RFC 3339, nanoseconds
	Operation string            `json:"op"`
	Subject   string            `json:"subject,omitempty"` // item or asset id
	Source    string            `json:"source"`
	SessionID string            `json:"session"`
	Result    string            `json:"result"`
	Error     string            `json:"error,omitempty"`
	Context   map[string]string `json:"ctx,omitempty"`
	Chain     Chain             `json:"chain"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`

	// First record kept after pruning.
	FirstSeq  int64  `json:"first_seq,omitempty"`
	FirstPrev string `json:"first_prev,omitempty"`
}

// VerifyResult contains the results of chain verification.
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Journal appends chained records to monthly JSONL files in a directory.
type Journal struct {
	dir     string
	logger  *slog.Logger
	now     func() time.Time
	minFree uint64

	mu        sync.Mutex
	key       []byte
	sequence  int64
	prevHash  string
	firstSeq  int64
	firstPrev string
	session   string
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger for non-fatal journal problems.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// WithMinFree overrides MinDiskSpace.
func WithMinFree(n uint64) Option {
	return func(j *Journal) { j.minFree = n }
}

// New returns a journal writing to dir. It records nothing until SetKey.
func New(dir string, opts ...Option) *Journal {
	j := &Journal{
		dir:       dir,
		logger:    slog.Default(),
		now:       time.Now,
		minFree:   MinDiskSpace,
		prevHash:  genesis,
		firstSeq:  1,
		firstPrev: genesis,
		session:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Dir returns the journal directory.
func (j *Journal) Dir() string { return j.dir }

// SetKey derives the HMAC key from the vault data key and resumes the chain.
func (j *Journal) SetKey(dataKey []byte) error {
	key, err := crypto.DeriveSubkey(dataKey, subkeyInfo)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	crypto.SecureWipe(j.key)
	j.key = key
	if err := j.loadState(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("audit chain state unreadable, starting a new chain", "error", err)
		}
		j.sequence, j.prevHash = 0, genesis
		j.firstSeq, j.firstPrev = 1, genesis
	}
	return nil
}

// ClearKey wipes the HMAC key. Records are refused until SetKey.
func (j *Journal) ClearKey() {
	j.mu.Lock()
	defer j.mu.Unlock()
	crypto.SecureWipe(j.key)
	j.key = nil
}

// Record appends an event for op. A non-nil opErr marks the result as an
// error.
func (j *Journal) Record(op, source, subject string, opErr error, ctx map[string]string) error {
	result, msg := ResultSuccess, ""
	if opErr != nil {
		result, msg = ResultError, opErr.Error()
	}
	return j.append(op, source, subject, result, msg, ctx)
}

// Denied appends a refused operation with its reason.
func (j *Journal) Denied(op, source, subject, reason string) error {
	return j.append(op, source, subject, ResultDenied, "", map[string]string{"reason": reason})
}

func (j *Journal) append(op, source, subject, result, msg string, ctx map[string]string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.key == nil {
		return ErrNoKey
	}
	if err := os.MkdirAll(j.dir, 0o700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := disk.Check(j.dir, 0, j.minFree); err != nil {
		if errors.Is(err, disk.ErrInsufficient) {
			return fmt.Errorf("audit: %w", err)
		}
		j.logger.Warn("failed to check disk space for audit", "error", err)
	}

	now := j.now().UTC()
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("audit: failed to allocate event id: %w", err)
	}
	event := Event{
		Version:   eventVersion,
		ID:        id.String(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Subject:   subject,
		Source:    source,
		SessionID: j.session,
		Result:    result,
		Error:     msg,
		Context:   ctx,
		Chain: Chain{
			Sequence: j.sequence + 1,
			PrevHash: j.prevHash,
		},
	}
	event.Chain.HMAC = j.sign(&event)

	if err := j.writeEvent(now, &event); err != nil {
		return err
	}
	j.sequence = event.Chain.Sequence
	j.prevHash = event.Chain.HMAC
	return j.saveState()
}

// sign computes the record HMAC over every field except the HMAC itself.
func (j *Journal) sign(e *Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s|%s|%s|%s|%s|%s|",
		e.Version, e.ID, e.Timestamp, e.Operation, e.Subject,
		e.Source, e.SessionID, e.Result, e.Error)
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%q=%q;", k, e.Context[k])
	}
	fmt.Fprintf(&b, "|%d|%s", e.Chain.Sequence, e.Chain.PrevHash)

	mac := hmac.New(sha256.New, j.key)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (j *Journal) writeEvent(now time.Time, e *Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}

	path := filepath.Join(j.dir, now.Format("2006-01")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return f.Sync()
}

func (j *Journal) loadState() error {
	data, err := os.ReadFile(filepath.Join(j.dir, stateFile))
	if err != nil {
		return err
	}
	var st chainState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	j.sequence, j.prevHash = st.Sequence, st.PrevHash
	j.firstSeq, j.firstPrev = 1, genesis
	if st.FirstSeq > 0 {
		j.firstSeq, j.firstPrev = st.FirstSeq, st.FirstPrev
	}
	return nil
}

func (j *Journal) saveState() error {
	st := chainState{Sequence: j.sequence, PrevHash: j.prevHash}
	if j.firstSeq > 1 {
		st.FirstSeq, st.FirstPrev = j.firstSeq, j.firstPrev
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	path := filepath.Join(j.dir, stateFile)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// Verify walks every record in order and checks sequence, linkage and HMAC.
func (j *Journal) Verify() (*VerifyResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.key == nil {
		return nil, ErrNoKey
	}
	events, err := j.readAll()
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{Valid: true, RecordsTotal: len(events)}
	prev, seq := j.firstPrev, j.firstSeq
	for i := range events {
		e := &events[i]
		if e.Chain.Sequence != seq {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("sequence gap at record %s: expected %d, got %d", e.ID, seq, e.Chain.Sequence))
		}
		if e.Chain.PrevHash != prev {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("chain broken at record %s", e.ID))
		}
		if !hmac.Equal([]byte(e.Chain.HMAC), []byte(j.sign(e))) {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("HMAC mismatch at record %s: possible tampering", e.ID))
		} else {
			res.RecordsVerified++
		}
		prev = e.Chain.HMAC
		seq = e.Chain.Sequence + 1
	}
	return res, nil
}

// Events returns at most limit of the most recent events after since. Zero
// values disable the filters.
func (j *Journal) Events(limit int, since time.Time) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	events, err := j.readAll()
	if err != nil {
		return nil, err
	}
	events = filterTime(events, since, time.Time{})
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Export writes events between since and until as "json" or "csv".
func (j *Journal) Export(w io.Writer, format string, since, until time.Time) error {
	j.mu.Lock()
	events, err := j.readAll()
	j.mu.Unlock()
	if err != nil {
		return err
	}
	events = filterTime(events, since, until)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case "csv":
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"timestamp", "operation", "subject", "source", "result"})
		for _, e := range events {
			_ = cw.Write([]string{
				csvSafe(e.Timestamp), csvSafe(e.Operation), csvSafe(e.Subject),
				csvSafe(e.Source), csvSafe(e.Result),
			})
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("audit: unsupported format: %s", format)
	}
}

// csvSafe neutralizes cells a spreadsheet would evaluate as a formula.
func csvSafe(s string) string {
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		return "'" + s
	}
	return s
}

// Prune deletes events older than olderThan and returns how many went.
// The first kept record becomes the anchor Verify starts from.
func (j *Journal) Prune(olderThan time.Duration) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.key == nil {
		return 0, ErrNoKey
	}

	cutoff := j.now().Add(-olderThan)
	files, err := j.files()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, file := range files {
		events, err := readFile(file)
		if err != nil {
			return deleted, err
		}
		var kept []Event
		for _, e := range events {
			if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil && ts.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, e)
		}
		switch {
		case len(kept) == len(events):
		case len(kept) == 0:
			if err := os.Remove(file); err != nil {
				return deleted, fmt.Errorf("audit: failed to delete %s: %w", file, err)
			}
		default:
			if err := rewriteFile(file, kept); err != nil {
				return deleted, err
			}
		}
	}
	if deleted == 0 {
		return 0, nil
	}

	rest, err := j.readAll()
	if err != nil {
		return deleted, err
	}
	if len(rest) > 0 {
		j.firstSeq, j.firstPrev = rest[0].Chain.Sequence, rest[0].Chain.PrevHash
	} else {
		j.firstSeq, j.firstPrev = j.sequence+1, j.prevHash
	}
	return deleted, j.saveState()
}

func (j *Journal) files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(j.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM names sort chronologically.
	sort.Strings(files)
	return files, nil
}

func (j *Journal) readAll() ([]Event, error) {
	files, err := j.files()
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, file := range files {
		events, err := readFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	return all, nil
}

func readFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit: %s line %d: %w", filepath.Base(path), line, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read %s: %w", path, err)
	}
	return events, nil
}

func rewriteFile(path string, events []Event) error {
	var buf bytes.Buffer
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("audit: failed to rewrite %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

func filterTime(events []Event, since, until time.Time) []Event {
	if since.IsZero() && until.IsZero() {
		return events
	}
	out := events[:0:0]
	for _, e := range events {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			continue
		}
		if !since.IsZero() && ts.Before(since) {
			continue
		}
		if !until.IsZero() && ts.After(until) {
			continue
		}
		out = append(out, e)
	}
	return out
}
