// Package chunk splits a serialized document across bounded-size records.
//
// A document is encoded to JSON, checksummed, and cut into fixed-size
// chunks that each fit under the backing store's value ceiling minus a
// margin. A small meta record describes the layout. Decoding is
// all-or-nothing: any gap, length or checksum mismatch yields a
// *CorruptionError and the caller's output is left untouched.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Version is the current layout version written into every meta record.
const Version = 1

// DefaultMargin is reserved below the backend ceiling for envelope overhead.
const DefaultMargin = 128

// Errors
var (
	ErrCorrupt       = errors.New("chunk: document is corrupt")
	ErrInvalidLayout = errors.New("chunk: invalid ceiling/margin")
)

// Corruption reasons.
const (
	ReasonMissingChunk   = "missing chunk"
	ReasonLengthMismatch = "length mismatch"
	ReasonChecksum       = "checksum mismatch"
	ReasonVersion        = "unsupported version"
	ReasonMeta           = "invalid meta record"
	ReasonDecode         = "decode failure"
)

// CorruptionError describes why a stored document could not be trusted.
type CorruptionError struct {
	Reason string
	Detail string
	Err    error
}

func (e *CorruptionError) Error() string {
	msg := "chunk: corrupt document: " + e.Reason
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrCorrupt) hold for every CorruptionError.
func (e *CorruptionError) Is(target error) bool { return target == ErrCorrupt }

func (e *CorruptionError) Unwrap() error { return e.Err }

func corrupt(reason, detail string, err error) *CorruptionError {
	return &CorruptionError{Reason: reason, Detail: detail, Err: err}
}

// Meta describes how a document is laid out across chunk records.
type Meta struct {
	Version     int    `json:"v"`
	ChunkCount  int    `json:"n"`
	TotalLength int    `json:"len"`
	Checksum    string `json:"sum"`
}

// MarshalMeta encodes a meta record.
func MarshalMeta(m Meta) ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMeta decodes and sanity-checks a meta record.
func UnmarshalMeta(data []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, corrupt(ReasonMeta, "", err)
	}
	if m.Version < 1 || m.Version > Version {
		return Meta{}, corrupt(ReasonVersion, fmt.Sprintf("got %d, max %d", m.Version, Version), nil)
	}
	if m.ChunkCount < 1 || m.TotalLength < 0 || len(m.Checksum) != sha256.Size*2 {
		return Meta{}, corrupt(ReasonMeta, fmt.Sprintf("count=%d length=%d", m.ChunkCount, m.TotalLength), nil)
	}
	return m, nil
}

// Codec cuts payloads into chunks of Ceiling-Margin bytes.
type Codec struct {
	ceiling int
	margin  int
}

// New returns a Codec for a backend whose values are capped at ceiling bytes.
func New(ceiling, margin int) (*Codec, error) {
	if margin < 0 || ceiling-margin < 1 {
		return nil, fmt.Errorf("%w: ceiling=%d margin=%d", ErrInvalidLayout, ceiling, margin)
	}
	return &Codec{ceiling: ceiling, margin: margin}, nil
}

// ChunkSize is the maximum payload bytes per chunk record.
func (c *Codec) ChunkSize() int { return c.ceiling - c.margin }

// Encode serializes doc and splits it into chunks.
// An empty payload still produces one (empty) chunk.
func (c *Codec) Encode(doc any) (Meta, [][]byte, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("chunk: failed to encode document: %w", err)
	}
	return c.Split(payload), Chunks(payload, c.ChunkSize()), nil
}

// Split computes the meta record for payload.
func (c *Codec) Split(payload []byte) Meta {
	n := (len(payload) + c.ChunkSize() - 1) / c.ChunkSize()
	if n == 0 {
		n = 1
	}
	return Meta{
		Version:     Version,
		ChunkCount:  n,
		TotalLength: len(payload),
		Checksum:    Checksum(payload),
	}
}

// Chunks cuts payload into pieces of at most size bytes.
func Chunks(payload []byte, size int) [][]byte {
	if len(payload) == 0 {
		return [][]byte{{}}
	}
	out := make([][]byte, 0, (len(payload)+size-1)/size)
	for off := 0; off < len(payload); off += size {
		end := min(off+size, len(payload))
		out = append(out, payload[off:end:end])
	}
	return out
}

// Checksum returns the hex SHA-256 of payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Join validates and reassembles the payload described by meta.
// chunks is keyed by chunk index; indices beyond ChunkCount are ignored.
func Join(meta Meta, chunks map[int][]byte) ([]byte, error) {
	if meta.Version < 1 || meta.Version > Version {
		return nil, corrupt(ReasonVersion, fmt.Sprintf("got %d", meta.Version), nil)
	}
	payload := make([]byte, 0, meta.TotalLength)
	for i := 0; i < meta.ChunkCount; i++ {
		part, ok := chunks[i]
		if !ok {
			return nil, corrupt(ReasonMissingChunk, fmt.Sprintf("index %d of %d", i, meta.ChunkCount), nil)
		}
		payload = append(payload, part...)
	}
	if len(payload) != meta.TotalLength {
		return nil, corrupt(ReasonLengthMismatch, fmt.Sprintf("got %d, want %d", len(payload), meta.TotalLength), nil)
	}
	if Checksum(payload) != meta.Checksum {
		return nil, corrupt(ReasonChecksum, "", nil)
	}
	return payload, nil
}

// Decode reassembles the document into out. On any error out is unchanged.
// Decoding does not depend on the chunk size that produced the records.
func Decode(meta Meta, chunks map[int][]byte, out any) error {
	payload, err := Join(meta, chunks)
	if err != nil {
		return err
	}
	return unmarshalInto(payload, out)
}

// unmarshalInto decodes into a scratch value first so a failure cannot leave
// out half-populated.
func unmarshalInto(payload []byte, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("chunk: decode target must be a non-nil pointer, got %T", out)
	}
	tmp := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(payload, tmp.Interface()); err != nil {
		return corrupt(ReasonDecode, "", err)
	}
	rv.Elem().Set(tmp.Elem())
	return nil
}

// Keys names the records of one document under a prefix.
type Keys struct {
	Prefix string
}

// Meta is the key of the meta record.
func (k Keys) Meta() string { return k.Prefix + ".meta" }

// Chunk is the key of chunk i.
func (k Keys) Chunk(i int) string { return k.Prefix + ".chunk." + strconv.Itoa(i) }

// StaleIndices lists chunk indices left behind when a document shrinks
// from prevCount to newCount chunks.
func StaleIndices(prevCount, newCount int) []int {
	if prevCount <= newCount {
		return nil
	}
	out := make([]int, 0, prevCount-newCount)
	for i := newCount; i < prevCount; i++ {
		out = append(out, i)
	}
	return out
}
