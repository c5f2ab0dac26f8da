// Package importer converts exports of other password managers into vault
// item drafts. Bitwarden unencrypted JSON is supported.
package importer

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// Source represents the source password manager format.
type Source string

const (
	SourceBitwarden Source = "bitwarden"
)

// ErrEncryptedExport is returned for password-protected exports, which must
// be re-exported unencrypted first.
var ErrEncryptedExport = errors.New("importer: encrypted exports are not supported")

// Result contains the results of an import operation.
type Result struct {
	// Items are the drafts ready for vault.Manager.AddItem.
	Items []vault.Draft

	// Warnings are non-fatal issues encountered during parsing.
	Warnings []string

	// Skipped are items that were skipped with reasons.
	Skipped []SkippedItem
}

// SkippedItem represents an item that was skipped during import.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// Parser is the interface for import format parsers.
type Parser interface {
	Parse(data []byte) (*Result, error)
	Source() Source
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case SourceBitwarden:
		return &BitwardenParser{newID: uuid.NewString}, nil
	default:
		return nil, fmt.Errorf("importer: unsupported import source: %s", source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{string(SourceBitwarden)}
}

// NormalizeValue trims whitespace and normalizes Unicode to NFC.
func NormalizeValue(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// FallbackLabel names an item that has no name of its own: the hostname of
// its first URL, or "Imported item N".
func FallbackLabel(url string, counter int) string {
	if host := extractHostname(url); host != "" {
		return host
	}
	return fmt.Sprintf("Imported item %d", counter)
}

// extractHostname extracts the hostname from a URL.
func extractHostname(urlStr string) string {
	urlStr = strings.TrimPrefix(urlStr, "https://")
	urlStr = strings.TrimPrefix(urlStr, "http://")
	if idx := strings.Index(urlStr, "/"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	if idx := strings.Index(urlStr, ":"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	return strings.TrimPrefix(urlStr, "www.")
}

// TruncateLabel cuts s to vault.MaxLabelLength runes.
func TruncateLabel(s string) string {
	if utf8.RuneCountInString(s) <= vault.MaxLabelLength {
		return s
	}
	return string([]rune(s)[:vault.MaxLabelLength])
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
