package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// DuplicateGroup represents a group of items sharing the same password.
type DuplicateGroup struct {
	// ItemIDs contains the items with duplicate values.
	ItemIDs []string `json:"item_ids,omitempty"`
	// FieldNames contains the field names (usually "password").
	FieldNames []string `json:"field_names,omitempty"`
	// Count is the number of duplicates.
	Count int `json:"count"`
}

// FindDuplicates scans the password and token fields of items for reused
// values. Groups are sorted by count (most duplicated first); limit 0 means
// no limit.
//
// Values are compared by HMAC-SHA256 under a session-local key, so the
// hashes are useless outside this process and never persisted. Values are
// normalized (trimmed, Unicode NFC) first.
func (c *Calculator) FindDuplicates(items []*vault.Item, includeIDs bool, limit int) ([]DuplicateGroup, error) {
	groups, _, err := c.groupDuplicates(c.secretFields(items), includeIDs)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

// groupDuplicates returns the duplicate groups and the number of distinct
// values.
func (c *Calculator) groupDuplicates(secrets []secretField, includeIDs bool) ([]DuplicateGroup, int, error) {
	if c.hmacKey == nil {
		key, err := crypto.NewKey()
		if err != nil {
			return nil, 0, err
		}
		c.hmacKey = key
	}

	// Group by hash, keeping first-seen order for stable output.
	var order []string
	byHash := make(map[string][]secretField)
	for _, f := range secrets {
		value := normalizeValue(f.value)
		if value == "" {
			continue
		}
		hash := computeValueHash(value, c.hmacKey)
		if _, ok := byHash[hash]; !ok {
			order = append(order, hash)
		}
		byHash[hash] = append(byHash[hash], f)
	}

	var groups []DuplicateGroup
	for _, hash := range order {
		fields := byHash[hash]
		if len(fields) <= 1 {
			continue
		}
		group := DuplicateGroup{Count: len(fields)}
		if includeIDs {
			for _, f := range fields {
				group.ItemIDs = append(group.ItemIDs, f.itemID)
				group.FieldNames = append(group.FieldNames, f.name)
			}
		}
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups, len(order), nil
}

// FindWeakPasswords returns the weak password and token fields of items.
func (c *Calculator) FindWeakPasswords(items []*vault.Item, includeIDs bool, limit int) []SecurityIssue {
	var issues []SecurityIssue
	for _, f := range c.secretFields(items) {
		if CalculateFieldStrength(f.value, f.kind) == PasswordWeak {
			issues = append(issues, weakIssue(f, includeIDs))
		}
	}
	if limit > 0 && len(issues) > limit {
		issues = issues[:limit]
	}
	return issues
}

// computeValueHash computes HMAC-SHA256 of a value with the session key.
func computeValueHash(value string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeValue normalizes a password value for comparison.
func normalizeValue(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
