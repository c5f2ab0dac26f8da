package vault

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SearchItems returns the items matching query, in vault order.
//
// Matching is a case-insensitive substring test over the label, every
// field value and every custom field label and value. A query of exactly
// four ASCII digits additionally matches items whose lastFourDigits field
// equals it or whose accountNumber ends with it. An empty query matches
// everything.
func (m *Manager) SearchItems(query string) []*Item {
	query = strings.TrimSpace(query)
	if query == "" {
		return m.Items()
	}
	needle := fold(query)
	digits := isFourDigits(query)

	return m.filter(func(it *Item) bool {
		if digits && matchesCardSuffix(it, query) {
			return true
		}
		return matchesText(it, needle)
	})
}

func matchesCardSuffix(it *Item, q string) bool {
	if it.Fields[FieldLastFourDigits] == q {
		return true
	}
	acct, ok := it.Fields[FieldAccountNumber]
	return ok && strings.HasSuffix(acct, q)
}

func matchesText(it *Item, needle string) bool {
	if strings.Contains(fold(it.Label), needle) {
		return true
	}
	for _, v := range it.Fields {
		if strings.Contains(fold(v), needle) {
			return true
		}
	}
	for _, cf := range it.CustomFields {
		if strings.Contains(fold(cf.Label), needle) || strings.Contains(fold(cf.Value), needle) {
			return true
		}
	}
	return false
}

// isFourDigits reports whether s is exactly four ASCII digits.
func isFourDigits(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// fold normalizes s for caseless comparison. A Caser is stateful, so a
// fresh one is used per call.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
