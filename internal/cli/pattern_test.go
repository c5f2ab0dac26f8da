package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

func testItems() []*vault.Item {
	return []*vault.Item{
		{ID: "id-1", Label: "HDFC Savings"},
		{ID: "id-2", Label: "HDFC Credit Card"},
		{ID: "id-3", Label: "SBI Salary"},
		{ID: "id-4", Label: "Passport"},
		{ID: "id-5", Label: "PAN"},
	}
}

func ids(items []*vault.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestMatchItems(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected []string
		wantErr  bool
	}{
		{
			name:     "exact label",
			pattern:  "Passport",
			expected: []string{"id-4"},
		},
		{
			name:     "exact id",
			pattern:  "id-3",
			expected: []string{"id-3"},
		},
		{
			name:     "wildcard prefix",
			pattern:  "HDFC*",
			expected: []string{"id-1", "id-2"},
		},
		{
			name:     "case insensitive",
			pattern:  "hdfc *card",
			expected: []string{"id-2"},
		},
		{
			name:     "question mark",
			pattern:  "P?N",
			expected: []string{"id-5"},
		},
		{
			name:     "match all",
			pattern:  "*",
			expected: []string{"id-1", "id-2", "id-3", "id-4", "id-5"},
		},
		{
			name:    "no match glob",
			pattern: "ICICI*",
			wantErr: true,
		},
		{
			name:    "no match exact",
			pattern: "passport",
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			pattern: "[invalid",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := MatchItems(tc.pattern, testItems())

			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := ids(result)
			if len(got) != len(tc.expected) {
				t.Fatalf("got %v, want %v", got, tc.expected)
			}
			for i := range got {
				if got[i] != tc.expected[i] {
					t.Errorf("position %d: got %s, want %s", i, got[i], tc.expected[i])
				}
			}
		})
	}
}

func TestMatchAll(t *testing.T) {
	result, err := MatchAll([]string{"HDFC*", "id-1", "SBI*"}, testItems())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ids(result)
	want := []string{"id-1", "id-2", "id-3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if _, err := MatchAll([]string{"HDFC*", "missing"}, testItems()); err == nil {
		t.Error("expected error for unmatched pattern")
	}
}

func TestMapKeys(t *testing.T) {
	m := map[string]int{"z": 1, "a": 2, "m": 3}
	result := MapKeys(m)

	expected := []string{"a", "m", "z"}
	if len(result) != len(expected) {
		t.Errorf("got %d keys, want %d", len(result), len(expected))
	}

	for i, v := range result {
		if v != expected[i] {
			t.Errorf("position %d: got %s, want %s", i, v, expected[i])
		}
	}
}

func TestParseFields(t *testing.T) {
	fields, err := ParseFields([]string{"bankName=SBI", "ifscCode=SBIN0001234", "note=a=b", "bankName=HDFC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields["bankName"] != "HDFC" || fields["note"] != "a=b" || len(fields) != 3 {
		t.Errorf("unexpected fields: %v", fields)
	}

	for _, bad := range []string{"novalue", "=value"} {
		if _, err := ParseFields([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
	if _, err := ParseFields([]string{"1bad=x"}); !errors.Is(err, vault.ErrInvalidItem) {
		t.Errorf("expected ErrInvalidItem for invalid key, got %v", err)
	}
}

func TestParseCustomFields(t *testing.T) {
	got, err := ParseCustomFields([]string{"Customer ID=12345", "Branch=MG Road"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Label != "Customer ID" || got[1].Value != "MG Road" {
		t.Errorf("unexpected custom fields: %+v", got)
	}
	if _, err := ParseCustomFields([]string{"no separator"}); err == nil {
		t.Error("expected error")
	}
}

func TestMergeFields(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	got := MergeFields(base, map[string]string{"b": "", "c": "3"})

	if len(got) != 2 || got["a"] != "1" || got["c"] != "3" {
		t.Errorf("unexpected merge: %v", got)
	}
	if base["b"] != "2" {
		t.Error("base was modified")
	}
}

func TestParseFieldDefinition(t *testing.T) {
	tests := []struct {
		raw     string
		want    category.FieldDefinition
		wantErr bool
	}{
		{
			raw:  "insurer:Insurer",
			want: category.FieldDefinition{Key: "insurer", Label: "Insurer", Type: category.FieldText},
		},
		{
			raw:  "policyNumber:Policy Number:text:required,sensitive",
			want: category.FieldDefinition{Key: "policyNumber", Label: "Policy Number", Type: category.FieldText, Required: true, Sensitive: true},
		},
		{
			raw:  "plan:Plan:select:options=Basic|Family",
			want: category.FieldDefinition{Key: "plan", Label: "Plan", Type: category.FieldSelect, Options: []string{"Basic", "Family"}},
		},
		{raw: "nolabel", wantErr: true},
		{raw: ":Label", wantErr: true},
		{raw: "k:L:text:bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseFieldDefinition(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Key != tt.want.Key || got.Label != tt.want.Label || got.Type != tt.want.Type ||
				got.Required != tt.want.Required || got.Sensitive != tt.want.Sensitive ||
				strings.Join(got.Options, "|") != strings.Join(tt.want.Options, "|") {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
