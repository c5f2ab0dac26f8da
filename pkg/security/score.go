package security

import (
	"strconv"
	"strings"
	"time"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// FieldExpiryDate is the expiry field shared by the card and identity presets.
const FieldExpiryDate = "expiryDate"

// SecurityScore represents the overall security assessment of a vault.
type SecurityScore struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected security issues.
	Issues []SecurityIssue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
}

// ScoreComponents breaks down the security score into categories.
// Each component contributes up to 25 points (total: 100).
type ScoreComponents struct {
	// StrengthScore is based on average password strength (0-25).
	StrengthScore int `json:"strength"`
	// UniquenessScore is based on percentage of unique passwords (0-25).
	UniquenessScore int `json:"uniqueness"`
	// ExpirationScore is based on percentage of unexpired cards and documents (0-25).
	ExpirationScore int `json:"expiration"`
	// CoverageScore is based on required fields being filled in (0-25).
	CoverageScore int `json:"coverage"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	// IssueWeakPassword indicates a password with insufficient strength.
	IssueWeakPassword IssueType = "weak"
	// IssueDuplicatePassword indicates passwords reused across items.
	IssueDuplicatePassword IssueType = "duplicate"
	// IssueExpiringSoon indicates a card or document expiring within the warning period.
	IssueExpiringSoon IssueType = "expiring"
	// IssueExpired indicates a card or document that has already expired.
	IssueExpired IssueType = "expired"
	// IssueMissingField indicates a required field is missing.
	IssueMissingField IssueType = "missing_field"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityWarning should be addressed soon.
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
)

// SecurityIssue represents a detected security problem.
type SecurityIssue struct {
	// Type identifies the category of issue.
	Type IssueType `json:"type"`
	// Severity indicates urgency.
	Severity Severity `json:"severity"`
	// ItemID is the affected item (empty unless ids were requested).
	ItemID string `json:"item_id,omitempty"`
	// ItemIDs is used for duplicate issues (multiple items).
	ItemIDs []string `json:"item_ids,omitempty"`
	// FieldName is the specific field with the issue.
	FieldName string `json:"field_name,omitempty"`
	// Description explains the issue.
	Description string `json:"description"`
	// Suggestion provides remediation guidance.
	Suggestion string `json:"suggestion,omitempty"`
}

// Schemas resolves the category of an item type.
type Schemas interface {
	Resolve(id string) category.Resolved
}

// Calculator computes security scores for vault items.
type Calculator struct {
	schemas    Schemas
	hmacKey    []byte // Session-local key for duplicate detection
	expiryDays int    // Days until expiration to warn (default 30)
	now        func() time.Time
}

// NewCalculator creates a new security calculator using schemas to find
// sensitive and required fields.
func NewCalculator(schemas Schemas) *Calculator {
	return &Calculator{
		schemas:    schemas,
		expiryDays: 30,
		now:        time.Now,
	}
}

// WithExpiryDays sets the number of days to consider as "expiring soon".
func (c *Calculator) WithExpiryDays(days int) *Calculator {
	c.expiryDays = days
	return c
}

// WithClock sets the time source used for expiry checks.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// secretField is a password or token value found on an item.
type secretField struct {
	itemID string
	name   string
	kind   FieldKind
	value  string
}

// secretFields returns the password and token values of items: sensitive
// schema fields and custom fields whose label names a secret.
func (c *Calculator) secretFields(items []*vault.Item) []secretField {
	var out []secretField
	for _, it := range items {
		for _, def := range c.schemas.Resolve(it.Type).Fields {
			if !def.Sensitive {
				continue
			}
			kind, ok := FieldKindOf(def.Key)
			if !ok || it.Fields[def.Key] == "" {
				continue
			}
			out = append(out, secretField{itemID: it.ID, name: def.Key, kind: kind, value: it.Fields[def.Key]})
		}
		for _, cf := range it.CustomFields {
			kind, ok := FieldKindOf(cf.Label)
			if !ok || cf.Value == "" {
				continue
			}
			out = append(out, secretField{itemID: it.ID, name: cf.Label, kind: kind, value: cf.Value})
		}
	}
	return out
}

// CalculateScore computes the full security score for items.
func (c *Calculator) CalculateScore(items []*vault.Item, includeIDs bool) (*SecurityScore, error) {
	// Empty vault: perfect score
	if len(items) == 0 {
		return &SecurityScore{
			Overall: 100,
			Components: ScoreComponents{
				StrengthScore:   25,
				UniquenessScore: 25,
				ExpirationScore: 25,
				CoverageScore:   25,
			},
			Issues:      []SecurityIssue{},
			Suggestions: []string{},
		}, nil
	}

	secrets := c.secretFields(items)
	strengthScore, weakIssues := c.calculateStrengthScore(secrets, includeIDs)
	uniquenessScore, dupIssues, err := c.calculateUniquenessScore(secrets, includeIDs)
	if err != nil {
		return nil, err
	}
	expirationScore, expIssues := c.calculateExpirationScore(items, includeIDs)
	coverageScore, missingIssues := c.calculateCoverageScore(items, includeIDs)

	allIssues := make([]SecurityIssue, 0, len(weakIssues)+len(dupIssues)+len(expIssues)+len(missingIssues))
	allIssues = append(allIssues, weakIssues...)
	allIssues = append(allIssues, dupIssues...)
	allIssues = append(allIssues, expIssues...)
	allIssues = append(allIssues, missingIssues...)

	return &SecurityScore{
		Overall: strengthScore + uniquenessScore + expirationScore + coverageScore,
		Components: ScoreComponents{
			StrengthScore:   strengthScore,
			UniquenessScore: uniquenessScore,
			ExpirationScore: expirationScore,
			CoverageScore:   coverageScore,
		},
		Issues:      allIssues,
		Suggestions: c.generateSuggestions(allIssues),
	}, nil
}

// calculateStrengthScore evaluates password strength across all items.
// Returns score (0-25) and weak password issues.
func (c *Calculator) calculateStrengthScore(secrets []secretField, includeIDs bool) (int, []SecurityIssue) {
	// No password fields: full score (N/A)
	if len(secrets) == 0 {
		return 25, nil
	}

	var issues []SecurityIssue
	totalPoints := 0
	for _, f := range secrets {
		strength := CalculateFieldStrength(f.value, f.kind)
		totalPoints += strength.Points()
		if strength == PasswordWeak {
			issues = append(issues, weakIssue(f, includeIDs))
		}
	}

	score := totalPoints / len(secrets)
	return min(score, 25), issues
}

// calculateUniquenessScore evaluates password reuse across items.
// Returns score (0-25) and duplicate issues.
func (c *Calculator) calculateUniquenessScore(secrets []secretField, includeIDs bool) (int, []SecurityIssue, error) {
	// No passwords: full score (N/A)
	if len(secrets) == 0 {
		return 25, nil, nil
	}

	duplicates, unique, err := c.groupDuplicates(secrets, includeIDs)
	if err != nil {
		return 0, nil, err
	}

	var issues []SecurityIssue
	for _, dup := range duplicates {
		issue := SecurityIssue{
			Type:        IssueDuplicatePassword,
			Severity:    SeverityWarning,
			Description: strconv.Itoa(dup.Count) + " fields share the same value",
			Suggestion:  "Use unique passwords for each account",
		}
		if includeIDs {
			issue.ItemIDs = dup.ItemIDs
		}
		issues = append(issues, issue)
	}

	score := unique * 25 / len(secrets)
	return score, issues, nil
}

// calculateExpirationScore evaluates the expiry dates of cards and documents.
// Returns score (0-25) and expiration issues.
func (c *Calculator) calculateExpirationScore(items []*vault.Item, includeIDs bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	now := c.now()
	warningThreshold := now.AddDate(0, 0, c.expiryDays)

	withExpiry := 0
	nonExpiredCount := 0

	for _, it := range items {
		expiresAt, ok := ParseExpiry(it.Fields[FieldExpiryDate])
		if !ok {
			continue
		}
		withExpiry++

		var issue *SecurityIssue
		switch {
		case expiresAt.Before(now):
			issue = &SecurityIssue{
				Type:        IssueExpired,
				Severity:    SeverityCritical,
				FieldName:   FieldExpiryDate,
				Description: "Expired on " + expiresAt.Format(time.DateOnly),
				Suggestion:  "Renew the card or document and update the item",
			}
		case expiresAt.Before(warningThreshold):
			nonExpiredCount++
			daysLeft := int(expiresAt.Sub(now).Hours() / 24)
			issue = &SecurityIssue{
				Type:        IssueExpiringSoon,
				Severity:    SeverityWarning,
				FieldName:   FieldExpiryDate,
				Description: "Expires in " + formatDays(daysLeft),
				Suggestion:  "Plan to renew before expiration",
			}
		default:
			nonExpiredCount++
		}
		if issue != nil {
			if includeIDs {
				issue.ItemID = it.ID
			}
			issues = append(issues, *issue)
		}
	}

	// Nothing expires: full score (N/A)
	if withExpiry == 0 {
		return 25, issues
	}
	return nonExpiredCount * 25 / withExpiry, issues
}

// calculateCoverageScore checks that items fill in the required fields of
// their category. Orphaned items are not checked.
func (c *Calculator) calculateCoverageScore(items []*vault.Item, includeIDs bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	checked, complete := 0, 0

	for _, it := range items {
		schema := c.schemas.Resolve(it.Type)
		if schema.Orphaned {
			continue
		}
		checked++
		missing := false
		for _, def := range schema.Fields {
			if !def.Required || strings.TrimSpace(it.Fields[def.Key]) != "" {
				continue
			}
			missing = true
			issue := SecurityIssue{
				Type:        IssueMissingField,
				Severity:    SeverityInfo,
				FieldName:   def.Key,
				Description: "Required field " + def.Label + " is empty",
				Suggestion:  "Complete the item so it can be found and verified later",
			}
			if includeIDs {
				issue.ItemID = it.ID
			}
			issues = append(issues, issue)
		}
		if !missing {
			complete++
		}
	}

	if checked == 0 {
		return 25, issues
	}
	return complete * 25 / checked, issues
}

// generateSuggestions creates actionable recommendations based on issues.
func (c *Calculator) generateSuggestions(issues []SecurityIssue) []string {
	seen := make(map[IssueType]bool)
	for _, issue := range issues {
		seen[issue.Type] = true
	}

	suggestions := []string{}
	if seen[IssueWeakPassword] {
		suggestions = append(suggestions, "Update weak passwords with stronger alternatives (14+ characters)")
	}
	if seen[IssueDuplicatePassword] {
		suggestions = append(suggestions, "Replace duplicate passwords with unique values")
	}
	if seen[IssueExpired] {
		suggestions = append(suggestions, "Renew expired cards and documents")
	}
	if seen[IssueExpiringSoon] {
		suggestions = append(suggestions, "Plan to renew expiring cards and documents")
	}
	if seen[IssueMissingField] {
		suggestions = append(suggestions, "Fill in required fields of incomplete items")
	}
	return suggestions
}

// ParseExpiry reads an expiry date as written on documents (YYYY-MM-DD) or
// cards (MM/YY or MM/YYYY). Card dates expire at the end of their month.
func ParseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.AddDate(0, 0, 1), true
	}
	for _, layout := range []string{"01/06", "01/2006", "1/06"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.AddDate(0, 1, 0), true
		}
	}
	return time.Time{}, false
}

func weakIssue(f secretField, includeIDs bool) SecurityIssue {
	suggestion := "Use a longer password (14+ characters recommended)"
	if f.kind == KindToken {
		suggestion = "Use a longer token (32+ characters recommended)"
	}
	issue := SecurityIssue{
		Type:        IssueWeakPassword,
		Severity:    SeverityWarning,
		FieldName:   f.name,
		Description: "Password has insufficient strength (" + formatLength(len([]rune(f.value))) + ")",
		Suggestion:  suggestion,
	}
	if includeIDs {
		issue.ItemID = f.itemID
	}
	return issue
}

// formatDays returns a human-readable day count.
func formatDays(days int) string {
	if days == 0 {
		return "today"
	}
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}

// formatLength returns a human-readable length description.
func formatLength(n int) string {
	if n == 1 {
		return "1 character"
	}
	return strconv.Itoa(n) + " characters"
}
