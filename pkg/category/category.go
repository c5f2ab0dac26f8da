// Package category defines the item schemas of the vault: six built-in
// presets plus user-defined categories persisted as one document.
package category

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// FieldType tells editors how to render and validate a field.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldMultiline FieldType = "multiline"
	FieldNumber    FieldType = "number"
	FieldDate      FieldType = "date"
	FieldEmail     FieldType = "email"
	FieldPhone     FieldType = "phone"
	FieldURL       FieldType = "url"
	FieldSelect    FieldType = "select"
)

var fieldTypes = []FieldType{
	FieldText, FieldMultiline, FieldNumber, FieldDate,
	FieldEmail, FieldPhone, FieldURL, FieldSelect,
}

// Limits
const (
	MaxLabelLength = 64
	MaxFields      = 50
	maxKeyLength   = 64
)

// Errors
var (
	ErrCategoryNotFound = errors.New("category: category not found")
	ErrCategoryExists   = errors.New("category: category already exists")
	ErrPresetImmutable  = errors.New("category: preset categories cannot be changed")
	ErrCategoryInUse    = errors.New("category: category is used by vault items")
	ErrInvalidCategory  = errors.New("category: invalid category")
	ErrInvalidFields    = errors.New("category: item fields do not match category")
)

var keyRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Gradient is the two-stop card color of a category.
type Gradient struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FieldDefinition describes one field of a category.
type FieldDefinition struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Sensitive   bool      `json:"sensitive,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// Category is an item schema.
type Category struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Icon      string            `json:"icon"`
	Color     Gradient          `json:"color"`
	Fields    []FieldDefinition `json:"fields"`
	IsPreset  bool              `json:"isPreset"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Draft is the user-editable part of a category.
type Draft struct {
	Label  string
	Icon   string
	Color  Gradient
	Fields []FieldDefinition
}

// InUseError reports a category that vault items still use.
type InUseError struct {
	CategoryID string
	Items      int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("category: %s is used by %d item(s); move or delete them first", e.CategoryID, e.Items)
}

// Is makes errors.Is(err, ErrCategoryInUse) hold.
func (e *InUseError) Is(target error) bool { return target == ErrCategoryInUse }

// Clone returns a deep copy.
func (c *Category) Clone() *Category {
	out := *c
	out.Fields = make([]FieldDefinition, len(c.Fields))
	for i, f := range c.Fields {
		f.Options = slices.Clone(f.Options)
		out.Fields[i] = f
	}
	return &out
}

// Field returns the definition for key, if any.
func (c *Category) Field(key string) (FieldDefinition, bool) {
	for _, f := range c.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// ValidateDraft checks a category definition.
func ValidateDraft(d Draft) error {
	label := strings.TrimSpace(d.Label)
	if label == "" {
		return fmt.Errorf("%w: label is required", ErrInvalidCategory)
	}
	if utf8.RuneCountInString(label) > MaxLabelLength {
		return fmt.Errorf("%w: label exceeds %d characters", ErrInvalidCategory, MaxLabelLength)
	}
	if len(d.Fields) > MaxFields {
		return fmt.Errorf("%w: has %d fields (max %d)", ErrInvalidCategory, len(d.Fields), MaxFields)
	}

	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if len(f.Key) > maxKeyLength || !keyRegex.MatchString(f.Key) {
			return fmt.Errorf("%w: invalid field key %q", ErrInvalidCategory, f.Key)
		}
		if seen[f.Key] {
			return fmt.Errorf("%w: duplicate field key %q", ErrInvalidCategory, f.Key)
		}
		seen[f.Key] = true
		if strings.TrimSpace(f.Label) == "" {
			return fmt.Errorf("%w: field %q needs a label", ErrInvalidCategory, f.Key)
		}
		if !slices.Contains(fieldTypes, f.Type) {
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidCategory, f.Key, f.Type)
		}
		if f.Type == FieldSelect && len(f.Options) == 0 {
			return fmt.Errorf("%w: select field %q has no options", ErrInvalidCategory, f.Key)
		}
	}
	return nil
}

// ValidateFields checks item field values against c. Required fields must
// be non-blank and select fields must hold one of their options. Keys the
// category does not define are tolerated.
func (c *Category) ValidateFields(fields map[string]string) error {
	var errs []error
	for _, def := range c.Fields {
		v := strings.TrimSpace(fields[def.Key])
		if v == "" {
			if def.Required {
				errs = append(errs, fmt.Errorf("%s is required", def.Label))
			}
			continue
		}
		if def.Type == FieldSelect && !slices.Contains(def.Options, v) {
			errs = append(errs, fmt.Errorf("%s must be one of %s", def.Label, strings.Join(def.Options, ", ")))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFields, errors.Join(errs...))
	}
	return nil
}
