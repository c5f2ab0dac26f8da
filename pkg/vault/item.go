package vault

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"time"
	"unicode/utf8"
)

// Item limits
const (
	MaxLabelLength      = 256
	MaxTypeLength       = 64
	MaxFieldCount       = 100
	MaxFieldKeyLength   = 64
	MaxFieldValueSize   = 64 * 1024
	MaxCustomFieldCount = 100
)

// Well-known field keys used by the numeric search shortcut.
const (
	FieldLastFourDigits = "lastFourDigits"
	FieldAccountNumber  = "accountNumber"
)

// Errors
var (
	ErrLocked      = errors.New("vault: vault is locked")
	ErrInvalidItem = errors.New("vault: invalid item")
	ErrClosed      = errors.New("vault: manager is closed")
)

// fieldKeyRegex accepts identifiers such as accountNumber or ifsc_code.
var fieldKeyRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Item is one record in the vault. Fields follow the schema of the item's
// category but unknown keys are kept as-is.
type Item struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Label        string            `json:"label"`
	Fields       map[string]string `json:"fields"`
	CustomFields []CustomField     `json:"customFields,omitempty"`
	Images       []LegacyImage     `json:"images,omitempty"`
	AssetRefs    []AssetRef        `json:"assetRefs,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// CustomField is a free-form extra on a single item.
type CustomField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// LegacyImage is an attachment embedded in the item by older versions.
// New attachments are assets referenced through AssetRefs.
type LegacyImage struct {
	ID       string `json:"id"`
	URI      string `json:"uri,omitempty"`
	Data     string `json:"data,omitempty"` // base64
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
}

// AssetRef links an item to a stored asset. It does not own the asset.
type AssetRef struct {
	AssetID string    `json:"assetId"`
	AddedAt time.Time `json:"addedAt"`
}

// Draft is the input of Manager.AddItem.
type Draft struct {
	Type         string
	Label        string
	Fields       map[string]string
	CustomFields []CustomField
	AssetRefs    []AssetRef
}

// Patch is a partial update. Nil members are left unchanged; a non-nil
// member replaces the whole attribute.
type Patch struct {
	Type         *string
	Label        *string
	Fields       *map[string]string
	CustomFields *[]CustomField
	AssetRefs    *[]AssetRef
}

// AssetIDs returns the ids of the referenced assets.
func (it *Item) AssetIDs() []string {
	ids := make([]string, 0, len(it.AssetRefs))
	for _, r := range it.AssetRefs {
		ids = append(ids, r.AssetID)
	}
	return ids
}

// HasAsset reports whether the item references assetID.
func (it *Item) HasAsset(assetID string) bool {
	for _, r := range it.AssetRefs {
		if r.AssetID == assetID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	c := *it
	c.Fields = maps.Clone(it.Fields)
	c.CustomFields = append([]CustomField(nil), it.CustomFields...)
	c.AssetRefs = append([]AssetRef(nil), it.AssetRefs...)
	if it.Images != nil {
		c.Images = make([]LegacyImage, len(it.Images))
		for i, img := range it.Images {
			c.Images[i] = img
			c.Images[i].Width = cloneInt(img.Width)
			c.Images[i].Height = cloneInt(img.Height)
		}
	}
	return &c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ValidateDraft checks structural limits of a new item.
func ValidateDraft(d Draft) error {
	if d.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidItem)
	}
	if len(d.Type) > MaxTypeLength {
		return fmt.Errorf("%w: type exceeds %d characters", ErrInvalidItem, MaxTypeLength)
	}
	if utf8.RuneCountInString(d.Label) > MaxLabelLength {
		return fmt.Errorf("%w: label exceeds %d characters", ErrInvalidItem, MaxLabelLength)
	}
	if err := ValidateFields(d.Fields); err != nil {
		return err
	}
	if len(d.CustomFields) > MaxCustomFieldCount {
		return fmt.Errorf("%w: has %d custom fields (max %d)", ErrInvalidItem, len(d.CustomFields), MaxCustomFieldCount)
	}
	for _, cf := range d.CustomFields {
		if len(cf.Value) > MaxFieldValueSize {
			return fmt.Errorf("%w: custom field %q exceeds %d bytes", ErrInvalidItem, cf.Label, MaxFieldValueSize)
		}
	}
	return nil
}

// ValidateFields checks field keys and value sizes.
func ValidateFields(fields map[string]string) error {
	if len(fields) > MaxFieldCount {
		return fmt.Errorf("%w: has %d fields (max %d)", ErrInvalidItem, len(fields), MaxFieldCount)
	}
	for key, value := range fields {
		if len(key) > MaxFieldKeyLength || !fieldKeyRegex.MatchString(key) {
			return fmt.Errorf("%w: invalid field key %q", ErrInvalidItem, key)
		}
		if len(value) > MaxFieldValueSize {
			return fmt.Errorf("%w: field %q exceeds %d bytes", ErrInvalidItem, key, MaxFieldValueSize)
		}
	}
	return nil
}
