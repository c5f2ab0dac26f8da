package mcp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/asset"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// maxSearchResults caps vault_search output.
const maxSearchResults = 50

// VaultSearchInput represents input for vault_search tool.
type VaultSearchInput struct {
	Query string `json:"query"`
	Type  string `json:"type,omitempty"`
}

// VaultSearchOutput represents output for vault_search tool.
type VaultSearchOutput struct {
	Items     []ItemSummary `json:"items"`
	Truncated bool          `json:"truncated,omitempty"`
}

// ItemSummary is an item without its field values.
type ItemSummary struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Category   string `json:"category"`
	Label      string `json:"label"`
	FieldCount int    `json:"field_count"`
	AssetCount int    `json:"asset_count"`
	UpdatedAt  string `json:"updated_at"`
}

// VaultGetItemInput represents input for vault_get_item tool.
type VaultGetItemInput struct {
	ID string `json:"id"`
}

// VaultGetItemOutput represents output for vault_get_item tool.
type VaultGetItemOutput struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Category     string       `json:"category"`
	Orphaned     bool         `json:"orphaned,omitempty"`
	Label        string       `json:"label"`
	Fields       []FieldValue `json:"fields"`
	CustomFields []FieldValue `json:"custom_fields,omitempty"`
	Assets       []AssetInfo  `json:"assets,omitempty"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
}

// FieldValue is one field as shown to agents.
type FieldValue struct {
	Key    string `json:"key,omitempty"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Masked bool   `json:"masked"`
}

// AssetListInput represents input for asset_list tool.
type AssetListInput struct {
	ItemID string `json:"item_id,omitempty"`
}

// AssetListOutput represents output for asset_list tool.
type AssetListOutput struct {
	Assets []AssetInfo `json:"assets"`
}

// AssetInfo is asset metadata.
type AssetInfo struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Filename   string `json:"filename,omitempty"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	Width      *int   `json:"width,omitempty"`
	Height     *int   `json:"height,omitempty"`
	References int    `json:"references"`
	CreatedAt  string `json:"created_at"`
}

// CategoryListInput represents input for category_list tool.
type CategoryListInput struct{}

// CategoryListOutput represents output for category_list tool.
type CategoryListOutput struct {
	Categories []CategoryInfo `json:"categories"`
}

// CategoryInfo is a category schema.
type CategoryInfo struct {
	ID       string      `json:"id"`
	Label    string      `json:"label"`
	IsPreset bool        `json:"is_preset"`
	Fields   []FieldInfo `json:"fields"`
}

// FieldInfo describes one category field.
type FieldInfo struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Sensitive bool     `json:"sensitive,omitempty"`
	Options   []string `json:"options,omitempty"`
}

func (s *Server) checkUnlocked() error {
	if s.app.Vault.State() != vault.StateReady {
		return vault.ErrLocked
	}
	return nil
}

// handleVaultSearch handles the vault_search tool call.
func (s *Server) handleVaultSearch(_ context.Context, _ *mcp.CallToolRequest, input VaultSearchInput) (*mcp.CallToolResult, VaultSearchOutput, error) {
	if err := s.checkUnlocked(); err != nil {
		return nil, VaultSearchOutput{}, err
	}

	output := VaultSearchOutput{Items: []ItemSummary{}}
	for _, it := range s.app.SearchItems(input.Query) {
		if input.Type != "" && it.Type != input.Type {
			continue
		}
		if len(output.Items) == maxSearchResults {
			output.Truncated = true
			break
		}
		output.Items = append(output.Items, ItemSummary{
			ID:         it.ID,
			Type:       it.Type,
			Category:   s.app.Categories.Resolve(it.Type).Label,
			Label:      it.Label,
			FieldCount: len(it.Fields) + len(it.CustomFields),
			AssetCount: len(it.AssetRefs),
			UpdatedAt:  it.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil, output, nil
}

// handleVaultGetItem handles the vault_get_item tool call.
func (s *Server) handleVaultGetItem(ctx context.Context, _ *mcp.CallToolRequest, input VaultGetItemInput) (*mcp.CallToolResult, VaultGetItemOutput, error) {
	if input.ID == "" {
		return nil, VaultGetItemOutput{}, errors.New("id is required")
	}
	if err := s.checkUnlocked(); err != nil {
		return nil, VaultGetItemOutput{}, err
	}

	it, err := s.app.GetItem(input.ID)
	if err != nil {
		return nil, VaultGetItemOutput{}, err
	}
	schema := s.app.Categories.Resolve(it.Type)

	output := VaultGetItemOutput{
		ID:        it.ID,
		Type:      it.Type,
		Category:  schema.Label,
		Orphaned:  schema.Orphaned,
		Label:     it.Label,
		Fields:    maskFields(schema, it.Fields),
		CreatedAt: it.CreatedAt.Format(time.RFC3339),
		UpdatedAt: it.UpdatedAt.Format(time.RFC3339),
	}
	// Custom fields carry no schema, so they are always masked.
	for _, cf := range it.CustomFields {
		output.CustomFields = append(output.CustomFields, FieldValue{
			Label:  cf.Label,
			Value:  maskValue(cf.Value),
			Masked: true,
		})
	}

	assets, err := s.app.Assets.GetAssetsByIDs(ctx, it.AssetIDs())
	if err != nil {
		return nil, VaultGetItemOutput{}, fmt.Errorf("failed to get item assets: %w", err)
	}
	for _, a := range assets {
		output.Assets = append(output.Assets, s.assetInfo(a))
	}
	return nil, output, nil
}

// handleAssetList handles the asset_list tool call.
func (s *Server) handleAssetList(ctx context.Context, _ *mcp.CallToolRequest, input AssetListInput) (*mcp.CallToolResult, AssetListOutput, error) {
	if err := s.checkUnlocked(); err != nil {
		return nil, AssetListOutput{}, err
	}

	var (
		assets []*asset.Asset
		err    error
	)
	if input.ItemID != "" {
		it := s.app.Vault.GetItem(input.ItemID)
		if it == nil {
			return nil, AssetListOutput{}, fmt.Errorf("item not found: %s", input.ItemID)
		}
		assets, err = s.app.Assets.GetAssetsByIDs(ctx, it.AssetIDs())
	} else {
		assets, err = s.app.Assets.List(ctx)
	}
	if err != nil {
		return nil, AssetListOutput{}, fmt.Errorf("failed to list assets: %w", err)
	}

	output := AssetListOutput{Assets: make([]AssetInfo, 0, len(assets))}
	for _, a := range assets {
		output.Assets = append(output.Assets, s.assetInfo(a))
	}
	return nil, output, nil
}

// handleCategoryList handles the category_list tool call.
func (s *Server) handleCategoryList(_ context.Context, _ *mcp.CallToolRequest, _ CategoryListInput) (*mcp.CallToolResult, CategoryListOutput, error) {
	if err := s.checkUnlocked(); err != nil {
		return nil, CategoryListOutput{}, err
	}

	cats := s.app.Categories.List()
	output := CategoryListOutput{Categories: make([]CategoryInfo, 0, len(cats))}
	for _, c := range cats {
		info := CategoryInfo{ID: c.ID, Label: c.Label, IsPreset: c.IsPreset}
		for _, f := range c.Fields {
			info.Fields = append(info.Fields, FieldInfo{
				Key:       f.Key,
				Label:     f.Label,
				Type:      string(f.Type),
				Required:  f.Required,
				Sensitive: f.Sensitive,
				Options:   f.Options,
			})
		}
		output.Categories = append(output.Categories, info)
	}
	return nil, output, nil
}

func (s *Server) assetInfo(a *asset.Asset) AssetInfo {
	refs, err := s.app.Vault.ReferenceCount(a.ID)
	if err != nil {
		refs = -1
	}
	return AssetInfo{
		ID:         a.ID,
		Type:       string(a.Type),
		Filename:   a.OriginalFilename,
		MimeType:   a.MimeType,
		Size:       a.Size,
		Width:      a.Width,
		Height:     a.Height,
		References: refs,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

// maskFields returns the fields in schema order followed by keys the schema
// does not know. Only non-sensitive schema fields are shown in plaintext.
func maskFields(schema category.Resolved, fields map[string]string) []FieldValue {
	out := make([]FieldValue, 0, len(fields))
	seen := make(map[string]bool, len(schema.Fields))
	for _, def := range schema.Fields {
		seen[def.Key] = true
		v, ok := fields[def.Key]
		if !ok || v == "" {
			continue
		}
		fv := FieldValue{Key: def.Key, Label: def.Label, Value: v}
		if def.Sensitive || schema.Orphaned {
			fv.Value, fv.Masked = maskValue(v), true
		}
		out = append(out, fv)
	}

	var extra []string
	for k := range fields {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	for _, k := range extra {
		out = append(out, FieldValue{Key: k, Label: k, Value: maskValue(fields[k]), Masked: true})
	}
	return out
}

// maskValue masks a sensitive value.
// | Length  | Format          | Example   |
// |---------|-----------------|-----------|
// | 1-4     | All *           | ****      |
// | 5-8     | Show last 2     | ******XY  |
// | 9+      | Show last 4     | ****WXYZ  |
func maskValue(value string) string {
	runes := []rune(value)
	length := len(runes)
	if length == 0 {
		return ""
	}

	var visible int
	switch {
	case length <= 4:
		visible = 0
	case length <= 8:
		visible = 2
	default:
		visible = 4
	}
	return strings.Repeat("*", length-visible) + string(runes[length-visible:])
}
