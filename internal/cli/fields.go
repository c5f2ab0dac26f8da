package cli

import (
	"fmt"
	"strings"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// ParseFields turns repeated --field key=value flags into a field map. The
// value may contain '='; a later flag for the same key wins.
func ParseFields(flags []string) (map[string]string, error) {
	fields := make(map[string]string, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", f)
		}
		fields[key] = value
	}
	if err := vault.ValidateFields(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ParseCustomFields turns repeated --custom "Label=value" flags into
// custom fields, keeping their order.
func ParseCustomFields(flags []string) ([]vault.CustomField, error) {
	out := make([]vault.CustomField, 0, len(flags))
	for _, f := range flags {
		label, value, ok := strings.Cut(f, "=")
		label = strings.TrimSpace(label)
		if !ok || label == "" {
			return nil, fmt.Errorf("invalid custom field %q: expected label=value", f)
		}
		out = append(out, vault.CustomField{Label: label, Value: value})
	}
	return out, nil
}

// MergeFields returns base with updates applied. An empty update value
// removes the field.
func MergeFields(base, updates map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range updates {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// ParseFieldDefinition reads a category field written as
// key:Label[:type[:flags]]. Flags are comma-separated: required, sensitive
// and options=a|b|c for select fields. The type defaults to text.
func ParseFieldDefinition(raw string) (category.FieldDefinition, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return category.FieldDefinition{}, fmt.Errorf("invalid field %q: expected key:Label[:type[:flags]]", raw)
	}
	def := category.FieldDefinition{
		Key:   strings.TrimSpace(parts[0]),
		Label: strings.TrimSpace(parts[1]),
		Type:  category.FieldText,
	}
	if len(parts) > 2 && parts[2] != "" {
		def.Type = category.FieldType(strings.TrimSpace(parts[2]))
	}
	if len(parts) > 3 {
		for _, flag := range strings.Split(parts[3], ",") {
			flag = strings.TrimSpace(flag)
			switch {
			case flag == "":
			case flag == "required":
				def.Required = true
			case flag == "sensitive":
				def.Sensitive = true
			case strings.HasPrefix(flag, "options="):
				for _, o := range strings.Split(strings.TrimPrefix(flag, "options="), "|") {
					if o = strings.TrimSpace(o); o != "" {
						def.Options = append(def.Options, o)
					}
				}
			default:
				return category.FieldDefinition{}, fmt.Errorf("invalid field %q: unknown flag %q", raw, flag)
			}
		}
	}
	return def, nil
}
