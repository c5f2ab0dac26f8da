package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/internal/cli"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// Item flags
var (
	addType     string
	addLabel    string
	listType    string
	updateType  string
	updateLabel string
	itemFields  []string
	itemCustom  []string
	itemShow    bool
	itemJSON    bool
	itemPattern string
	itemOrphans bool
	itemReplace bool
	itemForce   bool
)

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.AddCommand(itemAddCmd, itemGetCmd, itemListCmd, itemUpdateCmd, itemDeleteCmd, itemSearchCmd)

	itemAddCmd.Flags().StringVarP(&addType, "type", "t", category.Other, "Category id (bank, card, identity, credential, note, other or a custom id)")
	itemAddCmd.Flags().StringVarP(&addLabel, "label", "l", "", "Item label")
	itemAddCmd.Flags().StringArrayVarP(&itemFields, "field", "f", nil, "Field value (key=value, can be repeated)")
	itemAddCmd.Flags().StringArrayVar(&itemCustom, "custom", nil, "Custom field (label=value, can be repeated)")

	itemGetCmd.Flags().BoolVar(&itemShow, "show", false, "Show sensitive values")
	itemGetCmd.Flags().BoolVar(&itemJSON, "json", false, "Output as JSON")

	itemListCmd.Flags().StringVarP(&listType, "type", "t", "", "Only items of this category")
	itemListCmd.Flags().StringVar(&itemPattern, "label", "", "Only items whose label matches this glob pattern")
	itemListCmd.Flags().BoolVar(&itemOrphans, "orphaned", false, "Only items whose category no longer exists")
	itemListCmd.Flags().BoolVar(&itemJSON, "json", false, "Output as JSON")

	itemUpdateCmd.Flags().StringVarP(&updateType, "type", "t", "", "New category id")
	itemUpdateCmd.Flags().StringVarP(&updateLabel, "label", "l", "", "New label")
	itemUpdateCmd.Flags().StringArrayVarP(&itemFields, "field", "f", nil, "Set field (key=value, empty value removes it)")
	itemUpdateCmd.Flags().StringArrayVar(&itemCustom, "custom", nil, "Replace custom fields (label=value, can be repeated)")
	itemUpdateCmd.Flags().BoolVar(&itemReplace, "replace-fields", false, "Replace all fields instead of merging")

	itemDeleteCmd.Flags().BoolVarP(&itemForce, "force", "F", false, "Skip confirmation prompt")

	itemSearchCmd.Flags().BoolVar(&itemJSON, "json", false, "Output as JSON")
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage vault items",
}

var itemAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an item",
	Example: `  idlocker item add -t bank -l "Salary account" -f bankName=SBI -f accountNumber=12345678901
  idlocker item add -t card -l "Travel card" -f cardNumber=4532015112830366 -f expiryDate=09/28`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := cli.ParseFields(itemFields)
		if err != nil {
			return err
		}
		custom, err := cli.ParseCustomFields(itemCustom)
		if err != nil {
			return err
		}
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			it, err := a.AddItem(vault.Draft{
				Type:         addType,
				Label:        addLabel,
				Fields:       fields,
				CustomFields: custom,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added item %s\n", it.ID)
			return nil
		})
	},
}

var itemGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			it, err := a.GetItem(args[0])
			if err != nil {
				return err
			}
			schema := a.Categories.Resolve(it.Type)
			if itemJSON {
				return writeJSON(cmd.OutOrStdout(), redact(it, schema, itemShow))
			}
			printItem(cmd.OutOrStdout(), it, schema, itemShow)
			return nil
		})
	},
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			var items []*vault.Item
			switch {
			case itemOrphans:
				items = a.Vault.OrphanedItems(a.Categories.Known)
			case listType != "":
				items = a.Vault.GetItemsByType(listType)
			default:
				items = a.Vault.Items()
			}
			if itemPattern != "" {
				var err error
				if items, err = cli.MatchItems(itemPattern, items); err != nil {
					return err
				}
			}
			return printItems(cmd.OutOrStdout(), a, items, itemJSON)
		})
	},
}

var itemSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search items by label, field values or the last digits of a number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			return printItems(cmd.OutOrStdout(), a, a.SearchItems(args[0]), itemJSON)
		})
	},
}

var itemUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		updates, err := cli.ParseFields(itemFields)
		if err != nil {
			return err
		}
		var p vault.Patch
		if cmd.Flags().Changed("type") {
			p.Type = &updateType
		}
		if cmd.Flags().Changed("label") {
			p.Label = &updateLabel
		}
		if cmd.Flags().Changed("custom") {
			custom, err := cli.ParseCustomFields(itemCustom)
			if err != nil {
				return err
			}
			p.CustomFields = &custom
		}

		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			if len(itemFields) > 0 || itemReplace {
				fields := updates
				if !itemReplace {
					cur, err := a.GetItem(args[0])
					if err != nil {
						return err
					}
					fields = cli.MergeFields(cur.Fields, updates)
				}
				p.Fields = &fields
			}
			it, err := a.UpdateItem(ctx, args[0], p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated item %s\n", it.ID)
			return nil
		})
	},
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <id|label|pattern>...",
	Short: "Delete items",
	Long: `Delete items by id, exact label or label glob pattern (e.g. "HDFC*").
Attachments are kept until 'idlocker asset gc' removes unreferenced ones.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			items, err := cli.MatchAll(args, a.Vault.Items())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !itemForce {
				for _, it := range items {
					fmt.Fprintf(out, "  %s  %s\n", it.ID, it.Label)
				}
				if !confirm(fmt.Sprintf("Delete %d item(s)?", len(items))) {
					fmt.Fprintln(out, "Delete cancelled.")
					return nil
				}
			}
			for _, it := range items {
				if err := a.DeleteItem(it.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Deleted %d item(s)\n", len(items))
			return nil
		})
	},
}

// itemView is the printable form of an item.
type itemView struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Category     string            `json:"category"`
	Orphaned     bool              `json:"orphaned,omitempty"`
	Label        string            `json:"label"`
	Fields       map[string]string `json:"fields"`
	CustomFields map[string]string `json:"customFields,omitempty"`
	Assets       []string          `json:"assets,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

const hidden = "********"

func redact(it *vault.Item, schema category.Resolved, show bool) itemView {
	v := itemView{
		ID:        it.ID,
		Type:      it.Type,
		Category:  schema.Label,
		Orphaned:  schema.Orphaned,
		Label:     it.Label,
		Fields:    make(map[string]string, len(it.Fields)),
		Assets:    it.AssetIDs(),
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
	for k, val := range it.Fields {
		if def, ok := schema.Field(k); ok && def.Sensitive && !show {
			val = hidden
		}
		v.Fields[k] = val
	}
	if len(it.CustomFields) > 0 {
		v.CustomFields = make(map[string]string, len(it.CustomFields))
		for _, cf := range it.CustomFields {
			val := cf.Value
			if !show {
				val = hidden
			}
			v.CustomFields[cf.Label] = val
		}
	}
	return v
}

func printItem(w io.Writer, it *vault.Item, schema category.Resolved, show bool) {
	v := redact(it, schema, show)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", v.ID)
	fmt.Fprintf(tw, "Label:\t%s\n", v.Label)
	catLabel := v.Category
	if v.Orphaned {
		catLabel = fmt.Sprintf("%s (orphaned, was %q)", catLabel, v.Type)
	}
	fmt.Fprintf(tw, "Category:\t%s\n", catLabel)

	// Schema order first, then unknown keys.
	seen := map[string]bool{}
	for _, def := range schema.Fields {
		seen[def.Key] = true
		if val, ok := v.Fields[def.Key]; ok {
			fmt.Fprintf(tw, "%s:\t%s\n", def.Label, val)
		}
	}
	for _, k := range cli.MapKeys(v.Fields) {
		if !seen[k] {
			fmt.Fprintf(tw, "%s:\t%s\n", k, v.Fields[k])
		}
	}
	for _, cf := range it.CustomFields {
		fmt.Fprintf(tw, "%s:\t%s\n", cf.Label, cf.Value)
	}
	if len(v.Assets) > 0 {
		fmt.Fprintf(tw, "Attachments:\t%s\n", strings.Join(v.Assets, ", "))
	}
	fmt.Fprintf(tw, "Updated:\t%s\n", v.UpdatedAt.Format(time.DateTime))
	tw.Flush()
}

func printItems(w io.Writer, a *app.App, items []*vault.Item, asJSON bool) error {
	if asJSON {
		views := make([]itemView, 0, len(items))
		for _, it := range items {
			views = append(views, redact(it, a.Categories.Resolve(it.Type), false))
		}
		return writeJSON(w, views)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No items found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tLABEL\tUPDATED")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, a.Categories.Resolve(it.Type).Label, it.Label, it.UpdatedAt.Format(time.DateOnly))
	}
	tw.Flush()
	fmt.Fprintf(w, "\nTotal: %d items\n", len(items))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
