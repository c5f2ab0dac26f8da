package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/internal/cli"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
)

// Category flags
var (
	categoryLabel  string
	categoryIcon   string
	categoryFields []string
	categoryStart  string
	categoryEnd    string
	categoryJSON   bool
	categoryForce  bool
)

func init() {
	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryListCmd, categoryShowCmd, categoryAddCmd, categoryUpdateCmd, categoryDeleteCmd, categoryResetCmd)

	categoryListCmd.Flags().BoolVar(&categoryJSON, "json", false, "Output as JSON")
	categoryShowCmd.Flags().BoolVar(&categoryJSON, "json", false, "Output as JSON")

	categoryAddCmd.Flags().StringVarP(&categoryLabel, "label", "l", "", "Category label")
	categoryAddCmd.Flags().StringVar(&categoryIcon, "icon", "folder", "Icon name")
	categoryAddCmd.Flags().StringVar(&categoryStart, "color-start", "#334155", "Gradient start color")
	categoryAddCmd.Flags().StringVar(&categoryEnd, "color-end", "#64748b", "Gradient end color")
	categoryAddCmd.Flags().StringArrayVarP(&categoryFields, "field", "f", nil,
		"Field as key:Label[:type[:flags]], flags: required,sensitive,options=a|b (can be repeated)")
	_ = categoryAddCmd.MarkFlagRequired("label")

	categoryUpdateCmd.Flags().StringP("label", "l", "", "New label")
	categoryUpdateCmd.Flags().String("icon", "", "New icon name")
	categoryUpdateCmd.Flags().String("color-start", "", "New gradient start color")
	categoryUpdateCmd.Flags().String("color-end", "", "New gradient end color")
	categoryUpdateCmd.Flags().StringArrayP("field", "f", nil,
		"Replace all fields; same format as 'category add' (can be repeated)")

	categoryResetCmd.Flags().BoolVarP(&categoryForce, "force", "F", false, "Skip confirmation prompt")
}

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage item categories",
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			cats := a.Categories.List()
			if categoryJSON {
				return writeJSON(cmd.OutOrStdout(), cats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tFIELDS\tITEMS\tKIND")
			for _, c := range cats {
				n, err := a.Vault.CountByType(c.ID)
				if err != nil {
					return err
				}
				kind := "custom"
				if c.IsPreset {
					kind = "preset"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", c.ID, c.Label, len(c.Fields), n, kind)
			}
			return tw.Flush()
		})
	},
}

var categoryShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a category's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			c, err := a.Categories.Get(args[0])
			if err != nil {
				return err
			}
			if categoryJSON {
				return writeJSON(cmd.OutOrStdout(), c)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", c.Label, c.ID)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLABEL\tTYPE\tFLAGS")
			for _, f := range c.Fields {
				var flags []string
				if f.Required {
					flags = append(flags, "required")
				}
				if f.Sensitive {
					flags = append(flags, "sensitive")
				}
				if len(f.Options) > 0 {
					flags = append(flags, "options="+strings.Join(f.Options, "|"))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Key, f.Label, f.Type, strings.Join(flags, ","))
			}
			return tw.Flush()
		})
	},
}

var categoryAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Add a custom category",
	Example: `  idlocker category add -l Insurance -f insurer:Insurer:text:required -f policyNumber:Policy\ Number:text:required,sensitive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := category.Draft{
			Label: categoryLabel,
			Icon:  categoryIcon,
			Color: category.Gradient{Start: categoryStart, End: categoryEnd},
		}
		for _, raw := range categoryFields {
			def, err := cli.ParseFieldDefinition(raw)
			if err != nil {
				return err
			}
			d.Fields = append(d.Fields, def)
		}
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			c, err := a.CreateCategory(ctx, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added category %s (%s)\n", c.Label, c.ID)
			return nil
		})
	},
}

var categoryUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a custom category",
	Long: `Change a custom category. Only the given flags change; --field replaces
the whole field list. Existing items keep their values even when a field is
removed from the category.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		raws, _ := flags.GetStringArray("field")
		var fields []category.FieldDefinition
		for _, raw := range raws {
			def, err := cli.ParseFieldDefinition(raw)
			if err != nil {
				return err
			}
			fields = append(fields, def)
		}
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			cur, err := a.Categories.Get(args[0])
			if err != nil {
				return err
			}
			d := category.Draft{Label: cur.Label, Icon: cur.Icon, Color: cur.Color, Fields: cur.Fields}
			if flags.Changed("label") {
				d.Label, _ = flags.GetString("label")
			}
			if flags.Changed("icon") {
				d.Icon, _ = flags.GetString("icon")
			}
			if flags.Changed("color-start") {
				d.Color.Start, _ = flags.GetString("color-start")
			}
			if flags.Changed("color-end") {
				d.Color.End, _ = flags.GetString("color-end")
			}
			if flags.Changed("field") {
				d.Fields = fields
			}
			c, err := a.UpdateCategory(ctx, args[0], d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated category %s (%s)\n", c.Label, c.ID)
			return nil
		})
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a custom category no item uses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.DeleteCategory(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %s\n", args[0])
			return nil
		})
	},
}

var categoryResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove all custom categories",
	Long: `Remove all custom categories. Items that used them are kept and shown
under Other until a category with the same id exists again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			if !categoryForce && !confirm("Remove all custom categories?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled.")
				return nil
			}
			if err := a.ResetCategories(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Categories reset to presets")
			return nil
		})
	},
}
