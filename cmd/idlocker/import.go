package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/importer"
)

// maxImportSize bounds the export file read into memory.
const maxImportSize = 50 * 1024 * 1024

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <source> <file>",
	Short: "Import items from another password manager",
	Long: `Import items from an unencrypted export of another password manager.

Supported sources: ` + strings.Join(importer.ValidSources(), ", ") + `

Logins, cards, identities and notes become items of the matching category.
Items that do not pass the category's field checks are skipped and listed.

Example:
  idlocker import bitwarden bitwarden_export.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := importer.Source(strings.ToLower(args[0]))
		if _, err := importer.GetParser(source); err != nil {
			return err
		}

		info, err := os.Stat(args[1])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}
		if info.Size() > maxImportSize {
			return fmt.Errorf("import file too large: %d bytes (max %d)", info.Size(), maxImportSize)
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		return withVault(cmd, func(_ context.Context, a *app.App) error {
			res, err := a.Import(source, data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d item(s)\n", len(res.Added))
			if len(res.Skipped) > 0 {
				fmt.Fprintf(out, "Skipped %d item(s):\n", len(res.Skipped))
				for _, s := range res.Skipped {
					fmt.Fprintf(out, "  - %s: %s\n", s.OriginalName, s.Reason)
				}
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
			}
			return nil
		})
	},
}
