package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/asset"
)

// Asset flags
var (
	assetType    string
	assetMime    string
	assetOutput  string
	assetDryRun  bool
	assetJSON    bool
	assetForce   bool
	attachType   string
	assetOrphans bool
)

func init() {
	rootCmd.AddCommand(assetCmd)
	assetCmd.AddCommand(assetAddCmd, assetListCmd, assetGetCmd, assetExportCmd, assetDeleteCmd,
		assetGCCmd, assetAttachCmd, assetDetachCmd, assetMigrateCmd)

	assetAddCmd.Flags().StringVarP(&assetType, "type", "t", string(asset.TypeDocument), "Asset type: image, pdf, document")
	assetAddCmd.Flags().StringVar(&assetMime, "mime", "", "MIME type (detected when empty)")

	assetListCmd.Flags().BoolVar(&assetJSON, "json", false, "Output as JSON")
	assetListCmd.Flags().BoolVar(&assetOrphans, "unreferenced", false, "Only assets no item references")
	assetGetCmd.Flags().BoolVar(&assetJSON, "json", false, "Output as JSON")

	assetExportCmd.Flags().StringVarP(&assetOutput, "output", "o", "", "Output file (default: original file name in the current directory)")
	assetExportCmd.Flags().BoolVarP(&assetForce, "force", "F", false, "Overwrite an existing file")

	assetGCCmd.Flags().BoolVar(&assetDryRun, "dry-run", false, "Only list what would be deleted")

	assetAttachCmd.Flags().StringVarP(&attachType, "type", "t", string(asset.TypeDocument), "Asset type: image, pdf, document")
}

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage attachments",
	Long: `Manage attachments. Identical files are stored once and shared by every
item that attaches them; an attachment can only be deleted once no item
references it.`,
}

var assetAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Store a file without attaching it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := asset.ParseType(assetType)
		if err != nil {
			return err
		}
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			got, created, err := a.AddAsset(ctx, args[0], t, assetMime)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Stored asset %s\n", got.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Already stored as asset %s\n", got.ID)
			}
			return nil
		})
	},
}

var assetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attachments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			var (
				assets []*asset.Asset
				err    error
			)
			if assetOrphans {
				assets, err = a.Assets.Unreferenced(ctx)
			} else {
				assets, err = a.Assets.List(ctx)
			}
			if err != nil {
				return err
			}
			if assetJSON {
				return writeJSON(cmd.OutOrStdout(), assets)
			}

			out := cmd.OutOrStdout()
			if len(assets) == 0 {
				fmt.Fprintln(out, "No assets found")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSIZE\tREFS\tNAME\tCREATED")
			for _, x := range assets {
				refs, err := a.Vault.ReferenceCount(x.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					x.ID, x.Type, formatSize(x.Size), refs, x.OriginalFilename, x.CreatedAt.Format(time.DateOnly))
			}
			tw.Flush()
			fmt.Fprintf(out, "\nTotal: %d assets\n", len(assets))
			return nil
		})
	},
}

var assetGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show attachment metadata and the items using it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			x, err := a.Assets.Get(ctx, args[0])
			if err != nil {
				return err
			}
			users := a.Vault.ItemsReferencing(x.ID)
			if assetJSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					*asset.Asset
					Items []string `json:"items"`
				}{x, users})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ID:\t%s\n", x.ID)
			fmt.Fprintf(tw, "Type:\t%s\n", x.Type)
			fmt.Fprintf(tw, "Name:\t%s\n", x.OriginalFilename)
			fmt.Fprintf(tw, "MIME:\t%s\n", x.MimeType)
			fmt.Fprintf(tw, "Size:\t%s\n", formatSize(x.Size))
			if x.Width != nil && x.Height != nil {
				fmt.Fprintf(tw, "Dimensions:\t%dx%d\n", *x.Width, *x.Height)
			}
			fmt.Fprintf(tw, "SHA-256:\t%s\n", x.ContentHash)
			fmt.Fprintf(tw, "Used by:\t%d item(s)\n", len(users))
			for _, id := range users {
				fmt.Fprintf(tw, "\t%s\n", id)
			}
			return tw.Flush()
		})
	},
}

var assetExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write an attachment's content to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			x, err := a.Assets.Get(ctx, args[0])
			if err != nil {
				return err
			}
			path := assetOutput
			if path == "" {
				path = filepath.Base(x.OriginalFilename)
				if path == "." || path == "/" || path == "" {
					path = x.ID
				}
			}
			if !assetForce {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("output file already exists: %s (use --force to overwrite)", path)
				}
			}

			f, err := os.CreateTemp(filepath.Dir(path), ".idlocker-export-*")
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			tmp := f.Name()
			defer os.Remove(tmp)

			_, err = a.ExportAsset(ctx, x.ID, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if err := atomic.ReplaceFile(tmp, path); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", x.ID, path)
			return nil
		})
	},
}

var assetDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an attachment no item references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			err := a.DeleteAsset(ctx, args[0])
			if errors.Is(err, asset.ErrAssetInUse) {
				users := a.Vault.ItemsReferencing(args[0])
				return fmt.Errorf("asset %s is attached to %d item(s); detach it first: %v", args[0], len(users), users)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted asset %s\n", args[0])
			return nil
		})
	},
}

var assetGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete every attachment no item references",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			ids, err := a.CollectGarbage(ctx, assetDryRun)
			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			if assetDryRun {
				fmt.Fprintf(out, "Would delete %d unreferenced asset(s)\n", len(ids))
			} else {
				fmt.Fprintf(out, "Deleted %d unreferenced asset(s)\n", len(ids))
			}
			return err
		})
	},
}

var assetAttachCmd = &cobra.Command{
	Use:   "attach <item-id> <file>",
	Short: "Store a file and attach it to an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := asset.ParseType(attachType)
		if err != nil {
			return err
		}
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			_, x, err := a.AttachFile(ctx, args[0], args[1], t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Attached asset %s to item %s\n", x.ID, args[0])
			return nil
		})
	},
}

var assetDetachCmd = &cobra.Command{
	Use:   "detach <item-id> <asset-id>",
	Short: "Remove an attachment from an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			if _, err := a.DetachAsset(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Detached asset %s from item %s\n", args[1], args[0])
			return nil
		})
	},
}

var assetMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move images embedded in old items into the attachment store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.MigrateLegacyImages(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d image(s)\n", n)
			return nil
		})
	},
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
