package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/backup"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
)

var (
	backupOutput         string
	backupStdout         bool
	backupBackupPassword bool
	backupKeyFile        string
	backupForce          bool
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupKeygenCmd)

	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file path")
	backupCmd.Flags().BoolVar(&backupStdout, "stdout", false, "Output to stdout (for piping)")
	backupCmd.Flags().BoolVar(&backupBackupPassword, "backup-password", false, "Use separate backup password")
	backupCmd.Flags().StringVar(&backupKeyFile, "key-file", "", "Encryption key file (32 bytes)")
	backupCmd.Flags().BoolVarP(&backupForce, "force", "F", false, "Overwrite existing file")

	backupKeygenCmd.Flags().BoolVarP(&backupForce, "force", "F", false, "Overwrite existing file")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create encrypted backup of the vault",
	Long: `Create an encrypted backup of the vault: items, categories, settings and
every attachment. The backup is encrypted with the master password unless
--backup-password or --key-file is given.

Examples:
  # Backup to a file
  idlocker backup -o vault-backup.idlb

  # Backup to stdout (for piping)
  idlocker backup --stdout | gpg --encrypt > backup.gpg

  # Use separate backup password
  idlocker backup -o backup.idlb --backup-password

  # Use key file for encryption
  idlocker backup key backup.key
  idlocker backup -o backup.idlb --key-file=backup.key`,
	RunE: executeBackup,
}

func executeBackup(cmd *cobra.Command, args []string) error {
	if err := validateBackupFlags(); err != nil {
		return err
	}
	if !backupStdout && !backupForce {
		if _, err := os.Stat(backupOutput); err == nil {
			return fmt.Errorf("output file already exists: %s (use --force to overwrite)", backupOutput)
		}
	}

	return withVaultPassword(cmd, func(ctx context.Context, a *app.App, master []byte) error {
		opts := backup.Options{KeyFile: backupKeyFile, Password: master}
		if backupBackupPassword {
			pw, err := promptBackupPassword()
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(pw)
			opts.Password = pw
		}

		var buf bytes.Buffer
		header, err := a.Backup(ctx, &buf, opts)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		if backupStdout {
			_, err := buf.WriteTo(cmd.OutOrStdout())
			return err
		}
		if err := atomic.WriteFile(backupOutput, &buf); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		if err := os.Chmod(backupOutput, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup created successfully: %s (%d items, %d attachments)\n",
			backupOutput, header.ItemCount, header.AssetCount)
		return nil
	})
}

func validateBackupFlags() error {
	if !backupStdout && backupOutput == "" {
		return errors.New("either --output or --stdout is required")
	}
	if backupStdout && backupOutput != "" {
		return errors.New("--output and --stdout are mutually exclusive")
	}
	if backupKeyFile != "" && backupBackupPassword {
		return errors.New("--key-file and --backup-password are mutually exclusive")
	}
	return nil
}

func promptBackupPassword() ([]byte, error) {
	pw1, err := readPassword("Enter backup password: ")
	if err != nil {
		return nil, err
	}
	pw2, err := readPassword("Confirm backup password: ")
	defer crypto.SecureWipe(pw2)
	if err != nil {
		crypto.SecureWipe(pw1)
		return nil, err
	}
	if string(pw1) != string(pw2) {
		crypto.SecureWipe(pw1)
		return nil, errors.New("passwords do not match")
	}
	if len(pw1) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return pw1, nil
}

var backupKeygenCmd = &cobra.Command{
	Use:   "key <file>",
	Short: "Generate a random backup key file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !backupForce {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("key file already exists: %s (use --force to overwrite)", args[0])
			}
		}
		if err := backup.GenerateKeyFile(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Key file written to %s; store it apart from your backups\n", args[0])
		return nil
	},
}
