// Package main provides the idlocker CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/internal/config"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/lock"
)

var (
	homeDir string
	verbose bool

	// logLevel starts at Info and follows the config file once it is read.
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:           "idlocker",
	Short:         "idlocker keeps your IDs, cards and accounts in an encrypted local vault",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Vault directory (default $IDLOCKER_HOME or ~/.idlocker)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordChangeCmd)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// openVault opens the vault directory without unlocking it.
func openVault(ctx context.Context) (*app.App, error) {
	home := homeDir
	if home == "" {
		var err error
		if home, err = config.Home(); err != nil {
			return nil, err
		}
	}

	a, err := app.Open(ctx, home, app.WithLogger(newLogger()))
	if err != nil {
		if errors.Is(err, app.ErrVaultBusy) {
			return nil, fmt.Errorf("vault at %s is open in another idlocker process", home)
		}
		return nil, err
	}
	if verbose {
		logLevel.Set(slog.LevelDebug)
	} else if lvl, err := a.Config.Log.SlogLevel(); err == nil {
		logLevel.Set(lvl)
	}
	return a, nil
}

// withVault opens and unlocks the vault, runs fn and locks the vault again.
func withVault(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	return withVaultPassword(cmd, func(ctx context.Context, a *app.App, _ []byte) error {
		return fn(ctx, a)
	})
}

// withVaultPassword is withVault for commands that reuse the master
// password. The password is wiped when fn returns.
func withVaultPassword(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, password []byte) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	if !a.Initialized() {
		return errors.New("vault not initialized: run 'idlocker init' first")
	}
	password, err := masterPassword("Enter master password: ")
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(password)
	if err := a.Unlock(ctx, string(password)); err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	if a.LoadErr() != nil {
		// One retry covers a backend that was briefly unavailable.
		if err := a.Reload(ctx); err != nil {
			warnLoadFailed(os.Stderr, err)
		}
	}
	return fn(ctx, a, password)
}

// warnLoadFailed tells the user the vault opened without its items.
func warnLoadFailed(w io.Writer, err error) {
	fmt.Fprintf(w, "Warning: vault items could not be loaded: %v\n", err)
	fmt.Fprintln(w, "The vault is open but shows no items. Run the command again to retry,")
	fmt.Fprintln(w, "or restore a backup with 'idlocker restore'.")
}

// masterPassword returns IDLOCKER_PASSWORD, clearing it, or prompts.
func masterPassword(prompt string) ([]byte, error) {
	if pw, ok := os.LookupEnv(config.EnvPassword); ok && pw != "" {
		os.Unsetenv(config.EnvPassword)
		return []byte(pw), nil
	}
	return readPassword(prompt)
}

// readPassword prompts on stderr so stdout stays usable for data.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return pw, nil
}

// newPassword reads a password twice and checks it.
func newPassword(out io.Writer, label string) ([]byte, error) {
	if pw, ok := os.LookupEnv(config.EnvPassword); ok && pw != "" {
		os.Unsetenv(config.EnvPassword)
		return []byte(pw), lock.CheckPassword(pw)
	}

	pw1, err := readPassword("Enter " + label + ": ")
	if err != nil {
		return nil, err
	}
	pw2, err := readPassword("Confirm " + label + ": ")
	defer crypto.SecureWipe(pw2)
	if err != nil {
		crypto.SecureWipe(pw1)
		return nil, err
	}
	if string(pw1) != string(pw2) {
		crypto.SecureWipe(pw1)
		return nil, errors.New("passwords do not match")
	}

	report := lock.ValidatePassword(string(pw1))
	if !report.Valid {
		crypto.SecureWipe(pw1)
		return nil, fmt.Errorf("password validation failed: %s", report.Warnings[0])
	}
	fmt.Fprintf(out, "Password strength: %s\n", report.Strength)
	for _, warning := range report.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", warning)
	}
	return pw1, nil
}

// confirm asks a yes/no question on stderr.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	var answer string
	_, _ = fmt.Scanln(&answer)
	return answer == "y" || answer == "Y"
}

// initCmd initializes a new vault
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes a new vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		a, err := openVault(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		if a.Initialized() {
			return fmt.Errorf("vault already initialized at %s", a.Home)
		}

		fmt.Fprintln(out, "Initializing new vault...")
		password, err := newPassword(out, "master password")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		if err := a.Init(ctx, string(password)); err != nil {
			return fmt.Errorf("failed to initialize vault: %w", err)
		}
		fmt.Fprintf(out, "Vault initialized successfully at %s\n", a.Home)
		return nil
	},
}

// passwordCmd is the parent command for password operations.
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Master password operations",
}

// passwordChangeCmd changes the master password.
var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the master password",
	Long: `Change the master password by re-wrapping the data key.

Items, attachments and the audit journal stay encrypted under the same data
key, so nothing else is rewritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		a, err := openVault(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		current, err := readPassword("Enter current password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(current)

		next, err := newPassword(out, "new password")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(next)

		if err := a.ChangePassword(string(current), string(next)); err != nil {
			if errors.Is(err, lock.ErrInvalidPassword) {
				return errors.New("current password is incorrect")
			}
			return fmt.Errorf("failed to change password: %w", err)
		}
		fmt.Fprintln(out, "Password changed successfully!")
		return nil
	},
}
