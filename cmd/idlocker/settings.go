package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/settings"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change vault settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			s := a.Settings.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "auto-lock: %d\n", s.AutoLockTimeout)
			fmt.Fprintf(out, "theme: %s\n", s.Theme)
			fmt.Fprintf(out, "onboarded: %t\n", s.HasCompletedOnboarding)
			return nil
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Long: `Change a setting. Keys:
  auto-lock   seconds of inactivity before locking, 0 disables
  theme       system, light or dark
  onboarded   true or false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, err := settingMutator(args[0], args[1])
		if err != nil {
			return err
		}
		return withVault(cmd, func(ctx context.Context, a *app.App) error {
			if _, err := a.UpdateSettings(ctx, apply); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set to %s\n", args[0], args[1])
			return nil
		})
	},
}

func settingMutator(key, value string) (func(*settings.AppSettings), error) {
	switch key {
	case "auto-lock":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("auto-lock must be a number of seconds: %w", err)
		}
		return func(s *settings.AppSettings) { s.AutoLockTimeout = n }, nil
	case "theme":
		t := settings.Theme(strings.ToLower(value))
		return func(s *settings.AppSettings) { s.Theme = t }, nil
	case "onboarded":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("onboarded must be true or false: %w", err)
		}
		return func(s *settings.AppSettings) { s.HasCompletedOnboarding = b }, nil
	default:
		return nil, fmt.Errorf("unknown setting %q (valid: auto-lock, theme, onboarded)", key)
	}
}
