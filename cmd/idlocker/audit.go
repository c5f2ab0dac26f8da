package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
)

// Audit flags
var (
	auditLimit int
	auditSince string

	auditExportFormat string
	auditExportSince  string
	auditExportUntil  string
	auditExportOutput string

	auditPruneOlderThan string
	auditPruneDryRun    bool
	auditPruneForce     bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditVerifyCmd, auditExportCmd, auditPruneCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h)")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json, csv")
	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "", "Export events since duration (e.g., 30d)")
	auditExportCmd.Flags().StringVar(&auditExportUntil, "until", "", "Export events until date (RFC 3339)")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file path (default: stdout)")

	auditPruneCmd.Flags().StringVar(&auditPruneOlderThan, "older-than", "", "Delete records older than duration (e.g., 12m for 12 months)")
	auditPruneCmd.Flags().BoolVar(&auditPruneDryRun, "dry-run", false, "Show what would be deleted without deleting")
	auditPruneCmd.Flags().BoolVarP(&auditPruneForce, "force", "F", false, "Skip confirmation prompt")
	_ = auditPruneCmd.MarkFlagRequired("older-than")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := sinceFlag(auditSince)
		if err != nil {
			return err
		}
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			events, err := a.Audit.Events(auditLimit, since)
			if err != nil {
				return fmt.Errorf("failed to list audit events: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No audit events found")
				return nil
			}
			for _, e := range events {
				line := fmt.Sprintf("%s %s %s %s", e.Timestamp, e.Source, e.Operation, e.Result)
				if e.Subject != "" {
					line += " " + e.Subject
				}
				if e.Error != "" {
					line += fmt.Sprintf(" error:%q", e.Error)
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "\nTotal: %d events\n", len(events))
			return nil
		})
	},
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Verifying audit log integrity...")

			result, err := a.Audit.Verify()
			if err != nil {
				return fmt.Errorf("failed to verify audit log: %w", err)
			}
			if result.Valid {
				fmt.Fprintf(out, "Audit log verified: %d records, chain intact\n", result.RecordsTotal)
				return nil
			}
			fmt.Fprintln(out, "Audit log verification FAILED")
			fmt.Fprintf(out, "  Records total: %d\n", result.RecordsTotal)
			fmt.Fprintf(out, "  Records verified: %d\n", result.RecordsVerified)
			fmt.Fprintln(out, "  Errors:")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "    - %s\n", e)
			}
			return errors.New("audit log integrity check failed")
		})
	},
}

// auditExportCmd exports audit logs
var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit logs to JSON or CSV format",
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditExportFormat != "json" && auditExportFormat != "csv" {
			return fmt.Errorf("invalid format: %s (use 'json' or 'csv')", auditExportFormat)
		}
		since, err := sinceFlag(auditExportSince)
		if err != nil {
			return err
		}
		var until time.Time
		if auditExportUntil != "" {
			if until, err = time.Parse(time.RFC3339, auditExportUntil); err != nil {
				return fmt.Errorf("invalid until format (use RFC 3339): %w", err)
			}
		}

		return withVault(cmd, func(_ context.Context, a *app.App) error {
			if auditExportOutput == "" {
				return a.Audit.Export(cmd.OutOrStdout(), auditExportFormat, since, until)
			}
			var buf bytes.Buffer
			if err := a.Audit.Export(&buf, auditExportFormat, since, until); err != nil {
				return fmt.Errorf("failed to export audit logs: %w", err)
			}
			if err := atomic.WriteFile(auditExportOutput, &buf); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			if err := os.Chmod(auditExportOutput, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Audit logs exported to %s\n", auditExportOutput)
			return nil
		})
	},
}

// auditPruneCmd deletes old audit logs
var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, err := parseDuration(auditPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid older-than format: %w", err)
		}

		return withVault(cmd, func(_ context.Context, a *app.App) error {
			out := cmd.OutOrStdout()
			events, err := a.Audit.Events(0, time.Time{})
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-duration)
			count := 0
			for _, e := range events {
				if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil && ts.Before(cutoff) {
					count++
				}
			}

			if auditPruneDryRun {
				fmt.Fprintf(out, "Would delete %d audit log entries older than %s\n", count, auditPruneOlderThan)
				return nil
			}
			if count == 0 {
				fmt.Fprintln(out, "No audit log entries to delete")
				return nil
			}
			if !auditPruneForce && !confirm(fmt.Sprintf("This will delete %d audit log entries older than %s. Are you sure?", count, auditPruneOlderThan)) {
				fmt.Fprintln(out, "Aborted")
				return nil
			}

			deleted, err := a.Audit.Prune(duration)
			if err != nil {
				return fmt.Errorf("failed to prune audit logs: %w", err)
			}
			fmt.Fprintf(out, "Deleted %d audit log entries\n", deleted)
			return nil
		})
	},
}

func sinceFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since format: %w", err)
	}
	return time.Now().Add(-d), nil
}

// parseDuration parses a duration string like "30d", "1y", "24h". A
// trailing m means months; other Go durations are passed to
// time.ParseDuration.
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return time.ParseDuration(s)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}

	const day = 24 * time.Hour
	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * day, nil
	case 'w':
		return time.Duration(value) * 7 * day, nil
	case 'm':
		return time.Duration(value) * 30 * day, nil
	case 'y':
		return time.Duration(value) * 365 * day, nil
	default:
		return time.ParseDuration(s)
	}
}
