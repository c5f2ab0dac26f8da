package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/security"
)

// Security command flags
var (
	securityVerbose bool
	securityJSON    bool
	securityShowIDs bool
	securityDays    int
)

func init() {
	rootCmd.AddCommand(securityCmd)
	securityCmd.AddCommand(securityDuplicatesCmd, securityWeakCmd)

	securityCmd.Flags().BoolVar(&securityVerbose, "suggestions", false, "Show suggestions")
	securityCmd.Flags().BoolVar(&securityJSON, "json", false, "Output as JSON")
	securityCmd.Flags().BoolVar(&securityShowIDs, "show-ids", false, "Name the affected items")
	securityCmd.Flags().IntVar(&securityDays, "days", 30, "Warn about cards and documents expiring within this many days")
}

// securityCmd is the root security command.
var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Analyze vault security health",
	Long: `Analyze the security health of your vault and get recommendations.

The security score is calculated from:
  - Password Strength (0-25): Average strength of password and token fields
  - Uniqueness (0-25): Percentage of unique passwords
  - Expiration (0-25): Percentage of cards and documents not expiring
  - Coverage (0-25): Required category fields that are filled in

Example:
  idlocker security              # Show security score and top issues
  idlocker security --suggestions # Also show suggestions
  idlocker security --json       # Output in JSON format`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			score, err := a.SecurityReport(securityShowIDs, securityDays)
			if err != nil {
				return fmt.Errorf("failed to calculate security score: %w", err)
			}
			if securityJSON {
				return writeJSON(cmd.OutOrStdout(), score)
			}
			printSecurityScore(cmd.OutOrStdout(), score, securityVerbose)
			return nil
		})
	},
}

// securityDuplicatesCmd lists duplicate passwords.
var securityDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List items that share a password",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			groups, err := a.DuplicatePasswords()
			if err != nil {
				return fmt.Errorf("failed to find duplicates: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(out, "No duplicate passwords found!")
				return nil
			}
			fmt.Fprintf(out, "Duplicate Passwords (%d groups found)\n\n", len(groups))
			for i, group := range groups {
				fmt.Fprintf(out, "%d. %d items share the same value (%s):\n", i+1, group.Count, strings.Join(group.FieldNames, ", "))
				for _, id := range group.ItemIDs {
					label := id
					if it := a.Vault.GetItem(id); it != nil {
						label = fmt.Sprintf("%s (%s)", it.Label, id)
					}
					fmt.Fprintf(out, "   - %s\n", label)
				}
				fmt.Fprintln(out)
			}
			return nil
		})
	},
}

// securityWeakCmd lists weak passwords.
var securityWeakCmd = &cobra.Command{
	Use:   "weak",
	Short: "List weak passwords",
	Long: `Show items with weak password or token fields.

Values are considered weak if they are too short:
  - Passwords: Less than 8 characters
  - Tokens: Less than 16 characters`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(_ context.Context, a *app.App) error {
			issues, err := a.WeakPasswords()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintln(out, "No weak passwords found!")
				return nil
			}
			fmt.Fprintf(out, "Weak Passwords (%d found)\n\n", len(issues))
			for i, issue := range issues {
				label := issue.ItemID
				if it := a.Vault.GetItem(issue.ItemID); it != nil {
					label = it.Label
				}
				fmt.Fprintf(out, "%d. %s / %s\n", i+1, label, issue.FieldName)
				fmt.Fprintf(out, "   %s\n\n", issue.Description)
			}
			return nil
		})
	},
}

func printSecurityScore(out io.Writer, score *security.SecurityScore, verbose bool) {
	var rating string
	switch {
	case score.Overall >= 90:
		rating = "Excellent"
	case score.Overall >= 70:
		rating = "Good"
	case score.Overall >= 50:
		rating = "Fair"
	default:
		rating = "Needs Attention"
	}
	fmt.Fprintf(out, "Security Score: %d/100 (%s)\n\n", score.Overall, rating)

	fmt.Fprintln(out, "Components:")
	fmt.Fprintf(out, "  Password Strength: %2d/25 %s\n", score.Components.StrengthScore, progressBar(score.Components.StrengthScore, 25))
	fmt.Fprintf(out, "  Uniqueness:        %2d/25 %s\n", score.Components.UniquenessScore, progressBar(score.Components.UniquenessScore, 25))
	fmt.Fprintf(out, "  Expiration:        %2d/25 %s\n", score.Components.ExpirationScore, progressBar(score.Components.ExpirationScore, 25))
	fmt.Fprintf(out, "  Coverage:          %2d/25 %s\n", score.Components.CoverageScore, progressBar(score.Components.CoverageScore, 25))
	fmt.Fprintln(out)

	if len(score.Issues) > 0 {
		fmt.Fprintf(out, "Top Issues (%d):\n", len(score.Issues))
		for i, issue := range score.Issues {
			ids := ""
			if issue.ItemID != "" {
				ids = " " + issue.ItemID
			} else if len(issue.ItemIDs) > 0 {
				ids = " " + strings.Join(issue.ItemIDs, ", ")
			}
			fmt.Fprintf(out, "  %d. [%s]%s: %s\n", i+1, strings.ToUpper(string(issue.Type)), ids, issue.Description)
		}
		fmt.Fprintln(out)
	}

	if verbose && len(score.Suggestions) > 0 {
		fmt.Fprintln(out, "Suggestions:")
		for _, s := range score.Suggestions {
			fmt.Fprintf(out, "  - %s\n", s)
		}
		fmt.Fprintln(out)
	}
}

// progressBar renders value out of maxVal as a 20-cell bar.
func progressBar(value, maxVal int) string {
	const width = 20
	filled := value * width / maxVal
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
