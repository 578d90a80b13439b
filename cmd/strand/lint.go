package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strandworks/strand/pkg/strand/lint"
)

var lintCmd = &cobra.Command{
	Use:   "lint <workflow.yaml>",
	Short: "Validate a workflow description",
	Long: `Lint loads a workflow description and reports every issue it
finds: structural errors, broken references, and suspicious patterns.

The exit code is 0 when the description has no errors (warnings are
allowed) and 1 when any error is found.`,
	Args: cobra.ExactArgs(1),
	RunE: runLint,
}

func runLint(cmd *cobra.Command, args []string) error {
	report, err := lint.File(args[0])
	if err != nil {
		return err
	}

	for _, issue := range report.Issues {
		fmt.Fprintln(cmd.OutOrStdout(), issue.String())
		if issue.Fix != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  fix: %s\n", issue.Fix)
		}
	}

	if !report.Valid() {
		return fmt.Errorf("%d error(s) found", len(report.Errors()))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d warning(s)\n", len(report.Issues)-len(report.Errors()))
	return nil
}
