package main

import (
	"github.com/spf13/cobra"
)

func init() {
	typosCmd := &cobra.Command{
		Use:   "typos [paths...]",
		Short: "Apply typo rules to pages without running CheckWiki handlers",
		Long: `Apply the typo rules to each page. Rules come from the embedded defaults, YAML files in
$HOME/.config/wikifix/rules and <config-dir>/rules, and the configured wiki rule pages.

Rules that are not automatic, or offer several replacements, are reported for a decision
and never applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPages(cmd, args, false, true)
		},
	}
	addPageFlags(typosCmd)

	rootCmd.AddCommand(typosCmd)
}
