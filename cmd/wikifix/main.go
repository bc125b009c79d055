package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/wikifix/internal/output"
)

var (
	// Version information injected by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfigDir string
	flagProject   string
	flagQuiet     bool
	flagVerbose   bool
	flagDebug     bool
)

var rootCmd = &cobra.Command{
	Use:     "wikifix",
	Short:   "Fix CheckWiki errors and typos in wikitext",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(output.SetupLogger(flagQuiet, flagVerbose, flagDebug, os.Stderr))
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wikifix %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built at: %s\n", date)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigDir, "config-dir", ".wikifix", "Project directory holding config.yaml and rules/")
	pf.StringVar(&flagProject, "project", "", "Wiki project, e.g. cswiki. Overrides config.")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress all log output")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Log progress")
	pf.BoolVar(&flagDebug, "debug", false, "Log debugging detail")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
