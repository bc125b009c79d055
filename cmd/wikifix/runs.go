package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/wikifix/internal/output"
	"github.com/chris-regnier/wikifix/internal/store"
)

var (
	flagRunsDir    string
	flagRunsFormat string
	flagRunsText   bool
	flagRunsLimit  int
)

func init() {
	runsCmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List stored runs, or show one",
		Long:  `Without an id, list stored runs newest first. With an id ("latest" for the newest), render its report, or print the fixed text with --text.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRuns,
	}
	runsCmd.Flags().StringVar(&flagRunsDir, "output", ".wikifix/runs", "Directory containing stored runs")
	runsCmd.Flags().StringVarP(&flagRunsFormat, "format", "f", "", "Output format: json, markdown, pretty")
	runsCmd.Flags().BoolVar(&flagRunsText, "text", false, "Print the fixed page text instead of the report")
	runsCmd.Flags().IntVarP(&flagRunsLimit, "limit", "n", 20, "Number of runs listed")

	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := store.NewFileStore(flagRunsDir)
	ids, err := fs.List(ctx)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(args) == 0 {
		for i, id := range ids {
			if i == flagRunsLimit {
				break
			}
			run, err := fs.ReadRun(ctx, id)
			if err != nil {
				fmt.Fprintf(w, "%s  (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(w, "%s  %-8s %s\n", id, run.Project, run.Page)
		}
		return nil
	}

	id := args[0]
	if id == "latest" {
		if len(ids) == 0 {
			return fmt.Errorf("no runs found in %s", flagRunsDir)
		}
		id = ids[0] // List returns newest first
	}
	if flagRunsText {
		text, err := fs.ReadText(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprint(w, text)
		return nil
	}

	run, err := fs.ReadRun(ctx, id)
	if err != nil {
		return err
	}
	format := output.ResolveFormat(flagRunsFormat, stdoutIsTTY())
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}
	out, err := formatter.Format(&output.FixOutput{Runs: []*store.Run{run}})
	if err != nil {
		return err
	}
	emit(w, format, out)
	return nil
}
