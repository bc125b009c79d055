package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/wikifix/internal/fixer"
	"github.com/chris-regnier/wikifix/internal/input"
	"github.com/chris-regnier/wikifix/internal/metrics"
	"github.com/chris-regnier/wikifix/internal/output"
	"github.com/chris-regnier/wikifix/internal/store"
	"github.com/chris-regnier/wikifix/internal/wiki"
)

var (
	flagStdin    bool
	flagTitle    string
	flagPages    []string
	flagInclude  string
	flagHandlers []int
	flagWithTypo bool
	flagFormat   string
	flagOutput   string
	flagNoStore  bool
	flagWrite    bool
	flagSave     bool
	flagSummary  string
	flagMetrics  string
)

func init() {
	fixCmd := &cobra.Command{
		Use:   "fix [paths...]",
		Short: "Apply CheckWiki handlers (and optionally typo rules) to pages",
		Long: `Apply the selected CheckWiki handlers to each page, then the typo rules when --typos is set.

Pages come from files and directories given as arguments, from stdin (--stdin --title),
or from the wiki (--page). Every run is stored under --output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPages(cmd, args, true, flagWithTypo)
		},
	}
	addPageFlags(fixCmd)
	fixCmd.Flags().IntSliceVar(&flagHandlers, "handlers", nil, "Handler ids to run (default: from config and settings priorities)")
	fixCmd.Flags().BoolVar(&flagWithTypo, "typos", false, "Also apply typo rules after the handlers")

	rootCmd.AddCommand(fixCmd)
}

// addPageFlags registers the input and output flags shared by fix and typos.
func addPageFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&flagStdin, "stdin", false, "Read one page from stdin")
	f.StringVar(&flagTitle, "title", "", "Title of the page read from stdin")
	f.StringSliceVar(&flagPages, "page", nil, "Wiki page titles to fetch")
	f.StringVar(&flagInclude, "include", input.DefaultInclude, "Glob of file names picked up in directories")
	f.StringVarP(&flagFormat, "format", "f", "", "Output format: json, markdown, pretty (default: pretty on a terminal, json otherwise)")
	f.StringVar(&flagOutput, "output", ".wikifix/runs", "Directory for stored runs")
	f.BoolVar(&flagNoStore, "no-store", false, "Do not store runs")
	f.BoolVarP(&flagWrite, "write", "w", false, "Write fixed text back to the input files")
	f.BoolVar(&flagSave, "save", false, "Save fixed pages fetched with --page back to the wiki")
	f.StringVar(&flagSummary, "summary", "", "Edit summary (default: generated from the applied fixes)")
	f.StringVar(&flagMetrics, "metrics", "", "Write handler metrics as JSON to this file")
}

func runPages(cmd *cobra.Command, args []string, checkwiki, typos bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if flagSave && len(flagPages) == 0 {
		return fmt.Errorf("--save needs pages fetched with --page")
	}
	format := output.ResolveFormat(flagFormat, stdoutIsTTY())
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}

	e, err := setup(ctx, setupOptions{typos: typos, wiki: len(flagPages) > 0})
	if err != nil {
		return err
	}
	defer e.close()

	if typos && !e.fixer.Typos() {
		return fmt.Errorf("no typo rules configured")
	}

	var handlers []int
	if cmd.Flags().Changed("handlers") {
		handlers, err = fixer.SelectHandlers(e.catalog, nil, flagHandlers, nil)
		if err != nil {
			return err
		}
	}

	pages, revs, err := e.readPages(ctx, args)
	if err != nil {
		return err
	}

	fs := store.NewFileStore(flagOutput)
	result := &output.FixOutput{}
	for _, p := range pages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		run, err := e.fixer.Fix(ctx, fixer.Request{
			Title:     p.Title,
			Text:      p.Text,
			Handlers:  handlers,
			Checkwiki: checkwiki,
			Typos:     typos,
		})
		if errors.Is(err, fixer.ErrSkipped) {
			slog.Info("skipping page", "page", p.Title)
			continue
		}
		if err != nil {
			return fmt.Errorf("fixing %q: %w", p.Title, err)
		}
		run.Source = p.Source.String()
		final := run.FinalText(p.Text)

		if !flagNoStore {
			if _, err := fs.WriteRun(ctx, run, final); err != nil {
				return fmt.Errorf("storing run: %w", err)
			}
		}
		if run.Changed() {
			if err := e.writeBack(ctx, p, revs[p.Title], run, final); err != nil {
				return err
			}
		}
		result.Runs = append(result.Runs, run)
	}

	out, err := formatter.Format(result)
	if err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	emit(cmd.OutOrStdout(), format, out)

	if flagMetrics != "" {
		if err := metrics.NewExporter(e.collector).ExportJSON(flagMetrics); err != nil {
			return fmt.Errorf("exporting metrics: %w", err)
		}
	}
	if flagVerbose || flagDebug {
		return metrics.NewExporter(e.collector).WriteReport(os.Stderr)
	}
	return nil
}

// readPages loads the pages named on the command line. Wiki revisions are
// returned by title so that a save can detect edit conflicts.
func (e *env) readPages(ctx context.Context, args []string) ([]input.Page, map[string]*wiki.Revision, error) {
	h, err := input.NewHandler(flagInclude)
	if err != nil {
		return nil, nil, err
	}

	var pages []input.Page
	revs := make(map[string]*wiki.Revision)
	if len(args) > 0 {
		got, err := h.Read(args)
		if err != nil {
			return nil, nil, fmt.Errorf("reading input: %w", err)
		}
		pages = append(pages, got...)
	}
	if flagStdin {
		if flagTitle == "" {
			return nil, nil, fmt.Errorf("--stdin needs --title")
		}
		p, err := h.ReadStream(os.Stdin, flagTitle)
		if err != nil {
			return nil, nil, err
		}
		pages = append(pages, p)
	}
	for _, title := range flagPages {
		rev, err := e.wiki.Fetch(ctx, title)
		if err != nil {
			return nil, nil, err
		}
		revs[rev.Title] = rev
		pages = append(pages, input.Page{Title: rev.Title, Text: rev.Text, Source: input.SourceWiki})
	}
	if len(pages) == 0 {
		return nil, nil, fmt.Errorf("specify paths, --stdin, or --page")
	}
	return pages, revs, nil
}

func (e *env) writeBack(ctx context.Context, p input.Page, rev *wiki.Revision, run *store.Run, text string) error {
	switch {
	case flagWrite && p.Source == input.SourceFile:
		if err := os.WriteFile(p.Path, []byte(text), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", p.Path, err)
		}
		slog.Info("wrote page", "path", p.Path)
	case flagSave && rev != nil:
		summary := flagSummary
		if summary == "" {
			summary = wiki.Summary(run.Checkwiki, run.Typos)
		}
		err := e.wiki.Save(ctx, rev, text, summary)
		if errors.Is(err, wiki.ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}
		slog.Info("saved page", "page", rev.Title, "summary", summary)
	}
	return nil
}

// emit writes formatted output, dressed for the terminal when stdout is one.
func emit(w io.Writer, format string, out []byte) {
	if w == os.Stdout && stdoutIsTTY() {
		fmt.Fprintln(w, output.ForTerminal(format, out, 100))
		return
	}
	fmt.Fprintln(w, string(out))
}

func stdoutIsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
