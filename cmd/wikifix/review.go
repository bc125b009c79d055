package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/chris-regnier/wikifix/internal/fixer"
	"github.com/chris-regnier/wikifix/internal/input"
	"github.com/chris-regnier/wikifix/internal/review"
	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/store"
)

var flagReviewState string

func init() {
	reviewCmd := &cobra.Command{
		Use:   "review [paths...]",
		Short: "Decide interactively on typo rules that cannot be applied unattended",
		Long: `Run the typo rules over each page and open a terminal session listing every rule that
needs a decision, with its context and replacements. Decisions are saved to --state and
offered again next time; accepted ones are applied with --write or --save.`,
		RunE: runReview,
	}
	addPageFlags(reviewCmd)
	reviewCmd.Flags().StringVar(&flagReviewState, "state", "", "Decision file (default: <config-dir>/decisions.json)")

	rootCmd.AddCommand(reviewCmd)
}

type reviewedPage struct {
	page input.Page
	rep  *rules.Report
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	statePath := flagReviewState
	if statePath == "" {
		statePath = filepath.Join(flagConfigDir, "decisions.json")
	}
	prior, err := review.LoadState(statePath)
	if err != nil {
		return err
	}

	e, err := setup(ctx, setupOptions{typos: true, wiki: len(flagPages) > 0})
	if err != nil {
		return err
	}
	defer e.close()

	pages, revs, err := e.readPages(ctx, args)
	if err != nil {
		return err
	}

	var (
		reviewed []reviewedPage
		items    []review.Item
	)
	for _, p := range pages {
		run, err := e.fixer.Fix(ctx, fixer.Request{Title: p.Title, Text: p.Text, Typos: true})
		if errors.Is(err, fixer.ErrSkipped) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fixing %q: %w", p.Title, err)
		}
		reviewed = append(reviewed, reviewedPage{page: p, rep: run.Typos})
		items = append(items, review.Collect(p.Title, e.runner, run.Typos)...)
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to review.")
		return nil
	}

	final, err := tea.NewProgram(review.NewModel(items, prior), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("running review: %w", err)
	}
	m := final.(review.Model)
	if m.Aborted() {
		return fmt.Errorf("review aborted, nothing saved")
	}
	decisions := m.Decisions()
	if err := review.SaveState(statePath, e.cfg.Project, decisions, prior); err != nil {
		return fmt.Errorf("saving decisions: %w", err)
	}

	changed := 0
	for _, rp := range reviewed {
		text, changes, err := review.Apply(ctx, e.runner, rp.page.Title, rp.rep.Text, decisions)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			continue
		}
		changed++
		rep := *rp.rep
		rep.Applied = slices.Clone(rep.Applied)
		for _, d := range decisions {
			if d.Page == rp.page.Title && d.Status == review.StatusAccepted {
				rep.Applied = append(rep.Applied, d.RuleID)
			}
		}
		rep.Changes = append(slices.Clone(rep.Changes), changes...)
		rep.Text = text
		slog.Info("decisions applied", "page", rp.page.Title, "changes", changes)

		run := &store.Run{Project: e.cfg.Project, Page: rp.page.Title, Source: rp.page.Source.String(), Typos: &rep}
		if err := e.writeBack(ctx, rp.page, revs[rp.page.Title], run, text); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d decisions taken, %d pages changed\n", len(decisions), changed)
	return nil
}
