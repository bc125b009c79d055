package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/chris-regnier/wikifix/internal/checkwiki"
	"github.com/chris-regnier/wikifix/internal/settings"
)

var flagHandlersSelected bool

func init() {
	handlersCmd := &cobra.Command{
		Use:   "handlers",
		Short: "List the CheckWiki handlers and their priorities",
		RunE:  runHandlers,
	}
	handlersCmd.Flags().BoolVar(&flagHandlersSelected, "selected", false, "Only list the handlers run by default")

	rootCmd.AddCommand(handlersCmd)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

func runHandlers(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e, err := setup(ctx, setupOptions{})
	if err != nil {
		return err
	}
	defer e.close()

	selected := e.fixer.Handlers()
	isSelected := func(id int) bool {
		return selected == nil || slices.Contains(selected, id)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "PRIORITY", "FLAGS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, h := range e.catalog.All() {
		if flagHandlersSelected && !isSelected(h.ID) {
			continue
		}
		t.Row(strconv.Itoa(h.ID), h.Name, priority(e.settings, h.ID), flags(h, isSelected(h.ID)))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	fmt.Fprintf(cmd.OutOrStdout(), "catalog version %s, %d handlers\n", e.catalog.Version(), e.catalog.Len())
	return nil
}

func priority(st *settings.Settings, id int) string {
	if st == nil {
		return "-"
	}
	return st.Priority(id).String()
}

func flags(h *checkwiki.Handler, selected bool) string {
	var f []string
	if selected {
		f = append(f, "default")
	}
	if h.NeedsDecision {
		f = append(f, "decision")
	}
	if h.HandledExternally {
		f = append(f, "external")
	}
	if len(h.NeedsFirst) > 0 {
		deps := make([]string, len(h.NeedsFirst))
		for i, d := range h.NeedsFirst {
			deps[i] = strconv.Itoa(d)
		}
		f = append(f, "after "+strings.Join(deps, ","))
	}
	return strings.Join(f, " ")
}
