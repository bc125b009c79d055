// Package fixer runs the CheckWiki handlers and then the typo rules over a
// page, reusing cached results where possible.
package fixer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chris-regnier/wikifix/internal/cache"
	"github.com/chris-regnier/wikifix/internal/checkwiki"
	"github.com/chris-regnier/wikifix/internal/metrics"
	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/scheduler"
	"github.com/chris-regnier/wikifix/internal/store"
)

var ErrSkipped = errors.New("page skipped")

// Skipper decides which titles are never touched.
type Skipper interface {
	Skip(title string) bool
}

type Fixer struct {
	catalog   *checkwiki.Catalog
	site      *checkwiki.Site
	project   string
	handlers  []int
	schedOpts []scheduler.Option

	runner       *rules.Runner
	rulesVersion string

	cache    cache.Manager
	salt     string
	recorder *metrics.Recorder
	skip     Skipper
}

type Option func(*Fixer)

// WithHandlers sets the handler ids run when a request names none. Nil
// means the whole catalog.
func WithHandlers(ids []int) Option {
	return func(f *Fixer) { f.handlers = ids }
}

func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(f *Fixer) { f.schedOpts = append(f.schedOpts, opts...) }
}

// WithTypos enables the typo stage.
func WithTypos(r *rules.Runner) Option {
	return func(f *Fixer) {
		f.runner = r
		f.rulesVersion = RulesVersion(r.Rules())
	}
}

// WithCache reuses results stored in m. salt is mixed into every key; it
// should change whenever settings that affect results change.
func WithCache(m cache.Manager, salt string) Option {
	return func(f *Fixer) {
		f.cache = m
		f.salt = salt
	}
}

func WithRecorder(r *metrics.Recorder) Option {
	return func(f *Fixer) { f.recorder = r }
}

func WithSkipper(s Skipper) Option {
	return func(f *Fixer) { f.skip = s }
}

func New(catalog *checkwiki.Catalog, site *checkwiki.Site, opts ...Option) *Fixer {
	if site == nil {
		site = checkwiki.DefaultSite()
	}
	f := &Fixer{catalog: catalog, site: site, project: site.Project}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fixer) Catalog() *checkwiki.Catalog { return f.catalog }
func (f *Fixer) Site() *checkwiki.Site       { return f.site }

// Handlers returns the default selection, nil meaning all.
func (f *Fixer) Handlers() []int { return f.handlers }

// Typos reports whether a typo stage is configured.
func (f *Fixer) Typos() bool { return f.runner != nil }

type Request struct {
	Title     string
	Namespace int
	Text      string

	// Handlers overrides the default selection when non-nil.
	Handlers []int

	Checkwiki bool
	Typos     bool
}

// Fix runs the requested stages over the page. The typo stage sees the
// output of the handlers.
func (f *Fixer) Fix(ctx context.Context, req Request) (*store.Run, error) {
	if f.skip != nil && f.skip.Skip(req.Title) {
		return nil, fmt.Errorf("%w: %q", ErrSkipped, req.Title)
	}
	run := &store.Run{Project: f.project, Page: req.Title}
	text := req.Text

	if req.Checkwiki {
		ids := req.Handlers
		if ids == nil {
			ids = f.handlers
		}
		key := cache.NewKey(cache.KindCheckwiki, f.project, req.Title, text, ids, f.catalog.Version()+f.salt)
		res, hit, err := cache.Checkwiki(ctx, f.cache, key, func() (*scheduler.Result, error) {
			opts := append(slices.Clone(f.schedOpts), scheduler.WithSite(f.site))
			if f.recorder != nil {
				opts = append(opts, scheduler.WithRecorder(f.recorder.ForPage(req.Title)))
			}
			page := checkwiki.Page{Title: req.Title, Namespace: req.Namespace, Site: f.site}
			return scheduler.New(f.catalog, opts...).Apply(ctx, page, text, ids)
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("handlers finished", "page", req.Title, "applied", res.Applied, "cached", hit)
		run.Checkwiki = res
		text = res.Text
	}

	if req.Typos && f.runner != nil {
		key := cache.NewKey(cache.KindTypos, f.project, req.Title, text, nil, f.rulesVersion+f.salt)
		rep, hit, err := cache.Typos(ctx, f.cache, key, func() (*rules.Report, error) {
			return f.runner.Run(ctx, text)
		})
		if err != nil {
			return nil, fmt.Errorf("running typo rules on %q: %w", req.Title, err)
		}
		slog.Debug("typo rules finished", "page", req.Title, "applied", rep.Applied, "cached", hit)
		run.Typos = rep
	}

	run.CreatedAt = time.Now().UTC()
	return run, nil
}

// RulesVersion fingerprints a rule list so cached typo reports are not
// reused after the rules change.
func RulesVersion(rs []rules.Rule) string {
	var b strings.Builder
	for _, r := range rs {
		b.WriteString(r.ID)
		b.WriteByte(0)
		b.WriteString(r.Find)
		b.WriteByte(0)
		b.WriteString(strings.Join(r.Replacements, "\x01"))
		b.WriteByte(0)
		b.WriteString(strconv.FormatBool(r.Auto))
		b.WriteByte('\n')
	}
	return cache.HashText(b.String())
}
