package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chris-regnier/wikifix/internal/cache"
	"github.com/chris-regnier/wikifix/internal/checkwiki"
	"github.com/chris-regnier/wikifix/internal/config"
	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/fixer"
	"github.com/chris-regnier/wikifix/internal/metrics"
	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/safesub"
	"github.com/chris-regnier/wikifix/internal/scheduler"
	"github.com/chris-regnier/wikifix/internal/settings"
	"github.com/chris-regnier/wikifix/internal/telemetry"
	"github.com/chris-regnier/wikifix/internal/wiki"
)

var (
	flagOffline      bool
	flagSettingsFile string
	flagNoCache      bool
	flagCacheDir     string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagOffline, "offline", false, "Never contact the wiki; rule and settings pages are not fetched")
	pf.StringVar(&flagSettingsFile, "settings-file", "", "Read CheckWiki settings from this file instead of the wiki")
	pf.BoolVar(&flagNoCache, "no-cache", false, "Do not reuse or store cached results")
	pf.StringVar(&flagCacheDir, "cache-dir", os.ExpandEnv("$HOME/.cache/wikifix"), "Directory of the result cache")
}

// env is everything a command needs, built once from the tiered config.
type env struct {
	cfg      *config.Config
	site     *checkwiki.Site
	catalog  *checkwiki.Catalog
	settings *settings.Settings
	// whitelists holds, per handler, the titles listed on its whitelist pages.
	whitelists map[int][]string
	wiki       *wiki.Client
	collector  *metrics.Collector
	fixer      *fixer.Fixer
	runner     *rules.Runner

	shutdownTelemetry func(context.Context) error
}

type setupOptions struct {
	typos bool
	// wiki means the command cannot work without the wiki.
	wiki bool
	// metricInterval overrides the metric push period of long-running
	// commands.
	metricInterval time.Duration
}

func loadConfig() (*config.Config, error) {
	machineConfig := os.ExpandEnv("$HOME/.config/wikifix/config.yaml")
	projectConfig := filepath.Join(flagConfigDir, "config.yaml")
	cfg, err := config.LoadTiered(machineConfig, projectConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagProject != "" {
		cfg.Project = flagProject
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setup(ctx context.Context, opts setupOptions) (e *env, err error) {
	if opts.wiki && flagOffline {
		return nil, fmt.Errorf("--offline cannot be combined with wiki access")
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	topts := []telemetry.Option{telemetry.WithProject(cfg.Project), telemetry.WithVersion(version)}
	if opts.metricInterval > 0 {
		topts = append(topts, telemetry.WithMetricInterval(opts.metricInterval))
	}
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, topts...)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	e = &env{
		cfg:               cfg,
		site:              siteFromConfig(cfg),
		catalog:           checkwiki.Default(),
		collector:         metrics.NewCollector(),
		shutdownTelemetry: shutdown,
	}
	built := e
	defer func() {
		if err != nil {
			built.close()
		}
	}()

	if !flagOffline {
		e.wiki, err = wiki.New(cfg.Wiki, wiki.WithRetries(cfg.Wiki.Retries))
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", cfg.Wiki.APIURL, err)
		}
	}

	e.settings, err = e.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	handlers, err := fixer.SelectHandlers(e.catalog, e.settings, cfg.CheckWiki.Handlers, cfg.CheckWiki.Priorities)
	if err != nil {
		return nil, fmt.Errorf("selecting handlers: %w", err)
	}
	timeout, _ := cfg.CheckWiki.Timeout()
	e.whitelists = e.loadWhitelists(ctx)

	fopts := []fixer.Option{
		fixer.WithHandlers(handlers),
		fixer.WithSchedulerOptions(scheduler.WithTimeout(timeout), scheduler.WithWhitelist(e.whitelists)),
		fixer.WithRecorder(metrics.NewRecorder(e.collector)),
		fixer.WithSkipper(cfg.SkipFilter()),
	}
	if !flagNoCache {
		c := cache.NewTiered(cache.NewMemory(), cache.NewLocalCache(flagCacheDir))
		fopts = append(fopts, fixer.WithCache(c, e.salt(timeout)))
	}
	if opts.typos {
		e.runner, err = e.typoRunner(ctx)
		if err != nil {
			return nil, err
		}
		fopts = append(fopts, fixer.WithTypos(e.runner))
	}
	e.fixer = fixer.New(e.catalog, e.site, fopts...)

	slog.Info("ready",
		"project", cfg.Project,
		"handlers", len(handlers),
		"settings", e.settings != nil,
		"typos", opts.typos,
		"online", e.wiki != nil,
	)
	return e, nil
}

// close flushes telemetry.
func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.shutdownTelemetry(ctx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
}

func siteFromConfig(cfg *config.Config) *checkwiki.Site {
	return &checkwiki.Site{
		Project:       cfg.Project,
		Domain:        cfg.Site.Domain,
		CategoryNames: cfg.Site.CategoryNames,
		FileNames:     cfg.Site.FileNames,
		TemplateNames: cfg.Site.TemplateNames,
		CaseSensitive: cfg.Site.CaseSensitive,
	}
}

// loadSettings prefers --settings-file, then the configured wiki page. A
// wiki failure is logged and leaves priorities unresolved.
func (e *env) loadSettings(ctx context.Context) (*settings.Settings, error) {
	var (
		st    *settings.Settings
		diags []error
	)
	switch {
	case flagSettingsFile != "":
		data, err := os.ReadFile(flagSettingsFile)
		if err != nil {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
		st, diags = settings.Parse(string(data), e.cfg.Project)
	case e.wiki != nil && e.cfg.Wiki.SettingsPage != "":
		var err error
		st, diags, err = e.wiki.FetchSettings(ctx, e.cfg.Wiki.SettingsPage, e.cfg.Project)
		if err != nil {
			slog.Warn("settings unavailable, running every handler", "page", e.cfg.Wiki.SettingsPage, "err", err)
			return nil, nil
		}
	default:
		return nil, nil
	}
	for _, d := range diags {
		slog.Warn("skipping settings entry", "err", d)
	}
	return st, nil
}

// loadWhitelists resolves the whitelist pages named in the settings into
// article titles. Without the wiki the pages cannot be read and nothing is
// whitelisted.
func (e *env) loadWhitelists(ctx context.Context) map[int][]string {
	if e.settings == nil {
		return nil
	}
	if e.wiki == nil {
		slog.Debug("whitelist pages not resolved offline")
		return nil
	}
	wl, diags := e.wiki.FetchWhitelists(ctx, e.settings, e.catalog.IDs())
	for _, d := range diags {
		slog.Warn("whitelist unavailable", "err", d)
	}
	return wl
}

// typoRunner loads the YAML rule files and the wiki rule pages and binds
// them to a matcher that knows the site and the custom exclusion kinds.
func (e *env) typoRunner(ctx context.Context) (*rules.Runner, error) {
	cfg := e.cfg
	var popts []rules.ParserOption
	popts = append(popts, rules.WithFields(rules.Fields{
		Template: cfg.Typos.Template,
		Find:     cfg.Typos.Find,
		Replace:  cfg.Typos.Replace,
		Auto:     cfg.Typos.Auto,
		Search:   cfg.Typos.Search,
	}))
	if d, _ := cfg.Typos.Timeout(); d > 0 {
		popts = append(popts, rules.WithMatchTimeout(d))
	}
	parser := rules.NewParser(popts...)

	projectRulesDir := cfg.Typos.RulesDir
	if projectRulesDir == "" {
		projectRulesDir = filepath.Join(flagConfigDir, "rules")
	}
	rs, err := rules.LoadRules(os.ExpandEnv("$HOME/.config/wikifix/rules"), projectRulesDir)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	if e.wiki != nil && len(cfg.Wiki.RulesPages) > 0 {
		fetched, diags := e.wiki.FetchRules(ctx, parser, cfg.Wiki.RulesPages...)
		for _, d := range diags {
			slog.Warn("skipping typo rule", "err", d)
		}
		rs = rules.Merge(rs, fetched)
	}

	kinds := slices.Clone(rules.DefaultKinds)
	for _, k := range cfg.Typos.Exclude {
		kinds = append(kinds, exclusion.Kind(k))
	}
	patterns, errs := cfg.ExclusionPatterns()
	for _, err := range errs {
		slog.Warn("ignoring exclusion", "err", err)
	}
	var mopts []exclusion.Option
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		mopts = append(mopts, exclusion.WithPattern(exclusion.Kind(name), patterns[name]))
		kinds = append(kinds, exclusion.Kind(name))
	}

	slog.Info("typo rules loaded", "count", len(rs))
	return rules.NewRunner(rs, safesub.New(e.site.Matcher(mopts...)), kinds...), nil
}

// salt changes whenever an input that shapes results but is not part of
// the page text or the rule set changes.
func (e *env) salt(timeout time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%+v|%v|%v|%s\n", *e.site, e.cfg.Exclusions, e.cfg.Typos.Exclude, timeout)
	for _, id := range e.catalog.IDs() {
		if titles := e.whitelists[id]; len(titles) > 0 {
			b.WriteString(strconv.Itoa(id))
			b.WriteString(strings.Join(titles, "|"))
			b.WriteByte('\n')
		}
	}
	return cache.HashText(b.String())
}
