package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Config holds the full wikifix configuration.
type Config struct {
	// Project is the wiki database name, e.g. "enwiki" or "cswiki". It
	// selects the project keys of the CheckWiki settings page.
	Project   string          `yaml:"project"`
	Site      SiteConfig      `yaml:"site"`
	Wiki      WikiConfig      `yaml:"wiki"`
	CheckWiki CheckWikiConfig `yaml:"checkwiki"`
	Typos     TyposConfig     `yaml:"typos"`

	// Exclusions adds named exclusion kinds recognized by a regular
	// expression. Typo rules skip them in addition to their defaults.
	Exclusions map[string]string `yaml:"exclusions,omitempty"`

	// SkipTitles are glob patterns of page titles that are never touched.
	SkipTitles []string `yaml:"skip_titles,omitempty"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SiteConfig describes the local namespace names of the wiki.
type SiteConfig struct {
	Domain        string   `yaml:"domain"`
	CategoryNames []string `yaml:"category_names,omitempty"`
	FileNames     []string `yaml:"file_names,omitempty"`
	TemplateNames []string `yaml:"template_names,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive"`
}

// WikiConfig configures access to the MediaWiki API.
type WikiConfig struct {
	APIURL       string   `yaml:"api_url"`
	UserAgent    string   `yaml:"user_agent"`
	Username     string   `yaml:"username,omitempty"`
	RulesPages   []string `yaml:"rules_pages,omitempty"`
	SettingsPage string   `yaml:"settings_page,omitempty"`
	Retries      int      `yaml:"retries"`
}

// CheckWikiConfig selects the handlers to run.
type CheckWikiConfig struct {
	// Priorities selects handlers by their tier in the settings page
	// ("high", "medium", "low"). Handlers lists explicit ids and wins when
	// both are set.
	Priorities     []string `yaml:"priorities,omitempty"`
	Handlers       []int    `yaml:"handlers,omitempty"`
	HandlerTimeout string   `yaml:"handler_timeout,omitempty"`
}

// Timeout parses HandlerTimeout; empty means no limit.
func (c CheckWikiConfig) Timeout() (time.Duration, error) {
	if c.HandlerTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.HandlerTimeout)
}

// TyposConfig configures typo rule sources.
type TyposConfig struct {
	Template     string   `yaml:"template,omitempty"`
	Find         string   `yaml:"find,omitempty"`
	Replace      string   `yaml:"replace,omitempty"`
	Auto         string   `yaml:"auto,omitempty"`
	Search       string   `yaml:"search,omitempty"`
	MatchTimeout string   `yaml:"match_timeout,omitempty"`
	RulesDir     string   `yaml:"rules_dir,omitempty"`
	Exclude      []string `yaml:"exclude,omitempty"`
}

// Timeout parses MatchTimeout; empty means zero, i.e. the rules default.
func (c TyposConfig) Timeout() (time.Duration, error) {
	if c.MatchTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.MatchTimeout)
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	Protocol       string            `yaml:"protocol"`
	Insecure       bool              `yaml:"insecure"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	SampleRate     float64           `yaml:"sample_rate"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version,omitempty"`
}

var priorityNames = map[string]bool{"high": true, "medium": true, "low": true}

// Validate checks that the configuration is valid and ready to use
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	for _, p := range c.CheckWiki.Priorities {
		if !priorityNames[strings.ToLower(p)] {
			return fmt.Errorf("checkwiki.priorities: unknown tier %q", p)
		}
	}
	for _, id := range c.CheckWiki.Handlers {
		if id <= 0 {
			return fmt.Errorf("checkwiki.handlers: invalid id %d", id)
		}
	}
	if _, err := c.CheckWiki.Timeout(); err != nil {
		return fmt.Errorf("checkwiki.handler_timeout: %w", err)
	}
	if _, err := c.Typos.Timeout(); err != nil {
		return fmt.Errorf("typos.match_timeout: %w", err)
	}
	for _, p := range c.SkipTitles {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("skip_titles: bad pattern %q: %w", p, err)
		}
	}
	if c.Wiki.Retries < 0 {
		return fmt.Errorf("wiki.retries must not be negative")
	}
	if c.Telemetry.Protocol != "" && c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
		return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http', got: %s", c.Telemetry.Protocol)
	}
	return nil
}

// ExclusionPatterns returns the custom exclusion kinds whose expression
// compiles. Broken ones are reported and left out; the caller logs them.
func (c *Config) ExclusionPatterns() (map[string]string, []error) {
	out := make(map[string]string, len(c.Exclusions))
	var errs []error
	for name, expr := range c.Exclusions {
		if _, err := regexp.Compile(expr); err != nil {
			errs = append(errs, fmt.Errorf("exclusion %q: %w", name, err))
			continue
		}
		out[name] = expr
	}
	return out, errs
}

// TitleFilter matches page titles against SkipTitles.
type TitleFilter struct {
	globs []glob.Glob
}

// SkipFilter compiles SkipTitles. Call Validate first; patterns that do not
// compile are ignored here.
func (c *Config) SkipFilter() *TitleFilter {
	f := &TitleFilter{}
	for _, p := range c.SkipTitles {
		g, err := glob.Compile(p)
		if err != nil {
			continue
		}
		f.globs = append(f.globs, g)
	}
	return f
}

// Skip reports whether title matches any pattern.
func (f *TitleFilter) Skip(title string) bool {
	for _, g := range f.globs {
		if g.Match(title) {
			return true
		}
	}
	return false
}

// MergeConfigs merges configs in order of increasing precedence.
// Later configs override earlier ones: non-zero scalars override, non-empty
// lists replace, maps merge by key. Booleans switch on from any tier.
func MergeConfigs(configs ...*Config) *Config {
	result := &Config{
		Exclusions: make(map[string]string),
	}

	for _, cfg := range configs {
		if cfg == nil {
			continue
		}

		if cfg.Project != "" {
			result.Project = cfg.Project
		}

		// site
		if cfg.Site.Domain != "" {
			result.Site.Domain = cfg.Site.Domain
		}
		if len(cfg.Site.CategoryNames) > 0 {
			result.Site.CategoryNames = cfg.Site.CategoryNames
		}
		if len(cfg.Site.FileNames) > 0 {
			result.Site.FileNames = cfg.Site.FileNames
		}
		if len(cfg.Site.TemplateNames) > 0 {
			result.Site.TemplateNames = cfg.Site.TemplateNames
		}
		if cfg.Site.CaseSensitive {
			result.Site.CaseSensitive = true
		}

		// wiki
		mergeString(&result.Wiki.APIURL, cfg.Wiki.APIURL)
		mergeString(&result.Wiki.UserAgent, cfg.Wiki.UserAgent)
		mergeString(&result.Wiki.Username, cfg.Wiki.Username)
		mergeString(&result.Wiki.SettingsPage, cfg.Wiki.SettingsPage)
		if len(cfg.Wiki.RulesPages) > 0 {
			result.Wiki.RulesPages = cfg.Wiki.RulesPages
		}
		if cfg.Wiki.Retries != 0 {
			result.Wiki.Retries = cfg.Wiki.Retries
		}

		// checkwiki
		if len(cfg.CheckWiki.Priorities) > 0 {
			result.CheckWiki.Priorities = cfg.CheckWiki.Priorities
		}
		if len(cfg.CheckWiki.Handlers) > 0 {
			result.CheckWiki.Handlers = cfg.CheckWiki.Handlers
		}
		mergeString(&result.CheckWiki.HandlerTimeout, cfg.CheckWiki.HandlerTimeout)

		// typos
		mergeString(&result.Typos.Template, cfg.Typos.Template)
		mergeString(&result.Typos.Find, cfg.Typos.Find)
		mergeString(&result.Typos.Replace, cfg.Typos.Replace)
		mergeString(&result.Typos.Auto, cfg.Typos.Auto)
		mergeString(&result.Typos.Search, cfg.Typos.Search)
		mergeString(&result.Typos.MatchTimeout, cfg.Typos.MatchTimeout)
		mergeString(&result.Typos.RulesDir, cfg.Typos.RulesDir)
		if len(cfg.Typos.Exclude) > 0 {
			result.Typos.Exclude = cfg.Typos.Exclude
		}

		for name, expr := range cfg.Exclusions {
			result.Exclusions[name] = expr
		}
		if len(cfg.SkipTitles) > 0 {
			result.SkipTitles = cfg.SkipTitles
		}

		// telemetry
		if cfg.Telemetry.Enabled {
			result.Telemetry.Enabled = true
		}
		if cfg.Telemetry.Insecure {
			result.Telemetry.Insecure = true
		}
		mergeString(&result.Telemetry.Endpoint, cfg.Telemetry.Endpoint)
		mergeString(&result.Telemetry.Protocol, cfg.Telemetry.Protocol)
		mergeString(&result.Telemetry.ServiceName, cfg.Telemetry.ServiceName)
		mergeString(&result.Telemetry.ServiceVersion, cfg.Telemetry.ServiceVersion)
		if cfg.Telemetry.SampleRate != 0 {
			result.Telemetry.SampleRate = cfg.Telemetry.SampleRate
		}
		if len(cfg.Telemetry.Headers) > 0 {
			result.Telemetry.Headers = cfg.Telemetry.Headers
		}
	}

	return result
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// LoadFromFile reads a YAML config file. Returns nil, nil if the file doesn't exist.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadTiered loads system defaults, then machine config, then project config,
// and merges them in order of increasing precedence.
func LoadTiered(machinePath, projectPath string) (*Config, error) {
	system := SystemDefaults()

	machine, err := LoadFromFile(machinePath)
	if err != nil {
		return nil, fmt.Errorf("loading machine config: %w", err)
	}

	project, err := LoadFromFile(projectPath)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return MergeConfigs(system, machine, project), nil
}
