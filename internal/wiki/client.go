// Package wiki reads and writes pages through the MediaWiki action API.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	mwclient "cgt.name/pkg/go-mwclient"
	"cgt.name/pkg/go-mwclient/params"
	"github.com/avast/retry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chris-regnier/wikifix/internal/config"
	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/scheduler"
	"github.com/chris-regnier/wikifix/internal/settings"
)

var tracer = otel.Tracer("github.com/chris-regnier/wikifix/internal/wiki")

// EnvPassword holds the bot password used when a username is configured.
const EnvPassword = "WIKIFIX_WIKI_PASSWORD"

var ErrNoChange = errors.New("text unchanged")

// API is the subset of *mwclient.Client the wrapper needs.
type API interface {
	GetPageByName(title string) (content string, timestamp string, err error)
	Edit(p params.Values) error
}

// Revision is the text of a page at a point in time. Timestamp is passed
// back on save so that edit conflicts are detected by the wiki.
type Revision struct {
	Title     string
	Text      string
	Timestamp string
}

type Client struct {
	api     API
	retries uint
	delay   time.Duration
}

type Option func(*Client)

func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = uint(n)
		}
	}
}

func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

func NewWithAPI(api API, opts ...Option) *Client {
	c := &Client{api: api, retries: 3, delay: time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New connects to the API described by cfg. When a username is set the
// client logs in with the password from EnvPassword.
func New(cfg config.WikiConfig, opts ...Option) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("wiki api_url is required")
	}
	mw, err := mwclient.New(cfg.APIURL, cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("creating wiki client: %w", err)
	}
	if cfg.Username != "" {
		password := os.Getenv(EnvPassword)
		if password == "" {
			return nil, fmt.Errorf("username %q configured but %s is empty", cfg.Username, EnvPassword)
		}
		if err := mw.Login(cfg.Username, password); err != nil {
			return nil, fmt.Errorf("logging in as %s: %w", cfg.Username, err)
		}
	}
	return NewWithAPI(mw, append([]Option{WithRetries(cfg.Retries)}, opts...)...), nil
}

func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn()
		},
		retry.Attempts(c.retries),
		retry.Delay(c.delay),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("wiki request failed, retrying", "op", op, "attempt", n+1, "err", err)
		}),
	)
}

// Fetch returns the current revision of title.
func (c *Client) Fetch(ctx context.Context, title string) (*Revision, error) {
	ctx, span := tracer.Start(ctx, "fetch page")
	defer span.End()
	span.SetAttributes(attribute.String("wikifix.page.title", title))

	var text, ts string
	err := c.do(ctx, "fetch", func() error {
		var err error
		text, ts, err = c.api.GetPageByName(title)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching %q: %w", title, err)
	}
	span.SetAttributes(attribute.Int("wikifix.page.length", len(text)))
	return &Revision{Title: title, Text: text, Timestamp: ts}, nil
}

// FetchRules reads typo rule definitions from each page. A page that
// cannot be fetched is reported as a diagnostic and the rest still load.
func (c *Client) FetchRules(ctx context.Context, parser *rules.Parser, titles ...string) ([]rules.Rule, []error) {
	var out []rules.Rule
	var diags []error
	for _, title := range titles {
		rev, err := c.Fetch(ctx, title)
		if err != nil {
			diags = append(diags, err)
			continue
		}
		got, errs := parser.Parse(rev.Text)
		for _, e := range errs {
			diags = append(diags, fmt.Errorf("%s: %w", title, e))
		}
		out = append(out, got...)
	}
	return out, diags
}

// FetchSettings reads and parses the CheckWiki settings page.
func (c *Client) FetchSettings(ctx context.Context, title, project string) (*settings.Settings, []error, error) {
	rev, err := c.Fetch(ctx, title)
	if err != nil {
		return nil, nil, err
	}
	st, diags := settings.Parse(rev.Text, project)
	return st, diags, nil
}

// Save writes text over rev. It returns ErrNoChange without calling the
// API when the text is identical.
func (c *Client) Save(ctx context.Context, rev *Revision, text, summary string) error {
	ctx, span := tracer.Start(ctx, "save page")
	defer span.End()
	span.SetAttributes(attribute.String("wikifix.page.title", rev.Title))

	if text == rev.Text {
		return ErrNoChange
	}
	p := params.Values{
		"title":   rev.Title,
		"text":    text,
		"summary": summary,
		"bot":     "true",
		"minor":   "true",
	}
	if rev.Timestamp != "" {
		p["basetimestamp"] = rev.Timestamp
		p["nocreate"] = "true"
	}
	err := c.do(ctx, "edit", func() error {
		return c.api.Edit(p)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("saving %q: %w", rev.Title, err)
	}
	return nil
}

// Summary builds an edit summary naming the applied handlers and typo
// rules, e.g. "CheckWiki fixes (7, 64); typos: teh, recieve".
func Summary(res *scheduler.Result, typos *rules.Report) string {
	var parts []string
	if res != nil && len(res.Applied) > 0 {
		ids := make([]string, len(res.Applied))
		for i, id := range res.Applied {
			ids[i] = strconv.Itoa(id)
		}
		parts = append(parts, "CheckWiki fixes ("+strings.Join(ids, ", ")+")")
	}
	if typos != nil && len(typos.Applied) > 0 {
		parts = append(parts, "typos: "+strings.Join(typos.Applied, ", "))
	}
	if len(parts) == 0 {
		return "wikifix"
	}
	return strings.Join(parts, "; ")
}
