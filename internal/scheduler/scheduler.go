// Package scheduler applies a batch of CheckWiki handlers to one page,
// ordering them so that every handler runs after the handlers it needs
// first.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chris-regnier/wikifix/internal/checkwiki"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

var tracer = otel.Tracer("github.com/chris-regnier/wikifix/internal/scheduler")

var (
	ErrEmptyCatalog   = errors.New("empty handler catalog")
	ErrUnschedulable  = errors.New("handler cannot be scheduled")
	ErrHandlerTimeout = errors.New("handler timed out")
)

// Status is the final state of one handler in a run.
type Status string

const (
	StatusPending       Status = "pending"
	StatusApplied       Status = "applied"
	StatusNoOp          Status = "skipped-no-op"
	StatusDecision      Status = "skipped-decision"
	StatusDelegated     Status = "skipped-delegated"
	StatusWhitelisted   Status = "skipped-whitelisted"
	StatusFailed        Status = "failed"
	StatusUnschedulable Status = "unschedulable"
)

// Outcome reports what happened to one handler.
type Outcome struct {
	ID       int           `json:"id"`
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Changes  []string      `json:"changes,omitempty"`
	Options  []string      `json:"options,omitempty"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration_ns"`
}

// Result is the report of one run. Applied lists the handlers that changed
// the text, in execution order; hosts use it to mark errors as fixed.
type Result struct {
	Text        string    `json:"text"`
	Applied     []int     `json:"applied"`
	Changes     []string  `json:"changes"`
	Outcomes    []Outcome `json:"outcomes"`
	Diagnostics []string  `json:"diagnostics,omitempty"`
}

// Outcome returns the outcome of handler id.
func (r *Result) Outcome(id int) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// Counts returns the number of outcomes per status.
func (r *Result) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// Recorder receives one event per finished handler.
type Recorder interface {
	RecordHandler(id int, status string, d time.Duration)
}

// Scheduler runs handlers from a catalog. It keeps no per-run state and is
// safe for concurrent use.
type Scheduler struct {
	catalog   *checkwiki.Catalog
	site      *checkwiki.Site
	timeout   time.Duration
	whitelist func(id int) []string
	recorder  Recorder
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds the wall-clock time of each handler. A handler that
// exceeds it is reported as a no-op and its output discarded.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithSite sets the site used for pages that carry none.
func WithSite(site *checkwiki.Site) Option {
	return func(s *Scheduler) { s.site = site }
}

// WithWhitelist sets, per handler id, the page titles the handler must not
// touch.
func WithWhitelist(pages map[int][]string) Option {
	return func(s *Scheduler) {
		s.whitelist = func(id int) []string { return pages[id] }
	}
}

// WithRecorder reports every handler outcome to r.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// New returns a scheduler over catalog.
func New(catalog *checkwiki.Catalog, opts ...Option) *Scheduler {
	s := &Scheduler{catalog: catalog}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply runs the handlers with the given ids over text; nil ids means every
// handler in the catalog. Unknown ids are reported as diagnostics. Handler
// failures never fail the call; only an empty catalog or a cancelled
// context does.
func (s *Scheduler) Apply(ctx context.Context, page checkwiki.Page, text string, ids []int) (*Result, error) {
	if s.catalog == nil || s.catalog.Len() == 0 {
		return nil, ErrEmptyCatalog
	}
	ctx, span := tracer.Start(ctx, "apply handlers", trace.WithAttributes(
		attribute.String("wikifix.page.title", page.Title),
		attribute.Int("wikifix.handlers.requested", len(ids)),
	))
	defer span.End()

	if page.Site == nil {
		page.Site = s.site
	}
	c := checkwiki.NewContext(page, nil)

	work, diags := s.workList(ids)
	res := &Result{Text: text, Diagnostics: diags}

	limit := len(work)
	retries := make(map[int]int)
	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("applying handlers to %q: %w", page.Title, err)
		}
		h := work[0]
		work = work[1:]
		attempts := retries[h.ID] + 1

		switch {
		case h.NeedsDecision:
			s.record(res, Outcome{ID: h.ID, Name: h.Name, Status: StatusDecision, Options: h.Decide(c, res.Text), Attempts: attempts})
			continue
		case h.HandledExternally:
			s.record(res, Outcome{ID: h.ID, Name: h.Name, Status: StatusDelegated, Attempts: attempts})
			continue
		case s.whitelisted(c, h.ID):
			s.record(res, Outcome{ID: h.ID, Name: h.Name, Status: StatusWhitelisted, Attempts: attempts})
			continue
		}

		if j := lastDependency(h, work); j >= 0 {
			retries[h.ID]++
			if retries[h.ID] > limit {
				slog.Warn("handler cannot be scheduled", "handler", h.ID, "retries", retries[h.ID], "needs_first", h.NeedsFirst)
				s.record(res, Outcome{ID: h.ID, Name: h.Name, Status: StatusUnschedulable, Error: ErrUnschedulable.Error(), Attempts: attempts})
				continue
			}
			work = slices.Insert(work, j+1, h)
			continue
		}

		s.run(ctx, c, h, res, attempts)
	}

	res.Changes = safesub.Dedupe(res.Changes)
	span.SetAttributes(attribute.Int("wikifix.handlers.applied", len(res.Applied)))
	return res, nil
}

func (s *Scheduler) workList(ids []int) ([]*checkwiki.Handler, []string) {
	if ids == nil {
		return s.catalog.All(), nil
	}
	want := make(map[int]bool, len(ids))
	var diags []string
	for _, id := range ids {
		if _, err := s.catalog.HandlerFor(id); err != nil {
			slog.Warn("ignoring requested handler", "handler", id, "err", err)
			diags = append(diags, err.Error())
			continue
		}
		want[id] = true
	}
	var work []*checkwiki.Handler
	for _, h := range s.catalog.All() {
		if want[h.ID] {
			work = append(work, h)
		}
	}
	return work, diags
}

// lastDependency returns the highest index in work holding a handler that h
// needs first, or -1.
func lastDependency(h *checkwiki.Handler, work []*checkwiki.Handler) int {
	last := -1
	for i, w := range work {
		if slices.Contains(h.NeedsFirst, w.ID) {
			last = i
		}
	}
	return last
}

func (s *Scheduler) whitelisted(c *checkwiki.Context, id int) bool {
	if s.whitelist == nil || c.Page.Title == "" {
		return false
	}
	title := c.Site.NormalizeTitle(c.Page.Title)
	for _, p := range s.whitelist(id) {
		if c.Site.NormalizeTitle(p) == title {
			return true
		}
	}
	return false
}

func (s *Scheduler) run(ctx context.Context, c *checkwiki.Context, h *checkwiki.Handler, res *Result, attempts int) {
	ctx, span := tracer.Start(ctx, "handler", trace.WithAttributes(
		attribute.Int("wikifix.handler.id", h.ID),
		attribute.String("wikifix.handler.name", h.Name),
	))
	defer span.End()

	start := time.Now()
	out, edits, err := s.execute(ctx, c, h, res.Text)
	o := Outcome{ID: h.ID, Name: h.Name, Attempts: attempts, Duration: time.Since(start)}

	switch {
	case errors.Is(err, ErrHandlerTimeout):
		slog.Warn("handler timed out", "handler", h.ID, "page", c.Page.Title, "timeout", s.timeout)
		o.Status = StatusNoOp
		o.Error = err.Error()
	case err != nil:
		slog.Warn("handler failed", "handler", h.ID, "page", c.Page.Title, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.Status = StatusFailed
		o.Error = err.Error()
	case out == res.Text:
		o.Status = StatusNoOp
	default:
		o.Status = StatusApplied
		o.Changes = safesub.Dedupe(safesub.Describe(edits))
		res.Text = out
		res.Applied = append(res.Applied, h.ID)
		res.Changes = append(res.Changes, o.Changes...)
	}
	span.SetAttributes(attribute.String("wikifix.handler.status", string(o.Status)))
	s.record(res, o)
}

// execute applies h, bounded by the configured timeout. A handler that runs
// past the deadline keeps running in its goroutine but its result is
// dropped.
func (s *Scheduler) execute(ctx context.Context, c *checkwiki.Context, h *checkwiki.Handler, text string) (string, []safesub.Edit, error) {
	if s.timeout <= 0 {
		return safeApply(c, h, text)
	}
	type result struct {
		text  string
		edits []safesub.Edit
		err   error
	}
	done := make(chan result, 1)
	go func() {
		out, edits, err := safeApply(c, h, text)
		done <- result{out, edits, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.text, r.edits, r.err
	case <-timer.C:
		return text, nil, fmt.Errorf("%w after %s", ErrHandlerTimeout, s.timeout)
	case <-ctx.Done():
		return text, nil, ctx.Err()
	}
}

func safeApply(c *checkwiki.Context, h *checkwiki.Handler, text string) (out string, edits []safesub.Edit, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, edits, err = text, nil, fmt.Errorf("handler %d panicked: %v", h.ID, r)
		}
	}()
	return h.Apply(c, text)
}

func (s *Scheduler) record(res *Result, o Outcome) {
	res.Outcomes = append(res.Outcomes, o)
	if s.recorder != nil {
		s.recorder.RecordHandler(o.ID, string(o.Status), o.Duration)
	}
}
