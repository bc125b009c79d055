package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/wikifix/internal/checkwiki"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

// stamp returns a handler that appends "<id>;" to the text.
func stamp(id int, needsFirst ...int) *checkwiki.Handler {
	return &checkwiki.Handler{
		ID:         id,
		Name:       fmt.Sprintf("stamp %d", id),
		NeedsFirst: needsFirst,
		Custom: func(_ *checkwiki.Context, text string) (string, []safesub.Edit, error) {
			s := fmt.Sprintf("%d;", id)
			return text + s, []safesub.Edit{{Start: len(text), End: len(text), New: s}}, nil
		},
	}
}

func catalog(t *testing.T, hs ...*checkwiki.Handler) *checkwiki.Catalog {
	t.Helper()
	c, err := checkwiki.NewCatalog(hs)
	require.NoError(t, err)
	return c
}

func permutations(ids []int) [][]int {
	if len(ids) <= 1 {
		return [][]int{append([]int(nil), ids...)}
	}
	var out [][]int
	for i := range ids {
		rest := make([]int, 0, len(ids)-1)
		rest = append(rest, ids[:i]...)
		rest = append(rest, ids[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]int{ids[i]}, p...))
		}
	}
	return out
}

func subsets(ids []int) [][]int {
	var out [][]int
	for mask := 1; mask < 1<<len(ids); mask++ {
		var s []int
		for i, id := range ids {
			if mask&(1<<i) != 0 {
				s = append(s, id)
			}
		}
		out = append(out, s)
	}
	return out
}

func TestApply_DependencyOrder(t *testing.T) {
	// catalog order deliberately contradicts the dependencies
	cat := catalog(t, stamp(1, 3), stamp(2, 1), stamp(3), stamp(4, 2, 3))
	s := New(cat)

	for _, subset := range subsets([]int{1, 2, 3, 4}) {
		for _, req := range permutations(subset) {
			res, err := s.Apply(context.Background(), checkwiki.Page{Title: "T"}, "", req)
			require.NoError(t, err)
			require.Len(t, res.Applied, len(req), "request %v", req)

			pos := make(map[int]int)
			for i, id := range res.Applied {
				pos[id] = i
			}
			for _, id := range req {
				h, _ := cat.HandlerFor(id)
				for _, dep := range h.NeedsFirst {
					if p, ok := pos[dep]; ok {
						assert.Less(t, p, pos[id], "request %v: %d ran before its dependency %d", req, id, dep)
					}
				}
			}
		}
	}
}

func TestApply_FeedsTextForward(t *testing.T) {
	res, err := New(catalog(t, stamp(1, 3), stamp(2), stamp(3))).Apply(context.Background(), checkwiki.Page{}, "x:", nil)
	require.NoError(t, err)
	assert.Equal(t, "x:2;3;1;", res.Text)
	assert.Equal(t, []int{2, 3, 1}, res.Applied)
	assert.Equal(t, []string{" → 2;", " → 3;", " → 1;"}, res.Changes)
}

func TestApply_CycleIsUnschedulable(t *testing.T) {
	res, err := New(catalog(t, stamp(1, 2), stamp(2, 1))).Apply(context.Background(), checkwiki.Page{}, "", nil)
	require.NoError(t, err)

	counts := res.Counts()
	assert.Equal(t, 1, counts[StatusUnschedulable])
	assert.Equal(t, 1, counts[StatusApplied])

	o, ok := res.Outcome(1)
	require.True(t, ok)
	assert.Equal(t, StatusUnschedulable, o.Status)
	assert.Equal(t, ErrUnschedulable.Error(), o.Error)
	assert.Equal(t, 3, o.Attempts)
}

func TestApply_FailureIsIsolated(t *testing.T) {
	panics := &checkwiki.Handler{
		ID:   5,
		Name: "panics",
		Custom: func(*checkwiki.Context, string) (string, []safesub.Edit, error) {
			panic("boom")
		},
	}
	fails := &checkwiki.Handler{
		ID:   6,
		Name: "fails",
		Custom: func(_ *checkwiki.Context, text string) (string, []safesub.Edit, error) {
			return text, nil, fmt.Errorf("bad input")
		},
	}
	res, err := New(catalog(t, stamp(1), panics, fails, stamp(7))).Apply(context.Background(), checkwiki.Page{}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "1;7;", res.Text)
	assert.Equal(t, []int{1, 7}, res.Applied)

	o, _ := res.Outcome(5)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Contains(t, o.Error, "panicked: boom")

	o, _ = res.Outcome(6)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, "bad input", o.Error)
}

func TestApply_Timeout(t *testing.T) {
	slow := &checkwiki.Handler{
		ID:   2,
		Name: "slow",
		Custom: func(_ *checkwiki.Context, text string) (string, []safesub.Edit, error) {
			time.Sleep(500 * time.Millisecond)
			return text + "late", nil, nil
		},
	}
	res, err := New(catalog(t, stamp(1), slow), WithTimeout(20*time.Millisecond)).
		Apply(context.Background(), checkwiki.Page{}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "1;", res.Text)
	o, _ := res.Outcome(2)
	assert.Equal(t, StatusNoOp, o.Status)
	assert.Contains(t, o.Error, ErrHandlerTimeout.Error())
}

func TestApply_Whitelist(t *testing.T) {
	s := New(catalog(t, stamp(1), stamp(2)), WithWhitelist(map[int][]string{1: {"some_page"}}))

	res, err := s.Apply(context.Background(), checkwiki.Page{Title: "Some page"}, "", nil)
	require.NoError(t, err)
	o, _ := res.Outcome(1)
	assert.Equal(t, StatusWhitelisted, o.Status)
	assert.Equal(t, []int{2}, res.Applied)

	res, err = s.Apply(context.Background(), checkwiki.Page{Title: "Other"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Applied)
}

func TestApply_DecisionAndDelegated(t *testing.T) {
	text := "a<ref>x</ref>\n"
	res, err := New(checkwiki.Default()).Apply(context.Background(), checkwiki.Page{Title: "A"}, text, []int{3, 102})
	require.NoError(t, err)

	assert.Equal(t, text, res.Text)
	assert.Empty(t, res.Applied)

	o, _ := res.Outcome(3)
	assert.Equal(t, StatusDecision, o.Status)
	assert.NotEmpty(t, o.Options)

	o, _ = res.Outcome(102)
	assert.Equal(t, StatusDelegated, o.Status)
}

func TestApply_EmptyCatalog(t *testing.T) {
	_, err := New(catalog(t)).Apply(context.Background(), checkwiki.Page{}, "x", nil)
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	_, err = New(nil).Apply(context.Background(), checkwiki.Page{}, "x", nil)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestApply_UnknownID(t *testing.T) {
	res, err := New(checkwiki.Default()).Apply(context.Background(), checkwiki.Page{}, "=== A ===\n", []int{6, 7})
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "unknown handler")
	assert.Equal(t, []int{7}, res.Applied)
}

func TestApply_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(catalog(t, stamp(1))).Apply(ctx, checkwiki.Page{}, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApply_DefaultCatalog(t *testing.T) {
	s := New(checkwiki.Default())
	ctx := context.Background()
	page := checkwiki.Page{Title: "Example"}

	tests := []struct {
		name    string
		in      string
		want    string
		changes []string
	}{
		{"header renormalization", "=== A ===\n==== B ====\n", "== A ==\n=== B ===\n", nil},
		{"duplicate refs", `x<ref name="a">foo</ref> y<ref>foo</ref>`, `x<ref name="a">foo</ref> y<ref name="a" />`,
			[]string{`<ref>foo</ref> → <ref name="a" />`}},
		{"entities", "5&nbsp;km &amp; &deg;C", "5&nbsp;km &amp; °C", []string{"&deg; → °"}},
		{"ambiguous external link", "[http://example.com some text", "[http://example.com some text", nil},
		{"excluded category", "<nowiki>[[Category:x]]</nowiki>", "<nowiki>[[Category:x]]</nowiki>", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Apply(ctx, page, tt.in, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Text)
			if tt.changes != nil {
				assert.Equal(t, tt.changes, res.Changes)
			}

			again, err := s.Apply(ctx, page, res.Text, nil)
			require.NoError(t, err)
			assert.Equal(t, res.Text, again.Text)
			assert.Empty(t, again.Applied)
		})
	}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRecorder) RecordHandler(id int, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%d:%s", id, status))
}

func TestApply_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	noop := &checkwiki.Handler{ID: 2, Name: "noop", Custom: func(_ *checkwiki.Context, text string) (string, []safesub.Edit, error) {
		return text, nil, nil
	}}
	_, err := New(catalog(t, stamp(1), noop), WithRecorder(rec)).Apply(context.Background(), checkwiki.Page{}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "1:applied,2:skipped-no-op", strings.Join(rec.events, ","))
}
