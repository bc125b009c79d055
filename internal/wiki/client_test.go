package wiki

import (
	"context"
	"errors"
	"testing"

	"cgt.name/pkg/go-mwclient/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/wikifix/internal/checkwiki"
	"github.com/chris-regnier/wikifix/internal/config"
	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/scheduler"
	"github.com/chris-regnier/wikifix/internal/settings"
)

type fakeAPI struct {
	pages    map[string]string
	failures int
	calls    int
	edits    []params.Values
	editErr  error
}

func (f *fakeAPI) GetPageByName(title string) (string, string, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return "", "", errors.New("maxlag")
	}
	text, ok := f.pages[title]
	if !ok {
		return "", "", errors.New("missing page")
	}
	return text, "2026-01-01T00:00:00Z", nil
}

func (f *fakeAPI) Edit(p params.Values) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, p)
	return nil
}

func newClient(api *fakeAPI) *Client {
	return NewWithAPI(api, WithRetries(3), WithDelay(0))
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{"Example": "== A =="}, failures: 2}
	rev, err := newClient(api).Fetch(context.Background(), "Example")
	require.NoError(t, err)
	assert.Equal(t, "== A ==", rev.Text)
	assert.Equal(t, "2026-01-01T00:00:00Z", rev.Timestamp)
	assert.Equal(t, 3, api.calls)
}

func TestFetch_GivesUp(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{}}
	_, err := newClient(api).Fetch(context.Background(), "Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `fetching "Nope"`)
	assert.Equal(t, 3, api.calls)
}

func TestFetch_CancelledContext(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{"Example": "x"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newClient(api).Fetch(ctx, "Example")
	require.Error(t, err)
	assert.Equal(t, 0, api.calls)
}

func TestFetchRules(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{
		"Rules/1": "{{Typo|find=teh|replace1=the|auto=yes}}\n{{Typo|replace1=x}}",
		"Rules/2": "{{Typo|find=recieve|replace1=receive}}",
	}}
	got, diags := newClient(api).FetchRules(context.Background(), rules.NewParser(), "Rules/1", "Missing", "Rules/2")

	require.Len(t, got, 2)
	assert.Equal(t, "teh", got[0].Find)
	assert.True(t, got[0].Auto)
	assert.Equal(t, "recieve", got[1].Find)
	// one fetch failure, one rule without find
	assert.Len(t, diags, 2)
}

func TestFetchSettings(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{
		"Settings": "error_017_prio_cswiki=1 END\nerror_017_whitelistpage_cswiki=Foo END",
	}}
	st, diags, err := newClient(api).FetchSettings(context.Background(), "Settings", "cswiki")
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, settings.PriorityHigh, st.Priority(17))
	assert.Equal(t, []string{"Foo"}, st.Whitelist(17))

	_, _, err = newClient(api).FetchSettings(context.Background(), "Missing", "cswiki")
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api)
	rev := &Revision{Title: "Example", Text: "old", Timestamp: "2026-01-01T00:00:00Z"}

	assert.ErrorIs(t, c.Save(context.Background(), rev, "old", "s"), ErrNoChange)
	assert.Empty(t, api.edits)

	require.NoError(t, c.Save(context.Background(), rev, "new", "CheckWiki fixes (7)"))
	require.Len(t, api.edits, 1)
	e := api.edits[0]
	assert.Equal(t, "Example", e["title"])
	assert.Equal(t, "new", e["text"])
	assert.Equal(t, "CheckWiki fixes (7)", e["summary"])
	assert.Equal(t, "2026-01-01T00:00:00Z", e["basetimestamp"])
	assert.Equal(t, "true", e["nocreate"])

	api.editErr = errors.New("editconflict")
	err := c.Save(context.Background(), rev, "newer", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `saving "Example"`)
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name  string
		res   *scheduler.Result
		typos *rules.Report
		want  string
	}{
		{"nothing", nil, nil, "wikifix"},
		{"handlers", &scheduler.Result{Applied: []int{7, 64}}, nil, "CheckWiki fixes (7, 64)"},
		{"typos", nil, &rules.Report{Applied: []string{"teh"}}, "typos: teh"},
		{"both", &scheduler.Result{Applied: []int{7}}, &rules.Report{Applied: []string{"teh", "recieve"}}, "CheckWiki fixes (7); typos: teh, recieve"},
		{"empty results", &scheduler.Result{}, &rules.Report{}, "wikifix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.res, tt.typos))
		})
	}
}

func TestNew_RequiresAPIURL(t *testing.T) {
	_, err := New(config.WikiConfig{})
	assert.Error(t, err)
}

func TestNew_RequiresPasswordForLogin(t *testing.T) {
	t.Setenv(EnvPassword, "")
	_, err := New(config.WikiConfig{APIURL: "https://example.org/w/api.php", UserAgent: "wikifix-test", Username: "Bot"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvPassword)
}

func TestWhitelistTitles(t *testing.T) {
	text := "Pages where error 17 is wanted:\n" +
		"* [[Foo]]\n" +
		"* [[Bar (band)|Bar]] see talk\n" +
		"* Baz\n" +
		"# [[:Category:Qux]]\n" +
		"* [[Foo#History]]\n"
	assert.Equal(t, []string{"Foo", "Bar (band)", "Baz", "Category:Qux"}, WhitelistTitles(text))
	assert.Empty(t, WhitelistTitles("no list here"))
}

func TestFetchWhitelists(t *testing.T) {
	const page = "Wikipedia:CHECKWIKI/017 whitelist"
	api := &fakeAPI{pages: map[string]string{page: "* [[Foo]]\n* [[Bar]]\n"}}
	st, diags := settings.Parse(
		"error_017_whitelistpage_enwiki="+page+" END\n"+
			"error_064_whitelistpage_enwiki="+page+" END\n"+
			"error_007_whitelistpage_enwiki=Missing END", "enwiki")
	require.Empty(t, diags)

	got, errs := newClient(api).FetchWhitelists(context.Background(), st, []int{7, 17, 64})
	assert.Equal(t, []string{"Foo", "Bar"}, got[17])
	assert.Equal(t, []string{"Foo", "Bar"}, got[64])
	assert.Empty(t, got[7])
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "handler 7")
	// the shared page is fetched once; the missing one three times
	assert.Equal(t, 4, api.calls)

	none, errs := newClient(api).FetchWhitelists(context.Background(), nil, []int{17})
	assert.Nil(t, none)
	assert.Empty(t, errs)
}

func TestFetchWhitelists_SkipsListedTitles(t *testing.T) {
	const page = "Wikipedia:CHECKWIKI/017 whitelist"
	api := &fakeAPI{pages: map[string]string{page: "* [[Foo]]\n"}}
	st, _ := settings.Parse("error_017_whitelistpage_enwiki="+page+" END", "enwiki")
	wl, errs := newClient(api).FetchWhitelists(context.Background(), st, []int{17})
	require.Empty(t, errs)

	s := scheduler.New(checkwiki.Default(), scheduler.WithWhitelist(wl))
	for title, want := range map[string]bool{"Foo": true, page: false} {
		res, err := s.Apply(context.Background(), checkwiki.Page{Title: title}, "text", []int{17})
		require.NoError(t, err)
		o, ok := res.Outcome(17)
		require.True(t, ok)
		assert.Equal(t, want, o.Status == scheduler.StatusWhitelisted, title)
	}
}
