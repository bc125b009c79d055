package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/wikifix/internal/checkwiki"
	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/fixer"
	"github.com/chris-regnier/wikifix/internal/metrics"
	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/safesub"
	"github.com/chris-regnier/wikifix/internal/settings"
	"github.com/chris-regnier/wikifix/internal/store"
)

type userSkipper struct{}

func (userSkipper) Skip(title string) bool { return strings.HasPrefix(title, "User:") }

func newTestServer(t *testing.T, opts ...fixer.Option) (*httptest.Server, *metrics.Collector) {
	t.Helper()
	rs, diags := rules.NewParser().Parse("{{Typo|find=teh|replace1=the|auto=yes}}")
	require.Empty(t, diags)
	runner := rules.NewRunner(rs, safesub.New(exclusion.New()))

	collector := metrics.NewCollector()
	base := []fixer.Option{
		fixer.WithTypos(runner),
		fixer.WithRecorder(metrics.NewRecorder(collector)),
		fixer.WithSkipper(userSkipper{}),
	}
	f := fixer.New(checkwiki.Default(), nil, append(base, opts...)...)

	st := settings.New("enwiki")
	st.SetPriority(7, settings.PriorityHigh)

	srv := httptest.NewServer(New(f, WithSettings(st), WithMetrics(collector)).Routes())
	t.Cleanup(srv.Close)
	return srv, collector
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestFix(t *testing.T) {
	srv, collector := newTestServer(t)
	resp := post(t, srv.URL+"/v1/fix", FixRequest{
		Title:    "Example",
		Text:     "=== A ===\n==== B ====\nteh\n",
		Handlers: []int{7},
		Typos:    true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run store.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, "Example", run.Page)
	require.NotNil(t, run.Checkwiki)
	assert.Equal(t, []int{7}, run.Checkwiki.Applied)
	require.NotNil(t, run.Typos)
	assert.Equal(t, "== A ==\n=== B ===\nthe\n", run.Typos.Text)

	assert.Equal(t, int64(1), collector.GetStats().TotalApplied)
}

func TestFix_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/fix", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := post(t, srv.URL+"/v1/fix", FixRequest{Text: "x"})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	resp3 := post(t, srv.URL+"/v1/fix", FixRequest{Title: "User:Someone", Text: "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp3.StatusCode)
}

func TestTypos(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := post(t, srv.URL+"/v1/typos", FixRequest{Title: "Example", Text: "=== A ===\nteh"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run store.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Nil(t, run.Checkwiki, "typos endpoint runs no handlers")
	assert.Equal(t, "=== A ===\nthe", run.Typos.Text)
}

func TestTypos_NotConfigured(t *testing.T) {
	f := fixer.New(checkwiki.Default(), nil)
	srv := httptest.NewServer(New(f).Routes())
	defer srv.Close()

	resp := post(t, srv.URL+"/v1/typos", FixRequest{Title: "A", Text: "teh"})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHandlers(t *testing.T) {
	srv, _ := newTestServer(t, fixer.WithHandlers([]int{7, 64}))
	resp, err := http.Get(srv.URL + "/v1/handlers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Version  string        `json:"version"`
		Handlers []HandlerInfo `json:"handlers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, checkwiki.Default().Version(), body.Version)
	assert.Len(t, body.Handlers, checkwiki.Default().Len())

	byID := map[int]HandlerInfo{}
	for _, h := range body.Handlers {
		byID[h.ID] = h
	}
	assert.Equal(t, "high", byID[7].Priority)
	assert.True(t, byID[7].Default)
	assert.False(t, byID[1].Default)
	assert.Equal(t, "none", byID[1].Priority)
	assert.True(t, byID[3].Decision)
	assert.True(t, byID[102].Delegated)
}

func TestHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/handlers/7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hi HandlerInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hi))
	assert.Equal(t, 7, hi.ID)
	assert.True(t, hi.Default, "nil default selection means every handler")

	for path, code := range map[string]int{"/v1/handlers/6": http.StatusNotFound, "/v1/handlers/x": http.StatusBadRequest} {
		r, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, code, r.StatusCode, path)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	post(t, srv.URL+"/v1/fix", FixRequest{Title: "Example", Text: "x", Handlers: []int{7}})

	resp, err := http.Get(srv.URL + "/v1/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats metrics.AggregateStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalRuns)
}
