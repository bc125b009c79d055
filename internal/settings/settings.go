// Package settings parses the CheckWiki settings blob: per-project handler
// priorities and whitelist pages, written as
//
//	error_<id>_prio_<project>=<0..3> END
//	error_<id>_whitelistpage_<project>=<page> END
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var ErrMalformedKey = errors.New("malformed settings key")

// Priority is a handler's tier. Zero means the handler is not active.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "none"
	}
}

// ParsePriority accepts a tier name or its numeric form.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return PriorityNone, nil
	case "high", "1":
		return PriorityHigh, nil
	case "medium", "2":
		return PriorityMedium, nil
	case "low", "3":
		return PriorityLow, nil
	}
	return PriorityNone, fmt.Errorf("unknown priority %q", s)
}

// key is the participle grammar of a settings key.
//
//nolint:govet // participle grammar tags are not standard struct tags
type key struct {
	ID      string `parser:"\"error\" \"_\" @Int \"_\""`
	Field   string `parser:"@Word \"_\""`
	Project string `parser:"@(Word | Int) ( @\"_\" @(Word | Int) )*"`
}

var keyLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `\d+`},
	{Name: "Word", Pattern: `[A-Za-z][A-Za-z0-9]*`},
	{Name: "Sep", Pattern: `_`},
	{Name: "Other", Pattern: `[^_A-Za-z0-9]+`},
})

var keyParser = participle.MustBuild[key](
	participle.Lexer(keyLexer),
)

// LineError locates a settings entry that was skipped.
type LineError struct {
	Line int
	Key  string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("settings line %d (%s): %v", e.Line, e.Key, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Settings is the parsed result for one project. It is read-only after
// Parse and safe to share.
type Settings struct {
	Project    string
	priorities map[int]Priority
	whitelists map[int][]string
}

// New returns empty settings for project.
func New(project string) *Settings {
	return &Settings{
		Project:    project,
		priorities: make(map[int]Priority),
		whitelists: make(map[int][]string),
	}
}

// SetPriority records the tier of handler id.
func (s *Settings) SetPriority(id int, p Priority) { s.priorities[id] = p }

// AddWhitelist records a whitelist page of handler id.
func (s *Settings) AddWhitelist(id int, page string) {
	s.whitelists[id] = append(s.whitelists[id], page)
}

// Priority returns the tier of handler id, PriorityNone when unset.
func (s *Settings) Priority(id int) Priority { return s.priorities[id] }

// Whitelist returns the names of the whitelist pages of handler id. The
// article titles they list are resolved by the wiki client.
func (s *Settings) Whitelist(id int) []string { return s.whitelists[id] }

// IDs returns the handler ids with the given tier, ascending.
func (s *Settings) IDs(tier Priority) []int {
	var ids []int
	for id, p := range s.priorities {
		if p == tier {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Parse reads the settings blob for project. Entries of other projects and
// keys that are not priorities or whitelist pages are ignored. Malformed
// entries are skipped and returned as diagnostics.
func Parse(text, project string) (*Settings, []error) {
	s := New(project)
	var diags []error
	for _, e := range entries(text) {
		if !strings.HasPrefix(e.key, "error_") {
			continue
		}
		k, err := keyParser.ParseString("", e.key)
		if err != nil {
			diags = append(diags, skip(e, fmt.Errorf("%w: %v", ErrMalformedKey, err)))
			continue
		}
		if project != "" && k.Project != project {
			continue
		}
		id, err := strconv.Atoi(k.ID)
		if err != nil {
			diags = append(diags, skip(e, fmt.Errorf("%w: %v", ErrMalformedKey, err)))
			continue
		}
		switch k.Field {
		case "prio":
			p, err := ParsePriority(e.value)
			if err != nil {
				diags = append(diags, skip(e, err))
				continue
			}
			s.SetPriority(id, p)
		case "whitelistpage":
			if e.value != "" {
				s.AddWhitelist(id, e.value)
			}
		}
	}
	return s, diags
}

func skip(e entry, err error) error {
	slog.Warn("skipping settings entry", "line", e.line, "key", e.key, "err", err)
	return &LineError{Line: e.line, Key: e.key, Err: err}
}

type entry struct {
	line  int
	key   string
	value string
}

// entries splits the blob into key=value pairs. A value ends at the END
// marker, which may sit on a later line; without one before the next key it
// ends with its line.
func entries(text string) []entry {
	lines := strings.Split(text, "\n")
	var out []entry
	for i := 0; i < len(lines); i++ {
		k, v, ok := strings.Cut(lines[i], "=")
		if !ok {
			continue
		}
		e := entry{line: i + 1, key: strings.TrimSpace(k)}
		if before, found := cutEnd(v); found {
			e.value = strings.TrimSpace(before)
			out = append(out, e)
			continue
		}
		value := v
		j := i + 1
		for ; j < len(lines); j++ {
			if keyLine.MatchString(lines[j]) {
				j = len(lines)
				break
			}
			if before, found := cutEnd(lines[j]); found {
				value += "\n" + before
				break
			}
			value += "\n" + lines[j]
		}
		if j == len(lines) {
			// no END marker: the value is the one line
			e.value = strings.TrimSpace(v)
		} else {
			e.value = strings.TrimSpace(value)
			i = j
		}
		out = append(out, e)
	}
	return out
}

var keyLine = regexp.MustCompile(`^\s*[A-Za-z0-9_]+\s*=`)

func cutEnd(s string) (string, bool) {
	t := strings.TrimRight(s, " \t\r")
	if !strings.HasSuffix(t, "END") {
		return s, false
	}
	before := strings.TrimSuffix(t, "END")
	if before != "" && !strings.HasSuffix(before, " ") && !strings.HasSuffix(before, "\t") && !strings.HasSuffix(before, "=") {
		return s, false
	}
	return before, true
}
