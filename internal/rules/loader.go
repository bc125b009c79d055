package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleFile is the YAML form of a rule set.
type RuleFile struct {
	Rules []Rule `yaml:"rules"`

	// Skipped holds a diagnostic for every rule dropped while parsing.
	Skipped []error `yaml:"-"`
}

// ParseRuleFile parses and compiles a YAML rule file. A YAML syntax error
// fails the whole file; an invalid rule is dropped and recorded in Skipped.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var raw RuleFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}

	rf := &RuleFile{}
	seen := make(map[string]bool)
	for i := range raw.Rules {
		r := raw.Rules[i]
		err := validateRule(&r, seen)
		if err == nil {
			err = r.compile(DefaultMatchTimeout)
		}
		if err != nil {
			slog.Warn("skipping rule", "id", r.ID, "index", i, "err", err)
			rf.Skipped = append(rf.Skipped, &ParseError{Index: i, ID: r.ID, Err: err})
			continue
		}
		seen[r.ID] = true
		rf.Rules = append(rf.Rules, r)
	}
	return rf, nil
}

func validateRule(r *Rule, seen map[string]bool) error {
	if r.ID == "" {
		return fmt.Errorf("missing required field: id")
	}
	if seen[r.ID] {
		return fmt.Errorf("duplicate rule ID %q", r.ID)
	}
	return nil
}

// LoadRules returns the embedded defaults overridden by the YAML files of
// userDir and then projectDir. An override replaces the rule with the same
// ID in place; new IDs are appended, so the result keeps source order.
func LoadRules(userDir, projectDir string) ([]Rule, error) {
	defaults, err := DefaultRules()
	if err != nil {
		return nil, fmt.Errorf("loading default rules: %w", err)
	}

	userRules, err := loadDir(userDir)
	if err != nil {
		return nil, fmt.Errorf("loading user rules from %s: %w", userDir, err)
	}
	projectRules, err := loadDir(projectDir)
	if err != nil {
		return nil, fmt.Errorf("loading project rules from %s: %w", projectDir, err)
	}

	return Merge(defaults, userRules, projectRules), nil
}

// Merge overlays rule sets in order of increasing precedence.
func Merge(sets ...[]Rule) []Rule {
	var out []Rule
	index := make(map[string]int)
	for _, set := range sets {
		for _, r := range set {
			if i, ok := index[r.ID]; ok {
				out[i] = r
				continue
			}
			index[r.ID] = len(out)
			out = append(out, r)
		}
	}
	return out
}

func loadDir(dir string) ([]Rule, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var allRules []Rule
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		rf, err := ParseRuleFile(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}

		allRules = append(allRules, rf.Rules...)
	}
	return allRules, nil
}
