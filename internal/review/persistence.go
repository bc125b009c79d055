package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the saved outcome of review sessions, keyed by Item.Key.
type State struct {
	Project    string              `json:"project"`
	ReviewedAt string              `json:"reviewed_at"`
	Reviewer   string              `json:"reviewer"`
	Decisions  map[string]Decision `json:"decisions"`
}

// LoadState reads a saved state. A missing file is an empty state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{Decisions: make(map[string]Decision)}, nil
	}
	if err != nil {
		return nil, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding review state %s: %w", path, err)
	}
	if st.Decisions == nil {
		st.Decisions = make(map[string]Decision)
	}
	return &st, nil
}

// SaveState records decisions on top of prior and writes the result.
func SaveState(path, project string, decisions []Decision, prior *State) error {
	st := State{
		Project:    project,
		ReviewedAt: time.Now().UTC().Format(time.RFC3339),
		Reviewer:   os.Getenv("USER"),
		Decisions:  make(map[string]Decision),
	}
	if prior != nil {
		for k, d := range prior.Decisions {
			st.Decisions[k] = d
		}
	}
	for _, d := range decisions {
		st.Decisions[d.Key()] = d
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
