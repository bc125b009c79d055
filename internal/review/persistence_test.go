package review

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "decisions.json")

	prior, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState on missing file: %v", err)
	}
	if len(prior.Decisions) != 0 {
		t.Fatalf("Expected empty state, got %+v", prior)
	}
	prior.Decisions["Old#r"] = Decision{Page: "Old", RuleID: "r", Status: StatusRejected}

	decisions := []Decision{{Page: "A", RuleID: "their", Status: StatusAccepted, Choice: 1}}
	if err := SaveState(path, "enwiki", decisions, prior); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if loaded.Project != "enwiki" {
		t.Errorf("Expected project enwiki, got %q", loaded.Project)
	}
	if len(loaded.Decisions) != 2 {
		t.Errorf("Expected 2 decisions, got %d", len(loaded.Decisions))
	}
	if d := loaded.Decisions["A#their"]; d.Choice != 1 || d.Status != StatusAccepted {
		t.Errorf("Unexpected decision: %+v", d)
	}
}

func TestLoadState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(path); err == nil {
		t.Error("Expected an error for a corrupt state file")
	}
}
