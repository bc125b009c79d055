package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var storeTracer = otel.Tracer("github.com/chris-regnier/wikifix/internal/store")

const (
	reportFile = "report.json"
	textFile   = "page.wiki"
)

type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// generateID returns a time-ordered id: the UTC timestamp, then the first
// block of a random UUID.
func (s *FileStore) generateID() string {
	ts := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	return fmt.Sprintf("%s-%s", ts, uuid.NewString()[:8])
}

func (s *FileStore) runDir(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *FileStore) WriteRun(ctx context.Context, run *Run, text string) (string, error) {
	_, span := storeTracer.Start(ctx, "write run")
	defer span.End()

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	id := s.generateID()
	run.ID = id
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	dir := s.runDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fail(err)
	}
	if err := os.WriteFile(filepath.Join(dir, reportFile), data, 0644); err != nil {
		return fail(err)
	}
	if err := os.WriteFile(filepath.Join(dir, textFile), []byte(text), 0644); err != nil {
		return fail(err)
	}

	applied := 0
	if run.Checkwiki != nil {
		applied = len(run.Checkwiki.Applied)
	}
	span.SetAttributes(
		attribute.String("wikifix.store.id", id),
		attribute.String("wikifix.page.title", run.Page),
		attribute.Int("wikifix.store.applied_count", applied),
	)
	return id, nil
}

func (s *FileStore) ReadRun(ctx context.Context, id string) (*Run, error) {
	_, span := storeTracer.Start(ctx, "read run")
	defer span.End()

	data, err := os.ReadFile(filepath.Join(s.runDir(id), reportFile))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &run, nil
}

func (s *FileStore) ReadText(ctx context.Context, id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(id), textFile))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns run ids, newest first.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}
