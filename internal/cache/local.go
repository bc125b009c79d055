package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var cacheTracer = otel.Tracer("github.com/chris-regnier/wikifix/internal/cache")

var _ Manager = (*LocalCache)(nil)

// LocalCache keeps one JSON file per entry in dir.
type LocalCache struct {
	dir string
}

func NewLocalCache(dir string) *LocalCache {
	return &LocalCache{dir: dir}
}

func (c *LocalCache) entryPath(key Key) string {
	return filepath.Join(c.dir, key.Hash()+".json")
}

func (c *LocalCache) Get(ctx context.Context, key Key) (*Entry, error) {
	ctx, span := cacheTracer.Start(ctx, "cache lookup")
	defer span.End()

	span.SetAttributes(
		attribute.String("wikifix.cache.key", key.Hash()),
		attribute.String("wikifix.cache.kind", key.Kind),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			span.SetAttributes(attribute.Bool("wikifix.cache.hit", false))
			return nil, ErrCacheMiss
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Bool("wikifix.cache.hit", true))
	return &entry, nil
}

func (c *LocalCache) Put(ctx context.Context, entry *Entry) error {
	_, span := cacheTracer.Start(ctx, "cache store")
	defer span.End()

	span.SetAttributes(attribute.String("wikifix.cache.key", entry.Key.Hash()))

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fail(err)
	}

	entry.Timestamp = time.Now().Unix()
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fail(err)
	}
	if err := os.WriteFile(c.entryPath(entry.Key), data, 0644); err != nil {
		return fail(err)
	}
	return nil
}

// Delete removes the entry. A missing entry is not an error.
func (c *LocalCache) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(c.entryPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
