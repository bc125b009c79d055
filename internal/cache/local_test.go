package cache

import (
	"context"
	"os"
	"testing"

	"github.com/chris-regnier/wikifix/internal/rules"
)

func TestLocalCacheGetMiss(t *testing.T) {
	c := NewLocalCache(t.TempDir())
	_, err := c.Get(context.Background(), NewKey(KindTypos, "enwiki", "A", "x", nil, "r1"))
	if err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestLocalCachePutGet(t *testing.T) {
	c := NewLocalCache(t.TempDir())
	ctx := context.Background()

	key := NewKey(KindTypos, "enwiki", "A", "teh cat", nil, "r1")
	entry := &Entry{
		Key: key,
		Typos: &rules.Report{
			Text:    "the cat",
			Applied: []string{"teh"},
			Changes: []string{"teh → the"},
		},
	}
	if err := c.Put(ctx, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Typos == nil || got.Typos.Text != "the cat" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Key.TextHash != key.TextHash {
		t.Errorf("expected key to round-trip")
	}
	if got.Checkwiki != nil {
		t.Error("expected no checkwiki result")
	}
}

func TestLocalCacheCorrupt(t *testing.T) {
	dir := t.TempDir()
	c := NewLocalCache(dir)
	key := NewKey(KindTypos, "enwiki", "A", "x", nil, "r1")
	if err := os.WriteFile(c.entryPath(key), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), key); err == nil || err == ErrCacheMiss {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestLocalCacheDelete(t *testing.T) {
	c := NewLocalCache(t.TempDir())
	ctx := context.Background()
	key := NewKey(KindTypos, "enwiki", "A", "x", nil, "r1")

	if err := c.Delete(ctx, key); err != nil {
		t.Errorf("deleting a missing entry should not fail: %v", err)
	}
	c.Put(ctx, &Entry{Key: key, Typos: &rules.Report{Text: "x"}})
	if err := c.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("expected miss after delete, got %v", err)
	}
}
