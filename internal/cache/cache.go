// Package cache reuses fix results for text that has already been processed
// with the same handler selection and catalog version.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/scheduler"
)

var ErrCacheMiss = errors.New("cache miss")

// Result kinds.
const (
	KindCheckwiki = "checkwiki"
	KindTypos     = "typos"
)

// Key identifies one fix run. Title is part of the key because
// whitelists and namespace checks depend on it.
type Key struct {
	Kind     string `json:"kind"`
	Project  string `json:"project"`
	Title    string `json:"title"`
	TextHash string `json:"text_hash"`
	Handlers []int  `json:"handlers,omitempty"`
	Version  string `json:"version"`
}

// NewKey builds a key for text. Handler ids are sorted so selection order
// does not matter.
func NewKey(kind, project, title, text string, handlers []int, version string) Key {
	ids := slices.Clone(handlers)
	slices.Sort(ids)
	return Key{
		Kind:     kind,
		Project:  project,
		Title:    title,
		TextHash: HashText(text),
		Handlers: ids,
		Version:  version,
	}
}

// Hash computes the deterministic cache key.
func (k Key) Hash() string {
	b, err := json.Marshal(k)
	if err != nil {
		panic("failed to marshal cache key: " + err.Error())
	}
	h := blake3.Sum256(b)
	return hex.EncodeToString(h[:])
}

func HashText(text string) string {
	h := blake3.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Entry is a cached result. Exactly one of Checkwiki and Typos is set.
type Entry struct {
	Key       Key               `json:"key"`
	Checkwiki *scheduler.Result `json:"checkwiki,omitempty"`
	Typos     *rules.Report     `json:"typos,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

type Manager interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key Key) error
}

type memEntry struct {
	entry     *Entry
	createdAt time.Time
	expiresAt time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

var _ Manager = (*Memory)(nil)

// Memory is a bounded in-process cache with a per-entry TTL. When full the
// oldest entry is evicted.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	maxSize int
	ttl     time.Duration

	hits      int64
	misses    int64
	evictions int64
}

type Option func(*Memory)

func WithMaxSize(n int) Option {
	return func(m *Memory) {
		m.maxSize = n
	}
}

// WithTTL sets the entry lifetime. Zero keeps entries until evicted.
func WithTTL(d time.Duration) Option {
	return func(m *Memory) {
		m.ttl = d
	}
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		entries: make(map[string]*memEntry),
		maxSize: 1000,
		ttl:     time.Hour,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := key.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[h]
	if !ok {
		m.misses++
		return nil, ErrCacheMiss
	}
	if e.expired(time.Now()) {
		delete(m.entries, h)
		m.misses++
		return nil, ErrCacheMiss
	}
	m.hits++
	return e.entry, nil
}

func (m *Memory) Put(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h := entry.Key.Hash()
	now := time.Now()
	if entry.Timestamp == 0 {
		entry.Timestamp = now.Unix()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[h]; !exists && m.maxSize > 0 && len(m.entries) >= m.maxSize {
		m.evictOldest()
	}
	e := &memEntry{entry: entry, createdAt: now}
	if m.ttl > 0 {
		e.expiresAt = now.Add(m.ttl)
	}
	m.entries[h] = e
	return nil
}

func (m *Memory) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key.Hash())
	return nil
}

func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Cleanup removes expired entries and returns how many were removed.
func (m *Memory) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	n := 0
	for h, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, h)
			n++
		}
	}
	return n
}

type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Evictions int64   `json:"evictions"`
}

func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	rate := 0.0
	if total := m.hits + m.misses; total > 0 {
		rate = float64(m.hits) / float64(total)
	}
	return Stats{
		Hits:      m.hits,
		Misses:    m.misses,
		HitRate:   rate,
		Size:      len(m.entries),
		MaxSize:   m.maxSize,
		Evictions: m.evictions,
	}
}

// must hold m.mu
func (m *Memory) evictOldest() {
	var oldest string
	var at time.Time
	for h, e := range m.entries {
		if oldest == "" || e.createdAt.Before(at) {
			oldest, at = h, e.createdAt
		}
	}
	if oldest != "" {
		delete(m.entries, oldest)
		m.evictions++
	}
}
