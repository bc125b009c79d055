package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/scheduler"
)

// Checkwiki returns the cached handler result for key, or runs fn and
// stores what it returns. The bool reports a cache hit. A nil manager
// always runs fn.
func Checkwiki(ctx context.Context, m Manager, key Key, fn func() (*scheduler.Result, error)) (*scheduler.Result, bool, error) {
	if m != nil {
		entry, err := m.Get(ctx, key)
		if err == nil && entry.Checkwiki != nil {
			return entry.Checkwiki, true, nil
		}
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			slog.Warn("cache lookup failed", "err", err)
		}
	}
	res, err := fn()
	if err != nil {
		return nil, false, err
	}
	if m != nil {
		if err := m.Put(ctx, &Entry{Key: key, Checkwiki: res}); err != nil {
			slog.Warn("cache store failed", "err", err)
		}
	}
	return res, false, nil
}

// Typos is Checkwiki for typo rule reports.
func Typos(ctx context.Context, m Manager, key Key, fn func() (*rules.Report, error)) (*rules.Report, bool, error) {
	if m != nil {
		entry, err := m.Get(ctx, key)
		if err == nil && entry.Typos != nil {
			return entry.Typos, true, nil
		}
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			slog.Warn("cache lookup failed", "err", err)
		}
	}
	rep, err := fn()
	if err != nil {
		return nil, false, err
	}
	if m != nil {
		if err := m.Put(ctx, &Entry{Key: key, Typos: rep}); err != nil {
			slog.Warn("cache store failed", "err", err)
		}
	}
	return rep, false, nil
}
