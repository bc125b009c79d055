package cache

import (
	"context"
	"errors"
	"log/slog"
)

var _ Manager = (*Tiered)(nil)

// Tiered checks a fast tier before a slow one and warms the fast tier on a
// slow hit. Writes go to both; only a slow tier failure is returned.
type Tiered struct {
	fast Manager
	slow Manager // may be nil
}

func NewTiered(fast, slow Manager) *Tiered {
	return &Tiered{fast: fast, slow: slow}
}

func (t *Tiered) Get(ctx context.Context, key Key) (*Entry, error) {
	entry, err := t.fast.Get(ctx, key)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		slog.Warn("fast cache tier failed", "err", err)
	}
	if t.slow == nil {
		return nil, ErrCacheMiss
	}

	entry, err = t.slow.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if putErr := t.fast.Put(ctx, entry); putErr != nil {
		slog.Warn("failed to warm fast cache tier", "err", putErr)
	}
	return entry, nil
}

func (t *Tiered) Put(ctx context.Context, entry *Entry) error {
	if err := t.fast.Put(ctx, entry); err != nil {
		slog.Warn("failed to write fast cache tier", "err", err)
	}
	if t.slow == nil {
		return nil
	}
	return t.slow.Put(ctx, entry)
}

func (t *Tiered) Delete(ctx context.Context, key Key) error {
	if err := t.fast.Delete(ctx, key); err != nil {
		return err
	}
	if t.slow == nil {
		return nil
	}
	return t.slow.Delete(ctx, key)
}
