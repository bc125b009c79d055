package store

import (
	"context"
	"time"

	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/scheduler"
)

// Run is the stored report of fixing one page.
type Run struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Project   string            `json:"project"`
	Page      string            `json:"page"`
	Source    string            `json:"source,omitempty"`
	Checkwiki *scheduler.Result `json:"checkwiki,omitempty"`
	Typos     *rules.Report     `json:"typos,omitempty"`
}

type Store interface {
	WriteRun(ctx context.Context, run *Run, text string) (string, error)
	ReadRun(ctx context.Context, id string) (*Run, error)
	ReadText(ctx context.Context, id string) (string, error)
	List(ctx context.Context) ([]string, error)
}

// FinalText returns the text after every stage that ran, or original when
// none did.
func (r *Run) FinalText(original string) string {
	switch {
	case r.Typos != nil:
		return r.Typos.Text
	case r.Checkwiki != nil:
		return r.Checkwiki.Text
	}
	return original
}

// Changed reports whether any stage edited the text.
func (r *Run) Changed() bool {
	return (r.Checkwiki != nil && len(r.Checkwiki.Applied) > 0) || (r.Typos != nil && len(r.Typos.Applied) > 0)
}
