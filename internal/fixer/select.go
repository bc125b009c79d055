package fixer

import (
	"fmt"
	"slices"

	"github.com/chris-regnier/wikifix/internal/checkwiki"
	"github.com/chris-regnier/wikifix/internal/settings"
)

// SelectHandlers resolves the default handler selection. Explicit ids win;
// otherwise the handlers whose priority in st is one of tiers are chosen.
// Nil means the whole catalog and is returned when neither source applies.
func SelectHandlers(catalog *checkwiki.Catalog, st *settings.Settings, explicit []int, tiers []string) ([]int, error) {
	if len(explicit) > 0 {
		for _, id := range explicit {
			if catalog.Index(id) < 0 {
				return nil, fmt.Errorf("%w: %d", checkwiki.ErrUnknownHandler, id)
			}
		}
		ids := slices.Clone(explicit)
		slices.Sort(ids)
		return slices.Compact(ids), nil
	}
	if st == nil || len(tiers) == 0 {
		return nil, nil
	}

	ids := []int{}
	for _, name := range tiers {
		tier, err := settings.ParsePriority(name)
		if err != nil {
			return nil, err
		}
		for _, h := range catalog.ByPriority(st, tier) {
			ids = append(ids, h.ID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
