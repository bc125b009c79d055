package checkwiki

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chris-regnier/wikifix/internal/settings"
)

// Catalog is an immutable table of handlers ordered by id.
type Catalog struct {
	handlers []*Handler
	byID     map[int]*Handler
	version  string
}

// NewCatalog builds a catalog. Ids must be positive and unique.
func NewCatalog(handlers []*Handler) (*Catalog, error) {
	c := &Catalog{byID: make(map[int]*Handler, len(handlers))}
	for _, h := range handlers {
		if h.ID <= 0 {
			return nil, fmt.Errorf("handler %q: invalid id %d", h.Name, h.ID)
		}
		if _, dup := c.byID[h.ID]; dup {
			return nil, fmt.Errorf("duplicate handler id %d", h.ID)
		}
		c.byID[h.ID] = h
		c.handlers = append(c.handlers, h)
	}
	sort.Slice(c.handlers, func(i, j int) bool { return c.handlers[i].ID < c.handlers[j].ID })

	var sig []string
	for _, h := range c.handlers {
		deps := make([]string, 0, len(h.NeedsFirst))
		for _, d := range h.NeedsFirst {
			deps = append(deps, strconv.Itoa(d))
		}
		sig = append(sig, strconv.Itoa(h.ID)+"<"+strings.Join(deps, ","))
	}
	c.version = strings.Join(sig, ";")
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in catalog. It is built once and shared.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := NewCatalog(builtins())
		if err != nil {
			panic(fmt.Sprintf("checkwiki: invalid built-in catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// HandlerFor returns the handler with the given id.
func (c *Catalog) HandlerFor(id int) (*Handler, error) {
	h, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandler, id)
	}
	return h, nil
}

// All returns every handler in id order.
func (c *Catalog) All() []*Handler {
	return append([]*Handler(nil), c.handlers...)
}

// ByPriority returns, in id order, the handlers whose tier in s is tier.
func (c *Catalog) ByPriority(s *settings.Settings, tier settings.Priority) []*Handler {
	var out []*Handler
	for _, h := range c.handlers {
		if s.Priority(h.ID) == tier {
			out = append(out, h)
		}
	}
	return out
}

// IDs returns the handler ids in catalog order.
func (c *Catalog) IDs() []int {
	ids := make([]int, len(c.handlers))
	for i, h := range c.handlers {
		ids[i] = h.ID
	}
	return ids
}

// Index returns the position of id in catalog order, or -1.
func (c *Catalog) Index(id int) int {
	i := sort.Search(len(c.handlers), func(i int) bool { return c.handlers[i].ID >= id })
	if i < len(c.handlers) && c.handlers[i].ID == id {
		return i
	}
	return -1
}

func (c *Catalog) Len() int { return len(c.handlers) }

// Version identifies the handler set and its dependencies; results cached
// under one version are not reused under another.
func (c *Catalog) Version() string { return c.version }

func builtins() []*Handler {
	var hs []*Handler
	hs = append(hs, headerHandlers()...)
	hs = append(hs, referenceHandlers()...)
	hs = append(hs, linkHandlers()...)
	hs = append(hs, categoryHandlers()...)
	hs = append(hs, tagHandlers()...)
	hs = append(hs, entityHandlers()...)
	hs = append(hs, miscHandlers()...)
	return hs
}
