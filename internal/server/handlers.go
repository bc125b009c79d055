package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chris-regnier/wikifix/internal/checkwiki"
)

// HandlerInfo describes one catalog entry.
type HandlerInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Priority   string `json:"priority,omitempty"`
	NeedsFirst []int  `json:"needs_first,omitempty"`
	Decision   bool   `json:"decision,omitempty"`
	Delegated  bool   `json:"delegated,omitempty"`
	Default    bool   `json:"default"`
}

func (s *Server) info(h *checkwiki.Handler, defaults map[int]bool) HandlerInfo {
	hi := HandlerInfo{
		ID:         h.ID,
		Name:       h.Name,
		NeedsFirst: h.NeedsFirst,
		Decision:   h.NeedsDecision,
		Delegated:  h.HandledExternally,
		Default:    defaults == nil || defaults[h.ID],
	}
	if s.settings != nil {
		hi.Priority = s.settings.Priority(h.ID).String()
	}
	return hi
}

func (s *Server) defaults() map[int]bool {
	ids := s.fixer.Handlers()
	if ids == nil {
		return nil
	}
	m := make(map[int]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	defaults := s.defaults()
	all := s.fixer.Catalog().All()
	out := make([]HandlerInfo, 0, len(all))
	for _, h := range all {
		out = append(out, s.info(h, defaults))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  s.fixer.Catalog().Version(),
		"handlers": out,
	})
}

func (s *Server) handleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "handler id must be a number")
		return
	}
	h, err := s.fixer.Catalog().HandlerFor(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.info(h, s.defaults()))
}
