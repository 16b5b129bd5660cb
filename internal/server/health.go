package server

import (
	"net/http"
	"strings"

	"github.com/eugener/blogsync/internal/store"
)

var (
	okBody       = []byte("ok")
	notReadyBody = []byte("not ready")
	plainCT      = []string{"text/plain"}
)

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			w.Header()["Content-Type"] = plainCT
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write(notReadyBody)
			return
		}
	}
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

type cacheView struct {
	Entries int      `json:"entries"`
	Tag     string   `json:"tag,omitempty"`
	Keys    []string `json:"keys,omitempty"`
}

// handleCache reports the entry count and, with ?tag=Type:ID, the keys
// carrying that tag.
func (s *server) handleCache(w http.ResponseWriter, r *http.Request) {
	view := cacheView{Entries: s.deps.Cache.Len()}
	if raw := r.URL.Query().Get("tag"); raw != "" {
		typ, id, ok := strings.Cut(raw, ":")
		if !ok || typ == "" || id == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "tag must be Type:ID"})
			return
		}
		view.Tag = raw
		for _, k := range s.deps.Cache.Keys(store.Tag{Type: typ, ID: id}) {
			view.Keys = append(view.Keys, k.String())
		}
	}
	writeJSON(w, http.StatusOK, view)
}
