package server

import (
	"fmt"
	"net/http"
	"os"
)

// SiteHandler serves a generated site directory with caching disabled, so a regenerated page shows
// up on the next reload.
type SiteHandler struct {
	dir   string
	files http.Handler
}

// NewSiteHandler checks that dir is a directory and returns a handler serving it.
func NewSiteHandler(dir string) (*SiteHandler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("site directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("site directory %s is not a directory", dir)
	}
	return &SiteHandler{dir: dir, files: http.FileServer(http.Dir(dir))}, nil
}

// Routes returns the HTTP routes this handler serves.
func (h *SiteHandler) Routes() []string {
	return []string{"GET /"}
}

func (h *SiteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	h.files.ServeHTTP(w, r)
}
