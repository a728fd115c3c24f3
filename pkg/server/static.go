package server

import (
	"net/http"
	"os"
	"path/filepath"
)

// handleStatic serves the GUI assets. Paths that do not name an existing
// file fall back to index.html, so the GUI's client-side routes work on
// direct navigation.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.config.StaticRoot == "" {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.config.StaticRoot, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		path = filepath.Join(s.config.StaticRoot, "index.html")
	}
	http.ServeFile(w, r, path)
}
