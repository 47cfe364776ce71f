package http

import (
	"io/fs"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/secmon-lab/agentrun/pkg/utils/safe"
)

const indexFile = "index.html"

var (
	assetDirs = []string{"assets/", "static/", "api/", "ws/"}
	assetExts = []string{".js", ".mjs", ".css", ".map", ".ico", ".png", ".svg", ".woff", ".woff2", ".ttf", ".otf"}
)

// isAsset reports whether a missing path must be a 404 rather than a route of
// the sandbox UI.
func isAsset(name string) bool {
	for _, dir := range assetDirs {
		if strings.HasPrefix(name, dir) {
			return true
		}
	}
	return slices.Contains(assetExts, path.Ext(name))
}

// sandboxUI serves the browser build of the sandbox. Paths that are neither
// files nor assets get index.html so the client side router can take over.
func sandboxUI(fsys fs.FS) http.HandlerFunc {
	files := http.FileServer(http.FS(fsys))

	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			files.ServeHTTP(w, r)
			return
		}

		if info, err := fs.Stat(fsys, name); err == nil && !info.IsDir() {
			// bundler output is content hashed
			if strings.HasPrefix(name, "assets/") {
				w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			}
			files.ServeHTTP(w, r)
			return
		}

		if isAsset(name) {
			http.NotFound(w, r)
			return
		}

		index, err := fsys.Open(indexFile)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer safe.Close(r.Context(), index)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		safe.Copy(r.Context(), w, index)
	}
}
