package httpserver

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// newStaticHandler serves files from dir. Paths that do not resolve to a file
// fall back to index.html so client-side routes load the single-page app.
func newStaticHandler(dir string) http.Handler {
	root := os.DirFS(dir)
	files := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "."
		}

		info, err := fs.Stat(root, name)
		switch {
		case err == nil && !info.IsDir():
			files.ServeHTTP(w, r)
			return
		case err == nil && info.IsDir():
			if _, err := fs.Stat(root, path.Join(name, "index.html")); err == nil {
				files.ServeHTTP(w, r)
				return
			}
		case !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrInvalid):
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if path.Ext(name) != "" {
			// Missing assets stay 404 instead of returning HTML.
			http.NotFound(w, r)
			return
		}
		http.ServeFileFS(w, r, root, "index.html")
	})
}
