// Package ui serves the dashboard assets.
package ui

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// Dir serves a dashboard build from disk, for development and for
// operators who ship their own frontend.
func Dir(dir string) (http.Handler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(dir + " is not a directory")
	}
	return spa(os.DirFS(dir)), nil
}

// spa serves files from fsys and falls back to index.html for
// extensionless paths so client-side routes survive a reload.
func spa(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean(r.URL.Path)

		if f, err := fsys.Open(strings.TrimPrefix(p, "/")); err == nil {
			stat, statErr := f.Stat()
			_ = f.Close()
			if statErr == nil && !stat.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		if !strings.Contains(path.Base(p), ".") {
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})
}
