//go:build ui_embed

package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

// Build with: go build -tags ui_embed .

//go:embed all:dist
var distFS embed.FS

// Handler serves the embedded dashboard.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		return nil, err
	}
	return spa(fsys), nil
}
