//go:build !ui_embed

package ui

import "net/http"

// Handler redirects to the API docs when no dashboard is embedded.
func Handler() (http.Handler, error) {
	return http.RedirectHandler("/docs", http.StatusFound), nil
}
