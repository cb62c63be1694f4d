//go:build !ui_embed

package ui

import (
	"net/http"
	"testing"
)

func TestHandlerRedirectsToDocs(t *testing.T) {
	h, err := Handler()
	if err != nil {
		t.Fatal(err)
	}
	rec := get(t, h, "/")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/docs" {
		t.Errorf("Location = %q, want /docs", loc)
	}
}
