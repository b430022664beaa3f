// Package site serves the embedded browser UI: the prediction form and the
// intervention dashboard.
package site

import (
	"context"
	"net/http"
)

// Prefix is the mount point of the UI.
const Prefix = "/ui/"

// Register attaches the embedded UI routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.StripPrefix(Prefix[:len(Prefix)-1], http.FileServer(FS()))
	mux.Handle("GET "+Prefix, noCache(files))
}

// noCache keeps browsers from pinning stale assets across deploys.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}
