package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

// uiFiles holds the recorder page served under /ui/.
//
//go:embed static/*
var uiFiles embed.FS

// newStaticHandler serves the recorder page. It is revalidated on every load since it
// must match the websocket message format of the running server.
func newStaticHandler() http.Handler {
	sub, err := fs.Sub(uiFiles, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}
