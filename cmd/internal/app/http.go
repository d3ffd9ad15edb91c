package app

import (
	_ "embed"
	"net/http"

	"sockauth/cmd/internal/gateway"
	"sockauth/cmd/internal/metrics"
)

//go:embed index.html
var indexHTML []byte

func registerHTTP(mux *http.ServeMux, gw *gateway.Gateway) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/ws", gw.HandleWS)
}
