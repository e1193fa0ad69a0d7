package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// NewServer assembles the process's single HTTP entrypoint: the
// WebSocket upgrade route, a liveness check, and an /info endpoint
// reporting connection and queue depth for operators.
func NewServer(addr string, wsHandler *Handler, manager *ConnectionManager, graphReady func() bool) *http.Server {
	mux := http.NewServeMux()

	wsHandler.RegisterRoutes(mux)
	registerHealth(mux, graphReady)
	registerInfo(mux, manager)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}
}

func registerHealth(mux *http.ServeMux, graphReady func() bool) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if graphReady != nil && !graphReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("loading"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func registerInfo(mux *http.ServeMux, manager *ConnectionManager) {
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(manager.Stats()); err != nil {
			http.Error(w, fmt.Sprintf("failed to encode stats: %v", err), http.StatusInternalServerError)
		}
	})
}
