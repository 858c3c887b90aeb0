package internal

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux routes the API. The frontend is served from another origin,
// so every response carries permissive CORS headers.
func NewMux(h *Handler, reg *prometheus.Registry) http.Handler {
	mux := chi.NewMux()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(func(next http.Handler) http.Handler {
		return instrument(reg, next)
	})
	mux.Use(cors)

	mux.Get("/", h.Index)
	mux.Get("/get_popular_books", h.PopularBooks)
	mux.Get("/get_top_books", h.TopBooks)
	mux.Get("/users", h.ListUsers)
	mux.Post("/users", h.AddUser)
	mux.Delete("/users", h.DeleteUsers)
	mux.Post("/clear_cache", h.ClearCache)
	mux.Get("/clear_cache", h.ClearCache)

	mux.Get("/debug/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP)

	return mux
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
