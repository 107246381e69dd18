package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (a *Adapter) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)
	r.Get("/d/{linkId}", a.handleDownload)

	r.Route("/api/v1/files", func(r chi.Router) {
		r.Get("/public", a.handleListPublic)

		r.Group(func(r chi.Router) {
			r.Use(a.requireOwner, a.rateLimit)

			r.Post("/", a.handleUpload)
			r.Get("/", a.handleListOwned)
			r.Get("/{id}", a.handleStat)
			r.Patch("/{id}", a.handleRename)
			r.Delete("/{id}", a.handleDelete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	return r
}
