package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc PostcardService, verses VerseLookup, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, verses)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/postcards", func(r chi.Router) {
		r.Get("/", h.ListPostcards)
		r.Post("/", h.CreatePostcard)
		r.Get("/{id}", h.GetPostcard)
		r.Put("/{id}", h.UpdatePostcard)
		r.Delete("/{id}", h.DeletePostcard)
	})

	r.Post("/verses/lookup", h.LookupVerse)
	r.Post("/verses/fetch", h.LookupVerse)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
