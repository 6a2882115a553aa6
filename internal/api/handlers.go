package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/postcards"
)

const maxBodyBytes = 1 << 20

// PostcardService is the subset of *postcards.Service used by the handlers.
type PostcardService interface {
	List(ctx context.Context) ([]models.Postcard, error)
	Get(ctx context.Context, id string) (*models.Postcard, error)
	Create(ctx context.Context, in postcards.Input) (*models.Postcard, error)
	Update(ctx context.Context, id string, in postcards.Input) (*models.Postcard, error)
	Delete(ctx context.Context, id string) error
}

// VerseLookup resolves a reference into verse text.
type VerseLookup interface {
	Lookup(ctx context.Context, reference string) (*models.VerseLookupResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	postcards PostcardService
	verses    VerseLookup
}

// NewHandler creates a new Handler.
func NewHandler(svc PostcardService, verses VerseLookup) *Handler {
	return &Handler{postcards: svc, verses: verses}
}

// ListPostcards handles GET /postcards.
//
//	@Summary		List all postcards, most recently updated first
//	@Tags			postcards
//	@Produce		json
//	@Success		200	{array}		Postcard
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/postcards [get]
func (h *Handler) ListPostcards(w http.ResponseWriter, r *http.Request) {
	items, err := h.postcards.List(r.Context())
	if err != nil {
		slog.Error("list postcards failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to list postcards")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetPostcard handles GET /postcards/{id}.
//
//	@Summary		Get a single postcard
//	@Tags			postcards
//	@Produce		json
//	@Param			id	path		string	true	"Postcard id"
//	@Success		200	{object}	Postcard
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/postcards/{id} [get]
func (h *Handler) GetPostcard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.postcards.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "postcard not found")
		} else {
			slog.Error("get postcard failed", slog.String("id", id), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Failed to get postcard")
		}
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePostcard handles POST /postcards.
//
//	@Summary		Create a postcard
//	@Tags			postcards
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PostcardRequest	true	"Postcard to create"
//	@Success		201		{object}	Postcard
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/postcards [post]
func (h *Handler) CreatePostcard(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePostcard(w, r)
	if !ok {
		return
	}
	p, err := h.postcards.Create(r.Context(), req.input())
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			writeError(w, http.StatusBadRequest, msgFieldsRequired)
		} else {
			slog.Error("create postcard failed", slog.String("reference", req.Reference), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Failed to create postcard")
		}
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePostcard handles PUT /postcards/{id}. Every content field is
// replaced; omitted notes are cleared.
//
//	@Summary		Replace a postcard's content
//	@Tags			postcards
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Postcard id"
//	@Param			body	body		PostcardRequest	true	"New content"
//	@Success		200		{object}	Postcard
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/postcards/{id} [put]
func (h *Handler) UpdatePostcard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := decodePostcard(w, r)
	if !ok {
		return
	}
	p, err := h.postcards.Update(r.Context(), id, req.input())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrValidation):
			writeError(w, http.StatusBadRequest, msgFieldsRequired)
		case errors.Is(err, apperr.ErrNotFound):
			writeError(w, http.StatusNotFound, "postcard not found")
		default:
			slog.Error("update postcard failed", slog.String("id", id), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Failed to update postcard")
		}
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePostcard handles DELETE /postcards/{id}.
//
//	@Summary		Delete a postcard
//	@Tags			postcards
//	@Produce		json
//	@Param			id	path		string	true	"Postcard id"
//	@Success		200	{object}	OKResponse
//	@Failure		404	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/postcards/{id} [delete]
func (h *Handler) DeletePostcard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.postcards.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "postcard not found")
		} else {
			slog.Error("delete postcard failed", slog.String("id", id), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Failed to delete postcard")
		}
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// LookupVerse handles POST /verses/lookup (and the legacy /verses/fetch).
//
//	@Summary		Look up verse text for a reference
//	@Tags			verses
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LookupRequest	true	"Reference to look up"
//	@Success		200		{object}	VerseLookupResult
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/verses/lookup [post]
func (h *Handler) LookupVerse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ref, ok := req.Reference.(string)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidReference)
		return
	}

	res, err := h.verses.Lookup(r.Context(), ref)
	if err != nil {
		var upstream *apperr.UpstreamError
		switch {
		case errors.Is(err, apperr.ErrValidation):
			writeError(w, http.StatusBadRequest, msgInvalidReference)
		case errors.As(err, &upstream) && upstream.Status >= http.StatusBadRequest:
			slog.Warn("verse upstream rejected lookup", slog.String("reference", ref), slog.Int("status", upstream.Status))
			writeError(w, upstream.Status, "Failed to fetch verse from Bible API")
		default:
			slog.Error("verse lookup failed", slog.String("reference", ref), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Unexpected error talking to Bible API")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

const (
	msgFieldsRequired   = "reference and text are required"
	msgInvalidReference = "Missing or invalid verse reference"
)

func decodePostcard(w http.ResponseWriter, r *http.Request) (PostcardRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req PostcardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	return req, true
}
