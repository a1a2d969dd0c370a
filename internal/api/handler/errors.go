// Package handler contains the dashboard and admin API endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/centaurhq/centaur/internal/api/response"
	"github.com/centaurhq/centaur/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// histogramWindow is how far back the hourly occurrence histogram reaches.
const histogramWindow = 7 * 24 * time.Hour

// NewListErrorsHandler returns the handler for GET /api/v1/errors. Results
// are ordered most-recently-seen first and can be narrowed to errors seen
// by a specific acting user.
func NewListErrorsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := store.ErrorFilter{
			UserEmail: q.Get("user_email"),
			Level:     q.Get("level"),
			Page:      intParam(q.Get("page"), 1),
			Limit:     intParam(q.Get("limit"), 20),
		}
		if v := q.Get("resolved"); v != "" {
			resolved, err := strconv.ParseBool(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"resolved must be true or false", nil)
				return
			}
			filter.Resolved = &resolved
		}

		errs, total, err := s.ListErrors(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Collection(w, errs, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// NewGetErrorHandler returns the handler for GET /api/v1/errors/{errorID}:
// the error group, a page of its events, and an hourly occurrence
// histogram.
func NewGetErrorHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errorID, ok := parseErrorID(w, r)
		if !ok {
			return
		}

		errRow, err := s.GetError(r.Context(), errorID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Error not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		q := r.URL.Query()
		page := intParam(q.Get("page"), 1)
		limit := intParam(q.Get("limit"), 20)

		events, total, err := s.ListEvents(r.Context(), errorID, page, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		histogram, err := s.EventHistogram(r.Context(), errorID, time.Now().UTC().Add(-histogramWindow))
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Collection(w, map[string]any{
			"error":     errRow,
			"events":    events,
			"histogram": histogram,
		}, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewResolveErrorHandler returns the handler for PATCH /api/v1/errors/{errorID},
// toggling the user-controlled resolved flag.
func NewResolveErrorHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errorID, ok := parseErrorID(w, r)
		if !ok {
			return
		}

		var req struct {
			IsResolved *bool `json:"is_resolved"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsResolved == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"is_resolved is required", nil)
			return
		}

		errRow, err := s.SetErrorResolved(r.Context(), errorID, *req.IsResolved)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Error not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, errRow)
	}
}

func parseErrorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "errorID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"errorID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func intParam(v string, defaultVal int) int {
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}
