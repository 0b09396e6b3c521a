package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/matthewbaird/formdesigner/internal/builder"
	"github.com/matthewbaird/formdesigner/internal/event"
	"github.com/matthewbaird/formdesigner/internal/form"
	"github.com/matthewbaird/formdesigner/internal/store"
	"github.com/matthewbaird/formdesigner/internal/upload"
	"github.com/matthewbaird/formdesigner/internal/workflow"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination extracts page_size and offset from query params.
func parsePagination(r *http.Request) Pagination {
	p := Pagination{Limit: 20, Offset: 0}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	return p
}

// page returns the window of items selected by p.
func page[T any](items []T, p Pagination) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

// actor returns the X-Actor header, or "anonymous".
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "anonymous"
}

// errorToHTTP maps package sentinel errors to HTTP responses.
func errorToHTTP(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, workflow.ErrNotFound),
		errors.Is(err, workflow.ErrVersionNotFound),
		errors.Is(err, builder.ErrFieldNotFound),
		errors.Is(err, upload.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrInvalidImport):
		writeError(w, http.StatusBadRequest, "INVALID_IMPORT", err.Error())
	case errors.Is(err, upload.ErrExtension):
		writeError(w, http.StatusBadRequest, "INVALID_FILE_TYPE", err.Error())
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, builder.ErrDuplicateName):
		writeError(w, http.StatusConflict, "DUPLICATE_NAME", err.Error())
	case errors.Is(err, builder.ErrInvalidName),
		errors.Is(err, builder.ErrUnknownKind),
		errors.Is(err, builder.ErrOutOfRange),
		errors.Is(err, builder.ErrNotGroupable),
		errors.Is(err, form.ErrUnknownField),
		errors.Is(err, form.ErrValueShape),
		errors.Is(err, form.ErrDisabled):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// recorder holds the event recorder shared by the command handlers.
type recorder struct {
	rec event.Recorder
}

// record records a domain event if a recorder is configured. Errors are
// logged but do not fail the request.
func (r recorder) record(req *http.Request, evt event.DomainEvent) {
	if r.rec == nil {
		return
	}
	evt.Actor = actor(req)
	if err := r.rec.Record(req.Context(), evt); err != nil {
		log.Printf("event recording failed: %v", err)
	}
}
