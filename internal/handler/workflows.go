package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/formdesigner/internal/event"
	"github.com/matthewbaird/formdesigner/internal/upload"
	"github.com/matthewbaird/formdesigner/internal/workflow"
)

// multipartOverhead is the slack allowed on top of the file size limit for
// the metadata parts of an upload request.
const multipartOverhead = 1 << 20

// WorkflowHandler serves workflows and their versioned files.
type WorkflowHandler struct {
	recorder
	svc      *workflow.Service
	maxBytes int64
}

// NewWorkflowHandler creates a WorkflowHandler. maxBytes bounds one uploaded
// file; zero uses upload.DefaultMaxBytes.
func NewWorkflowHandler(svc *workflow.Service, rec event.Recorder, maxBytes int64) *WorkflowHandler {
	if maxBytes <= 0 {
		maxBytes = upload.DefaultMaxBytes
	}
	return &WorkflowHandler{recorder: recorder{rec: rec}, svc: svc, maxBytes: maxBytes}
}

// RegisterRoutes mounts the workflow endpoints on r.
func (h *WorkflowHandler) RegisterRoutes(r chi.Router) {
	r.Route("/v1/workflows", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleRemove)
			r.Put("/tags", h.HandleSetTags)
			r.Post("/versions", h.HandleUploadVersion)
			r.Post("/versions/{vid}/activate", h.HandleActivate)
		})
	})
}

// HandleList returns every workflow.
// GET /v1/workflows
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Store.List(r.Context())
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	p := parsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows":   page(list, p),
		"total_count": len(list),
	})
}

// HandleCreate creates an empty workflow.
// POST /v1/workflows
func (h *WorkflowHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "name is required")
		return
	}
	wf, err := h.svc.Store.Create(r.Context(), req.Name, req.Description, req.Tags)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	h.record(r, event.NewWorkflowCreated(event.WorkflowPayload{
		WorkflowID:  wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Tags:        wf.Tags,
	}))
	writeJSON(w, http.StatusCreated, wf)
}

// HandleGet returns one workflow with its versions, newest first.
// GET /v1/workflows/{id}
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wf, err := h.svc.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// HandleRemove deletes a workflow and its uploaded files.
// DELETE /v1/workflows/{id}
func (h *WorkflowHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := h.svc.Store.Get(r.Context(), id)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	if _, err := h.svc.Remove(r.Context(), id); err != nil {
		errorToHTTP(w, err)
		return
	}
	h.record(r, event.NewWorkflowRemoved(event.WorkflowPayload{WorkflowID: id, Name: wf.Name}))
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetTags replaces the workflow's tags.
// PUT /v1/workflows/{id}/tags
func (h *WorkflowHandler) HandleSetTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	wf, err := h.svc.Store.SetTags(r.Context(), chi.URLParam(r, "id"), req.Tags)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	h.record(r, event.NewWorkflowTagsUpdated(event.WorkflowPayload{
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Tags:       wf.Tags,
	}))
	writeJSON(w, http.StatusOK, wf)
}

// HandleUploadVersion stores an uploaded workflow file as a new version.
// The multipart body carries the file part plus optional label, author,
// changeDescription and active fields.
// POST /v1/workflows/{id}/versions
func (h *WorkflowHandler) HandleUploadVersion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			errorToHTTP(w, upload.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "file part is required")
		return
	}
	defer file.Close()

	active, _ := strconv.ParseBool(r.FormValue("active"))
	in := workflow.VersionInput{
		Label:             r.FormValue("label"),
		Author:            r.FormValue("author"),
		ChangeDescription: r.FormValue("changeDescription"),
		FileType:          header.Header.Get("Content-Type"),
		Active:            active,
	}
	if in.Author == "" {
		in.Author = r.Header.Get("X-Actor")
	}

	wf, err := h.svc.UploadVersion(r.Context(), chi.URLParam(r, "id"), header.Filename, file, in)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	v := wf.Versions[0]
	h.record(r, event.NewWorkflowVersionAdded(event.WorkflowVersionPayload{
		WorkflowID:    wf.ID,
		VersionID:     v.ID,
		Label:         v.Label,
		FileName:      v.FileName,
		FileSizeBytes: v.FileSizeBytes,
		Active:        v.IsActive,
	}))
	writeJSON(w, http.StatusCreated, wf)
}

// HandleActivate makes one version the active one.
// POST /v1/workflows/{id}/versions/{vid}/activate
func (h *WorkflowHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")
	wf, err := h.svc.Store.ActivateVersion(r.Context(), chi.URLParam(r, "id"), vid)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	v, _ := wf.Active()
	h.record(r, event.NewWorkflowVersionActivated(event.WorkflowVersionPayload{
		WorkflowID: wf.ID,
		VersionID:  vid,
		Label:      v.Label,
		FileName:   v.FileName,
		Active:     true,
	}))
	writeJSON(w, http.StatusOK, wf)
}
