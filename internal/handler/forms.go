package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/formdesigner/internal/event"
	"github.com/matthewbaird/formdesigner/internal/form"
	"github.com/matthewbaird/formdesigner/internal/formctx"
	"github.com/matthewbaird/formdesigner/internal/render"
	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/store"
)

const maxFormBody = 32 << 20

// FormHandler serves stored form definitions and their rendered views.
type FormHandler struct {
	recorder
	forms    *store.Service
	renderer *render.Renderer
	live     http.Handler
}

// NewFormHandler creates a FormHandler. rec and live may be nil.
func NewFormHandler(forms *store.Service, rec event.Recorder, live http.Handler) *FormHandler {
	return &FormHandler{
		recorder: recorder{rec: rec},
		forms:    forms,
		renderer: render.New(nil),
		live:     live,
	}
}

// RegisterRoutes mounts the form endpoints on r.
func (h *FormHandler) RegisterRoutes(r chi.Router) {
	r.Route("/v1/forms", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Post("/import", h.HandleImport)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)
			r.Get("/export", h.HandleExport)
			r.Get("/schema", h.HandleSchema)
			r.Get("/context", h.HandleContext)
			r.Get("/designer", h.HandleDesigner)
			r.Get("/render", h.HandleRender)
			r.Post("/submit", h.HandleSubmit)
			if h.live != nil {
				r.Handle("/live", h.live)
			}
		})
	})
}

// formRequest is the writable part of a stored form.
type formRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Fields        []schema.Entry  `json:"fields"`
	ContextInputs json.RawMessage `json:"contextInputs,omitempty"`
}

func (req formRequest) toStored(id string) (store.StoredForm, error) {
	f := store.StoredForm{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Fields:      req.Fields,
	}
	if len(req.ContextInputs) > 0 {
		if err := json.Unmarshal(req.ContextInputs, &f.ContextInputs); err != nil {
			return store.StoredForm{}, err
		}
	}
	return f, nil
}

// HandleList returns summaries of every stored form.
// GET /v1/forms
func (h *FormHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.forms.List(r.Context())
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	p := parsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"forms":       page(list, p),
		"total_count": len(list),
	})
}

// HandleCreate stores a new form.
// POST /v1/forms
func (h *FormHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "", http.StatusCreated)
}

// HandleUpdate replaces a form in place.
// PUT /v1/forms/{id}
func (h *FormHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *FormHandler) save(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req formRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	f, err := req.toStored(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	saved, err := h.forms.Save(r.Context(), f)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	h.record(r, event.NewFormSaved(event.FormSavedPayload{
		FormID:     saved.ID,
		Name:       saved.Name,
		FieldCount: saved.FieldCount(),
		Created:    id == "",
	}))
	writeJSON(w, status, saved)
}

// HandleGet returns one stored form.
// GET /v1/forms/{id}
func (h *FormHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	f, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleDelete removes a form.
// DELETE /v1/forms/{id}
func (h *FormHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.forms.Delete(r.Context(), id)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	if !ok {
		errorToHTTP(w, store.ErrNotFound)
		return
	}
	h.record(r, event.NewFormDeleted(event.FormDeletedPayload{FormID: id}))
	w.WriteHeader(http.StatusNoContent)
}

// HandleExport downloads the form as indented JSON.
// GET /v1/forms/{id}/export
func (h *FormHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := h.forms.Export(r.Context(), id)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="form-`+id+`.json"`)
	io.WriteString(w, text)
}

// HandleImport validates and stores an exported form document. The body is
// either the raw JSON or a multipart upload in the "file" part.
// POST /v1/forms/import
func (h *FormHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, err := readImport(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	f, err := h.forms.Import(r.Context(), data)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	h.record(r, event.NewFormImported(event.FormImportedPayload{
		FormID:     f.ID,
		Name:       f.Name,
		FieldCount: f.FieldCount(),
	}))
	writeJSON(w, http.StatusCreated, f)
}

func readImport(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		defer r.Body.Close()
		return io.ReadAll(r.Body)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// HandleSchema returns the normalized FormSchema.
// GET /v1/forms/{id}/schema
func (h *FormHandler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	f, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.ToSchema(f.Name, f.Fields))
}

// HandleContext returns the derived $ctx object.
// GET /v1/forms/{id}/context
func (h *FormHandler) HandleContext(w http.ResponseWriter, r *http.Request) {
	f, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formctx.Build(f.Name, f.ContextInputs, schema.Flatten(f.Fields)))
}

// HandleDesigner returns the designer preview page.
// GET /v1/forms/{id}/designer?selected=name
func (h *FormHandler) HandleDesigner(w http.ResponseWriter, r *http.Request) {
	f, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	s := schema.ToSchema(f.Name, f.Fields)
	ctx := formctx.Build(f.Name, f.ContextInputs, s.Fields())
	writeHTML(w, http.StatusOK, f.Name, func(out io.Writer) error {
		return h.renderer.Designer(out, s, render.DesignerOptions{
			Selected: r.URL.Query().Get("selected"),
			Context:  ctx.Map(),
		})
	})
}

// HandleRender returns the fillable form page.
// GET /v1/forms/{id}/render
func (h *FormHandler) HandleRender(w http.ResponseWriter, r *http.Request) {
	f, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	fm := h.newForm(f, nil)
	writeHTML(w, http.StatusOK, f.Name, func(out io.Writer) error {
		return fm.Render(out, render.FormOptions{Action: submitPath(f.ID)})
	})
}

// HandleSubmit validates and submits one filling of the form. JSON bodies
// get a JSON answer; browser posts get the re-rendered page.
// POST /v1/forms/{id}/submit
func (h *FormHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	stored, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.submitJSON(w, r, stored)
		return
	}
	h.submitForm(w, r, stored)
}

func (h *FormHandler) newForm(f store.StoredForm, onSubmit func(map[string]any)) *form.Form {
	s := schema.ToSchema(f.Name, f.Fields)
	return form.New(s, form.Options{
		Context:  formctx.Build(f.Name, f.ContextInputs, s.Fields()).Map(),
		Renderer: h.renderer,
		OnSubmit: onSubmit,
	})
}

func (h *FormHandler) onSubmit(r *http.Request, f store.StoredForm) func(map[string]any) {
	return func(values map[string]any) {
		h.record(r, event.NewFormSubmitted(event.FormSubmittedPayload{
			FormID: f.ID,
			Name:   f.Name,
			Values: values,
		}))
	}
}

func (h *FormHandler) submitJSON(w http.ResponseWriter, r *http.Request, stored store.StoredForm) {
	var body struct {
		Values map[string]json.RawMessage `json:"values"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	fm := h.newForm(stored, h.onSubmit(r, stored))
	for name, raw := range body.Values {
		if err := fm.SetJSON(name, raw); err != nil {
			errorToHTTP(w, err)
			return
		}
	}
	if errs, ok := fm.Submit(); !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": errs,
			"values": fm.Values(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": fm.Values()})
}

func (h *FormHandler) submitForm(w http.ResponseWriter, r *http.Request, stored store.StoredForm) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := r.ParseMultipartForm(maxFormBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	submitted := false
	fm := h.newForm(stored, func(values map[string]any) {
		submitted = true
		h.onSubmit(r, stored)(values)
	})

	status := http.StatusOK
	if r.PostForm.Get("_action") != "reset" {
		if err := fm.Apply(render.InputFromMultipart(r.PostForm, r.MultipartForm)); err != nil {
			log.Printf("form %s: decoding post: %v", stored.ID, err)
		}
		if _, ok := fm.Submit(); !ok {
			status = http.StatusUnprocessableEntity
		}
	}

	writeHTML(w, status, stored.Name, func(out io.Writer) error {
		if submitted {
			io.WriteString(out, `<p class="fd-submitted">Submitted.</p>`)
		}
		return fm.Render(out, render.FormOptions{Action: submitPath(stored.ID)})
	})
}

func submitPath(id string) string {
	return "/v1/forms/" + id + "/submit"
}

// writeHTML renders a full page into a buffer first so that render errors
// still produce a clean 500.
func writeHTML(w http.ResponseWriter, status int, title string, body func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render.Page(&buf, title, body); err != nil {
		log.Printf("render %q: %v", title, err)
		writeError(w, http.StatusInternalServerError, "RENDER_FAILED", "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
