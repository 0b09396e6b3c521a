package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/formdesigner/internal/builder"
	"github.com/matthewbaird/formdesigner/internal/event"
	"github.com/matthewbaird/formdesigner/internal/render"
	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/store"
	"github.com/matthewbaird/formdesigner/internal/types"
)

// BuilderHandler exposes designer sessions over HTTP. Every request runs
// against one session's builder through Session.Do.
type BuilderHandler struct {
	recorder
	sessions *builder.Manager
	forms    *store.Service
	renderer *render.Renderer
}

// NewBuilderHandler creates a BuilderHandler. rec may be nil.
func NewBuilderHandler(sessions *builder.Manager, forms *store.Service, rec event.Recorder) *BuilderHandler {
	return &BuilderHandler{
		recorder: recorder{rec: rec},
		sessions: sessions,
		forms:    forms,
		renderer: render.New(nil),
	}
}

// RegisterRoutes mounts the builder endpoints on r.
func (h *BuilderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/v1/builder/sessions", func(r chi.Router) {
		r.Post("/", h.HandleOpen)
		r.Route("/{sid}", func(r chi.Router) {
			r.Get("/", h.HandleState)
			r.Delete("/", h.HandleClose)
			r.Put("/name", h.HandleSetName)
			r.Post("/fields", h.HandleAddField)
			r.Patch("/fields/{fid}", h.HandleUpdateField)
			r.Delete("/fields/{fid}", h.HandleDeleteField)
			r.Post("/move", h.HandleMove)
			r.Post("/group", h.HandleGroup)
			r.Post("/ungroup", h.HandleUngroup)
			r.Post("/select", h.HandleSelect)
			r.Put("/inputs", h.HandleSetInputs)
			r.Get("/json", h.HandleJSONView)
			r.Get("/preview", h.HandlePreview)
			r.Post("/save", h.HandleSave)
		})
	})
}

// sessionState is the JSON view of an open session.
type sessionState struct {
	SessionID     string               `json:"sessionId"`
	FormID        string               `json:"formId,omitempty"`
	Name          string               `json:"name"`
	Dirty         bool                 `json:"dirty"`
	Fields        []schema.Entry       `json:"fields"`
	ContextInputs []types.ContextInput `json:"contextInputs"`
	Selected      *schema.Field        `json:"selected,omitempty"`
	Context       any                  `json:"context"`
}

func stateOf(id string, b *builder.Builder) sessionState {
	st := sessionState{
		SessionID:     id,
		FormID:        b.FormID(),
		Name:          b.Name(),
		Dirty:         b.Dirty(),
		Fields:        b.Entries(),
		ContextInputs: b.Inputs(),
		Context:       b.Context(),
	}
	if st.Fields == nil {
		st.Fields = []schema.Entry{}
	}
	if st.ContextInputs == nil {
		st.ContextInputs = []types.ContextInput{}
	}
	if f, ok := b.Selected(); ok {
		st.Selected = &f
	}
	return st
}

// session runs fn on the session named by {sid} and answers with the
// resulting state, or the error fn returned.
func (h *BuilderHandler) session(w http.ResponseWriter, r *http.Request, status int, fn func(b *builder.Builder) error) {
	s := h.sessions.Get(chi.URLParam(r, "sid"))
	if s == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "builder session not found")
		return
	}
	var st sessionState
	err := s.Do(func(b *builder.Builder) error {
		if err := fn(b); err != nil {
			return err
		}
		st = stateOf(s.ID, b)
		return nil
	})
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, status, st)
}

// HandleOpen starts a session, empty or over a stored form.
// POST /v1/builder/sessions
func (h *BuilderHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FormID string `json:"formId"`
		Name   string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
	}
	b := builder.New(req.Name)
	if req.FormID != "" {
		f, err := h.forms.Get(r.Context(), req.FormID)
		if err != nil {
			errorToHTTP(w, err)
			return
		}
		b = builder.Load(f.ID, f.Name, f.Fields, f.ContextInputs)
	}
	s := h.sessions.Open(b)
	var st sessionState
	s.Do(func(b *builder.Builder) error {
		st = stateOf(s.ID, b)
		return nil
	})
	writeJSON(w, http.StatusCreated, st)
}

// HandleState returns the session state.
// GET /v1/builder/sessions/{sid}
func (h *BuilderHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	h.session(w, r, http.StatusOK, func(*builder.Builder) error { return nil })
}

// HandleClose discards a session.
// DELETE /v1/builder/sessions/{sid}
func (h *BuilderHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if h.sessions.Get(sid) == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "builder session not found")
		return
	}
	h.sessions.Remove(sid)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetName renames the form being edited.
// PUT /v1/builder/sessions/{sid}/name
func (h *BuilderHandler) HandleSetName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	h.session(w, r, http.StatusOK, func(b *builder.Builder) error {
		b.SetName(req.Name)
		return nil
	})
}

// HandleAddField appends a field of the given kind, or inserts it at index.
// POST /v1/builder/sessions/{sid}/fields
func (h *BuilderHandler) HandleAddField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind  string `json:"kind"`
		Index *int   `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	h.session(w, r, http.StatusCreated, func(b *builder.Builder) error {
		if req.Index != nil {
			_, err := b.Insert(req.Kind, *req.Index)
			return err
		}
		_, err := b.Add(req.Kind)
		return err
	})
}

// HandleUpdateField merges a partial patch into one field.
// PATCH /v1/builder/sessions/{sid}/fields/{fid}
func (h *BuilderHandler) HandleUpdateField(w http.ResponseWriter, r *http.Request) {
	var patch builder.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	h.session(w, r, http.StatusOK, func(b *builder.Builder) error {
		_, err := b.Update(chi.URLParam(r, "fid"), patch)
		return err
	})
}

// HandleDeleteField removes one field.
// DELETE /v1/builder/sessions/{sid}/fields/{fid}
func (h *BuilderHandler) HandleDeleteField(w http.ResponseWriter, r *http.Request) {
	h.session(w, r, http.StatusOK, func(b *builder.Builder) error {
		return b.Delete(chi.URLParam(r, "fid"))
	})
}

// HandleMove reorders the top-level entries.
// POST /v1/builder/sessions/{sid}/move
func (h *BuilderHandler) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	h.session(w, r, http.StatusOK, func(b *builder.Builder) error {
		return b.Move(req.From, req.To)
	})
}

// HandleGroup joins standalone fields into one group.
// POST /v1/builder/sessions/{sid}/group
func (h *BuilderHandler) HandleGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	h.session(w, r, http.StatusOK, func(b *builder.Builder) error {
		return b.Group(req.IDs...)
	})
}

// HandleUngroup splits the group at index back into standalone fields.
// POST /v1/builder/sessions/{sid}/ungroup
func (h *BuilderHandler) HandleUngroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	h.session(w, r, http.StatusOK, func(b *builder.Builder) error {
		return b.Ungroup(req.Index)
	})
}

// HandleSelect selects a field by id, by name or by JSON view line. An
// empty request object clears the selection.
// POST /v1/builder/sessions/{sid}/select
func (h *BuilderHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Line int    `json:"line"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	h.session(w, r, http.StatusOK, func(b *builder.Builder) error {
		switch {
		case req.Line > 0:
			_, err := b.SelectLine(req.Line)
			return err
		case req.Name != "":
			return b.SelectByName(req.Name)
		default:
			return b.Select(req.ID)
		}
	})
}

// HandleSetInputs replaces the context input declarations.
// PUT /v1/builder/sessions/{sid}/inputs
func (h *BuilderHandler) HandleSetInputs(w http.ResponseWriter, r *http.Request) {
	var inputs []types.ContextInput
	if err := decodeJSON(r, &inputs); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	h.session(w, r, http.StatusOK, func(b *builder.Builder) error {
		b.SetInputs(inputs)
		return nil
	})
}

// HandleJSONView returns the field list as indented JSON with its line index.
// GET /v1/builder/sessions/{sid}/json
func (h *BuilderHandler) HandleJSONView(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Get(chi.URLParam(r, "sid"))
	if s == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "builder session not found")
		return
	}
	var view builder.JSONView
	err := s.Do(func(b *builder.Builder) error {
		var err error
		view, err = b.View()
		return err
	})
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandlePreview returns the designer preview of the form being edited.
// GET /v1/builder/sessions/{sid}/preview
func (h *BuilderHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Get(chi.URLParam(r, "sid"))
	if s == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "builder session not found")
		return
	}
	var (
		title string
		opts  render.DesignerOptions
		fs    schema.FormSchema
	)
	s.Do(func(b *builder.Builder) error {
		title = b.Name()
		fs = b.Schema()
		opts.Context = b.Context().Map()
		if f, ok := b.Selected(); ok {
			opts.Selected = f.Name
		}
		return nil
	})
	writeHTML(w, http.StatusOK, title, func(out io.Writer) error {
		return h.renderer.Designer(out, fs, opts)
	})
}

// HandleSave persists the session's form. The first save inserts it; later
// saves update it in place and keep its description.
// POST /v1/builder/sessions/{sid}/save
func (h *BuilderHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Get(chi.URLParam(r, "sid"))
	if s == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "builder session not found")
		return
	}
	var saved store.StoredForm
	var created bool
	err := s.Do(func(b *builder.Builder) error {
		f := store.StoredForm{
			ID:            b.FormID(),
			Name:          b.Name(),
			Fields:        b.Entries(),
			ContextInputs: b.Inputs(),
		}
		created = f.ID == ""
		if !created {
			existing, err := h.forms.Get(r.Context(), f.ID)
			if err != nil {
				return err
			}
			f.Description = existing.Description
		}
		var err error
		saved, err = h.forms.Save(r.Context(), f)
		if err != nil {
			return err
		}
		b.MarkSaved(saved.ID)
		return nil
	})
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	h.record(r, event.NewFormSaved(event.FormSavedPayload{
		FormID:     saved.ID,
		Name:       saved.Name,
		FieldCount: saved.FieldCount(),
		Created:    created,
	}))
	writeJSON(w, http.StatusOK, saved)
}
