package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matthewbaird/formdesigner/internal/event"
	"github.com/matthewbaird/formdesigner/internal/form"
	"github.com/matthewbaird/formdesigner/internal/formctx"
	"github.com/matthewbaird/formdesigner/internal/render"
	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/store"
)

// Watcher notifies about events concerning one form.
type Watcher interface {
	Watch(formID string, fn func(event.DomainEvent)) (cancel func())
}

// Handler manages WebSocket filling sessions for stored forms.
type Handler struct {
	forms    *store.Service
	recorder event.Recorder
	watcher  Watcher
	renderer *render.Renderer
}

// NewHandler creates a live handler. recorder and watcher may be nil.
func NewHandler(forms *store.Service, recorder event.Recorder, watcher Watcher) *Handler {
	return &Handler{forms: forms, recorder: recorder, watcher: watcher, renderer: render.New(nil)}
}

// conn is one filling session.
type conn struct {
	h      *Handler
	ws     *websocket.Conn
	ctx    context.Context
	id     string
	stored store.StoredForm
	schema schema.FormSchema
	form   *form.Form
	reqID  string
}

// ServeHTTP loads the form named by the {id} URL parameter, upgrades to
// WebSocket and runs the message loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stored, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "form not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("live: loading form: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("live: websocket accept: %v", err)
		return
	}
	defer ws.CloseNow()

	c := &conn{
		h:      h,
		ws:     ws,
		ctx:    r.Context(),
		id:     uuid.New().String(),
		stored: stored,
		schema: schema.ToSchema(stored.Name, stored.Fields),
	}
	c.form = c.newForm(nil, nil)

	if h.watcher != nil {
		cancel := h.watcher.Watch(stored.ID, func(evt event.DomainEvent) {
			c.send(ServerMessage{Type: "form_changed", Data: FormChangedData{EventType: evt.EventType}})
		})
		defer cancel()
	}

	c.send(ServerMessage{Type: "session", Data: c.sessionData()})

	for {
		var msg ClientMessage
		if err := wsjson.Read(c.ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("live: connection closed: %v", websocket.CloseStatus(err))
			}
			return
		}
		c.reqID = msg.ID

		switch msg.Type {
		case "init":
			c.handleInit(msg)
		case "set":
			c.handleSet(msg)
		case "submit":
			if errs, ok := c.form.Submit(); !ok {
				c.send(ServerMessage{Type: "errors", RequestID: msg.ID, Data: ErrorsData{Errors: errs}})
			}
		case "reset":
			c.form.Reset()
		case "render":
			c.handleRender(msg)
		case "ping":
			c.send(ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			c.sendError(msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

// newForm builds a form instance whose callbacks push messages to the client.
func (c *conn) newForm(initial map[string]any, runtime map[string]any) *form.Form {
	var ctx any = runtime
	if runtime == nil {
		ctx = formctx.Build(c.stored.Name, c.stored.ContextInputs, c.schema.Fields()).Map()
	}
	return form.New(c.schema, form.Options{
		InitialValues: initial,
		Context:       ctx,
		Renderer:      c.h.renderer,
		OnChange: func(values map[string]any) {
			c.send(ServerMessage{Type: "change", RequestID: c.reqID, Data: ValuesData{Values: values}})
		},
		OnSubmit: func(values map[string]any) {
			c.recordSubmission(values)
			c.send(ServerMessage{Type: "submitted", RequestID: c.reqID, Data: ValuesData{Values: values}})
		},
		OnReset: func() {
			c.send(ServerMessage{Type: "reset", RequestID: c.reqID, Data: ValuesData{Values: c.form.Values()}})
		},
	})
}

func (c *conn) sessionData() SessionData {
	return SessionData{
		SessionID: c.id,
		FormID:    c.stored.ID,
		FormName:  c.stored.Name,
		Values:    c.form.Values(),
	}
}

func (c *conn) handleInit(msg ClientMessage) {
	var data InitData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.ID, "invalid_data", "invalid init data")
			return
		}
	}
	c.form = c.newForm(data.Values, data.Context)
	c.send(ServerMessage{Type: "session", RequestID: msg.ID, Data: c.sessionData()})
}

func (c *conn) handleSet(msg ClientMessage) {
	var data SetData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.Name == "" {
		c.sendError(msg.ID, "invalid_data", "invalid set data")
		return
	}
	if err := c.form.SetJSON(data.Name, data.Value); err != nil {
		code := "set_failed"
		switch {
		case errors.Is(err, form.ErrUnknownField):
			code = "unknown_field"
		case errors.Is(err, form.ErrDisabled):
			code = "disabled"
		case errors.Is(err, form.ErrValueShape):
			code = "invalid_value"
		}
		c.sendError(msg.ID, code, err.Error())
	}
}

func (c *conn) handleRender(msg ClientMessage) {
	var buf bytes.Buffer
	if err := c.form.Render(&buf, render.FormOptions{}); err != nil {
		c.sendError(msg.ID, "render_failed", err.Error())
		return
	}
	c.send(ServerMessage{Type: "html", RequestID: msg.ID, Data: HTMLData{HTML: buf.String()}})
}

func (c *conn) recordSubmission(values map[string]any) {
	if c.h.recorder == nil {
		return
	}
	evt := event.NewFormSubmitted(event.FormSubmittedPayload{
		FormID: c.stored.ID,
		Name:   c.stored.Name,
		Values: values,
	})
	evt.Actor = "live:" + c.id
	if err := c.h.recorder.Record(c.ctx, evt); err != nil {
		log.Printf("live: recording submission: %v", err)
	}
}

func (c *conn) send(msg ServerMessage) {
	if err := wsjson.Write(c.ctx, c.ws, msg); err != nil {
		log.Printf("live: write error: %v", err)
	}
}

func (c *conn) sendError(requestID, code, message string) {
	c.send(ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}
