// Package live serves form filling sessions over WebSocket. Each connection
// owns one renderer-mode form instance; value changes, validation results
// and resets are pushed back to the client as they happen.
package live

import "encoding/json"

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "init", "set", "submit", "reset", "render", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// InitData is the payload for "init" messages. It replaces the session's
// form instance with one seeded from Values and rendered against Context.
type InitData struct {
	Values  map[string]any `json:"values,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// SetData is the payload for "set" messages.
type SetData struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "change", "errors", "submitted", "reset", "html", "form_changed", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData describes a filling session and its starting values.
type SessionData struct {
	SessionID string         `json:"session_id"`
	FormID    string         `json:"form_id"`
	FormName  string         `json:"form_name"`
	Values    map[string]any `json:"values"`
}

// ValuesData carries the full value map.
type ValuesData struct {
	Values map[string]any `json:"values"`
}

// ErrorsData carries per-field validation messages.
type ErrorsData struct {
	Errors map[string]string `json:"errors"`
}

// HTMLData carries the renderer-mode markup of the form.
type HTMLData struct {
	HTML string `json:"html"`
}

// FormChangedData tells the client the stored form was saved or deleted.
type FormChangedData struct {
	EventType string `json:"event_type"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
