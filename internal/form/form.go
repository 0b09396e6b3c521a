// Package form owns the live state of one rendered form: the field-keyed
// value map, submit-time validation and the change, submit and reset
// notifications. Fields are rendered through package render with bindings
// that route every interaction back into this value map.
package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/matthewbaird/formdesigner/internal/render"
	"github.com/matthewbaird/formdesigner/internal/schema"
)

var (
	ErrUnknownField = errors.New("form: unknown field")
	ErrValueShape   = errors.New("form: value does not match field type")
	ErrDisabled     = errors.New("form: form or field is disabled")
)

// State is the lifecycle position of one interactive field.
type State int

const (
	StateUnbound State = iota
	StatePristine
	StateDirty
	StateInvalid
	StateValid
)

func (s State) String() string {
	switch s {
	case StatePristine:
		return "pristine"
	case StateDirty:
		return "dirty"
	case StateInvalid:
		return "invalid"
	case StateValid:
		return "valid"
	default:
		return "unbound"
	}
}

// Options configures a Form.
type Options struct {
	InitialValues map[string]any
	Disabled      bool
	// Context is the runtime $ctx object used by display fields and
	// context-sourced options.
	Context  any
	OnChange func(values map[string]any)
	OnSubmit func(values map[string]any)
	OnReset  func()
	Renderer *render.Renderer
}

// Form is the renderer-mode orchestrator for one FormSchema. It is safe for
// concurrent use; callbacks run without the lock held.
type Form struct {
	mu       sync.Mutex
	schema   schema.FormSchema
	fields   []schema.Field
	byName   map[string]schema.Field
	defaults map[string]any
	values   map[string]any
	errors   Errors
	states   map[string]State
	opts     Options
	r        *render.Renderer
}

// New builds a form over s and seeds its values with the defaults.
func New(s schema.FormSchema, opts Options) *Form {
	f := &Form{
		schema: s,
		byName: map[string]schema.Field{},
		opts:   opts,
		r:      opts.Renderer,
	}
	if f.r == nil {
		f.r = render.New(nil)
	}
	for _, fd := range s.Fields() {
		if schema.IsPresentational(fd) {
			continue
		}
		f.fields = append(f.fields, fd)
		f.byName[fd.Name] = fd
	}
	f.defaults = Defaults(f.fields, opts.InitialValues)
	f.resetLocked()
	return f
}

// Defaults computes the starting value of every value-bearing field: the
// supplied initial value, else the declared default, else the kind's zero.
func Defaults(fields []schema.Field, initial map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, fd := range fields {
		t := schema.CanonicalType(fd)
		if schema.MustKind(t).Presentational {
			continue
		}
		if v, ok := initial[fd.Name]; ok {
			if cv, ok := conform(t, v); ok {
				out[fd.Name] = cv
				continue
			}
		}
		if v, ok := schema.DeclaredDefault(fd); ok {
			out[fd.Name] = v
			continue
		}
		out[fd.Name] = schema.Zero(t)
	}
	return out
}

// conform accepts v when it already has the kind's Go shape, and otherwise
// tries to reinterpret it through its JSON form.
func conform(t schema.Type, v any) (any, bool) {
	if schema.Conforms(t, v) {
		return v, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	cv, err := schema.Coerce(t, raw)
	if err != nil {
		return nil, false
	}
	return cv, true
}

// Schema returns the schema the form renders.
func (f *Form) Schema() schema.FormSchema {
	return f.schema
}

// Fields returns the value-bearing fields in render order.
func (f *Form) Fields() []schema.Field {
	return append([]schema.Field(nil), f.fields...)
}

// Values returns a copy of the value map.
func (f *Form) Values() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyValues(f.values)
}

// Value returns the current value of one field.
func (f *Form) Value(name string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[name]
	return v, ok
}

// Errors returns a copy of the error map from the last submit.
func (f *Form) Errors() Errors {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(Errors, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// State returns the lifecycle state of one field.
func (f *Form) State(name string) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[name]
}

// Set assigns a value to a field and fires the change notification.
func (f *Form) Set(name string, v any) error {
	f.mu.Lock()
	fd, ok := f.byName[name]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if f.opts.Disabled || fd.Disabled {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDisabled, name)
	}
	t := schema.CanonicalType(fd)
	if !schema.Conforms(t, v) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s expects a %s, got %T", ErrValueShape, name, schema.MustKind(t).Shape, v)
	}
	f.values[name] = v
	f.states[name] = StateDirty
	snapshot := copyValues(f.values)
	f.mu.Unlock()

	if f.opts.OnChange != nil {
		f.opts.OnChange(snapshot)
	}
	return nil
}

// SetJSON decodes raw into the field's value shape and sets it.
func (f *Form) SetJSON(name string, raw json.RawMessage) error {
	f.mu.Lock()
	fd, ok := f.byName[name]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	v, err := schema.Coerce(schema.CanonicalType(fd), raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValueShape, err)
	}
	return f.Set(name, v)
}

// Binding returns the value/onChange/error triple for a field. The OnChange
// callback ignores values that are rejected by Set.
func (f *Form) Binding(name string) *render.Binding {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := f.byName[name]
	return &render.Binding{
		Value:    f.values[name],
		Error:    f.errors[name],
		Disabled: f.opts.Disabled || fd.Disabled,
		OnChange: func(v any) { _ = f.Set(name, v) },
	}
}

// Apply decodes a posted form through each field's control and routes every
// decoded value through the field's binding. Disabled fields are skipped.
// Decode failures are collected and returned after all fields are applied.
func (f *Form) Apply(in render.Input) error {
	if f.opts.Disabled {
		return ErrDisabled
	}
	var errs []error
	for _, fd := range f.fields {
		if fd.Disabled {
			continue
		}
		v, err := f.r.Decode(fd, in)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrValueShape, err))
			continue
		}
		f.Binding(fd.Name).OnChange(v)
	}
	return errors.Join(errs...)
}

// Submit runs validation. With no errors the OnSubmit callback receives the
// full value map and ok is true; otherwise submission is blocked and the
// per-field errors are returned.
func (f *Form) Submit() (Errors, bool) {
	f.mu.Lock()
	errs := Validate(f.fields, f.values)
	f.errors = errs
	for _, fd := range f.fields {
		if _, bad := errs[fd.Name]; bad {
			f.states[fd.Name] = StateInvalid
		} else {
			f.states[fd.Name] = StateValid
		}
	}
	snapshot := copyValues(f.values)
	out := make(Errors, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	f.mu.Unlock()

	if len(out) > 0 {
		return out, false
	}
	if f.opts.OnSubmit != nil {
		f.opts.OnSubmit(snapshot)
	}
	return out, true
}

// Reset restores every field to its default value, clears errors and fires
// the reset notification.
func (f *Form) Reset() {
	f.mu.Lock()
	f.resetLocked()
	f.mu.Unlock()
	if f.opts.OnReset != nil {
		f.opts.OnReset()
	}
}

func (f *Form) resetLocked() {
	f.values = copyValues(f.defaults)
	f.errors = Errors{}
	f.states = make(map[string]State, len(f.fields))
	for _, fd := range f.fields {
		f.states[fd.Name] = StatePristine
	}
}

// Render writes the form in renderer mode. Items render as sections; group
// items use the two-column layout.
func (f *Form) Render(w io.Writer, opts render.FormOptions) error {
	opts.Disabled = opts.Disabled || f.opts.Disabled
	var sections []render.Section
	for _, it := range f.schema.Items {
		sec := render.Section{Name: it.Name, Group: it.Group}
		for _, fd := range it.Fields {
			var b *render.Binding
			if !schema.IsPresentational(fd) {
				b = f.Binding(fd.Name)
			}
			h, err := f.r.FieldHTML(fd, render.Options{Mode: render.ModeRenderer, Binding: b, Context: f.opts.Context})
			if err != nil {
				return err
			}
			sec.Fields = append(sec.Fields, h)
		}
		sections = append(sections, sec)
	}
	return f.r.Form(w, f.schema.Name, sections, opts)
}

func copyValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
