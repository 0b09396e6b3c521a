// Package builder holds the editing state of one form in the designer: the
// ordered field list with its groups, the current selection, the declared
// context inputs and the unsaved-changes flag.
//
// A Builder is not safe for concurrent use; Session serializes access.
package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/matthewbaird/formdesigner/internal/fieldname"
	"github.com/matthewbaird/formdesigner/internal/formctx"
	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
)

var (
	ErrFieldNotFound = errors.New("builder: field not found")
	ErrDuplicateName = errors.New("builder: field name already in use")
	ErrInvalidName   = errors.New("builder: invalid field name")
	ErrUnknownKind   = errors.New("builder: unknown field kind")
	ErrOutOfRange    = errors.New("builder: index out of range")
	ErrNotGroupable  = errors.New("builder: only standalone fields can be grouped")
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Patch is a partial field update keyed by JSON property name. A null value
// clears the property. The id property cannot be patched.
type Patch map[string]json.RawMessage

// Builder is the editing state of one form.
type Builder struct {
	formID   string
	name     string
	entries  []schema.Entry
	inputs   []types.ContextInput
	selected string
	dirty    bool
	// seq is the highest output_<n> ever handed out, so deleted names are
	// not reused within a session.
	seq int
}

// New creates an empty builder for a new form.
func New(name string) *Builder {
	if name == "" {
		name = "Untitled Form"
	}
	return &Builder{name: name}
}

// Load creates a builder over an existing form.
func Load(formID, name string, entries []schema.Entry, inputs []types.ContextInput) *Builder {
	b := &Builder{
		formID:  formID,
		name:    name,
		entries: schema.CloneEntries(entries),
		inputs:  append([]types.ContextInput(nil), inputs...),
	}
	b.seq = fieldname.MaxNumber(b.Fields())
	return b
}

// FormID returns the id of the persisted form, or "" before the first save.
func (b *Builder) FormID() string { return b.formID }

// Name returns the form name.
func (b *Builder) Name() string { return b.name }

// Dirty reports whether there are unsaved changes.
func (b *Builder) Dirty() bool { return b.dirty }

// SetName renames the form.
func (b *Builder) SetName(name string) {
	if name != b.name {
		b.name = name
		b.dirty = true
	}
}

// MarkSaved records a successful save under id and clears the dirty flag.
func (b *Builder) MarkSaved(id string) {
	b.formID = id
	b.dirty = false
}

// Entries returns a deep copy of the field list.
func (b *Builder) Entries() []schema.Entry {
	out := schema.CloneEntries(b.entries)
	if out == nil {
		out = []schema.Entry{}
	}
	return out
}

// Fields returns every field, group members included, in document order.
func (b *Builder) Fields() []schema.Field {
	return schema.Flatten(b.entries)
}

// Inputs returns the declared context inputs.
func (b *Builder) Inputs() []types.ContextInput {
	return append([]types.ContextInput{}, b.inputs...)
}

// SetInputs replaces the declared context inputs.
func (b *Builder) SetInputs(inputs []types.ContextInput) {
	b.inputs = append([]types.ContextInput(nil), inputs...)
	b.dirty = true
}

// Context returns the derived $ctx object for the current state.
func (b *Builder) Context() formctx.Context {
	return formctx.Build(b.name, b.inputs, b.Fields())
}

// Schema returns the normalized render schema for the current state.
func (b *Builder) Schema() schema.FormSchema {
	return schema.ToSchema(b.name, b.entries)
}

// NewField creates a field of the given palette kind with a fresh id and a
// generated name. It is not added to the form.
func (b *Builder) NewField(kind string) (schema.Field, error) {
	t, ok := schema.ResolveType(kind)
	if !ok {
		return schema.Field{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	k := schema.MustKind(t)
	component := k.Component
	if component == "" {
		component = string(t)
	}
	name, n := fieldname.NextAfter(b.Fields(), b.seq)
	b.seq = n
	f := schema.Field{
		ID:       uuid.New().String(),
		Type:     component,
		Variant:  component,
		Name:     name,
		Label:    k.Label,
		RowIndex: len(b.entries),
	}
	if t == schema.Display {
		f.Variant = schema.VariantParagraph
		f.Label = ""
	}
	return f, nil
}

// Add appends a new field of the given kind and selects it.
func (b *Builder) Add(kind string) (schema.Field, error) {
	return b.Insert(kind, len(b.entries))
}

// Insert places a new field of the given kind at index and selects it.
func (b *Builder) Insert(kind string, index int) (schema.Field, error) {
	if index < 0 || index > len(b.entries) {
		return schema.Field{}, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	f, err := b.NewField(kind)
	if err != nil {
		return schema.Field{}, err
	}
	f.RowIndex = index
	b.entries = append(b.entries, schema.Entry{})
	copy(b.entries[index+1:], b.entries[index:])
	b.entries[index] = schema.Single(f)
	b.selected = f.ID
	b.dirty = true
	return f, nil
}

// Move repositions a top-level entry.
func (b *Builder) Move(from, to int) error {
	n := len(b.entries)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d to %d", ErrOutOfRange, from, to)
	}
	if from == to {
		return nil
	}
	e := b.entries[from]
	b.entries = append(b.entries[:from], b.entries[from+1:]...)
	b.entries = append(b.entries[:to], append([]schema.Entry{e}, b.entries[to:]...)...)
	b.dirty = true
	return nil
}

// locate returns the entry index and, for group members, the member index
// (-1 for standalone fields) of the field with the given id.
func (b *Builder) locate(id string) (int, int, bool) {
	for i, e := range b.entries {
		if e.Field != nil {
			if e.Field.ID == id {
				return i, -1, true
			}
			continue
		}
		for j, f := range e.Group {
			if f.ID == id {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// Field returns the field with the given id.
func (b *Builder) Field(id string) (schema.Field, bool) {
	i, j, ok := b.locate(id)
	if !ok {
		return schema.Field{}, false
	}
	if j < 0 {
		return b.entries[i].Field.Clone(), true
	}
	return b.entries[i].Group[j].Clone(), true
}

// Update merges patch into the field with the given id, whether it stands
// alone or sits in a group.
func (b *Builder) Update(id string, patch Patch) (schema.Field, error) {
	i, j, ok := b.locate(id)
	if !ok {
		return schema.Field{}, fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	var cur schema.Field
	if j < 0 {
		cur = *b.entries[i].Field
	} else {
		cur = b.entries[i].Group[j]
	}

	next, err := applyPatch(cur, patch)
	if err != nil {
		return schema.Field{}, err
	}
	if next.Name != cur.Name {
		if err := b.checkName(id, next.Name); err != nil {
			return schema.Field{}, err
		}
	}

	if j < 0 {
		b.entries[i].Field = &next
	} else {
		b.entries[i].Group[j] = next
	}
	b.dirty = true
	return next.Clone(), nil
}

// Rename changes the machine name of a field.
func (b *Builder) Rename(id, name string) (schema.Field, error) {
	raw, _ := json.Marshal(name)
	return b.Update(id, Patch{"name": raw})
}

func (b *Builder) checkName(id, name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, f := range b.Fields() {
		if f.ID != id && f.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	if n, ok := fieldname.Number(name); ok && n > b.seq {
		b.seq = n
	}
	return nil
}

func applyPatch(f schema.Field, patch Patch) (schema.Field, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return schema.Field{}, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return schema.Field{}, err
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		if string(v) == "null" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return schema.Field{}, err
	}
	var next schema.Field
	if err := json.Unmarshal(out, &next); err != nil {
		return schema.Field{}, fmt.Errorf("builder: invalid patch: %w", err)
	}
	next.ID = f.ID
	return next, nil
}

// Delete removes the field with the given id. A group left without members
// is removed; a group left with one member stays a group.
func (b *Builder) Delete(id string) error {
	i, j, ok := b.locate(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	if j < 0 {
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
	} else {
		g := b.entries[i].Group
		g = append(g[:j:j], g[j+1:]...)
		if len(g) == 0 {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
		} else {
			b.entries[i].Group = g
		}
	}
	if b.selected == id {
		b.selected = ""
	}
	b.dirty = true
	return nil
}

// Group combines standalone fields into one group placed where the first of
// them stood. Fields keep the order given by ids.
func (b *Builder) Group(ids ...string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no fields", ErrNotGroupable)
	}
	members := make([]schema.Field, 0, len(ids))
	pos := -1
	remove := map[int]bool{}
	for _, id := range ids {
		i, j, ok := b.locate(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
		}
		if j >= 0 || remove[i] {
			return fmt.Errorf("%w: %s", ErrNotGroupable, id)
		}
		remove[i] = true
		members = append(members, *b.entries[i].Field)
		if pos < 0 || i < pos {
			pos = i
		}
	}
	next := make([]schema.Entry, 0, len(b.entries)-len(ids)+1)
	for i, e := range b.entries {
		if i == pos {
			next = append(next, schema.NewGroup(members...))
		}
		if remove[i] {
			continue
		}
		next = append(next, e)
	}
	b.entries = next
	b.dirty = true
	return nil
}

// Ungroup replaces the group at index with its members as standalone fields.
func (b *Builder) Ungroup(index int) error {
	if index < 0 || index >= len(b.entries) || !b.entries[index].IsGroup() {
		return fmt.Errorf("%w: no group at %d", ErrOutOfRange, index)
	}
	members := b.entries[index].Group
	singles := make([]schema.Entry, len(members))
	for i, f := range members {
		singles[i] = schema.Single(f)
	}
	rest := append([]schema.Entry{}, b.entries[index+1:]...)
	b.entries = append(append(b.entries[:index], singles...), rest...)
	b.dirty = true
	return nil
}

// Select marks the field with the given id as selected. An empty id clears
// the selection.
func (b *Builder) Select(id string) error {
	if id == "" {
		b.selected = ""
		return nil
	}
	if _, _, ok := b.locate(id); !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	b.selected = id
	return nil
}

// SelectByName selects the field with the given machine name.
func (b *Builder) SelectByName(name string) error {
	for _, f := range b.Fields() {
		if f.Name == name {
			b.selected = f.ID
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrFieldNotFound, name)
}

// Selected returns the selected field.
func (b *Builder) Selected() (schema.Field, bool) {
	if b.selected == "" {
		return schema.Field{}, false
	}
	return b.Field(b.selected)
}
