package builder

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAdd(t *testing.T, b *Builder, kind string) schema.Field {
	t.Helper()
	f, err := b.Add(kind)
	require.NoError(t, err)
	return f
}

func assertUniqueNames(t *testing.T, b *Builder) {
	t.Helper()
	seen := map[string]bool{}
	for _, f := range b.Fields() {
		if seen[f.Name] {
			t.Fatalf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
	}
}

func TestAddGeneratesNamesAndSelects(t *testing.T) {
	b := New("Signup")
	a := mustAdd(t, b, "input")
	c := mustAdd(t, b, "select")

	assert.Equal(t, "output_1", a.Name)
	assert.Equal(t, "output_2", c.Name)
	assert.Equal(t, "input", a.Type)
	assert.Equal(t, "Text Input", a.Label)
	assert.NotEmpty(t, a.ID)
	assert.True(t, b.Dirty())

	sel, ok := b.Selected()
	require.True(t, ok)
	assert.Equal(t, c.ID, sel.ID)

	_, err := b.Add("hologram")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNamesStayUniqueAcrossOperations(t *testing.T) {
	b := New("F")
	mustAdd(t, b, "input")
	mustAdd(t, b, "text-block")
	third := mustAdd(t, b, "input")
	assertUniqueNames(t, b)

	require.NoError(t, b.Delete(third.ID))
	again := mustAdd(t, b, "number")
	assert.NotEqual(t, third.Name, again.Name, "deleted names are not reused")
	assertUniqueNames(t, b)

	_, err := b.Rename(again.ID, "output_1")
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = b.Rename(again.ID, "bad name")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = b.Rename(again.ID, "output_40")
	require.NoError(t, err)
	next := mustAdd(t, b, "input")
	assert.Equal(t, "output_41", next.Name)
	assertUniqueNames(t, b)
}

func TestInsertAndMove(t *testing.T) {
	b := New("F")
	a := mustAdd(t, b, "input")
	c := mustAdd(t, b, "input")
	mid, err := b.Insert("number", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, mid.ID, c.ID}, ids(b))

	require.NoError(t, b.Move(0, 2))
	assert.Equal(t, []string{mid.ID, c.ID, a.ID}, ids(b))
	require.NoError(t, b.Move(2, 0))
	assert.Equal(t, []string{a.ID, mid.ID, c.ID}, ids(b))

	assert.ErrorIs(t, b.Move(0, 3), ErrOutOfRange)
	_, err = b.Insert("input", 9)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestUpdatePropagatesIntoGroups(t *testing.T) {
	b := New("F")
	a := mustAdd(t, b, "input")
	c := mustAdd(t, b, "input")
	require.NoError(t, b.Group(a.ID, c.ID))

	updated, err := b.Update(c.ID, Patch{
		"label":    json.RawMessage(`"Last name"`),
		"required": json.RawMessage(`true`),
		"id":       json.RawMessage(`"hijack"`),
	})
	require.NoError(t, err)
	assert.Equal(t, c.ID, updated.ID)

	entries := b.Entries()
	require.Len(t, entries, 1)
	require.True(t, entries[0].IsGroup())
	assert.Equal(t, "Last name", entries[0].Group[1].Label)
	assert.True(t, entries[0].Group[1].Required)

	updated, err = b.Update(c.ID, Patch{"label": json.RawMessage(`null`)})
	require.NoError(t, err)
	assert.Empty(t, updated.Label)

	_, err = b.Update("missing", Patch{})
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestDeletePrunesEmptyGroups(t *testing.T) {
	b := New("F")
	a := mustAdd(t, b, "input")
	c := mustAdd(t, b, "input")
	d := mustAdd(t, b, "input")
	require.NoError(t, b.Group(a.ID, c.ID))

	require.NoError(t, b.Delete(a.ID))
	entries := b.Entries()
	require.Len(t, entries, 2)
	require.True(t, entries[0].IsGroup())
	assert.Len(t, entries[0].Group, 1)

	require.NoError(t, b.Delete(c.ID))
	entries = b.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, d.ID, entries[0].Field.ID)

	assert.ErrorIs(t, b.Delete(a.ID), ErrFieldNotFound)
}

func TestDeleteClearsSelection(t *testing.T) {
	b := New("F")
	a := mustAdd(t, b, "input")
	require.NoError(t, b.Delete(a.ID))
	_, ok := b.Selected()
	assert.False(t, ok)
}

func TestGroupAndUngroup(t *testing.T) {
	b := New("F")
	a := mustAdd(t, b, "input")
	c := mustAdd(t, b, "input")
	d := mustAdd(t, b, "input")
	require.NoError(t, b.Group(d.ID, c.ID))

	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, a.ID, entries[0].Field.ID)
	assert.Equal(t, []string{d.ID, c.ID}, []string{entries[1].Group[0].ID, entries[1].Group[1].ID})

	assert.ErrorIs(t, b.Group(c.ID), ErrNotGroupable)

	require.NoError(t, b.Ungroup(1))
	assert.Equal(t, []string{a.ID, d.ID, c.ID}, ids(b))
	assert.ErrorIs(t, b.Ungroup(0), ErrOutOfRange)
}

func TestSchemaAndContext(t *testing.T) {
	b := New("Signup")
	a := mustAdd(t, b, "input")
	mustAdd(t, b, "divider")
	c := mustAdd(t, b, "select")
	b.SetInputs([]types.ContextInput{{Name: "user", Type: "object"}})

	s := b.Schema()
	assert.Equal(t, "Signup", s.Name)
	require.Len(t, s.Items, 1)
	assert.Len(t, s.Items[0].Fields[2].Options, 3)

	ctx := b.Context()
	assert.Equal(t, map[string]any{a.Name: "", c.Name: ""}, ctx.Fields)
	assert.Equal(t, map[string]any{}, ctx.Input["user"])
}

func TestSavedFlag(t *testing.T) {
	b := Load("form-1", "F", []schema.Entry{schema.Single(schema.Field{ID: "x", Type: "input", Name: "output_7"})}, nil)
	assert.False(t, b.Dirty())
	assert.Equal(t, "form-1", b.FormID())

	f := mustAdd(t, b, "input")
	assert.Equal(t, "output_8", f.Name)
	assert.True(t, b.Dirty())

	b.MarkSaved("form-1")
	assert.False(t, b.Dirty())
	b.SetName("F")
	assert.False(t, b.Dirty())
	b.SetName("G")
	assert.True(t, b.Dirty())
}

func TestJSONViewLineIndex(t *testing.T) {
	b := New("F")
	a := mustAdd(t, b, "input")
	c := mustAdd(t, b, "input")
	d := mustAdd(t, b, "number")
	require.NoError(t, b.Group(c.ID, d.ID))

	v, err := b.View()
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(v.Text)))

	want, err := json.MarshalIndent(b.Entries(), "", "  ")
	require.NoError(t, err)
	assert.Equal(t, string(want), v.Text)

	require.Len(t, v.Spans, 3)
	assert.Equal(t, 2, v.Spans[0].Start)
	span, ok := v.FieldAt(v.Spans[2].Start + 1)
	require.True(t, ok)
	assert.Equal(t, d.Name, span.Name)

	_, ok = v.FieldAt(1)
	assert.False(t, ok)

	f, err := b.SelectLine(v.Spans[0].End)
	require.NoError(t, err)
	assert.Equal(t, a.ID, f.ID)
}

func TestSessionManager(t *testing.T) {
	m := NewManager(time.Hour, time.Hour)
	s := m.Open(New("F"))
	require.NotNil(t, m.Get(s.ID))

	err := s.Do(func(b *Builder) error {
		_, err := b.Add("input")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 0, m.Cleanup())
	m.Remove(s.ID)
	assert.Nil(t, m.Get(s.ID))

	short := NewManager(time.Hour, time.Nanosecond)
	s = short.Open(New("F"))
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, short.Cleanup())
	assert.Equal(t, 0, short.Len())
}

func ids(b *Builder) []string {
	var out []string
	for _, f := range b.Fields() {
		out = append(out, f.ID)
	}
	return out
}
