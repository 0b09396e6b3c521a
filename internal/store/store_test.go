package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
)

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewSQLiteStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": openSQLite(t),
	}
}

func sampleForm() StoredForm {
	return StoredForm{
		Name:        "Signup",
		Description: "new users",
		Fields: []schema.Entry{
			schema.Single(schema.Field{ID: "a", Type: "input", Name: "output_1", Label: "Name"}),
			schema.NewGroup(
				schema.Field{ID: "b", Type: "email", Name: "output_2"},
				schema.Field{ID: "c", Type: "phone", Name: "output_3"},
			),
		},
		ContextInputs: []types.ContextInput{{Name: "user", Type: "object"}},
	}
}

func TestSaveInsertsThenUpdates(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(backend, nil)

			saved, err := svc.Save(ctx, sampleForm())
			require.NoError(t, err)
			assert.NotEmpty(t, saved.ID)
			assert.Equal(t, saved.CreatedAt, saved.UpdatedAt)

			got, err := svc.Get(ctx, saved.ID)
			require.NoError(t, err)
			assert.Equal(t, saved, got)

			got.Name = "Signup v2"
			updated, err := svc.Save(ctx, got)
			require.NoError(t, err)
			assert.Equal(t, saved.ID, updated.ID)
			assert.Equal(t, saved.CreatedAt, updated.CreatedAt)
			assert.GreaterOrEqual(t, updated.UpdatedAt, saved.UpdatedAt)

			list, err := svc.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "Signup v2", list[0].Name)
			assert.Equal(t, 3, list[0].FieldCount)

			missing := sampleForm()
			missing.ID = "nope"
			_, err = svc.Save(ctx, missing)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(backend, nil)
			var want []string
			for _, n := range []string{"c", "a", "b"} {
				f, err := svc.Save(ctx, StoredForm{Name: n})
				require.NoError(t, err)
				want = append(want, f.ID)
			}
			list, err := svc.List(ctx)
			require.NoError(t, err)
			var got []string
			for _, s := range list {
				got = append(got, s.ID)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(backend, nil)
			f, err := svc.Save(ctx, sampleForm())
			require.NoError(t, err)

			ok, err := svc.Delete(ctx, f.ID)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = svc.Delete(ctx, f.ID)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = svc.Get(ctx, f.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(backend, nil)
			f, err := svc.Save(ctx, sampleForm())
			require.NoError(t, err)

			text, err := svc.Export(ctx, f.ID)
			require.NoError(t, err)
			assert.Contains(t, text, "\n  \"name\": \"Signup\"")

			imported, err := svc.Import(ctx, []byte(text))
			require.NoError(t, err)
			assert.NotEqual(t, f.ID, imported.ID)
			assert.Equal(t, f.Name, imported.Name)
			assert.Equal(t, f.Fields, imported.Fields)
			assert.Equal(t, f.ContextInputs, imported.ContextInputs)

			list, err := svc.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 2)

			_, err = svc.Export(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestImportRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"name":`},
		{"array document", `[]`},
		{"missing fields", `{"name":"x"}`},
		{"fields not a list", `{"name":"x","fields":{}}`},
		{"field not an object", `{"name":"x","fields":[1]}`},
		{"bad option", `{"name":"x","fields":[{"type":"select","name":"a","options":[{"label":1}]}]}`},
		{"bad context input type", `{"fields":[],"contextInputs":[{"name":"u","type":"date"}]}`},
		{"duplicate name", `{"fields":[{"type":"input","name":"a"},{"type":"email","name":"a"}]}`},
		{"duplicate name inside group", `{"fields":[{"type":"input","name":"a"},[{"type":"input","name":"b"},{"type":"input","name":"a"}]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryStore()
			svc := NewService(backend, nil)
			_, err := svc.Import(context.Background(), []byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidImport)
			forms, _ := backend.List(context.Background())
			assert.Empty(t, forms)
		})
	}
}

func TestImportAcceptsLegacyDocuments(t *testing.T) {
	doc := map[string]any{
		"fields": []any{
			map[string]any{"type": "", "variant": "Input", "name": "first", "checked": false},
			[]any{map[string]any{"type": "Combobox", "name": "pick", "rowIndex": 0}},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	svc := NewService(NewMemoryStore(), nil)
	f, err := svc.Import(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "Imported Form", f.Name)
	require.Len(t, f.Fields, 2)
	assert.True(t, f.Fields[1].IsGroup())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Insert(ctx, StoredForm{ID: "x", Fields: []schema.Entry{schema.Single(schema.Field{Name: "a"})}}))
	f, err := m.Get(ctx, "x")
	require.NoError(t, err)
	f.Fields[0].Field.Name = "changed"
	again, _ := m.Get(ctx, "x")
	assert.Equal(t, "a", again.Fields[0].Field.Name)
}

func TestImportAcceptsAcceptList(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	f, err := svc.Import(context.Background(), []byte(`{"fields":[{"type":"file-input","name":"output_1","accept":["image/",".pdf"]}]}`))
	require.NoError(t, err)
	require.Len(t, f.Fields, 1)
	assert.Equal(t, schema.AcceptList{"image/", ".pdf"}, f.Fields[0].Field.Accept)

	legacy, err := svc.Import(context.Background(), []byte(`{"fields":[{"type":"file-input","name":"output_1","accept":"image/*,.pdf"}]}`))
	require.NoError(t, err)
	assert.Equal(t, schema.AcceptList{"image/*", ".pdf"}, legacy.Fields[0].Field.Accept)
}

func TestSaveRejectsDuplicateNames(t *testing.T) {
	backend := NewMemoryStore()
	svc := NewService(backend, nil)
	f := sampleForm()
	f.Fields = append(f.Fields, schema.Single(schema.Field{Type: "input", Name: "output_2"}))

	_, err := svc.Save(context.Background(), f)
	assert.ErrorIs(t, err, ErrInvalidImport)
	forms, _ := backend.List(context.Background())
	assert.Empty(t, forms)

	saved, err := svc.Save(context.Background(), sampleForm())
	require.NoError(t, err)
	saved.Fields = append(saved.Fields, schema.Single(schema.Field{Type: "input", Name: "output_1"}))
	_, err = svc.Save(context.Background(), saved)
	assert.ErrorIs(t, err, ErrInvalidImport)
}
