package form

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/matthewbaird/formdesigner/internal/render"
	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(fields ...schema.Field) schema.FormSchema {
	entries := make([]schema.Entry, len(fields))
	for i, f := range fields {
		entries[i] = schema.Single(f)
	}
	return schema.ToSchema("Test", entries)
}

func TestSubmitBlocksUntilRequiredFilled(t *testing.T) {
	var submitted map[string]any
	var changes int
	f := New(testSchema(
		schema.Field{Type: "input", Name: "a", Required: true},
		schema.Field{Type: "number", Name: "b"},
	), Options{
		OnSubmit: func(v map[string]any) { submitted = v },
		OnChange: func(map[string]any) { changes++ },
	})

	errs, ok := f.Submit()
	assert.False(t, ok)
	assert.Equal(t, Errors{"a": MsgRequired}, errs)
	assert.Nil(t, submitted)
	assert.Equal(t, StateInvalid, f.State("a"))
	assert.Equal(t, StateValid, f.State("b"))

	require.NoError(t, f.Set("a", "x"))
	assert.Equal(t, 1, changes)
	assert.Equal(t, StateDirty, f.State("a"))

	errs, ok = f.Submit()
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.Empty(t, f.Errors())
	assert.Equal(t, map[string]any{"a": "x", "b": float64(0)}, submitted)
	assert.Equal(t, StateValid, f.State("a"))
}

func TestDefaultsPrecedence(t *testing.T) {
	fields := []schema.Field{
		{Type: "input", Name: "a", DefaultValue: json.RawMessage(`"declared"`)},
		{Type: "input", Name: "b", DefaultValue: json.RawMessage(`"declared"`)},
		{Type: "number", Name: "c"},
		{Type: "slider", Name: "d"},
		{Type: "signature-input", Name: "e"},
		{Type: "multi-select", Name: "g"},
		{Type: "text-block", Name: "h"},
	}
	got := Defaults(fields, map[string]any{"a": "initial", "g": []any{"x"}})

	assert.Equal(t, "initial", got["a"])
	assert.Equal(t, "declared", got["b"])
	assert.Equal(t, float64(0), got["c"])
	assert.Equal(t, []float64{0}, got["d"])
	assert.Nil(t, got["e"])
	assert.Equal(t, []string{"x"}, got["g"])
	_, present := got["h"]
	assert.False(t, present)
}

func TestRequiredEmptiness(t *testing.T) {
	tests := []struct {
		name  string
		field schema.Field
		value any
		want  string
	}{
		{"empty string", schema.Field{Type: "input"}, "", MsgRequired},
		{"unchecked", schema.Field{Type: "checkbox"}, false, MsgRequired},
		{"empty tags", schema.Field{Type: "tags-input"}, []string{}, MsgRequired},
		{"no signature", schema.Field{Type: "signature-input"}, nil, MsgRequired},
		{"blank location", schema.Field{Type: "location-input"}, types.Location{}, MsgRequired},
		{"state only", schema.Field{Type: "location-input"}, types.Location{State: "CA"}, ""},
		{"card missing cvv", schema.Field{Type: "credit-card"}, types.CreditCard{CardholderName: "A", CardNumber: "4", ExpiryMonth: "1", ExpiryYear: "29"}, MsgRequired},
		{"zero number", schema.Field{Type: "number"}, float64(0), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.field.Name = "x"
			tt.field.Required = true
			errs := Validate([]schema.Field{tt.field}, map[string]any{"x": tt.value})
			if errs["x"] != tt.want {
				t.Errorf("error = %q, want %q", errs["x"], tt.want)
			}
		})
	}
}

func TestSmartDatetimeValidation(t *testing.T) {
	f := schema.Field{Type: "smart-datetime", Name: "when"}
	assert.Equal(t, MsgInvalidDatetime, Validate([]schema.Field{f}, map[string]any{"when": "next blursday"})["when"])
	assert.Empty(t, Validate([]schema.Field{f}, map[string]any{"when": "2024-05-01T10:00:00Z"}))
	assert.Empty(t, Validate([]schema.Field{f}, map[string]any{"when": ""}))
}

func TestFileValidation(t *testing.T) {
	big := types.FileHandle{Name: "big.png", Size: 3 * 1024 * 1024, Type: "image/png"}
	small := types.FileHandle{Name: "small.png", Size: 10, Type: "image/png"}
	doc := types.FileHandle{Name: "notes.txt", Size: 10, Type: "text/plain"}

	f := schema.Field{Type: "file-input", Name: "f", MaxFiles: 1, MaxSizeMB: 2, Accept: schema.AcceptList{"image/*"}}
	check := func(files ...types.FileHandle) string {
		return Validate([]schema.Field{f}, map[string]any{"f": files})["f"]
	}

	assert.Equal(t, "", check(small))
	assert.Equal(t, "Max 1 files", check(small, small))
	assert.Equal(t, "Each file must be <= 2MB", check(big))
	assert.Equal(t, "Each file must be <= 2MB", check(small, big))
	assert.Equal(t, MsgInvalidFileType, check(doc))
	assert.Equal(t, MsgInvalidFileType, check(big, doc))

	f.Accept = schema.ParseAccept(".TXT, .md")
	assert.Equal(t, "", check(doc))
	f.Accept = schema.AcceptList{"text/plain"}
	assert.Equal(t, "", check(doc))
	f.Accept = schema.AcceptList{"image/", ".pdf"}
	assert.Equal(t, "", check(small))
	assert.Equal(t, "", check(types.FileHandle{Name: "scan.PDF", Size: 10, Type: "application/pdf"}))
	assert.Equal(t, MsgInvalidFileType, check(doc))
}

func TestSetRejectsWrongShapeAndUnknownField(t *testing.T) {
	f := New(testSchema(
		schema.Field{Type: "number", Name: "n"},
		schema.Field{Type: "input", Name: "locked", Disabled: true},
	), Options{})

	assert.ErrorIs(t, f.Set("n", "ten"), ErrValueShape)
	assert.ErrorIs(t, f.Set("nope", "x"), ErrUnknownField)
	assert.ErrorIs(t, f.Set("locked", "x"), ErrDisabled)
	assert.Equal(t, StatePristine, f.State("n"))

	require.NoError(t, f.SetJSON("n", json.RawMessage(`5`)))
	v, _ := f.Value("n")
	assert.Equal(t, float64(5), v)
}

func TestResetRestoresDefaults(t *testing.T) {
	resets := 0
	f := New(testSchema(schema.Field{Type: "input", Name: "a", Required: true}), Options{
		InitialValues: map[string]any{"a": "start"},
		OnReset:       func() { resets++ },
	})
	require.NoError(t, f.Set("a", ""))
	f.Submit()
	require.NotEmpty(t, f.Errors())

	f.Reset()
	assert.Equal(t, 1, resets)
	assert.Empty(t, f.Errors())
	assert.Equal(t, map[string]any{"a": "start"}, f.Values())
	assert.Equal(t, StatePristine, f.State("a"))
}

func TestApplyRoutesThroughBindings(t *testing.T) {
	f := New(testSchema(
		schema.Field{Type: "input", Name: "name"},
		schema.Field{Type: "number", Name: "age"},
		schema.Field{Type: "checkbox", Name: "agree"},
		schema.Field{Type: "text-block", Name: "intro"},
	), Options{})

	err := f.Apply(render.Input{Values: url.Values{"name": {"Ann"}, "age": {"41"}, "agree": {"on"}}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ann", "age": float64(41), "agree": true}, f.Values())

	err = f.Apply(render.Input{Values: url.Values{"age": {"old"}}})
	assert.ErrorIs(t, err, ErrValueShape)
}

func TestDisabledFormRejectsInput(t *testing.T) {
	f := New(testSchema(schema.Field{Type: "input", Name: "a"}), Options{Disabled: true})
	assert.ErrorIs(t, f.Set("a", "x"), ErrDisabled)
	assert.ErrorIs(t, f.Apply(render.Input{}), ErrDisabled)
}

func TestRenderShowsErrorsAndContext(t *testing.T) {
	f := New(schema.ToSchema("Signup", []schema.Entry{
		schema.Single(schema.Field{Type: "text-block", Name: "intro", Description: "Hi $ctx.input.name"}),
		schema.NewGroup(
			schema.Field{Type: "input", Name: "first", Label: "First", Required: true},
			schema.Field{Type: "input", Name: "last", Label: "Last"},
		),
	}), Options{Context: map[string]any{"input": map[string]any{"name": "Ann"}}})
	f.Submit()

	var sb strings.Builder
	require.NoError(t, f.Render(&sb, render.FormOptions{Action: "/submit"}))
	out := sb.String()

	assert.Contains(t, out, "Hi Ann")
	assert.Contains(t, out, MsgRequired)
	assert.Contains(t, out, "Group 2")
	assert.Contains(t, out, "grid-two")
	assert.Contains(t, out, `action="/submit"`)
}

func TestDefaultsMatchKindTable(t *testing.T) {
	tests := []struct {
		typ  schema.Type
		want any
	}{
		{schema.Text, ""},
		{schema.Textarea, ""},
		{schema.Password, ""},
		{schema.Phone, ""},
		{schema.Date, ""},
		{schema.Datetime, ""},
		{schema.Select, ""},
		{schema.Radio, ""},
		{schema.Number, float64(0)},
		{schema.SmartDatetime, ""},
		{schema.Checkbox, false},
		{schema.Switch, false},
		{schema.Slider, []float64{0}},
		{schema.Multiselect, []string{}},
		{schema.Tags, []string{}},
		{schema.CheckboxGroup, []string{}},
		{schema.File, []types.FileHandle{}},
		{schema.Rating, float64(0)},
		{schema.Location, types.Location{}},
		{schema.Signature, nil},
		{schema.CreditCard, types.CreditCard{}},
	}

	covered := map[schema.Type]bool{}
	fields := make([]schema.Field, 0, len(tests))
	for _, tt := range tests {
		covered[tt.typ] = true
		fields = append(fields, schema.Field{Type: string(tt.typ), Name: string(tt.typ)})
	}
	for _, k := range schema.Kinds() {
		if !k.Presentational && !covered[k.Type] {
			t.Errorf("kind %s has no expected default", k.Type)
		}
	}

	got := Defaults(fields, nil)
	assert.Len(t, got, len(tests))
	for _, tt := range tests {
		v, ok := got[string(tt.typ)]
		if !ok {
			t.Errorf("%s: no default", tt.typ)
			continue
		}
		assert.Equal(t, tt.want, v, string(tt.typ))
	}

	display := Defaults([]schema.Field{
		{Type: "text-block", Name: "intro"},
		{Type: "divider", Name: "line"},
		{Type: "spacer", Name: "gap"},
	}, nil)
	assert.Empty(t, display)
}

func TestEndToEndSignup(t *testing.T) {
	s := schema.ToSchema("Signup", []schema.Entry{
		schema.Single(schema.Field{Type: "input", Name: "email", Label: "Email", Required: true}),
		schema.Single(schema.Field{Type: "select", Name: "output_1", Label: "Plan"}),
	})

	var designer strings.Builder
	require.NoError(t, render.Designer(&designer, s, render.DesignerOptions{}))
	for _, opt := range []string{"Option 1", "Option 2", "Option 3"} {
		assert.Contains(t, designer.String(), opt)
	}
	assert.Equal(t, 3, strings.Count(designer.String(), `value="option`))

	var submitted []map[string]any
	f := New(s, Options{OnSubmit: func(v map[string]any) { submitted = append(submitted, v) }})

	errs, ok := f.Submit()
	assert.False(t, ok)
	assert.Equal(t, Errors{"email": "This field is required"}, errs)
	assert.Empty(t, submitted)

	require.NoError(t, f.Set("email", "a@b.com"))
	errs, ok = f.Submit()
	require.True(t, ok, errs)
	require.Len(t, submitted, 1)
	assert.Equal(t, map[string]any{"email": "a@b.com", "output_1": ""}, submitted[0])
}
