package schema

import (
	"encoding/json"
	"fmt"

	"github.com/matthewbaird/formdesigner/internal/types"
)

const (
	// DefaultFormName names a schema built without an explicit name.
	DefaultFormName = "Form"
	// StandaloneItemName names items that collect ungrouped fields.
	StandaloneItemName = "Fields"
)

// DefaultOptions returns the three placeholder options used for
// selection-bearing fields that declare none.
func DefaultOptions() []types.Option {
	return []types.Option{
		{Label: "Option 1", Value: "option1"},
		{Label: "Option 2", Value: "option2"},
		{Label: "Option 3", Value: "option3"},
	}
}

// NormalizeField rewrites f into its render form: canonical type key,
// synthesized options for selection kinds and no builder-only layout data.
func NormalizeField(f Field) Field {
	n := f.Clone()
	t := CanonicalType(f)
	n.Type = string(t)
	n.RowIndex = 0
	if MustKind(t).HasOptions && len(n.Options) == 0 {
		n.Options = DefaultOptions()
	}
	if t == Display && n.Variant == "" {
		n.Variant = VariantParagraph
	}
	return n
}

// ToSchema converts a builder field list into a FormSchema. Consecutive
// standalone fields are buffered into one item named "Fields"; each group
// flushes the buffer and becomes its own item named "Group N", where N is
// the 1-based position of the group in the builder list.
func ToSchema(name string, entries []Entry) FormSchema {
	if name == "" {
		name = DefaultFormName
	}
	s := FormSchema{Name: name, Items: []FormItem{}}
	var buf []Field
	flush := func() {
		if len(buf) > 0 {
			s.Items = append(s.Items, FormItem{Name: StandaloneItemName, Fields: buf})
			buf = nil
		}
	}
	for idx, e := range entries {
		if !e.IsGroup() {
			buf = append(buf, NormalizeField(*e.Field))
			continue
		}
		flush()
		fields := make([]Field, 0, len(e.Group))
		for _, f := range e.Group {
			fields = append(fields, NormalizeField(f))
		}
		s.Items = append(s.Items, FormItem{
			Name:   fmt.Sprintf("Group %d", idx+1),
			Fields: fields,
			Group:  true,
		})
	}
	flush()
	return s
}

// DeclaredDefault decodes the field's defaultValue into the kind's value
// shape. ok is false when no usable default is declared.
func DeclaredDefault(f Field) (any, bool) {
	if len(f.DefaultValue) == 0 || string(f.DefaultValue) == "null" {
		return nil, false
	}
	v, err := Coerce(CanonicalType(f), f.DefaultValue)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Coerce decodes a JSON value into the Go value shape of kind t. A JSON null
// yields the kind's zero value.
func Coerce(t Type, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Zero(t), nil
	}
	k := MustKind(t)
	switch k.Shape {
	case ShapeString, ShapeOptionalString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, shapeError(t, k.Shape, err)
		}
		if k.Shape == ShapeOptionalString && s == "" {
			return nil, nil
		}
		return s, nil
	case ShapeNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, shapeError(t, k.Shape, err)
		}
		return n, nil
	case ShapeBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, shapeError(t, k.Shape, err)
		}
		return b, nil
	case ShapeStringList:
		var l []string
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, shapeError(t, k.Shape, err)
		}
		if l == nil {
			l = []string{}
		}
		return l, nil
	case ShapeNumberList:
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return []float64{n}, nil
		}
		var l []float64
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, shapeError(t, k.Shape, err)
		}
		if l == nil {
			l = []float64{}
		}
		return l, nil
	case ShapeFiles:
		var l []types.FileHandle
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, shapeError(t, k.Shape, err)
		}
		if l == nil {
			l = []types.FileHandle{}
		}
		return l, nil
	case ShapeLocation:
		var loc types.Location
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, shapeError(t, k.Shape, err)
		}
		return loc, nil
	case ShapeCreditCard:
		var cc types.CreditCard
		if err := json.Unmarshal(raw, &cc); err != nil {
			return nil, shapeError(t, k.Shape, err)
		}
		return cc, nil
	}
	return nil, fmt.Errorf("schema: %s fields carry no value", t)
}

func shapeError(t Type, s Shape, err error) error {
	return fmt.Errorf("schema: %s field expects a %s: %w", t, s, err)
}
