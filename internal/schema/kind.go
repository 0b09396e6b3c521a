// Package schema holds the form model: builder fields, groups, the normalized
// render schema and the registry of field kinds with their value shapes.
//
// The kind registry is the single place that knows, per type key, which Go
// value a field holds, what its zero value is and when it counts as empty.
// The renderer, validator and builder all consult it instead of switching on
// type strings themselves.
package schema

import (
	"strings"

	"github.com/matthewbaird/formdesigner/internal/types"
)

// Type is a canonical field type key.
type Type string

const (
	Text          Type = "text"
	Textarea      Type = "textarea"
	Password      Type = "password"
	Phone         Type = "phone"
	Number        Type = "number"
	Date          Type = "date"
	Datetime      Type = "datetime"
	SmartDatetime Type = "smart-datetime"
	Checkbox      Type = "checkbox"
	Switch        Type = "switch"
	Select        Type = "select"
	Radio         Type = "radio"
	Multiselect   Type = "multiselect"
	CheckboxGroup Type = "checkbox-group"
	Tags          Type = "tags"
	Slider        Type = "slider"
	Rating        Type = "rating"
	File          Type = "file"
	Location      Type = "location"
	Signature     Type = "signature"
	CreditCard    Type = "credit-card"
	Display       Type = "display"
	Divider       Type = "divider"
	Spacer        Type = "spacer"
)

// Shape classifies the Go value a field of a given kind carries.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeString
	ShapeNumber
	ShapeBool
	ShapeStringList
	ShapeNumberList
	ShapeFiles
	ShapeLocation
	ShapeCreditCard
	ShapeOptionalString
)

// String returns the shape name used in error messages.
func (s Shape) String() string {
	switch s {
	case ShapeString:
		return "string"
	case ShapeNumber:
		return "number"
	case ShapeBool:
		return "boolean"
	case ShapeStringList:
		return "string list"
	case ShapeNumberList:
		return "number list"
	case ShapeFiles:
		return "file list"
	case ShapeLocation:
		return "location"
	case ShapeCreditCard:
		return "credit card"
	case ShapeOptionalString:
		return "string or null"
	default:
		return "none"
	}
}

// Kind describes one field type.
type Kind struct {
	Type           Type
	Shape          Shape
	Label          string // palette label shown in the designer
	Component      string // builder palette id
	Presentational bool   // carries no value; skipped by defaults, validation and naming
	HasOptions     bool   // selection-bearing; rendered from an option list
}

var kinds = map[Type]*Kind{}

// order preserves registration order for palette listings.
var order []Type

var aliases = map[string]Type{}

func register(k *Kind, names ...string) {
	kinds[k.Type] = k
	order = append(order, k.Type)
	aliases[string(k.Type)] = k.Type
	if k.Component != "" {
		aliases[k.Component] = k.Type
	}
	for _, n := range names {
		aliases[n] = k.Type
	}
}

func init() {
	register(&Kind{Type: Text, Shape: ShapeString, Label: "Text Input", Component: "input"}, "Input", "Text", "TextField")
	register(&Kind{Type: Textarea, Shape: ShapeString, Label: "Textarea", Component: "textarea"}, "Textarea")
	register(&Kind{Type: Number, Shape: ShapeNumber, Label: "Number", Component: "number"}, "Number")
	register(&Kind{Type: Date, Shape: ShapeString, Label: "Date Picker", Component: "date-picker"})
	register(&Kind{Type: Datetime, Shape: ShapeString, Label: "DateTime Picker", Component: "datetime-picker"})
	register(&Kind{Type: File, Shape: ShapeFiles, Label: "File Upload", Component: "file-input"}, "File Upload")
	register(&Kind{Type: Password, Shape: ShapeString, Label: "Password", Component: "password"}, "Password")
	register(&Kind{Type: Phone, Shape: ShapeString, Label: "Phone", Component: "phone"}, "Phone")
	register(&Kind{Type: Location, Shape: ShapeLocation, Label: "Location", Component: "location-input"}, "Location")
	register(&Kind{Type: Signature, Shape: ShapeOptionalString, Label: "Signature Input", Component: "signature-input"}, "Signature Input")
	register(&Kind{Type: CreditCard, Shape: ShapeCreditCard, Label: "Credit Card", Component: "credit-card"}, "Credit Card")
	register(&Kind{Type: SmartDatetime, Shape: ShapeString, Label: "Smart DateTime", Component: "smart-datetime"}, "Smart DateTime")
	register(&Kind{Type: Checkbox, Shape: ShapeBool, Label: "Checkbox", Component: "checkbox"}, "Checkbox")
	register(&Kind{Type: CheckboxGroup, Shape: ShapeStringList, Label: "Checkbox Group", Component: "checkbox-group", HasOptions: true}, "Checkbox Group")
	register(&Kind{Type: Radio, Shape: ShapeString, Label: "Radio Group", Component: "radio-group", HasOptions: true}, "RadioGroup", "Radio Group")
	register(&Kind{Type: Select, Shape: ShapeString, Label: "Select", Component: "select", HasOptions: true}, "Select")
	register(&Kind{Type: Multiselect, Shape: ShapeStringList, Label: "Multi Select", Component: "multi-select", HasOptions: true}, "Multi Select")
	register(&Kind{Type: Tags, Shape: ShapeStringList, Label: "Tags Input", Component: "tags-input"}, "Tags Input")
	register(&Kind{Type: Switch, Shape: ShapeBool, Label: "Switch", Component: "switch"}, "Switch")
	register(&Kind{Type: Slider, Shape: ShapeNumberList, Label: "Slider", Component: "slider"}, "Slider")
	register(&Kind{Type: Rating, Shape: ShapeNumber, Label: "Rating", Component: "rating"}, "Rating")
	register(&Kind{Type: Display, Shape: ShapeNone, Label: "Text", Component: "text-block", Presentational: true}, "Text Block")
	register(&Kind{Type: Divider, Shape: ShapeNone, Label: "Divider", Component: "divider", Presentational: true}, "Divider")
	register(&Kind{Type: Spacer, Shape: ShapeNone, Label: "Spacer", Component: "spacer", Presentational: true}, "Spacer")
}

// Lookup returns the kind registered for t.
func Lookup(t Type) (*Kind, bool) {
	k, ok := kinds[t]
	return k, ok
}

// MustKind returns the kind for t, falling back to the text kind.
func MustKind(t Type) *Kind {
	if k, ok := kinds[t]; ok {
		return k
	}
	return kinds[Text]
}

// Kinds returns every registered kind in palette order.
func Kinds() []*Kind {
	out := make([]*Kind, 0, len(order))
	for _, t := range order {
		out = append(out, kinds[t])
	}
	return out
}

// ResolveType maps a canonical key, builder component id or legacy variant
// label to its canonical type.
func ResolveType(name string) (Type, bool) {
	if name == "" {
		return "", false
	}
	if t, ok := aliases[name]; ok {
		return t, true
	}
	if t, ok := aliases[strings.ToLower(name)]; ok {
		return t, true
	}
	return "", false
}

// CanonicalType resolves the type of a field from its type key first and its
// variant second. Unknown kinds fall back to text.
func CanonicalType(f Field) Type {
	if t, ok := ResolveType(f.Type); ok {
		return t
	}
	if t, ok := ResolveType(f.Variant); ok {
		return t
	}
	return Text
}

// IsPresentational reports whether the field carries no value.
func IsPresentational(f Field) bool {
	return MustKind(CanonicalType(f)).Presentational
}

// Zero returns the fallback value for a kind when neither an initial value
// nor a declared default exists.
func Zero(t Type) any {
	switch MustKind(t).Shape {
	case ShapeNumber:
		return float64(0)
	case ShapeBool:
		return false
	case ShapeStringList:
		return []string{}
	case ShapeNumberList:
		return []float64{0}
	case ShapeFiles:
		return []types.FileHandle{}
	case ShapeLocation:
		return types.Location{}
	case ShapeCreditCard:
		return types.CreditCard{}
	case ShapeOptionalString, ShapeNone:
		return nil
	default:
		return ""
	}
}

// IsEmpty reports whether v counts as missing for a required field of kind t.
func IsEmpty(t Type, v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case *string:
		return x == nil || *x == ""
	case bool:
		return !x
	case []string:
		return len(x) == 0
	case []float64:
		return len(x) == 0
	case []types.FileHandle:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case types.Location:
		return x.IsZero()
	case types.CreditCard:
		return x.Incomplete()
	}
	return false
}

// Conforms reports whether v has the Go type expected for kind t.
func Conforms(t Type, v any) bool {
	switch MustKind(t).Shape {
	case ShapeString:
		_, ok := v.(string)
		return ok
	case ShapeNumber:
		_, ok := v.(float64)
		return ok
	case ShapeBool:
		_, ok := v.(bool)
		return ok
	case ShapeStringList:
		_, ok := v.([]string)
		return ok
	case ShapeNumberList:
		_, ok := v.([]float64)
		return ok
	case ShapeFiles:
		_, ok := v.([]types.FileHandle)
		return ok
	case ShapeLocation:
		_, ok := v.(types.Location)
		return ok
	case ShapeCreditCard:
		_, ok := v.(types.CreditCard)
		return ok
	case ShapeOptionalString:
		if v == nil {
			return true
		}
		_, ok := v.(string)
		return ok
	}
	return false
}
