package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matthewbaird/formdesigner/internal/types"
)

// Option sources.
const (
	OptionSourceManual  = "manual"
	OptionSourceContext = "context"
)

// Display variants.
const (
	VariantHeading    = "heading"
	VariantSubHeading = "sub-heading"
	VariantCaption    = "caption"
	VariantParagraph  = "paragraph"
)

// Field is one form field. The same shape is used while editing in the
// builder and after normalization into a FormSchema; normalization rewrites
// Type to its canonical key and fills in missing options.
type Field struct {
	ID               string          `json:"id,omitempty"`
	Type             string          `json:"type"`
	Variant          string          `json:"variant,omitempty"`
	Name             string          `json:"name"`
	Label            string          `json:"label,omitempty"`
	Placeholder      string          `json:"placeholder,omitempty"`
	Description      string          `json:"description,omitempty"`
	Required         bool            `json:"required,omitempty"`
	Disabled         bool            `json:"disabled,omitempty"`
	Options          []types.Option  `json:"options,omitempty"`
	OptionSource     string          `json:"optionSource,omitempty"`
	OptionContextKey string          `json:"optionContextKey,omitempty"`
	Min              *float64        `json:"min,omitempty"`
	Max              *float64        `json:"max,omitempty"`
	Step             *float64        `json:"step,omitempty"`
	Accept           AcceptList      `json:"accept,omitempty"`
	MaxFiles         int             `json:"maxFiles,omitempty"`
	MaxSizeMB        float64         `json:"maxSizeMb,omitempty"`
	Locale           string          `json:"locale,omitempty"`
	Hour12           bool            `json:"hour12,omitempty"`
	ClassName        string          `json:"className,omitempty"`
	FontSizePt       float64         `json:"fontSizePt,omitempty"`
	Bold             bool            `json:"bold,omitempty"`
	Italic           bool            `json:"italic,omitempty"`
	Underline        bool            `json:"underline,omitempty"`
	DefaultValue     json.RawMessage `json:"defaultValue,omitempty"`
	RowIndex         int             `json:"rowIndex,omitempty"`
}

// Clone returns a copy of f that shares no slices with it.
func (f Field) Clone() Field {
	c := f
	if f.Options != nil {
		c.Options = append([]types.Option(nil), f.Options...)
	}
	if f.DefaultValue != nil {
		c.DefaultValue = append(json.RawMessage(nil), f.DefaultValue...)
	}
	if f.Accept != nil {
		c.Accept = append(AcceptList(nil), f.Accept...)
	}
	c.Min = cloneFloat(f.Min)
	c.Max = cloneFloat(f.Max)
	c.Step = cloneFloat(f.Step)
	return c
}

// AcceptList holds the file patterns a file-input accepts: ".ext", a MIME
// type, or a MIME prefix such as "image/" or "image/*". It encodes as a JSON
// array and also decodes the legacy comma-separated string form.
type AcceptList []string

// ParseAccept splits a comma-separated accept string.
func ParseAccept(s string) AcceptList {
	var out AcceptList
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (a *AcceptList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = ParseAccept(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("accept: want string or string array: %w", err)
	}
	*a = list
	return nil
}

// String joins the patterns the way an HTML accept attribute expects.
func (a AcceptList) String() string {
	return strings.Join(a, ",")
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Entry is one top-level element of a builder field list: either a single
// field or a group of fields laid out side by side. In JSON a field is an
// object and a group is an array of field objects.
type Entry struct {
	Field *Field
	Group []Field
}

// Single wraps a field as an entry.
func Single(f Field) Entry {
	return Entry{Field: &f}
}

// NewGroup wraps fields as a group entry.
func NewGroup(fields ...Field) Entry {
	return Entry{Group: append([]Field{}, fields...)}
}

// IsGroup reports whether the entry is a group.
func (e Entry) IsGroup() bool {
	return e.Field == nil
}

// Fields returns the fields of the entry in order.
func (e Entry) Fields() []Field {
	if e.Field != nil {
		return []Field{*e.Field}
	}
	return e.Group
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	if e.Field != nil {
		f := e.Field.Clone()
		return Entry{Field: &f}
	}
	g := make([]Field, len(e.Group))
	for i, f := range e.Group {
		g[i] = f.Clone()
	}
	return Entry{Group: g}
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Field != nil {
		return json.Marshal(e.Field)
	}
	g := e.Group
	if g == nil {
		g = []Field{}
	}
	return json.Marshal(g)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("schema: empty entry")
	}
	switch data[0] {
	case '[':
		var g []Field
		if err := json.Unmarshal(data, &g); err != nil {
			return fmt.Errorf("schema: decoding group: %w", err)
		}
		e.Field, e.Group = nil, g
		return nil
	case '{':
		var f Field
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("schema: decoding field: %w", err)
		}
		e.Field, e.Group = &f, nil
		return nil
	}
	return fmt.Errorf("schema: entry must be an object or an array")
}

// Flatten returns every field of entries in document order.
func Flatten(entries []Entry) []Field {
	var out []Field
	for _, e := range entries {
		out = append(out, e.Fields()...)
	}
	return out
}

// CloneEntries deep-copies an entry list.
func CloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// FormItem is one section of a rendered form.
type FormItem struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
	Group  bool    `json:"group,omitempty"`
}

// FormSchema is the normalized, render-ready form.
type FormSchema struct {
	Name  string     `json:"name"`
	Items []FormItem `json:"fields"`
}

// Fields returns every field of the schema in render order.
func (s FormSchema) Fields() []Field {
	var out []Field
	for _, it := range s.Items {
		out = append(out, it.Fields...)
	}
	return out
}
