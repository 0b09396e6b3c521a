// Package formctx derives the $ctx object a form exposes to display text and
// context-sourced options, and resolves $ctx references against it.
package formctx

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
)

// Info carries form-level metadata.
type Info struct {
	Name string `json:"name"`
}

// Context is the object referenced as $ctx.
type Context struct {
	Info   Info           `json:"info"`
	Input  map[string]any `json:"input"`
	Fields map[string]any `json:"fields"`
}

// Build derives the context for a form from its name, its declared context
// inputs and its flattened fields. Inputs with an empty name are skipped;
// a later input with the same name replaces an earlier one. Every
// non-presentational field appears under fields with an empty string.
func Build(formName string, inputs []types.ContextInput, fields []schema.Field) Context {
	c := Context{
		Info:   Info{Name: formName},
		Input:  make(map[string]any, len(inputs)),
		Fields: make(map[string]any, len(fields)),
	}
	for _, in := range inputs {
		if in.Name == "" {
			continue
		}
		c.Input[in.Name] = Placeholder(in.Type, in.ItemType)
	}
	for _, f := range fields {
		if schema.IsPresentational(f) {
			continue
		}
		c.Fields[f.Name] = ""
	}
	return c
}

// Placeholder returns the sample value for a declared input type.
func Placeholder(typ, itemType string) any {
	switch typ {
	case "array":
		return []any{scalar(itemType)}
	case "object":
		return map[string]any{}
	default:
		return scalar(typ)
	}
}

func scalar(typ string) any {
	switch typ {
	case "number":
		return float64(0)
	case "boolean":
		return false
	default:
		return ""
	}
}

// Map returns the context as a generic tree.
func (c Context) Map() map[string]any {
	return map[string]any{
		"info":   map[string]any{"name": c.Info.Name},
		"input":  c.Input,
		"fields": c.Fields,
	}
}

// JSON renders the context as indented JSON.
func (c Context) JSON() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

var ref = regexp.MustCompile(`\$ctx((?:\.[A-Za-z0-9_]+)*)`)

// Interpolate replaces every $ctx reference in text with the string form of
// the value it resolves to in root. Unresolvable references become "".
func Interpolate(text string, root any) string {
	if !strings.Contains(text, "$ctx") {
		return text
	}
	return ref.ReplaceAllStringFunc(text, func(m string) string {
		path := strings.TrimPrefix(strings.TrimPrefix(m, "$ctx"), ".")
		v, ok := Resolve(root, path)
		if !ok {
			return ""
		}
		return Stringify(v)
	})
}

// Resolve walks a dotted path through root. An empty path yields root.
// Numeric segments index into lists.
func Resolve(root any, path string) (any, bool) {
	cur := tree(root)
	if path == "" {
		return cur, cur != nil
	}
	for _, seg := range strings.Split(path, ".") {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func tree(root any) any {
	switch r := root.(type) {
	case nil:
		return nil
	case Context:
		return r.Map()
	case *Context:
		if r == nil {
			return nil
		}
		return r.Map()
	}
	return root
}

func step(cur any, seg string) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case map[string]string:
		v, ok := c[seg]
		return v, ok
	case []any:
		return index(len(c), seg, func(i int) any { return c[i] })
	case []string:
		return index(len(c), seg, func(i int) any { return c[i] })
	case nil, string, float64, bool, int:
		return nil, false
	}
	// Structs and typed containers are walked through their JSON form.
	b, err := json.Marshal(cur)
	if err != nil {
		return nil, false
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, false
	}
	switch generic.(type) {
	case map[string]any, []any:
		return step(generic, seg)
	}
	return nil, false
}

func index(n int, seg string, at func(int) any) (any, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= n {
		return nil, false
	}
	return at(i), true
}

// Stringify renders a resolved value as display text. Strings are used
// verbatim, null becomes "", and composite values are rendered as JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Options reads a selection option list from the context input named key.
// Items may be plain strings or {label, value} objects.
func Options(root any, key string) ([]types.Option, bool) {
	if key == "" {
		return nil, false
	}
	v, ok := Resolve(root, "input."+key)
	if !ok {
		return nil, false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, false
	}
	out := make([]types.Option, 0, len(items))
	for _, raw := range items {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if s != "" {
				out = append(out, types.Option{Label: s, Value: s})
			}
			continue
		}
		var o types.Option
		if json.Unmarshal(raw, &o) == nil && o.Value != "" {
			if o.Label == "" {
				o.Label = o.Value
			}
			out = append(out, o)
		}
	}
	return out, len(out) > 0
}
