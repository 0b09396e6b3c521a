package render

import (
	"fmt"
	"html/template"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
)

// Input is one decoded user interaction: the posted form values plus the
// metadata of any selected files, keyed by field name.
type Input struct {
	Values url.Values
	Files  map[string][]types.FileHandle
}

// InputFromMultipart builds an Input from a parsed HTTP form.
func InputFromMultipart(values url.Values, form *multipart.Form) Input {
	in := Input{Values: values, Files: map[string][]types.FileHandle{}}
	if form == nil {
		return in
	}
	for name, headers := range form.File {
		for _, h := range headers {
			in.Files[name] = append(in.Files[name], types.FileHandle{
				Name: h.Filename,
				Size: h.Size,
				Type: h.Header.Get("Content-Type"),
			})
		}
	}
	return in
}

type decodeFunc func(f schema.Field, in Input) (any, error)

// Control renders one field kind in both modes and decodes interactions
// with it into the kind's value shape.
type Control interface {
	RenderDesigner(f schema.Field, opts Options) (template.HTML, error)
	RenderBound(f schema.Field, b Binding, opts Options) (template.HTML, error)
	Decode(f schema.Field, in Input) (any, error)
}

// templateControl is a Control backed by a named template from templates/.
type templateControl struct {
	template  string
	inputType string
	decode    decodeFunc
}

func (c *templateControl) RenderDesigner(f schema.Field, opts Options) (template.HTML, error) {
	opts.Mode = ModeDesigner
	opts.Binding = nil
	return c.render(f, opts)
}

func (c *templateControl) RenderBound(f schema.Field, b Binding, opts Options) (template.HTML, error) {
	opts.Mode = ModeRenderer
	opts.Binding = &b
	return c.render(f, opts)
}

func (c *templateControl) Decode(f schema.Field, in Input) (any, error) {
	if c.decode == nil {
		return nil, nil
	}
	return c.decode(f, in)
}

func (c *templateControl) render(f schema.Field, opts Options) (template.HTML, error) {
	kind := schema.MustKind(schema.CanonicalType(f))
	v := buildView(f, kind, c.inputType, opts)
	if kind.Presentational {
		return exec(c.template, v)
	}
	inner, err := exec(c.template, v)
	if err != nil {
		return "", err
	}
	v.Control = inner
	return exec("field", v)
}

func tc(tmpl, inputType string, decode decodeFunc) Control {
	return &templateControl{template: tmpl, inputType: inputType, decode: decode}
}

// ControlRegistry maps canonical type keys to controls.
type ControlRegistry struct {
	controls map[schema.Type]Control
}

// NewControlRegistry creates an empty registry.
func NewControlRegistry() *ControlRegistry {
	return &ControlRegistry{controls: make(map[schema.Type]Control)}
}

// Register adds the control for a type key.
func (r *ControlRegistry) Register(t schema.Type, c Control) {
	r.controls[t] = c
}

// Get returns the control for t, or nil.
func (r *ControlRegistry) Get(t schema.Type) Control {
	return r.controls[t]
}

// DefaultControls returns the registry covering every built-in kind.
func DefaultControls() *ControlRegistry {
	r := NewControlRegistry()
	r.Register(schema.Text, tc("input", "text", decodeString))
	r.Register(schema.Password, tc("input", "password", decodeString))
	r.Register(schema.Phone, tc("input", "tel", decodeString))
	r.Register(schema.Date, tc("input", "date", decodeString))
	r.Register(schema.Datetime, tc("input", "datetime-local", decodeDatetime))
	r.Register(schema.SmartDatetime, tc("input", "text", decodeString))
	r.Register(schema.Textarea, tc("textarea", "", decodeString))
	r.Register(schema.Number, tc("number", "number", decodeNumber))
	r.Register(schema.Checkbox, tc("checkbox", "", decodeBool))
	r.Register(schema.Switch, tc("switch", "", decodeBool))
	r.Register(schema.Select, tc("select", "", decodeString))
	r.Register(schema.Radio, tc("radio", "", decodeString))
	r.Register(schema.Multiselect, tc("multiselect", "", decodeList))
	r.Register(schema.CheckboxGroup, tc("checkbox-group", "", decodeList))
	r.Register(schema.Tags, tc("tags", "", decodeTags))
	r.Register(schema.Slider, tc("slider", "range", decodeSlider))
	r.Register(schema.Rating, tc("rating", "", decodeNumber))
	r.Register(schema.File, tc("file", "", decodeFiles))
	r.Register(schema.Location, tc("location", "", decodeLocation))
	r.Register(schema.Signature, tc("signature", "", decodeSignature))
	r.Register(schema.CreditCard, tc("credit-card", "", decodeCreditCard))
	r.Register(schema.Display, tc("display", "", nil))
	r.Register(schema.Divider, tc("divider", "", nil))
	r.Register(schema.Spacer, tc("spacer", "", nil))
	return r
}

// Credit card part keys, used as name suffixes in posted forms.
var cardParts = []string{"cardholderName", "cardNumber", "expiryMonth", "expiryYear", "cvv"}

func decodeString(f schema.Field, in Input) (any, error) {
	return in.Values.Get(f.Name), nil
}

// datetime-local posts have no zone; they are read as UTC.
var localLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05"}

func decodeDatetime(f schema.Field, in Input) (any, error) {
	raw := strings.TrimSpace(in.Values.Get(f.Name))
	if raw == "" {
		return "", nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return raw, nil
}

func decodeNumber(f schema.Field, in Input) (any, error) {
	raw := strings.TrimSpace(in.Values.Get(f.Name))
	if raw == "" {
		return float64(0), nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("render: %s: %q is not a number", f.Name, raw)
	}
	return n, nil
}

func decodeBool(f schema.Field, in Input) (any, error) {
	switch strings.ToLower(in.Values.Get(f.Name)) {
	case "", "false", "off", "0":
		return false, nil
	}
	return true, nil
}

func decodeList(f schema.Field, in Input) (any, error) {
	return dedupe(in.Values[f.Name]), nil
}

func decodeTags(f schema.Field, in Input) (any, error) {
	var parts []string
	for _, v := range in.Values[f.Name] {
		parts = append(parts, strings.Split(v, ",")...)
	}
	return dedupe(parts), nil
}

func dedupe(values []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func decodeSlider(f schema.Field, in Input) (any, error) {
	n, err := decodeNumber(f, in)
	if err != nil {
		return nil, err
	}
	return []float64{n.(float64)}, nil
}

func decodeFiles(f schema.Field, in Input) (any, error) {
	files := in.Files[f.Name]
	out := make([]types.FileHandle, len(files))
	copy(out, files)
	return out, nil
}

func decodeLocation(f schema.Field, in Input) (any, error) {
	return types.Location{
		Country: strings.TrimSpace(in.Values.Get(f.Name + ".country")),
		State:   strings.TrimSpace(in.Values.Get(f.Name + ".state")),
	}, nil
}

func decodeSignature(f schema.Field, in Input) (any, error) {
	v := in.Values.Get(f.Name)
	if v == "" {
		return nil, nil
	}
	return v, nil
}

func decodeCreditCard(f schema.Field, in Input) (any, error) {
	get := func(part string) string {
		return strings.TrimSpace(in.Values.Get(f.Name + "." + part))
	}
	return types.CreditCard{
		CardholderName: get(cardParts[0]),
		CardNumber:     get(cardParts[1]),
		ExpiryMonth:    get(cardParts[2]),
		ExpiryYear:     get(cardParts[3]),
		CVV:            get(cardParts[4]),
	}, nil
}
