// Package render turns form fields into HTML controls.
//
// A field renders in one of two modes. Designer mode is a static preview
// used while a form is being built: it needs no values, shows declared
// defaults and never accepts input. Renderer mode binds the control to a live
// value through a Binding supplied by the form renderer that owns the values.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/formdesigner/internal/formctx"
	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("render").ParseFS(templateFS, "templates/*.tmpl"))

// Mode selects how a field is rendered.
type Mode int

const (
	ModeDesigner Mode = iota
	ModeRenderer
)

func (m Mode) String() string {
	if m == ModeRenderer {
		return "renderer"
	}
	return "designer"
}

// ParseMode maps "designer" and "renderer" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "designer", "":
		return ModeDesigner, nil
	case "renderer":
		return ModeRenderer, nil
	}
	return ModeDesigner, fmt.Errorf("render: unknown mode %q", s)
}

// ErrNoBinding is returned when a value-bearing field is rendered in
// renderer mode without a binding.
var ErrNoBinding = errors.New("render: renderer mode requires a binding")

// Binding connects a control to the value owned by a form renderer.
type Binding struct {
	Value    any
	OnChange func(any)
	Error    string
	Disabled bool
}

// Options configures a single field render.
type Options struct {
	Mode     Mode
	Binding  *Binding
	Selected bool
	// Context resolves $ctx references in display text and context-sourced
	// options. In designer mode a nil context leaves display text untouched.
	Context any
}

// Renderer renders fields with a control registry.
type Renderer struct {
	controls *ControlRegistry
}

// New creates a renderer over the given controls. A nil registry uses the
// built-in controls.
func New(controls *ControlRegistry) *Renderer {
	if controls == nil {
		controls = DefaultControls()
	}
	return &Renderer{controls: controls}
}

var defaultRenderer = New(nil)

// Field renders f with the built-in controls.
func Field(w io.Writer, f schema.Field, opts Options) error {
	return defaultRenderer.Field(w, f, opts)
}

// Field renders one field.
func (r *Renderer) Field(w io.Writer, f schema.Field, opts Options) error {
	h, err := r.FieldHTML(f, opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, string(h))
	return err
}

// FieldHTML renders one field to an HTML fragment. The control for the
// field's kind is looked up in the registry; kinds without a control render
// an "unsupported" placeholder.
func (r *Renderer) FieldHTML(f schema.Field, opts Options) (template.HTML, error) {
	t := schema.CanonicalType(f)
	ctl := r.controls.Get(t)
	if ctl == nil {
		return exec("unsupported", view{Type: f.Type, Name: f.Name})
	}
	if opts.Mode == ModeDesigner {
		return ctl.RenderDesigner(f, opts)
	}
	b := opts.Binding
	if b == nil {
		if !schema.MustKind(t).Presentational {
			return "", fmt.Errorf("%w: field %q", ErrNoBinding, f.Name)
		}
		b = &Binding{}
	}
	return ctl.RenderBound(f, *b, opts)
}

// Decode turns a user interaction into a value of the field's shape.
// Presentational fields decode to nil.
func (r *Renderer) Decode(f schema.Field, in Input) (any, error) {
	ctl := r.controls.Get(schema.CanonicalType(f))
	if ctl == nil {
		return nil, nil
	}
	return ctl.Decode(f, in)
}

// Decode decodes with the built-in controls.
func Decode(f schema.Field, in Input) (any, error) {
	return defaultRenderer.Decode(f, in)
}

func exec(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render: executing %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

type optionView struct {
	Label    string
	Value    string
	Selected bool
}

type view struct {
	Designer    bool
	Type        string
	ID          string
	Name        string
	Label       string
	Required    bool
	Placeholder string
	Description string
	Disabled    bool
	Selected    bool
	Error       string
	ClassName   string
	InputType   string
	Control     template.HTML

	Value    string
	Checked  bool
	Options  []optionView
	Tags     []string
	Files    []types.FileHandle
	Min      string
	Max      string
	Step     string
	Accept   string
	Multiple bool
	Location types.Location
	Card     types.CreditCard
	Stars    []int
	Rating   int

	Variant string
	Text    string
	Style   template.CSS
}

func buildView(f schema.Field, kind *schema.Kind, inputType string, opts Options) view {
	v := view{
		Designer:    opts.Mode == ModeDesigner,
		Type:        string(kind.Type),
		ID:          "field-" + f.Name,
		Name:        f.Name,
		Label:       f.Label,
		Required:    f.Required,
		Placeholder: f.Placeholder,
		Description: f.Description,
		Disabled:    f.Disabled || opts.Mode == ModeDesigner,
		Selected:    opts.Selected,
		ClassName:   f.ClassName,
		InputType:   inputType,
		Accept:      f.Accept.String(),
		Multiple:    f.MaxFiles != 1,
		Min:         formatFloatPtr(f.Min),
		Max:         formatFloatPtr(f.Max),
		Step:        formatFloatPtr(f.Step),
	}
	if kind.Presentational {
		v.Variant, v.Text, v.Style = displayProps(f, opts)
		return v
	}
	if v.Designer && v.Label == "" {
		v.Label = kind.Label
	}

	var value any
	if opts.Binding != nil {
		value = opts.Binding.Value
		v.Error = opts.Binding.Error
		v.Disabled = v.Disabled || opts.Binding.Disabled
	} else if d, ok := schema.DeclaredDefault(f); ok {
		value = d
	} else {
		value = schema.Zero(kind.Type)
	}
	fillValue(&v, f, kind, value, opts.Context)
	return v
}

func fillValue(v *view, f schema.Field, kind *schema.Kind, value any, ctx any) {
	switch x := value.(type) {
	case string:
		v.Value = x
		if kind.Type == schema.Datetime {
			v.Value = localDatetime(x)
		}
	case float64:
		v.Value = strconv.FormatFloat(x, 'f', -1, 64)
		v.Rating = int(x)
	case bool:
		v.Checked = x
	case []string:
		v.Tags = x
		v.Value = strings.Join(x, ", ")
	case []float64:
		if len(x) > 0 {
			v.Value = strconv.FormatFloat(x[0], 'f', -1, 64)
		}
	case []types.FileHandle:
		v.Files = x
	case types.Location:
		v.Location = x
	case types.CreditCard:
		v.Card = x
	}

	if kind.HasOptions {
		opts := f.Options
		if f.OptionSource == schema.OptionSourceContext {
			if resolved, ok := formctx.Options(ctx, f.OptionContextKey); ok {
				opts = resolved
			}
		}
		if len(opts) == 0 {
			opts = schema.DefaultOptions()
		}
		chosen := map[string]bool{}
		switch x := value.(type) {
		case string:
			chosen[x] = true
		case []string:
			for _, s := range x {
				chosen[s] = true
			}
		}
		for _, o := range opts {
			v.Options = append(v.Options, optionView{Label: o.Label, Value: o.Value, Selected: chosen[o.Value]})
		}
	}

	if kind.Type == schema.Rating {
		max := 5
		if f.Max != nil && *f.Max >= 1 {
			max = int(*f.Max)
		}
		v.Stars = make([]int, max)
		for i := range v.Stars {
			v.Stars[i] = i + 1
		}
	}
}

var displayDefaults = map[string]string{
	schema.VariantHeading:    "Heading",
	schema.VariantSubHeading: "Sub-heading",
	schema.VariantCaption:    "Caption",
	schema.VariantParagraph:  "Paragraph",
}

func displayProps(f schema.Field, opts Options) (variant, text string, style template.CSS) {
	variant = f.Variant
	if _, ok := displayDefaults[variant]; !ok {
		variant = schema.VariantParagraph
	}
	text = strings.TrimSpace(f.Description)
	if text == "" {
		text = strings.TrimSpace(f.Label)
	}
	if text == "" {
		text = displayDefaults[variant]
	}
	if opts.Mode == ModeRenderer || opts.Context != nil {
		text = formctx.Interpolate(text, opts.Context)
	}

	var css []string
	if f.FontSizePt > 0 {
		css = append(css, "font-size: "+strconv.FormatFloat(f.FontSizePt, 'f', -1, 64)+"pt")
	}
	if f.Bold || variant == schema.VariantHeading || variant == schema.VariantSubHeading {
		css = append(css, "font-weight: bold")
	}
	if f.Italic {
		css = append(css, "font-style: italic")
	}
	if f.Underline {
		css = append(css, "text-decoration: underline")
	}
	return variant, text, template.CSS(strings.Join(css, "; "))
}

func formatFloatPtr(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func localDatetime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format("2006-01-02T15:04")
}
