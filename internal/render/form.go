package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/matthewbaird/formdesigner/internal/schema"
)

// Section is one rendered FormItem.
type Section struct {
	Name   string
	Group  bool
	Fields []template.HTML
}

type formView struct {
	Title    string
	Action   string
	Disabled bool
	Sections []Section
}

// FormOptions configures a whole-form render in renderer mode.
type FormOptions struct {
	Action   string
	Disabled bool
}

// Form writes a renderer-mode <form> around already rendered sections.
func (r *Renderer) Form(w io.Writer, title string, sections []Section, opts FormOptions) error {
	return templates.ExecuteTemplate(w, "form", formView{
		Title:    title,
		Action:   opts.Action,
		Disabled: opts.Disabled,
		Sections: sections,
	})
}

// DesignerOptions configures a designer preview.
type DesignerOptions struct {
	Selected string // name of the selected field
	Context  any
}

// Designer writes the static designer preview of s. Every field renders in
// designer mode without a binding.
func (r *Renderer) Designer(w io.Writer, s schema.FormSchema, opts DesignerOptions) error {
	view := formView{Title: s.Name}
	for _, it := range s.Items {
		sec := Section{Name: it.Name, Group: it.Group}
		for _, f := range it.Fields {
			h, err := r.FieldHTML(f, Options{
				Mode:     ModeDesigner,
				Selected: opts.Selected != "" && f.Name == opts.Selected,
				Context:  opts.Context,
			})
			if err != nil {
				return err
			}
			sec.Fields = append(sec.Fields, h)
		}
		view.Sections = append(view.Sections, sec)
	}
	return templates.ExecuteTemplate(w, "designer", view)
}

// Designer renders a designer preview with the built-in controls.
func Designer(w io.Writer, s schema.FormSchema, opts DesignerOptions) error {
	return defaultRenderer.Designer(w, s, opts)
}

// Page wraps an HTML body in a standalone document.
func Page(w io.Writer, title string, body func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := body(&buf); err != nil {
		return err
	}
	if err := templates.ExecuteTemplate(w, "page", struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(buf.String())}); err != nil {
		return fmt.Errorf("render: executing page: %w", err)
	}
	return nil
}
