package builder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matthewbaird/formdesigner/internal/schema"
)

// LineSpan maps a 1-based inclusive line range of the JSON view to the
// field serialized on those lines.
type LineSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// JSONView is the field list serialized as indented JSON together with the
// line index of every field in it.
type JSONView struct {
	Text  string     `json:"text"`
	Spans []LineSpan `json:"spans"`
}

// FieldAt returns the span covering line.
func (v JSONView) FieldAt(line int) (LineSpan, bool) {
	for _, s := range v.Spans {
		if line >= s.Start && line <= s.End {
			return s, true
		}
	}
	return LineSpan{}, false
}

// View serializes the builder's field list with a line index.
func (b *Builder) View() (JSONView, error) {
	return BuildJSONView(b.entries)
}

// BuildJSONView serializes entries as a two-space indented JSON array and
// records which lines each field occupies.
func BuildJSONView(entries []schema.Entry) (JSONView, error) {
	if len(entries) == 0 {
		return JSONView{Text: "[]", Spans: []LineSpan{}}, nil
	}
	var sb strings.Builder
	view := JSONView{Spans: []LineSpan{}}
	line := 1
	write := func(s string) {
		sb.WriteString(s)
		line += strings.Count(s, "\n")
	}
	field := func(f schema.Field, indent string, last bool) error {
		raw, err := json.MarshalIndent(f, indent, "  ")
		if err != nil {
			return fmt.Errorf("builder: encoding field %s: %w", f.Name, err)
		}
		start := line
		write(indent + string(raw))
		view.Spans = append(view.Spans, LineSpan{Start: start, End: line, ID: f.ID, Name: f.Name})
		if !last {
			write(",")
		}
		write("\n")
		return nil
	}

	write("[\n")
	for i, e := range entries {
		last := i == len(entries)-1
		if !e.IsGroup() {
			if err := field(*e.Field, "  ", last); err != nil {
				return JSONView{}, err
			}
			continue
		}
		write("  [\n")
		for j, f := range e.Group {
			if err := field(f, "    ", j == len(e.Group)-1); err != nil {
				return JSONView{}, err
			}
		}
		write("  ]")
		if !last {
			write(",")
		}
		write("\n")
	}
	write("]")
	view.Text = sb.String()
	return view, nil
}

// SelectLine selects the field serialized on the given line of the JSON view.
func (b *Builder) SelectLine(line int) (schema.Field, error) {
	v, err := b.View()
	if err != nil {
		return schema.Field{}, err
	}
	span, ok := v.FieldAt(line)
	if !ok {
		return schema.Field{}, fmt.Errorf("%w: line %d", ErrFieldNotFound, line)
	}
	if err := b.Select(span.ID); err != nil {
		return schema.Field{}, err
	}
	f, _ := b.Field(span.ID)
	return f, nil
}
