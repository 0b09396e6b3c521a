// cmd/formrender renders an exported form document to a standalone HTML page.
//
// In designer mode every field is drawn as a static preview; in renderer
// mode the page holds a fillable form seeded with the fields' defaults.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/matthewbaird/formdesigner/internal/form"
	"github.com/matthewbaird/formdesigner/internal/formctx"
	"github.com/matthewbaird/formdesigner/internal/render"
	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/store"
)

type options struct {
	mode     string
	selected string
	action   string
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("formrender: ")

	var opts options
	out := flag.String("o", "", "output file (default stdout)")
	flag.StringVar(&opts.mode, "mode", "designer", "designer or renderer")
	flag.StringVar(&opts.selected, "selected", "", "machine name of the field to highlight in designer mode")
	flag.StringVar(&opts.action, "action", "", "form action URL in renderer mode")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: formrender [flags] form.json")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	f, err := store.MustValidator().Decode(data)
	if err != nil {
		log.Fatal(err)
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		file, err := os.Create(*out)
		if err != nil {
			log.Fatal(err)
		}
		defer file.Close()
		w = file
	}
	if err := renderPage(w, f, opts); err != nil {
		log.Fatal(err)
	}
}

func renderPage(w io.Writer, f store.StoredForm, opts options) error {
	mode, err := render.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	name := f.Name
	if name == "" {
		name = "Untitled Form"
	}
	s := schema.ToSchema(name, f.Fields)
	ctx := formctx.Build(name, f.ContextInputs, s.Fields()).Map()

	return render.Page(w, name, func(w io.Writer) error {
		if mode == render.ModeDesigner {
			return render.Designer(w, s, render.DesignerOptions{Selected: opts.selected, Context: ctx})
		}
		return form.New(s, form.Options{Context: ctx}).Render(w, render.FormOptions{Action: opts.action})
	})
}
