// cmd/formcheck validates exported form documents.
//
// Every file is checked in two phases. Phase 1 runs the same CUE definition
// the import endpoint uses, so a file that passes can be imported. Phase 2
// checks what the schema cannot express: machine names must be valid
// identifiers and unique across the form.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/store"
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func main() {
	log.SetFlags(0)
	log.SetPrefix("formcheck: ")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: formcheck [file.json | dir]...")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	files, err := collect(flag.Args())
	if err != nil {
		log.Fatal(err)
	}

	v, err := store.NewValidator()
	if err != nil {
		log.Fatal(err)
	}
	failed := 0
	for _, path := range files {
		problems, err := checkFile(v, path)
		if err != nil {
			problems = append(problems, err.Error())
		}
		if len(problems) == 0 {
			fmt.Printf("ok   %s\n", path)
			continue
		}
		failed++
		fmt.Printf("FAIL %s\n", path)
		for _, p := range problems {
			fmt.Printf("     %s\n", p)
		}
	}
	if failed > 0 {
		log.Fatalf("%d of %d files failed", failed, len(files))
	}
}

// collect expands directories into the .json files below them.
func collect(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// checkFile returns the problems found in one form document. A non-nil
// error means the file could not be read.
func checkFile(v *store.Validator, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := v.Decode(data)
	if err != nil {
		return []string{strings.TrimPrefix(err.Error(), store.ErrInvalidImport.Error()+": ")}, nil
	}
	return checkNames(schema.Flatten(f.Fields)), nil
}

func checkNames(fields []schema.Field) []string {
	var problems []string
	seen := map[string]bool{}
	for _, f := range fields {
		if f.Name == "" {
			continue
		}
		if !validName.MatchString(f.Name) {
			problems = append(problems, fmt.Sprintf("field %q: invalid machine name", f.Name))
		}
		if seen[f.Name] {
			problems = append(problems, fmt.Sprintf("field %q: duplicate machine name", f.Name))
		}
		seen[f.Name] = true
	}
	return problems
}
