package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed form.cue
var formSchema string

// Validator checks form JSON against the CUE definition #StoredForm.
type Validator struct {
	mu  sync.Mutex // cue.Context is not safe for concurrent use
	ctx *cue.Context
	def cue.Value
}

// NewValidator compiles the embedded import schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	s := ctx.CompileString(formSchema, cue.Filename("form.cue"))
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("compiling form schema: %w", err)
	}
	def := s.LookupPath(cue.ParsePath("#StoredForm"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("looking up #StoredForm: %w", err)
	}
	return &Validator{ctx: ctx, def: def}, nil
}

// MustValidator is like NewValidator but panics if the embedded schema does
// not compile.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate reports whether data is a well-formed form document.
func (v *Validator) Validate(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	fields, ok := top["fields"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(fields), []byte("[")) {
		return fmt.Errorf("%w: fields must be an array", ErrInvalidImport)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	val := v.ctx.CompileBytes(data, cue.Filename("form.json"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if err := v.def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	return nil
}

// Decode validates data and decodes it into a StoredForm.
func (v *Validator) Decode(data []byte) (StoredForm, error) {
	if err := v.Validate(data); err != nil {
		return StoredForm{}, err
	}
	var f StoredForm
	if err := json.Unmarshal(data, &f); err != nil {
		return StoredForm{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	return f, nil
}
