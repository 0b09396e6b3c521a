// Package store persists form definitions. Backends implement Store; the
// Service on top of them owns id assignment, timestamps, export and
// validated import.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
)

var (
	ErrNotFound      = errors.New("store: form not found")
	ErrInvalidImport = errors.New("store: invalid form import")
)

// StoredForm is a persisted form definition. Timestamps are Unix
// milliseconds.
type StoredForm struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Fields        []schema.Entry       `json:"fields"`
	ContextInputs []types.ContextInput `json:"contextInputs,omitempty"`
	CreatedAt     int64                `json:"createdAt"`
	UpdatedAt     int64                `json:"updatedAt"`
}

// FieldCount returns the number of fields, group members included.
func (f StoredForm) FieldCount() int {
	return len(schema.Flatten(f.Fields))
}

// Summary is the list view of a stored form.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FieldCount  int    `json:"fieldCount"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Store is a form storage backend.
type Store interface {
	// List returns every form in insertion order.
	List(ctx context.Context) ([]StoredForm, error)
	Get(ctx context.Context, id string) (StoredForm, error)
	Insert(ctx context.Context, f StoredForm) error
	// Update replaces an existing form; ErrNotFound if the id is unknown.
	Update(ctx context.Context, f StoredForm) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Service implements the form persistence operations over a Store.
type Service struct {
	store     Store
	validator *Validator
	now       func() time.Time
}

// NewService creates a Service. A nil validator falls back to the built-in
// import schema.
func NewService(s Store, v *Validator) *Service {
	if v == nil {
		v = MustValidator()
	}
	return &Service{store: s, validator: v, now: time.Now}
}

// List returns summaries of every stored form.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	forms, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing forms: %w", err)
	}
	out := make([]Summary, 0, len(forms))
	for _, f := range forms {
		out = append(out, Summary{
			ID:          f.ID,
			Name:        f.Name,
			Description: f.Description,
			FieldCount:  f.FieldCount(),
			CreatedAt:   f.CreatedAt,
			UpdatedAt:   f.UpdatedAt,
		})
	}
	return out, nil
}

// Get returns one form.
func (s *Service) Get(ctx context.Context, id string) (StoredForm, error) {
	return s.store.Get(ctx, id)
}

// Save updates the form in place when it carries an id, keeping its
// creation time, and inserts it with a fresh id otherwise.
func (s *Service) Save(ctx context.Context, f StoredForm) (StoredForm, error) {
	if err := checkNames(f.Fields); err != nil {
		return StoredForm{}, err
	}
	now := s.now().UnixMilli()
	if f.Fields == nil {
		f.Fields = []schema.Entry{}
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
		f.CreatedAt = now
		f.UpdatedAt = now
		if err := s.store.Insert(ctx, f); err != nil {
			return StoredForm{}, fmt.Errorf("inserting form: %w", err)
		}
		return f, nil
	}

	existing, err := s.store.Get(ctx, f.ID)
	if err != nil {
		return StoredForm{}, err
	}
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = now
	if err := s.store.Update(ctx, f); err != nil {
		return StoredForm{}, fmt.Errorf("updating form %s: %w", f.ID, err)
	}
	return f, nil
}

// Delete removes a form and reports whether it existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

// Export returns the form as two-space indented JSON.
func (s *Service) Export(ctx context.Context, id string) (string, error) {
	f, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding form %s: %w", id, err)
	}
	return string(b), nil
}

// Import validates data, assigns a fresh id and timestamps and stores it.
// Nothing is written when validation fails.
func (s *Service) Import(ctx context.Context, data []byte) (StoredForm, error) {
	f, err := s.validator.Decode(data)
	if err != nil {
		return StoredForm{}, err
	}
	if err := checkNames(f.Fields); err != nil {
		return StoredForm{}, err
	}
	now := s.now().UnixMilli()
	f.ID = uuid.New().String()
	f.CreatedAt = now
	f.UpdatedAt = now
	if f.Name == "" {
		f.Name = "Imported Form"
	}
	if err := s.store.Insert(ctx, f); err != nil {
		return StoredForm{}, fmt.Errorf("inserting imported form: %w", err)
	}
	return f, nil
}

// checkNames rejects entry lists where two fields share a name. Unnamed
// fields are skipped.
func checkNames(entries []schema.Entry) error {
	seen := make(map[string]bool)
	for _, f := range schema.Flatten(entries) {
		if f.Name == "" {
			continue
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field name %q", ErrInvalidImport, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
