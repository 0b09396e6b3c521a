package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type memoryBackend struct {
	list []Workflow
}

func (m *memoryBackend) read() ([]Workflow, error) {
	out := make([]Workflow, len(m.list))
	for i, w := range m.list {
		out[i] = w.clone()
	}
	return out, nil
}

func (m *memoryBackend) write(list []Workflow) error {
	m.list = list
	return nil
}

// NewMemoryStore creates a Store kept in process memory.
func NewMemoryStore() *Store {
	return newStore(&memoryBackend{})
}

type fileBackend struct {
	path string
}

func (f *fileBackend) read() ([]Workflow, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Workflow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	var list []Workflow
	if err := json.Unmarshal(data, &list); err != nil {
		log.Printf("workflow: %s is not valid JSON, starting empty: %v", f.path, err)
		return []Workflow{}, nil
	}
	return list, nil
}

func (f *fileBackend) write(list []Workflow) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding workflows: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

// NewFileStore creates a Store persisted as an indented JSON array at path.
// The file is created with an empty list if missing.
func NewFileStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating workflow dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return newStore(&fileBackend{path: path}), nil
}
