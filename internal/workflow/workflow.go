// Package workflow manages versioned process-definition uploads. Each
// workflow keeps its versions newest first with at most one active.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/formdesigner/internal/upload"
)

var (
	ErrNotFound        = errors.New("workflow: not found")
	ErrVersionNotFound = errors.New("workflow: version not found")
)

// Version is one uploaded revision of a workflow file.
type Version struct {
	ID                string `json:"id"`
	Label             string `json:"label"`
	IsActive          bool   `json:"isActive"`
	UploadedAt        int64  `json:"uploadedAt"`
	Author            string `json:"author,omitempty"`
	ChangeDescription string `json:"changeDescription,omitempty"`
	FileName          string `json:"fileName"`
	FileSizeBytes     int64  `json:"fileSizeBytes"`
	FileType          string `json:"fileType,omitempty"`
	FileURL           string `json:"fileUrl"`
	FileID            string `json:"fileId,omitempty"`
}

// Workflow is a named set of versions. Timestamps are Unix milliseconds.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   int64     `json:"createdAt"`
	UpdatedAt   int64     `json:"updatedAt"`
	Versions    []Version `json:"versions"`
}

// Active returns the active version, if any.
func (w Workflow) Active() (Version, bool) {
	for _, v := range w.Versions {
		if v.IsActive {
			return v, true
		}
	}
	return Version{}, false
}

func (w Workflow) clone() Workflow {
	w.Tags = append([]string(nil), w.Tags...)
	w.Versions = append([]Version{}, w.Versions...)
	return w
}

// normalizeActive keeps the first active version and clears the flag on all
// others.
func normalizeActive(versions []Version) {
	seen := false
	for i := range versions {
		if versions[i].IsActive && !seen {
			seen = true
			continue
		}
		versions[i].IsActive = false
	}
}

// backend loads and saves the whole workflow list.
type backend interface {
	read() ([]Workflow, error)
	write([]Workflow) error
}

// Store implements workflow persistence over a backend. Every operation
// reads the list, applies one change and writes it back under a lock.
type Store struct {
	mu  sync.Mutex
	b   backend
	now func() time.Time
}

func newStore(b backend) *Store {
	return &Store{b: b, now: time.Now}
}

// List returns every workflow in creation order.
func (s *Store) List(_ context.Context) ([]Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.b.read()
	if err != nil {
		return nil, err
	}
	out := make([]Workflow, len(list))
	for i, w := range list {
		out[i] = w.clone()
	}
	return out, nil
}

// Get returns one workflow.
func (s *Store) Get(_ context.Context, id string) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.b.read()
	if err != nil {
		return Workflow{}, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return Workflow{}, ErrNotFound
	}
	return list[i].clone(), nil
}

// Create adds a workflow with no versions.
func (s *Store) Create(_ context.Context, name, description string, tags []string) (Workflow, error) {
	now := s.now().UnixMilli()
	w := Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Tags:        append([]string(nil), tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
		Versions:    []Version{},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.b.read()
	if err != nil {
		return Workflow{}, err
	}
	if err := s.b.write(append(list, w)); err != nil {
		return Workflow{}, err
	}
	return w.clone(), nil
}

// AddVersion prepends v with a fresh id and upload time. If more than one
// version ends up active, the first one in the list keeps the flag.
func (s *Store) AddVersion(_ context.Context, workflowID string, v Version) (Workflow, error) {
	return s.modify(workflowID, func(w *Workflow) error {
		v.ID = uuid.New().String()
		v.UploadedAt = s.now().UnixMilli()
		w.Versions = append([]Version{v}, w.Versions...)
		normalizeActive(w.Versions)
		return nil
	})
}

// ActivateVersion marks exactly versionID active.
func (s *Store) ActivateVersion(_ context.Context, workflowID, versionID string) (Workflow, error) {
	return s.modify(workflowID, func(w *Workflow) error {
		found := false
		for _, v := range w.Versions {
			if v.ID == versionID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
		}
		for i := range w.Versions {
			w.Versions[i].IsActive = w.Versions[i].ID == versionID
		}
		return nil
	})
}

// SetTags replaces a workflow's tags.
func (s *Store) SetTags(_ context.Context, workflowID string, tags []string) (Workflow, error) {
	return s.modify(workflowID, func(w *Workflow) error {
		w.Tags = append([]string(nil), tags...)
		return nil
	})
}

// Remove deletes a workflow and reports whether it existed.
func (s *Store) Remove(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.b.read()
	if err != nil {
		return false, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return false, nil
	}
	list = append(list[:i], list[i+1:]...)
	if err := s.b.write(list); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) modify(id string, fn func(w *Workflow) error) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.b.read()
	if err != nil {
		return Workflow{}, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return Workflow{}, ErrNotFound
	}
	w := list[i].clone()
	if err := fn(&w); err != nil {
		return Workflow{}, err
	}
	w.UpdatedAt = s.now().UnixMilli()
	list[i] = w
	if err := s.b.write(list); err != nil {
		return Workflow{}, err
	}
	return w.clone(), nil
}

func indexOf(list []Workflow, id string) int {
	for i, w := range list {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// VersionInput is the metadata supplied with an uploaded file.
type VersionInput struct {
	Label             string `json:"label"`
	Author            string `json:"author,omitempty"`
	ChangeDescription string `json:"changeDescription,omitempty"`
	FileType          string `json:"fileType,omitempty"`
	Active            bool   `json:"active"`
}

// Service ties the upload boundary to the workflow store.
type Service struct {
	Store    *Store
	Uploader upload.Uploader
}

// NewService creates a Service.
func NewService(s *Store, u upload.Uploader) *Service {
	return &Service{Store: s, Uploader: u}
}

// UploadVersion stores the file and records a version for it. No version is
// created unless the upload succeeds, and the upload is discarded if the
// version cannot be recorded.
func (s *Service) UploadVersion(ctx context.Context, workflowID, fileName string, r io.Reader, in VersionInput) (Workflow, error) {
	if _, err := s.Store.Get(ctx, workflowID); err != nil {
		return Workflow{}, err
	}
	res, err := s.Uploader.Put(ctx, fileName, r)
	if err != nil {
		return Workflow{}, err
	}
	label := in.Label
	if label == "" {
		label = res.Name
	}
	w, err := s.Store.AddVersion(ctx, workflowID, Version{
		Label:             label,
		IsActive:          in.Active,
		Author:            in.Author,
		ChangeDescription: in.ChangeDescription,
		FileName:          res.Name,
		FileSizeBytes:     res.Size,
		FileType:          in.FileType,
		FileURL:           res.URL,
		FileID:            res.ID,
	})
	if err != nil {
		if derr := s.Uploader.Delete(ctx, res.ID); derr != nil {
			log.Printf("workflow: discarding upload %s: %v", res.ID, derr)
		}
		return Workflow{}, err
	}
	return w, nil
}

// Remove deletes the workflow and then the uploaded file of each of its
// versions. A file that cannot be deleted is logged and left behind.
func (s *Service) Remove(ctx context.Context, workflowID string) (bool, error) {
	w, err := s.Store.Get(ctx, workflowID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, err := s.Store.Remove(ctx, workflowID)
	if err != nil || !ok {
		return ok, err
	}
	for _, v := range w.Versions {
		if v.FileID == "" {
			continue
		}
		if err := s.Uploader.Delete(ctx, v.FileID); err != nil {
			log.Printf("workflow: deleting file %s of %s: %v", v.FileID, workflowID, err)
		}
	}
	return true, nil
}
