// Package upload is the file upload boundary for workflow versions. It
// enforces an extension allow-list and a size ceiling before anything is
// kept.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxBytes is the per-file size ceiling when none is configured.
const DefaultMaxBytes int64 = 16 << 20

var (
	ErrExtension = errors.New("upload: only .bpmn or .xml files are allowed")
	ErrTooLarge  = errors.New("upload: file exceeds size limit")
	ErrNotFound  = errors.New("upload: object not found")
)

// AllowedExtensions lists accepted file name extensions, lower case.
var AllowedExtensions = []string{".bpmn", ".xml"}

// Result describes a stored upload.
type Result struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	ID   string `json:"id"`
	Size int64  `json:"size"`
}

// Uploader stores uploaded files.
type Uploader interface {
	Put(ctx context.Context, name string, r io.Reader) (Result, error)
	Delete(ctx context.Context, id string) error
}

// CheckName reports ErrExtension unless name ends in an allowed extension.
// The comparison ignores case.
func CheckName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrExtension, name)
}

// DiskUploader keeps uploads as files under a directory. Objects are served
// back under BaseURL + "/" + id.
type DiskUploader struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

// NewDiskUploader creates dir if needed.
func NewDiskUploader(dir, baseURL string, maxBytes int64) (*DiskUploader, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &DiskUploader{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxBytes: maxBytes}, nil
}

// Put validates name and streams r to disk. A file larger than MaxBytes is
// removed and ErrTooLarge returned.
func (u *DiskUploader) Put(ctx context.Context, name string, r io.Reader) (Result, error) {
	if err := CheckName(name); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	id := uuid.New().String() + strings.ToLower(filepath.Ext(name))
	path := filepath.Join(u.Dir, id)
	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("creating %s: %w", id, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, u.MaxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > u.MaxBytes {
		err = fmt.Errorf("%w: %s is over %d bytes", ErrTooLarge, name, u.MaxBytes)
	}
	if err != nil {
		os.Remove(path)
		return Result{}, err
	}
	return Result{
		Name: filepath.Base(name),
		URL:  u.BaseURL + "/" + id,
		ID:   id,
		Size: n,
	}, nil
}

// Delete removes a stored object. Deleting a missing object is not an error.
func (u *DiskUploader) Delete(_ context.Context, id string) error {
	path, err := u.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", id, err)
	}
	return nil
}

// Open returns a reader for a stored object.
func (u *DiskUploader) Open(id string) (*os.File, error) {
	path, err := u.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (u *DiskUploader) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", ErrNotFound
	}
	return filepath.Join(u.Dir, id), nil
}
