package handler

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/formdesigner/internal/upload"
)

// FileHandler serves objects stored by a DiskUploader.
type FileHandler struct {
	uploader *upload.DiskUploader
	prefix   string
}

// NewFileHandler serves uploads under prefix, which should match the
// uploader's BaseURL.
func NewFileHandler(u *upload.DiskUploader, prefix string) *FileHandler {
	return &FileHandler{uploader: u, prefix: "/" + strings.Trim(prefix, "/")}
}

// RegisterRoutes mounts the download endpoint on r.
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Get(h.prefix+"/{key}", h.HandleDownload)
}

// HandleDownload streams one stored object.
// GET /files/{key}
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	f, err := h.uploader.Open(key)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	if path.Ext(key) == ".bpmn" || path.Ext(key) == ".xml" {
		w.Header().Set("Content-Type", "application/xml")
	}
	http.ServeContent(w, r, key, info.ModTime(), f)
}
