package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MaxResumeSize bounds an uploaded resume.
const MaxResumeSize = 10 << 20

var resumeExtensions = []string{".pdf", ".docx"}

// UploadHandler stores resumes posted by the widget.
type UploadHandler struct {
	dir    string
	logger *slog.Logger
}

// NewUploadHandler creates a handler that writes resumes under dir.
func NewUploadHandler(dir string, logger *slog.Logger) (*UploadHandler, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{dir: dir, logger: logger}, nil
}

// RegisterRoutes registers the upload route.
func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload-resume", h.UploadResume)
}

// UploadResume accepts a multipart "file" part and responds with
// {"filename": "<stored path>"}.
func (h *UploadHandler) UploadResume(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxResumeSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(resumeExtensions, ext) {
		Error(w, http.StatusBadRequest, "File must be PDF or DOCX format")
		return
	}

	path := filepath.Join(h.dir, uuid.NewString()+ext)
	if err := writeFile(path, file); err != nil {
		h.logger.Error("Failed to store resume", "filename", header.Filename, "error", err)
		Error(w, http.StatusInternalServerError, "File upload failed")
		return
	}

	h.logger.Info("Resume stored", "filename", header.Filename, "path", path, "size", header.Size)
	JSON(w, http.StatusOK, map[string]string{"filename": path})
}

func writeFile(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
