// Package submission turns filled-in forms into structured bot events.
package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ashureev/chatwidget/internal/domain"
)

// AllowedResumeExtensions lists the resume formats the upload endpoint accepts.
var AllowedResumeExtensions = []string{".pdf", ".docx"}

var (
	inquiryRequired = []string{domain.FieldName, domain.FieldEmail, domain.FieldPhone, domain.FieldSubject, domain.FieldMessage}
	inquiryOptional = []string{domain.FieldServiceID}
	applyRequired   = []string{domain.FieldName, domain.FieldEmail, domain.FieldPhone}
)

// Uploader sends a resume to the upload boundary and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, filename string, body io.Reader) (string, error)
}

// Resume is a file picked for a job application.
type Resume struct {
	Name string
	Data []byte
}

// Empty reports whether no file was selected.
func (r Resume) Empty() bool {
	return r.Name == "" || len(r.Data) == 0
}

// LoadResume reads a resume from disk. An empty path yields an empty Resume.
func LoadResume(path string) (Resume, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Resume{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Resume{}, fmt.Errorf("read resume: %w", err)
	}
	return Resume{Name: filepath.Base(path), Data: data}, nil
}

// Adapter validates forms and builds structured submissions.
type Adapter struct {
	uploader Uploader
}

// NewAdapter creates an adapter that uploads resumes through u.
func NewAdapter(u Uploader) *Adapter {
	return &Adapter{uploader: u}
}

// Inquiry validates an inquiry form and packages it.
func (a *Adapter) Inquiry(fields domain.Fields) (domain.OutboundEvent, error) {
	clean, err := normalize(fields, inquiryRequired, inquiryOptional)
	if err != nil {
		return domain.OutboundEvent{}, fmt.Errorf("inquiry: %w", err)
	}
	return domain.StructuredSubmission(domain.Inquiry, clean), nil
}

// ValidateJobApplication checks the job application fields without uploading anything.
func (a *Adapter) ValidateJobApplication(fields domain.Fields) error {
	if _, err := normalize(fields, applyRequired, nil); err != nil {
		return fmt.Errorf("job application: %w", err)
	}
	return nil
}

// Upload sends the resume out of band. Every failure wraps domain.ErrUploadFailed.
func (a *Adapter) Upload(ctx context.Context, resume Resume) (string, error) {
	if resume.Empty() {
		return "", domain.ErrNoFileSelected
	}
	ext := strings.ToLower(filepath.Ext(resume.Name))
	if !slices.Contains(AllowedResumeExtensions, ext) {
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrUploadFailed, ext)
	}
	if a.uploader == nil {
		return "", fmt.Errorf("%w: no upload endpoint configured", domain.ErrUploadFailed)
	}

	ref, err := a.uploader.Upload(ctx, resume.Name, bytes.NewReader(resume.Data))
	if err != nil {
		if errors.Is(err, domain.ErrUploadFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	if ref == "" {
		return "", fmt.Errorf("%w: empty resume reference", domain.ErrUploadFailed)
	}
	return ref, nil
}

// JobApplication packages a job application around an uploaded resume.
func (a *Adapter) JobApplication(fields domain.Fields, resumeRef string) (domain.OutboundEvent, error) {
	if resumeRef == "" {
		return domain.OutboundEvent{}, fmt.Errorf("job application: %w: missing resume reference", domain.ErrInvalidSubmission)
	}
	clean, err := normalize(fields, applyRequired, nil)
	if err != nil {
		return domain.OutboundEvent{}, fmt.Errorf("job application: %w", err)
	}
	clean[domain.FieldResumeFile] = resumeRef
	return domain.StructuredSubmission(domain.JobApplication, clean), nil
}

// normalize trims values, keeps only known fields and checks required ones.
func normalize(fields domain.Fields, required, optional []string) (domain.Fields, error) {
	out := make(domain.Fields, len(required)+len(optional)+1)
	for _, key := range required {
		value := strings.TrimSpace(fields[key])
		if value == "" {
			return nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidSubmission, key)
		}
		out[key] = value
	}
	for _, key := range optional {
		if value := strings.TrimSpace(fields[key]); value != "" {
			out[key] = value
		}
	}
	if _, err := mail.ParseAddress(out[domain.FieldEmail]); err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", domain.ErrInvalidSubmission, out[domain.FieldEmail])
	}
	return out, nil
}
