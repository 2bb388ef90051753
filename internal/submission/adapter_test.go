package submission

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/chatwidget/internal/domain"
)

type fakeUploader struct {
	calls    int
	filename string
	body     string
	ref      string
	err      error
}

func (f *fakeUploader) Upload(_ context.Context, filename string, body io.Reader) (string, error) {
	f.calls++
	f.filename = filename
	data, _ := io.ReadAll(body)
	f.body = string(data)
	return f.ref, f.err
}

func validInquiry() domain.Fields {
	return domain.Fields{
		domain.FieldName:    " Ada ",
		domain.FieldEmail:   "ada@example.com",
		domain.FieldPhone:   "555-0100",
		domain.FieldSubject: "Pricing",
		domain.FieldMessage: "How much?",
		"unexpected":        "dropped",
	}
}

func TestInquiry(t *testing.T) {
	a := NewAdapter(nil)

	ev, err := a.Inquiry(validInquiry())
	if err != nil {
		t.Fatalf("Inquiry() error: %v", err)
	}
	if ev.Kind != domain.OutboundSubmission || ev.Submission != domain.Inquiry {
		t.Fatalf("event = %+v, want inquiry submission", ev)
	}
	if ev.Fields[domain.FieldName] != "Ada" {
		t.Errorf("name = %q, want trimmed value", ev.Fields[domain.FieldName])
	}
	if _, ok := ev.Fields["unexpected"]; ok {
		t.Error("unknown field was forwarded")
	}
	if _, ok := ev.Fields[domain.FieldServiceID]; ok {
		t.Error("empty optional service_id was forwarded")
	}
}

func TestInquiryValidation(t *testing.T) {
	a := NewAdapter(nil)
	tests := []struct {
		name   string
		mutate func(domain.Fields)
	}{
		{"missing name", func(f domain.Fields) { delete(f, domain.FieldName) }},
		{"blank message", func(f domain.Fields) { f[domain.FieldMessage] = "   " }},
		{"bad email", func(f domain.Fields) { f[domain.FieldEmail] = "not-an-email" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validInquiry()
			tt.mutate(fields)
			if _, err := a.Inquiry(fields); !errors.Is(err, domain.ErrInvalidSubmission) {
				t.Fatalf("Inquiry() error = %v, want ErrInvalidSubmission", err)
			}
		})
	}
}

func TestUploadNoFileSelected(t *testing.T) {
	up := &fakeUploader{ref: "uploads/x.pdf"}
	a := NewAdapter(up)

	_, err := a.Upload(context.Background(), Resume{})
	if !errors.Is(err, domain.ErrNoFileSelected) || !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("Upload() error = %v, want ErrNoFileSelected", err)
	}
	if up.calls != 0 {
		t.Fatalf("uploader called %d times, want 0", up.calls)
	}
}

func TestUploadRejectsExtension(t *testing.T) {
	up := &fakeUploader{ref: "uploads/x.exe"}
	a := NewAdapter(up)

	_, err := a.Upload(context.Background(), Resume{Name: "cv.exe", Data: []byte("MZ")})
	if !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("Upload() error = %v, want ErrUploadFailed", err)
	}
	if up.calls != 0 {
		t.Fatal("uploader called for rejected extension")
	}
}

func TestUploadWrapsUploaderError(t *testing.T) {
	a := NewAdapter(&fakeUploader{err: errors.New("status 500")})

	_, err := a.Upload(context.Background(), Resume{Name: "cv.PDF", Data: []byte("%PDF")})
	if !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("Upload() error = %v, want ErrUploadFailed", err)
	}
}

func TestUploadAndJobApplication(t *testing.T) {
	up := &fakeUploader{ref: "uploads/123.pdf"}
	a := NewAdapter(up)

	ref, err := a.Upload(context.Background(), Resume{Name: "cv.pdf", Data: []byte("%PDF-1.7")})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if up.filename != "cv.pdf" || up.body != "%PDF-1.7" {
		t.Fatalf("uploader saw %q/%q", up.filename, up.body)
	}

	fields := domain.Fields{
		domain.FieldName:  "Ada",
		domain.FieldEmail: "ada@example.com",
		domain.FieldPhone: "555-0100",
	}
	if err := a.ValidateJobApplication(fields); err != nil {
		t.Fatalf("ValidateJobApplication() error: %v", err)
	}
	ev, err := a.JobApplication(fields, ref)
	if err != nil {
		t.Fatalf("JobApplication() error: %v", err)
	}
	if ev.Submission != domain.JobApplication || ev.Fields[domain.FieldResumeFile] != ref {
		t.Fatalf("event = %+v, want job application with resume %q", ev, ref)
	}
	if _, ok := fields[domain.FieldResumeFile]; ok {
		t.Error("JobApplication() mutated the caller's fields")
	}
}

func TestJobApplicationRequiresReference(t *testing.T) {
	a := NewAdapter(nil)
	fields := domain.Fields{
		domain.FieldName:  "Ada",
		domain.FieldEmail: "ada@example.com",
		domain.FieldPhone: "555-0100",
	}
	if _, err := a.JobApplication(fields, ""); !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Fatalf("JobApplication() error = %v, want ErrInvalidSubmission", err)
	}
}

func TestLoadResume(t *testing.T) {
	empty, err := LoadResume("  ")
	if err != nil || !empty.Empty() {
		t.Fatalf("LoadResume(blank) = %+v, %v; want empty resume", empty, err)
	}

	path := filepath.Join(t.TempDir(), "resume.docx")
	if err := os.WriteFile(path, []byte("PK"), 0o600); err != nil {
		t.Fatalf("write resume: %v", err)
	}
	r, err := LoadResume(path)
	if err != nil {
		t.Fatalf("LoadResume() error: %v", err)
	}
	if r.Name != "resume.docx" || string(r.Data) != "PK" {
		t.Fatalf("LoadResume() = %+v", r)
	}

	if _, err := LoadResume(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatal("LoadResume() of missing file returned nil error")
	}
}
