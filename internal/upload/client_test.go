package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/chatwidget/internal/domain"
)

func TestUploadSendsMultipartFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "cv.pdf" || string(data) != "%PDF" {
			t.Errorf("got file %q with %q", header.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"filename":"uploads/abc.pdf"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, nil)
	ref, err := c.Upload(context.Background(), "cv.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if ref != "uploads/abc.pdf" {
		t.Fatalf("Upload() = %q, want uploads/abc.pdf", ref)
	}
}

func TestUploadFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"Invalid file type"}`, "Invalid file type"},
		{"server error", http.StatusInternalServerError, `{"detail":"disk full"}`, "disk full"},
		{"missing filename", http.StatusOK, `{}`, "no filename"},
		{"malformed body", http.StatusOK, `not json`, "decode response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, 0, nil).Upload(context.Background(), "cv.pdf", strings.NewReader("x"))
			if !errors.Is(err, domain.ErrUploadFailed) {
				t.Fatalf("Upload() error = %v, want ErrUploadFailed", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("Upload() error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestUploadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, 0, nil).Upload(context.Background(), "cv.pdf", strings.NewReader("x"))
	if !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("Upload() error = %v, want ErrUploadFailed", err)
	}
}
