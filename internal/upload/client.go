// Package upload is the HTTP client for the resume upload endpoint.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ashureev/chatwidget/internal/domain"
)

// DefaultTimeout bounds a single upload request.
const DefaultTimeout = 60 * time.Second

// Response is the JSON body returned by a successful upload.
type Response struct {
	Filename string `json:"filename"`
}

// Client posts resumes as multipart/form-data with a single "file" part.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates an upload client for the given endpoint URL.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Upload sends body as filename and returns the stored reference.
// Non-2xx responses and malformed bodies wrap domain.ErrUploadFailed.
func (c *Client) Upload(ctx context.Context, filename string, body io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("%w: build request: %w", domain.ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readDetail(resp.Body)
		c.logger.Warn("Resume upload rejected", "status", resp.StatusCode, "detail", detail)
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrUploadFailed, resp.StatusCode, detail)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", domain.ErrUploadFailed, err)
	}
	if out.Filename == "" {
		return "", fmt.Errorf("%w: response carried no filename", domain.ErrUploadFailed)
	}

	c.logger.Info("Resume uploaded", "filename", filename, "reference", out.Filename, "duration_ms", time.Since(start).Milliseconds())
	return out.Filename, nil
}

// readDetail extracts an error message from a JSON {"error"|"detail": ...}
// body, falling back to the raw text.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return string(raw)
}
