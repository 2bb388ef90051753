package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(origins []string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, reached
}

func TestCORSExplicitOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/upload-resume", nil)
	req.Header.Set("Origin", "http://shop.test")

	rr, reached := serveCORS([]string{"http://shop.test"}, req)
	if !reached {
		t.Fatal("handler not reached")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://shop.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://other.test")

	rr, _ := serveCORS([]string{"*"}, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://other.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q for wildcard match", got)
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://evil.test")

	rr, reached := serveCORS([]string{"http://shop.test"}, req)
	if !reached {
		t.Fatal("handler not reached")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/upload-resume", nil)
	req.Header.Set("Origin", "http://shop.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rr, reached := serveCORS([]string{"*"}, req)
	if reached {
		t.Fatal("preflight reached the handler")
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}
