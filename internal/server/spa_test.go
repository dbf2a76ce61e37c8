package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func TestIsAPIPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		// API paths that should be detected.
		{"/v1/patients", true},
		{"/v1/cases/some-id/submit", true},
		{"/v1/auth/signup", true},
		{"/v1/activity", true},
		{"/v1/", true},
		{"/mcp", true},
		{"/healthz", true},
		{"/readyz", true},
		{"/openapi.yaml", true},

		// Non-API paths that the SPA should handle.
		{"/", false},
		{"/patients", false},
		{"/cases", false},
		{"/dashboard", false},
		{"/assets/index-abc123.js", false},
		{"/favicon.ico", false},
		{"/some/other/path", false},

		// Edge cases.
		{"", false},
		{"/v1", false},        // Must have trailing slash to match /v1/ prefix.
		{"/v2/foo", false},    // Different API version is not recognized.
		{"/mcpserver", false}, // /mcp must match exactly, not as a prefix.
		{"/healthzz", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := isAPIPath(tt.path)
			if got != tt.want {
				t.Errorf("isAPIPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSetCacheHeaders(t *testing.T) {
	tests := []struct {
		name    string
		urlPath string
		wantCC  string // expected Cache-Control header value
	}{
		{
			name:    "hashed JS asset gets immutable cache",
			urlPath: "/assets/index-abc123.js",
			wantCC:  "public, max-age=31536000, immutable",
		},
		{
			name:    "hashed CSS asset gets immutable cache",
			urlPath: "/assets/style-def456.css",
			wantCC:  "public, max-age=31536000, immutable",
		},
		{
			name:    "non-asset file gets standard cache",
			urlPath: "/favicon.ico",
			wantCC:  "public, max-age=3600",
		},
		{
			name:    "index gets standard cache",
			urlPath: "/index.html",
			wantCC:  "public, max-age=3600",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			setCacheHeaders(w, tt.urlPath)
			got := w.Header().Get("Cache-Control")
			if got != tt.wantCC {
				t.Errorf("setCacheHeaders(%q): Cache-Control = %q, want %q", tt.urlPath, got, tt.wantCC)
			}
		})
	}
}

func TestSPAHandler(t *testing.T) {
	handler := newSPAHandler(fstest.MapFS{
		"index.html":           &fstest.MapFile{Data: []byte("<!doctype html><title>Karte</title>")},
		"assets/index-a1b2.js": &fstest.MapFile{Data: []byte("console.log('karte')")},
	})

	t.Run("existing asset is served with cache headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/assets/index-a1b2.js", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), "console.log") {
			t.Errorf("body = %q, want the asset content", rec.Body.String())
		}
		if got := rec.Header().Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
			t.Errorf("Cache-Control = %q, want immutable caching", got)
		}
	})

	t.Run("unknown route falls back to index.html", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/patients/view/123", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), "<title>Karte</title>") {
			t.Errorf("body = %q, want index.html content", rec.Body.String())
		}
		if got := rec.Header().Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
			t.Errorf("Cache-Control = %q, want no-cache for the index fallback", got)
		}
	})

	t.Run("unmatched API route returns a JSON 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/does-not-exist", nil))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		if !strings.Contains(rec.Body.String(), `"NOT_FOUND"`) {
			t.Errorf("body = %q, want a NOT_FOUND error payload", rec.Body.String())
		}
	})

	t.Run("traversal attempts cannot escape the filesystem", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/../../etc/passwd", nil))

		// The cleaned path has no matching file, so the SPA serves index.html.
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), "<title>Karte</title>") {
			t.Errorf("body = %q, want index.html content", rec.Body.String())
		}
	})
}
