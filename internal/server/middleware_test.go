package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/ctxutil"
	"github.com/chartmed-ai/karte/internal/model"
)

func TestAuthExempt(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/v1/auth/signup", true},
		{"/v1/auth/signin", true},
		{"/healthz", true},
		{"/readyz", true},
		{"/openapi.yaml", true},
		{"/", true},
		{"/assets/app.js", true},
		{"/patients/view/123", true},
		{"/v1/patients", false},
		{"/v1/cases/abc/submit", false},
		{"/v1/activity", false},
		{"/mcp", false},
	}

	for _, tc := range cases {
		if got := authExempt(tc.path); got != tc.want {
			t.Errorf("authExempt(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := requestIDMiddleware(inner)

	// Inbound request IDs are honored.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "client-req-1")
	handler.ServeHTTP(rec, req)

	if seen != "client-req-1" {
		t.Errorf("context request ID = %q, want %q", seen, "client-req-1")
	}
	if got := rec.Header().Get("X-Request-ID"); got != "client-req-1" {
		t.Errorf("response X-Request-ID = %q, want %q", got, "client-req-1")
	}

	// Without one, an ID is generated.
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/healthz", nil)
	handler.ServeHTTP(rec2, req2)

	if seen == "" {
		t.Error("expected a generated request ID in context")
	}
	if rec2.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID response header")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := securityHeadersMiddleware(inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestCORSMiddleware_NoOriginsConfigured(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware(nil, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty (CORS disabled)", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware([]string{"http://localhost:5173"}, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the request origin", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want %q", got, "Origin")
	}

	// Unknown origins are passed through without CORS headers.
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/healthz", nil)
	req2.Header.Set("Origin", "http://evil.example")
	handler.ServeHTTP(rec2, req2)

	if got := rec2.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty for unknown origin", got)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	var reachedInner bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reachedInner = true
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware([]string{"http://localhost:5173"}, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/v1/patients", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if reachedInner {
		t.Error("preflight should be answered without reaching the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("preflight response missing Access-Control-Allow-Methods")
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "300" {
		t.Errorf("Access-Control-Max-Age = %q, want %q", got, "300")
	}
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware([]string{"*"}, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "http://anything.example")
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://anything.example" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the request origin echoed", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(jwtMgr, inner)

	cases := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{name: "exempt path", path: "/healthz", wantStatus: http.StatusOK},
		{name: "missing header", path: "/v1/patients", wantStatus: http.StatusUnauthorized, wantMsg: "missing authorization header"},
		{name: "wrong scheme", path: "/v1/patients", header: "Basic Zm9vOmJhcg==", wantStatus: http.StatusUnauthorized, wantMsg: "invalid authorization format"},
		{name: "garbage token", path: "/v1/patients", header: "Bearer garbage", wantStatus: http.StatusUnauthorized, wantMsg: "invalid or expired token"},
		{name: "mcp requires token", path: "/mcp", wantStatus: http.StatusUnauthorized, wantMsg: "missing authorization header"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantMsg != "" {
				var env model.APIError
				if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
					t.Fatalf("unmarshal error body: %v", err)
				}
				if env.Error.Message != tc.wantMsg {
					t.Errorf("error message = %q, want %q", env.Error.Message, tc.wantMsg)
				}
			}
		})
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	hosp := model.Hospital{ID: uuid.New(), Name: "Test Hospital", Email: "staff@test-hp.example"}
	token, _, err := jwtMgr.IssueToken(hosp)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var gotClaims *auth.Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(jwtMgr, inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/patients", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotClaims == nil {
		t.Fatal("expected claims in request context")
	}
	if gotClaims.HospitalID != hosp.ID {
		t.Errorf("claims hospital ID = %s, want %s", gotClaims.HospitalID, hosp.ID)
	}
	if gotClaims.Email != hosp.Email {
		t.Errorf("claims email = %q, want %q", gotClaims.Email, hosp.Email)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(logger, inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/patients", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var env model.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if env.Error.Code != model.ErrCodeInternalError {
		t.Errorf("error code = %q, want %q", env.Error.Code, model.ErrCodeInternalError)
	}
	if env.Error.Message != "internal server error" {
		t.Errorf("error message = %q, want %q", env.Error.Message, "internal server error")
	}
}

func TestHospitalKeyFunc(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/patients", nil)
	if got := hospitalKeyFunc(req); got != "" {
		t.Errorf("key for unauthenticated request = %q, want empty", got)
	}

	claims := &auth.Claims{HospitalID: uuid.New()}
	req = req.WithContext(ctxutil.WithClaims(req.Context(), claims))

	want := "hospital:" + claims.HospitalID.String()
	if got := hospitalKeyFunc(req); got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusTeapot)
	if sw.statusCode != http.StatusTeapot {
		t.Errorf("recorded status = %d, want %d", sw.statusCode, http.StatusTeapot)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("underlying status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}
