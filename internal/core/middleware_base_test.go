package core

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"meteonotify/internal/config"
	"meteonotify/internal/types"
)

func newTestServerForMiddleware(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{Environment: "local"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv
}

// --- Recoverer Tests ---

func TestRecoverer_NoPanic(t *testing.T) {
	srv := newTestServerForMiddleware(t)

	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestRecoverer_Panic_ReturnsJSON500(t *testing.T) {
	srv := newTestServerForMiddleware(t)

	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something went wrong")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if resp.Error != "Internal Server Error" {
		t.Errorf("unexpected error message: %q", resp.Error)
	}
	if strings.Contains(rec.Body.String(), "something went wrong") {
		t.Error("panic value must not leak to the client")
	}
}

func TestRecoverer_PanicLogsStack(t *testing.T) {
	var buf bytes.Buffer
	srv, _ := NewServer(&config.Config{}, slog.New(slog.NewJSONHandler(&buf, nil)))

	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	logs := buf.String()
	if !strings.Contains(logs, "panic recovered") || !strings.Contains(logs, "boom") {
		t.Errorf("expected panic to be logged, got %s", logs)
	}
}

// --- SecurityHeaders Tests ---

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	srv := newTestServerForMiddleware(t)
	handler := srv.SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
}

// --- CORS Tests ---

var notifierPolicy = CORSPolicy{
	AllowedOrigins:  []string{"*"},
	AllowedMethods:  []string{"POST", "OPTIONS"},
	AllowedHeaders:  []string{"Content-Type"},
	PreflightStatus: http.StatusOK,
}

func TestCORSMiddleware_WildcardHeadersOnEveryResponse(t *testing.T) {
	handler := NewCORSMiddleware(notifierPolicy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected handler status to pass through, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Errorf("Allow-Headers = %q", got)
	}
	if rec.Header().Get("Vary") != "" {
		t.Error("wildcard origin must not set Vary")
	}
}

func TestCORSMiddleware_PreflightStatusAndEmptyBody(t *testing.T) {
	called := false
	handler := NewCORSMiddleware(notifierPolicy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	if called {
		t.Error("preflight must not reach the wrapped handler")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestCORSMiddleware_DefaultPreflightIs204(t *testing.T) {
	handler := NewCORSMiddleware(CORSPolicy{AllowedOrigins: []string{"*"}})(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
}

func TestCORSMiddleware_SpecificOrigin(t *testing.T) {
	policy := CORSPolicy{
		AllowedOrigins: []string{"https://meteoburkina.bf"},
		AllowedMethods: []string{"POST"},
	}
	handler := NewCORSMiddleware(policy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		origin string
		want   string
	}{
		{origin: "https://meteoburkina.bf", want: "https://meteoburkina.bf"},
		{origin: "https://evil.example", want: ""},
		{origin: "", want: ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %q: Allow-Origin = %q, want %q", tt.origin, got, tt.want)
		}
		if tt.want != "" && rec.Header().Get("Vary") != "Origin" {
			t.Errorf("origin %q: expected Vary: Origin", tt.origin)
		}
	}
}

// --- RequestLogger Tests ---

func TestRequestLogger_LogsRequestMetadata(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger, defaultRedactedHeaders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/notify", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-42"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if entry["method"] != "POST" || entry["path"] != "/notify" {
		t.Errorf("unexpected method/path: %v", entry)
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Errorf("status = %v", entry["status"])
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
}

func TestRequestLogger_RedactsHeaders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger, []string{"authorization"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	logs := buf.String()
	if strings.Contains(logs, "secret-token") {
		t.Error("authorization header leaked into logs")
	}
	if !strings.Contains(logs, "[REDACTED]") {
		t.Error("expected redaction marker")
	}
	if !strings.Contains(logs, "application/json") {
		t.Error("expected non-sensitive headers to be logged")
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{status: http.StatusOK, level: "INFO"},
		{status: http.StatusBadRequest, level: "WARN"},
		{status: http.StatusInternalServerError, level: "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		handler := RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

		if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
			t.Errorf("status %d: expected level %s, got %s", tt.status, tt.level, buf.String())
		}
	}
}

// --- responseCapture Tests ---

func TestResponseCapture(t *testing.T) {
	rec := httptest.NewRecorder()
	rc := &responseCapture{ResponseWriter: rec, statusCode: http.StatusOK}

	rc.WriteHeader(http.StatusAccepted)
	rc.WriteHeader(http.StatusTeapot)
	_, _ = rc.Write([]byte("x"))

	if rc.statusCode != http.StatusAccepted {
		t.Errorf("expected first status to win, got %d", rc.statusCode)
	}
	if rc.Unwrap() != rec {
		t.Error("Unwrap must return the wrapped writer")
	}
}

func TestEscapeJSON_HandlesSpecialChars(t *testing.T) {
	got := escapeJSON("a\"b\\c\nd")
	want := `a\"b\\c\nd`
	if got != want {
		t.Errorf("escapeJSON = %q, want %q", got, want)
	}
}
