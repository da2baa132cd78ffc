package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/diagnose"
	"github.com/Bldg-7/authdoctor/internal/shared"
)

type stubValidator struct{}

func (stubValidator) Validate(ctx context.Context, token string) (shared.TokenValidation, error) {
	return shared.TokenValidation{IsValid: true, HasRequiredScopes: true}, nil
}

type stubNetwork struct{}

func (stubNetwork) Reachable(ctx context.Context) bool { return true }

type stubEnv struct{}

func (stubEnv) IdentityAPIAvailable() bool { return true }
func (stubEnv) OAuthConfigPresent() bool   { return true }
func (stubEnv) AppVersion() string         { return "" }

func newTestAPI(t *testing.T) *API {
	t.Helper()

	probe := diagnose.NewProbe(stubValidator{}, stubNetwork{}, stubEnv{}, nil, zap.NewNop())
	engine := diagnose.NewEngine(probe, diagnose.NewPlanner(), zap.NewNop())
	cache, err := diagnose.NewCache(0)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return NewAPI(engine, cache, nil, nil, nil, nil, "test-token", zap.NewNop())
}

func authedRequest(method, target string, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.Header.Set("Authorization", "Bearer test-token")
	return r
}

func TestLivenessNeedsNoAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDiagnoseRequiresAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/diagnose", strings.NewReader(`{}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Code != "AUTH_REQUIRED" {
		t.Fatalf("unexpected code %q", resp.Code)
	}
}

func TestAuthViaQueryParameter(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/diagnose?token=test-token", strings.NewReader(`{"auth_state": null}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEmptyAuthTokenRejectsEverything(t *testing.T) {
	probe := diagnose.NewProbe(stubValidator{}, stubNetwork{}, stubEnv{}, nil, zap.NewNop())
	engine := diagnose.NewEngine(probe, diagnose.NewPlanner(), zap.NewNop())
	api := NewAPI(engine, nil, nil, nil, nil, nil, "", zap.NewNop())
	handler := api.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/diagnose", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer anything")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no configured token, got %d", rec.Code)
	}
}

func TestDiagnoseEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()

	body := `{
		"status_code": 429,
		"raw_error": "rate limit exceeded",
		"auth_state": {"is_authenticated": true, "user": {"access_token": "tok"}}
	}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/diagnose", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result shared.DiagnosticResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Severity != shared.SeverityWarning {
		t.Fatalf("expected warning severity, got %s", result.Severity)
	}
	if len(result.Issues) != 1 || result.Issues[0].Kind != shared.IssueNetworkError {
		t.Fatalf("unexpected issues %+v", result.Issues)
	}
}

func TestDiagnoseCachesIdenticalRequests(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	body := `{"auth_state": {"is_authenticated": true, "user": {"access_token": "tok"}}}`

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, authedRequest(http.MethodPost, "/api/v1/diagnose", body))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, authedRequest(http.MethodPost, "/api/v1/diagnose", body))

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200s, got %d and %d", first.Code, second.Code)
	}

	var a, b shared.DiagnosticResult
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if !a.GeneratedAt.Equal(b.GeneratedAt) {
		t.Fatal("identical requests within the TTL must share one cached result")
	}
}

func TestDiagnoseRejectsBadBody(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/diagnose", `{not json`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/report", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text report, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Authentication Health Report") {
		t.Fatalf("unexpected report body:\n%s", rec.Body.String())
	}
}

func TestExportEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/export", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if _, ok := payload["severity"]; !ok {
		t.Fatalf("export missing severity: %v", payload)
	}
}

func TestHistoryNotConfigured(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/history", ""))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a history store, got %d", rec.Code)
	}
}

func TestReadinessDegraded(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	// No monitor configured: readiness defaults to ready.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
