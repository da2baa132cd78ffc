package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

func TestHTTPTokenValidator(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid": true, "expired": false, "scopes": ["drive", "sheets"]}`))
	}))
	defer srv.Close()

	validator := NewHTTPTokenValidator(srv.URL, []string{"drive", "sheets"}, nil)
	validation, err := validator.Validate(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if !validation.IsValid || !validation.HasRequiredScopes || validation.IsExpired {
		t.Fatalf("unexpected validation %+v", validation)
	}
}

func TestHTTPTokenValidatorMissingScopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"valid": true, "scopes": ["drive"]}`))
	}))
	defer srv.Close()

	validator := NewHTTPTokenValidator(srv.URL, []string{"drive", "sheets"}, nil)
	validation, err := validator.Validate(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validation.HasRequiredScopes {
		t.Fatalf("sheets is missing, expected HasRequiredScopes false: %+v", validation)
	}
}

func TestHTTPTokenValidatorNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	validator := NewHTTPTokenValidator(srv.URL, nil, nil)
	_, err := validator.Validate(context.Background(), "tok-1")
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}

	var statusErr *shared.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", statusErr.Code)
	}
}

func TestHTTPTokenIssuer(t *testing.T) {
	var gotScopes, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotScopes = r.PostForm.Get("scopes")
		gotPrompt = r.PostForm.Get("prompt")
		w.Write([]byte(`{"access_token": "fresh-token"}`))
	}))
	defer srv.Close()

	issuer := NewHTTPTokenIssuer(srv.URL, nil)
	token, err := issuer.Issue(context.Background(), true, []string{"drive", "sheets"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token != "fresh-token" {
		t.Fatalf("unexpected token %q", token)
	}
	if gotScopes != "drive sheets" {
		t.Fatalf("unexpected scopes %q", gotScopes)
	}
	if gotPrompt != "consent" {
		t.Fatalf("interactive issue must request consent, got %q", gotPrompt)
	}
}

func TestHTTPTokenIssuerEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := NewHTTPTokenIssuer(srv.URL, nil).Issue(context.Background(), false, nil); err == nil {
		t.Fatal("expected error for empty access token")
	}
}

func TestHTTPReachabilityProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	probe := NewHTTPReachabilityProbe(srv.URL, nil)
	if !probe.Reachable(context.Background()) {
		t.Fatal("running server must be reachable")
	}

	srv.Close()
	if probe.Reachable(context.Background()) {
		t.Fatal("closed server must be unreachable")
	}

	if !NewHTTPReachabilityProbe("", nil).Reachable(context.Background()) {
		t.Fatal("empty endpoint defaults to reachable")
	}
}

func TestStaticEnvironment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	env := NewStaticEnvironment(srv.URL, true, "2.1.0", nil)
	if !env.IdentityAPIAvailable() {
		t.Fatal("identity endpoint is up")
	}
	if !env.OAuthConfigPresent() {
		t.Fatal("config present flag lost")
	}
	if env.AppVersion() != "2.1.0" {
		t.Fatalf("unexpected version %q", env.AppVersion())
	}

	srvDown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srvDown.Close()
	if down := NewStaticEnvironment(srvDown.URL, true, "", nil); down.IdentityAPIAvailable() {
		t.Fatal("5xx identity endpoint must report unavailable")
	}

	if !NewStaticEnvironment("", false, "", nil).IdentityAPIAvailable() {
		t.Fatal("empty identity URL defaults to available")
	}
}
