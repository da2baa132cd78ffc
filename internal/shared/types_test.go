package shared

import (
	"testing"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		critical int
		warning  int
		want     ResultSeverity
	}{
		{0, 0, SeverityHealthy},
		{0, 1, SeverityWarning},
		{0, 5, SeverityWarning},
		{1, 0, SeverityCritical},
		{2, 3, SeverityCritical},
		{3, 0, SeverityFatal},
		{7, 7, SeverityFatal},
	}
	for _, tt := range tests {
		if got := SeverityFor(tt.critical, tt.warning); got != tt.want {
			t.Fatalf("SeverityFor(%d, %d) = %s, want %s", tt.critical, tt.warning, got, tt.want)
		}
	}
}

func TestSeverityForNeverHealthyWithIssues(t *testing.T) {
	for critical := 0; critical <= 5; critical++ {
		for warning := 0; warning <= 5; warning++ {
			got := SeverityFor(critical, warning)
			if critical+warning > 0 && got == SeverityHealthy {
				t.Fatalf("SeverityFor(%d, %d) must not be healthy", critical, warning)
			}
			if critical == 0 && got == SeverityCritical {
				t.Fatalf("SeverityFor(%d, %d) must not be critical without critical issues", critical, warning)
			}
		}
	}
}

func TestHasToken(t *testing.T) {
	var nilState *AuthState
	if nilState.HasToken() {
		t.Fatal("nil state has no token")
	}
	if (&AuthState{IsAuthenticated: true}).HasToken() {
		t.Fatal("state without user has no token")
	}
	if (&AuthState{IsAuthenticated: true, User: &AuthUser{}}).HasToken() {
		t.Fatal("empty access token does not count")
	}
	if !(&AuthState{IsAuthenticated: true, User: &AuthUser{AccessToken: "tok"}}).HasToken() {
		t.Fatal("expected HasToken true")
	}
}

func TestAuthStateValidate(t *testing.T) {
	var nilState *AuthState
	if err := nilState.Validate(); err == nil {
		t.Fatal("nil state must fail validation")
	}
	if err := (&AuthState{IsAuthenticated: true}).Validate(); err == nil {
		t.Fatal("authenticated state without user must fail validation")
	}
	if err := (&AuthState{}).Validate(); err != nil {
		t.Fatalf("unauthenticated state is valid: %v", err)
	}
	if err := (&AuthState{IsAuthenticated: true, User: &AuthUser{}}).Validate(); err != nil {
		t.Fatalf("authenticated state with user is valid: %v", err)
	}
}

func TestTokenRefreshConfigNormalize(t *testing.T) {
	got := TokenRefreshConfig{}.Normalize()
	if got.TimeoutMS != 30000 || got.RetryCount != 3 {
		t.Fatalf("unexpected defaults %+v", got)
	}

	custom := TokenRefreshConfig{TimeoutMS: 5000, RetryCount: 1, Interactive: true}.Normalize()
	if custom.TimeoutMS != 5000 || custom.RetryCount != 1 || !custom.Interactive {
		t.Fatalf("explicit values must survive normalization: %+v", custom)
	}

	if got := DefaultTokenRefreshConfig(); got != got.Normalize() {
		t.Fatalf("defaults must already be normalized: %+v", got)
	}
}

func TestCriticalCount(t *testing.T) {
	result := DiagnosticResult{Issues: []Issue{
		{Severity: IssueSeverityCritical},
		{Severity: IssueSeverityWarning},
		{Severity: IssueSeverityCritical},
		{Severity: IssueSeverityInfo},
	}}
	if got := result.CriticalCount(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}
