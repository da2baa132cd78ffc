package diagnose

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

func sampleResult() shared.DiagnosticResult {
	return shared.DiagnosticResult{
		IsHealthy: false,
		Severity:  shared.SeverityCritical,
		Issues: []shared.Issue{
			{
				Kind:             shared.IssueTokenExpired,
				Message:          "Your session has expired",
				Severity:         shared.IssueSeverityCritical,
				CanAutoRecover:   true,
				TechnicalDetails: "validation status: invalid, expired",
			},
		},
		Recommendations: []string{"The session will be refreshed automatically"},
		CanAutoRecover:  true,
		SystemStatus: shared.SystemHealthStatus{
			AuthManagerHealthy:   true,
			TokenValid:           false,
			NetworkReachable:     true,
			IdentityAPIAvailable: true,
			ConfigValid:          true,
			CacheOperational:     true,
		},
		RecoveryPlan: &shared.RecoveryPlan{
			Steps: []shared.RecoveryStep{
				{Action: shared.ActionRefreshToken, Description: "Refresh the expired access token", Automated: true, EstimatedDurationMS: 5000},
				{Action: shared.ActionValidateRecovery, Description: "Verify that authentication is healthy again", Automated: true, EstimatedDurationMS: 5000},
			},
			EstimatedTime:      "Less than 1 minute",
			SuccessProbability: shared.ProbabilityHigh,
		},
	}
}

func TestFormatReport(t *testing.T) {
	report := FormatReport(sampleResult())

	for _, want := range []string{
		"Severity: critical",
		"Issues (1):",
		"[CRITICAL] token_expired: Your session has expired",
		"Recovery plan (Less than 1 minute, success probability high):",
		"1. [automated] Refresh the expired access token",
		"2. [automated] Verify that authentication is healthy again",
		"- The session will be refreshed automatically",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "incomplete") {
		t.Fatal("complete data must not carry the incomplete-data note")
	}
}

func TestFormatReportHealthy(t *testing.T) {
	report := FormatReport(shared.DiagnosticResult{
		IsHealthy:    true,
		Severity:     shared.SeverityHealthy,
		SystemStatus: shared.SystemHealthStatus{CacheOperational: true},
	})

	if !strings.Contains(report, "No issues detected.") {
		t.Fatalf("expected no-issues note:\n%s", report)
	}
}

func TestFormatReportIncompleteData(t *testing.T) {
	result := sampleResult()
	result.SystemStatus.CacheOperational = false

	report := FormatReport(result)
	if !strings.Contains(report, "Diagnostic data may be incomplete") {
		t.Fatalf("expected incomplete-data recommendation:\n%s", report)
	}
}

func TestExportDiagnosticDataRedactsTokens(t *testing.T) {
	result := sampleResult()
	result.Issues[0].Message = "request with ya29.a0AfB_byDEADBEEF failed"
	result.Issues[0].TechnicalDetails = "header Authorization: Bearer abc.def-123 rejected"

	data, err := ExportDiagnosticData(result)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.Contains(data, "ya29.") || strings.Contains(data, "abc.def-123") {
		t.Fatalf("token-shaped strings must be redacted:\n%s", data)
	}
	if !strings.Contains(data, "[REDACTED]") {
		t.Fatalf("expected redaction marker:\n%s", data)
	}

	var export diagnosticExport
	if err := json.Unmarshal([]byte(data), &export); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if export.Severity != shared.SeverityCritical {
		t.Fatalf("unexpected severity %s", export.Severity)
	}
	if len(export.Issues) != 1 {
		t.Fatalf("expected one issue, got %d", len(export.Issues))
	}
}

func TestExportDoesNotMutateInput(t *testing.T) {
	result := sampleResult()
	result.Issues[0].Message = "token ya29.secret_value-here"

	if _, err := ExportDiagnosticData(result); err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Issues[0].Message != "token ya29.secret_value-here" {
		t.Fatal("export must not mutate the caller's issues")
	}
}
