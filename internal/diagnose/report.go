package diagnose

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// tokenPattern matches bearer-token-shaped strings so raw error text never
// leaks credentials into exported reports.
var tokenPattern = regexp.MustCompile(`(?i)(ya29\.[\w.-]+|bearer\s+[\w.-]+|[\w-]{40,})`)

// FormatReport renders a diagnostic result as a human-readable report.
// It is best-effort: incomplete results still produce a usable report with
// an added recommendation instead of an error.
func FormatReport(result shared.DiagnosticResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Authentication Health Report\n")
	fmt.Fprintf(&b, "Severity: %s\n", result.Severity)
	fmt.Fprintf(&b, "Healthy:  %v\n", result.IsHealthy)

	if len(result.Issues) == 0 {
		b.WriteString("\nNo issues detected.\n")
	} else {
		fmt.Fprintf(&b, "\nIssues (%d):\n", len(result.Issues))
		for _, issue := range result.Issues {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", strings.ToUpper(string(issue.Severity)), issue.Kind, issue.Message)
		}
	}

	if plan := result.RecoveryPlan; plan != nil && len(plan.Steps) > 0 {
		fmt.Fprintf(&b, "\nRecovery plan (%s, success probability %s):\n", plan.EstimatedTime, plan.SuccessProbability)
		for i, step := range plan.Steps {
			mode := "manual"
			if step.Automated {
				mode = "automated"
			}
			fmt.Fprintf(&b, "  %d. [%s] %s\n", i+1, mode, step.Description)
		}
	}

	if len(result.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range result.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	if !result.SystemStatus.CacheOperational {
		b.WriteString("\n  - Diagnostic data may be incomplete; include this report when contacting support\n")
	}

	return b.String()
}

// diagnosticExport is the serialized form of a result. System status is
// limited to its boolean fields and free-text fields are scrubbed of
// token-shaped strings.
type diagnosticExport struct {
	ExportedAt      time.Time                 `json:"exported_at"`
	IsHealthy       bool                      `json:"is_healthy"`
	Severity        shared.ResultSeverity     `json:"severity"`
	Issues          []shared.Issue            `json:"issues"`
	Recommendations []string                  `json:"recommendations"`
	NeedsUserAction bool                      `json:"needs_user_action"`
	CanAutoRecover  bool                      `json:"can_auto_recover"`
	SystemStatus    shared.SystemHealthStatus `json:"system_status"`
	RecoveryPlan    *shared.RecoveryPlan      `json:"recovery_plan,omitempty"`
}

// ExportDiagnosticData serializes a result for support tickets, with
// credential-shaped strings redacted.
func ExportDiagnosticData(result shared.DiagnosticResult) (string, error) {
	issues := make([]shared.Issue, len(result.Issues))
	for i, issue := range result.Issues {
		issue.Message = redact(issue.Message)
		issue.TechnicalDetails = redact(issue.TechnicalDetails)
		issues[i] = issue
	}

	export := diagnosticExport{
		ExportedAt:      time.Now().UTC(),
		IsHealthy:       result.IsHealthy,
		Severity:        result.Severity,
		Issues:          issues,
		Recommendations: result.Recommendations,
		NeedsUserAction: result.NeedsUserAction,
		CanAutoRecover:  result.CanAutoRecover,
		SystemStatus:    result.SystemStatus,
		RecoveryPlan:    result.RecoveryPlan,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export diagnostic data: %w", err)
	}
	return string(data), nil
}

func redact(text string) string {
	if text == "" {
		return text
	}
	return tokenPattern.ReplaceAllString(text, "[REDACTED]")
}
