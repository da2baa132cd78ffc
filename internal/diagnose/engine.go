package diagnose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

const expiryWarningWindow = 5 * time.Minute

// Engine orchestrates the probe, classifier, parser, and planner into a
// single diagnostic result. Diagnose never fails the caller: any internal
// fault is converted to a fatal result.
type Engine struct {
	probe   *Probe
	planner *Planner
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewEngine builds a diagnostic engine.
func NewEngine(probe *Probe, planner *Planner, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		probe:   probe,
		planner: planner,
		logger:  logger,
		metrics: GetMetrics(),
		now:     time.Now,
	}
}

// resultBuilder accumulates issues and insertion-ordered, de-duplicated
// recommendations over one diagnosis pass.
type resultBuilder struct {
	issues          []shared.Issue
	recommendations []string
	seen            map[string]struct{}
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{
		issues: []shared.Issue{},
		seen:   make(map[string]struct{}),
	}
}

func (b *resultBuilder) add(issue shared.Issue) {
	b.issues = append(b.issues, issue)
	b.recommend(issue.SuggestedAction)
}

func (b *resultBuilder) recommend(text string) {
	if text == "" {
		return
	}
	if _, ok := b.seen[text]; ok {
		return
	}
	b.seen[text] = struct{}{}
	b.recommendations = append(b.recommendations, text)
}

// Diagnose inspects the supplied failure, auth state, and permissions and
// produces a complete diagnostic result.
func (e *Engine) Diagnose(ctx context.Context, rawErr error, state *shared.AuthState, perms *shared.PermissionSet) (result shared.DiagnosticResult) {
	logger := shared.LoggerWithCorrelation(ctx, e.logger)
	started := e.now()

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("diagnosis recovered from internal fault", zap.Any("panic", recovered))
			result = e.fatalResult(started)
		}
	}()

	builder := newResultBuilder()
	status := e.probe.Snapshot(ctx, state)

	if rawErr != nil {
		builder.add(ParseIssue(rawErr))
	}

	earlyReturn := e.analyzeAuthState(builder, state)
	if !earlyReturn {
		e.analyzePermissions(builder, perms)
		e.analyzeSystemHealth(builder, status)
	}

	result = e.finish(builder, status, started)
	logger.Info("diagnosis complete",
		zap.String("severity", string(result.Severity)),
		zap.Int("issues", len(result.Issues)),
		zap.Bool("healthy", result.IsHealthy),
	)
	return result
}

// analyzeAuthState inspects the auth manager state. Returns true when a
// blocking problem short-circuits the remaining analysis steps.
func (e *Engine) analyzeAuthState(builder *resultBuilder, state *shared.AuthState) bool {
	if state == nil || !state.IsAuthenticated {
		builder.add(shared.Issue{
			Kind:               shared.IssueNoAuth,
			Message:            "You are not signed in",
			Severity:           shared.IssueSeverityCritical,
			CanAutoRecover:     false,
			RequiresUserAction: true,
			SuggestedAction:    "Sign in to continue",
			TechnicalDetails:   "auth state absent or unauthenticated",
		})
		return true
	}

	if !state.HasToken() {
		builder.add(shared.Issue{
			Kind:               shared.IssueInvalidToken,
			Message:            "No access token is available",
			Severity:           shared.IssueSeverityCritical,
			CanAutoRecover:     true,
			RequiresUserAction: true,
			SuggestedAction:    "Sign in again to restore access",
			TechnicalDetails:   "authenticated state carries no access token",
		})
		return true
	}

	if vs := state.ValidationStatus; vs != nil && !vs.IsValid {
		switch {
		case vs.IsExpired:
			builder.add(shared.Issue{
				Kind:               shared.IssueTokenExpired,
				Message:            "Your session has expired",
				Severity:           shared.IssueSeverityCritical,
				CanAutoRecover:     true,
				RequiresUserAction: false,
				SuggestedAction:    "The session will be refreshed automatically",
				TechnicalDetails:   "validation status: invalid, expired",
			})
		case !vs.HasRequiredScopes:
			builder.add(shared.Issue{
				Kind:               shared.IssueInsufficientScope,
				Message:            "The session is missing required permissions",
				Severity:           shared.IssueSeverityCritical,
				CanAutoRecover:     true,
				RequiresUserAction: true,
				SuggestedAction:    "Grant the requested permissions to continue",
				TechnicalDetails:   "validation status: invalid, missing required scopes",
			})
		default:
			builder.add(shared.Issue{
				Kind:               shared.IssueInvalidToken,
				Message:            "Your session is no longer valid",
				Severity:           shared.IssueSeverityCritical,
				CanAutoRecover:     true,
				RequiresUserAction: true,
				SuggestedAction:    "Sign in again to restore access",
				TechnicalDetails:   "validation status: invalid",
			})
		}
	}

	if expiry := state.User.TokenExpiry; expiry != nil {
		remaining := expiry.Sub(e.now())
		if remaining > 0 && remaining <= expiryWarningWindow {
			builder.add(shared.Issue{
				Kind:               shared.IssueTokenExpired,
				Message:            "Your session expires soon",
				Severity:           shared.IssueSeverityWarning,
				CanAutoRecover:     true,
				RequiresUserAction: false,
				SuggestedAction:    "The session will be refreshed automatically",
				TechnicalDetails:   fmt.Sprintf("token expires in %s", remaining.Round(time.Second)),
			})
		}
	}

	if state.RefreshInProgress {
		builder.add(shared.Issue{
			Kind:             shared.IssueTokenExpired,
			Message:          "A token refresh is already in progress",
			Severity:         shared.IssueSeverityInfo,
			CanAutoRecover:   true,
			TechnicalDetails: "refresh in progress",
		})
	}
	if state.ValidationInProgress {
		builder.add(shared.Issue{
			Kind:             shared.IssueUnknownError,
			Message:          "Token validation is in progress",
			Severity:         shared.IssueSeverityInfo,
			CanAutoRecover:   true,
			TechnicalDetails: "validation in progress",
		})
	}

	return false
}

// analyzePermissions checks required (Drive, Sheets) and optional
// (Calendar) capability grants.
func (e *Engine) analyzePermissions(builder *resultBuilder, perms *shared.PermissionSet) {
	if perms == nil {
		return
	}

	var missingRequired []string
	if !perms.HasDrive {
		missingRequired = append(missingRequired, "Google Drive")
	}
	if !perms.HasSheets {
		missingRequired = append(missingRequired, "Google Sheets")
	}
	if len(missingRequired) > 0 {
		builder.add(shared.Issue{
			Kind:               shared.IssueMissingPerms,
			Message:            "Missing required permissions: " + strings.Join(missingRequired, ", "),
			Severity:           shared.IssueSeverityCritical,
			CanAutoRecover:     true,
			RequiresUserAction: true,
			SuggestedAction:    "Grant the requested permissions to continue",
			TechnicalDetails:   "required capabilities not granted: " + strings.Join(missingRequired, ", "),
		})
	}

	if !perms.HasCalendar {
		builder.add(shared.Issue{
			Kind:               shared.IssueMissingPerms,
			Message:            "Optional permission not granted: Google Calendar",
			Severity:           shared.IssueSeverityWarning,
			CanAutoRecover:     true,
			RequiresUserAction: false,
			SuggestedAction:    "Grant calendar access to enable calendar features",
			TechnicalDetails:   "optional capability not granted: Google Calendar",
		})
	}
}

// analyzeSystemHealth converts probe findings into issues. Environment
// problems are not auto-recoverable; they need a developer or environment fix.
func (e *Engine) analyzeSystemHealth(builder *resultBuilder, status shared.SystemHealthStatus) {
	if !status.IdentityAPIAvailable {
		builder.add(shared.Issue{
			Kind:             shared.IssueUnknownError,
			Message:          "The identity service is unavailable",
			Severity:         shared.IssueSeverityCritical,
			CanAutoRecover:   false,
			SuggestedAction:  "Contact support if the problem persists",
			TechnicalDetails: "identity API not available in this environment",
		})
	}
	if !status.ConfigValid {
		builder.add(shared.Issue{
			Kind:             shared.IssueUnknownError,
			Message:          "OAuth configuration is invalid",
			Severity:         shared.IssueSeverityCritical,
			CanAutoRecover:   false,
			SuggestedAction:  "Contact support if the problem persists",
			TechnicalDetails: "OAuth client configuration missing or app version unsupported",
		})
	}
	if !status.AuthManagerHealthy {
		builder.add(shared.Issue{
			Kind:             shared.IssueUnknownError,
			Message:          "The authentication manager is not responding",
			Severity:         shared.IssueSeverityCritical,
			CanAutoRecover:   false,
			SuggestedAction:  "Contact support if the problem persists",
			TechnicalDetails: "auth manager state unavailable",
		})
	}
	if !status.CacheOperational {
		builder.add(shared.Issue{
			Kind:             shared.IssueUnknownError,
			Message:          "Diagnostic data may be incomplete",
			Severity:         shared.IssueSeverityWarning,
			CanAutoRecover:   false,
			TechnicalDetails: "health probe failed part way through",
		})
	}

	if !status.NetworkReachable {
		builder.add(shared.Issue{
			Kind:               shared.IssueNetworkError,
			Message:            "The identity service cannot be reached",
			Severity:           shared.IssueSeverityCritical,
			CanAutoRecover:     true,
			RequiresUserAction: false,
			SuggestedAction:    "Check your internet connection and retry",
			TechnicalDetails:   "network reachability probe failed",
		})
	}
}

// finish aggregates the accumulated issues into the final result.
func (e *Engine) finish(builder *resultBuilder, status shared.SystemHealthStatus, started time.Time) shared.DiagnosticResult {
	criticalCount, warningCount := 0, 0
	needsUserAction, canAutoRecover := false, false
	for _, issue := range builder.issues {
		switch issue.Severity {
		case shared.IssueSeverityCritical:
			criticalCount++
		case shared.IssueSeverityWarning:
			warningCount++
		}
		needsUserAction = needsUserAction || issue.RequiresUserAction
		canAutoRecover = canAutoRecover || issue.CanAutoRecover
		e.metrics.RecordIssue(string(issue.Kind), string(issue.Severity))
	}

	plan := e.planner.Plan(builder.issues, status)
	result := shared.DiagnosticResult{
		IsHealthy:       criticalCount == 0,
		Severity:        shared.SeverityFor(criticalCount, warningCount),
		Issues:          builder.issues,
		Recommendations: builder.recommendations,
		NeedsUserAction: needsUserAction,
		CanAutoRecover:  canAutoRecover,
		SystemStatus:    status,
		RecoveryPlan:    &plan,
		GeneratedAt:     e.now(),
	}

	e.metrics.RecordDiagnosis(string(result.Severity), e.now().Sub(started).Seconds())
	return result
}

// fatalResult is the fixed result returned when diagnosis itself faults.
func (e *Engine) fatalResult(started time.Time) shared.DiagnosticResult {
	issue := shared.Issue{
		Kind:               shared.IssueUnknownError,
		Message:            "Diagnosis could not be completed",
		Severity:           shared.IssueSeverityCritical,
		CanAutoRecover:     false,
		RequiresUserAction: true,
		SuggestedAction:    "Refresh the page and sign in again",
		TechnicalDetails:   "internal fault during diagnosis",
	}

	result := shared.DiagnosticResult{
		IsHealthy:       false,
		Severity:        shared.SeverityFatal,
		Issues:          []shared.Issue{issue},
		Recommendations: []string{issue.SuggestedAction},
		NeedsUserAction: true,
		CanAutoRecover:  false,
		RecoveryPlan: &shared.RecoveryPlan{
			Steps: []shared.RecoveryStep{{
				Action:      shared.ActionManualIntervention,
				Description: "Manual intervention required: " + issue.Message,
				Automated:   false,
			}},
			EstimatedTime:           "Less than 1 minute",
			SuccessProbability:      shared.ProbabilityLow,
			RequiresUserInteraction: true,
		},
		GeneratedAt: e.now(),
	}

	e.metrics.RecordDiagnosis(string(result.Severity), e.now().Sub(started).Seconds())
	return result
}
