package shared

import (
	"fmt"
	"time"
)

// ErrorCategory is the coarse classification of a raw auth failure.
type ErrorCategory string

const (
	CategoryNetwork   ErrorCategory = "network"
	CategoryAuth      ErrorCategory = "auth"
	CategoryScope     ErrorCategory = "scope"
	CategoryConsent   ErrorCategory = "consent"
	CategoryRateLimit ErrorCategory = "rate_limit"
	CategoryUnknown   ErrorCategory = "unknown"
)

// Classification pairs an error category with the classifier's confidence.
type Classification struct {
	Category   ErrorCategory `json:"category"`
	Confidence float64       `json:"confidence"`
}

// IssueKind identifies one concrete problem surfaced during diagnosis.
type IssueKind string

const (
	IssueNetworkError      IssueKind = "network_error"
	IssueInvalidToken      IssueKind = "invalid_token"
	IssueTokenExpired      IssueKind = "token_expired"
	IssueInsufficientScope IssueKind = "insufficient_scope"
	IssueMissingPerms      IssueKind = "missing_permissions"
	IssueConsentRequired   IssueKind = "consent_required"
	IssueNoAuth            IssueKind = "no_auth"
	IssueUnknownError      IssueKind = "unknown_error"
)

// IssueSeverity ranks a single issue.
type IssueSeverity string

const (
	IssueSeverityCritical IssueSeverity = "critical"
	IssueSeverityWarning  IssueSeverity = "warning"
	IssueSeverityInfo     IssueSeverity = "info"
)

// ResultSeverity ranks an entire diagnostic result.
type ResultSeverity string

const (
	SeverityHealthy  ResultSeverity = "healthy"
	SeverityWarning  ResultSeverity = "warning"
	SeverityCritical ResultSeverity = "critical"
	SeverityFatal    ResultSeverity = "fatal"
)

// SeverityFor derives the result severity from issue counts.
func SeverityFor(criticalCount, warningCount int) ResultSeverity {
	switch {
	case criticalCount > 2:
		return SeverityFatal
	case criticalCount > 0:
		return SeverityCritical
	case warningCount > 0:
		return SeverityWarning
	default:
		return SeverityHealthy
	}
}

// Issue is one classified problem. Issues are created fresh on every
// diagnosis pass and never mutated afterwards.
type Issue struct {
	Kind               IssueKind     `json:"kind"`
	Message            string        `json:"message"`
	Severity           IssueSeverity `json:"severity"`
	CanAutoRecover     bool          `json:"can_auto_recover"`
	RequiresUserAction bool          `json:"requires_user_action"`
	SuggestedAction    string        `json:"suggested_action"`
	TechnicalDetails   string        `json:"technical_details,omitempty"`
}

// SystemHealthStatus is a point-in-time snapshot of subsystem health,
// recomputed on every probe call.
type SystemHealthStatus struct {
	TokenValid           bool `json:"token_valid"`
	ScopesValid          bool `json:"scopes_valid"`
	NetworkReachable     bool `json:"network_reachable"`
	AuthManagerHealthy   bool `json:"auth_manager_healthy"`
	IdentityAPIAvailable bool `json:"identity_api_available"`
	ConfigValid          bool `json:"config_valid"`
	CacheOperational     bool `json:"cache_operational"`
}

// RecoveryAction identifies one remediation step type.
type RecoveryAction string

const (
	ActionRefreshToken       RecoveryAction = "refresh_token"
	ActionReauthUser         RecoveryAction = "reauth_user"
	ActionRequestPermissions RecoveryAction = "request_permissions"
	ActionConsentFlow        RecoveryAction = "consent_flow"
	ActionRetryConnection    RecoveryAction = "retry_connection"
	ActionManualIntervention RecoveryAction = "manual_intervention"
	ActionValidateRecovery   RecoveryAction = "validate_recovery"
)

// SuccessProbability estimates how likely a recovery plan is to succeed.
type SuccessProbability string

const (
	ProbabilityHigh   SuccessProbability = "high"
	ProbabilityMedium SuccessProbability = "medium"
	ProbabilityLow    SuccessProbability = "low"
)

// RecoveryStep is one remediation action with a duration estimate.
type RecoveryStep struct {
	Action              RecoveryAction `json:"action"`
	Description         string         `json:"description"`
	Automated           bool           `json:"automated"`
	EstimatedDurationMS int64          `json:"estimated_duration_ms"`
}

// RecoveryPlan is the ordered remediation sequence derived from the
// current issue list. It is recomputed on every diagnosis, never persisted.
type RecoveryPlan struct {
	Steps                   []RecoveryStep     `json:"steps"`
	EstimatedTime           string             `json:"estimated_time"`
	SuccessProbability      SuccessProbability `json:"success_probability"`
	RequiresUserInteraction bool               `json:"requires_user_interaction"`
}

// DiagnosticResult is the immutable outcome of one diagnosis call.
type DiagnosticResult struct {
	IsHealthy       bool               `json:"is_healthy"`
	Severity        ResultSeverity     `json:"severity"`
	Issues          []Issue            `json:"issues"`
	Recommendations []string           `json:"recommendations"`
	NeedsUserAction bool               `json:"needs_user_action"`
	CanAutoRecover  bool               `json:"can_auto_recover"`
	SystemStatus    SystemHealthStatus `json:"system_status"`
	RecoveryPlan    *RecoveryPlan      `json:"recovery_plan,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// CriticalCount returns the number of critical issues in the result.
func (r DiagnosticResult) CriticalCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == IssueSeverityCritical {
			count++
		}
	}
	return count
}

// TokenRefreshConfig controls one token refresh attempt sequence.
type TokenRefreshConfig struct {
	Interactive           bool  `json:"interactive"`
	ForceReauth           bool  `json:"force_reauth"`
	IncludeOptionalScopes bool  `json:"include_optional_scopes"`
	TimeoutMS             int64 `json:"timeout_ms"`
	RetryCount            int   `json:"retry_count"`
}

// DefaultTokenRefreshConfig returns the refresh defaults: non-interactive,
// 30 s per-attempt timeout, three attempts.
func DefaultTokenRefreshConfig() TokenRefreshConfig {
	return TokenRefreshConfig{
		Interactive: false,
		TimeoutMS:   30000,
		RetryCount:  3,
	}
}

// Normalize fills zero-valued fields with defaults.
func (c TokenRefreshConfig) Normalize() TokenRefreshConfig {
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 30000
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	return c
}

// OAuthConsentResult is the outcome of a token refresh attempt sequence.
type OAuthConsentResult struct {
	Success       bool     `json:"success"`
	GrantedScopes []string `json:"granted_scopes,omitempty"`
	DeniedScopes  []string `json:"denied_scopes,omitempty"`
	NewToken      string   `json:"new_token,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// TokenValidation is what the external token validator reports for a token.
type TokenValidation struct {
	IsValid           bool     `json:"is_valid"`
	HasRequiredScopes bool     `json:"has_required_scopes"`
	IsExpired         bool     `json:"is_expired"`
	Errors            []string `json:"errors,omitempty"`
	GrantedScopes     []string `json:"granted_scopes,omitempty"`
}

// ValidationStatus is the auth manager's cached view of token validity.
type ValidationStatus struct {
	IsValid           bool `json:"is_valid"`
	IsExpired         bool `json:"is_expired"`
	HasRequiredScopes bool `json:"has_required_scopes"`
}

// AuthUser is the signed-in principal with its current access token.
type AuthUser struct {
	Email       string     `json:"email,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
	TokenExpiry *time.Time `json:"token_expiry,omitempty"`
}

// AuthState is the auth manager's current state. Optional sub-records are
// pointers with explicit presence checks, never implicit truthiness.
type AuthState struct {
	IsAuthenticated      bool              `json:"is_authenticated"`
	User                 *AuthUser         `json:"user,omitempty"`
	ValidationStatus     *ValidationStatus `json:"validation_status,omitempty"`
	RefreshInProgress    bool              `json:"refresh_in_progress"`
	ValidationInProgress bool              `json:"validation_in_progress"`
}

// HasToken reports whether the state carries a non-empty access token.
func (s *AuthState) HasToken() bool {
	return s != nil && s.User != nil && s.User.AccessToken != ""
}

// PermissionSet reports which capability grants the user holds.
// Drive and Sheets are required; Calendar is optional.
type PermissionSet struct {
	HasDrive    bool `json:"has_drive"`
	HasSheets   bool `json:"has_sheets"`
	HasCalendar bool `json:"has_calendar"`
}

// Validate checks structural requirements on an auth state payload.
func (s *AuthState) Validate() error {
	if s == nil {
		return fmt.Errorf("validation error: auth_state must not be nil")
	}
	if s.IsAuthenticated && s.User == nil {
		return fmt.Errorf("validation error: auth_state.user is required when authenticated")
	}
	return nil
}
