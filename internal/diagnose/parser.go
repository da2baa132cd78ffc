package diagnose

import (
	"fmt"
	"strings"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// ParseIssue turns a raw failure into a structured, user-facing issue.
// A nil failure yields a generic unknown_error.
func ParseIssue(err error) shared.Issue {
	if err == nil {
		return shared.Issue{
			Kind:               shared.IssueUnknownError,
			Message:            "An unknown error occurred",
			Severity:           shared.IssueSeverityWarning,
			CanAutoRecover:     false,
			RequiresUserAction: true,
			SuggestedAction:    "Try refreshing the page or signing in again",
			TechnicalDetails:   "no error value supplied",
		}
	}

	classification := Classify(err)
	text := strings.ToLower(err.Error())
	details := fmt.Sprintf("category=%s confidence=%.2f: %s",
		classification.Category, classification.Confidence, err.Error())

	switch classification.Category {
	case shared.CategoryNetwork:
		return shared.Issue{
			Kind:               shared.IssueNetworkError,
			Message:            "Network connection problem detected",
			Severity:           shared.IssueSeverityWarning,
			CanAutoRecover:     true,
			RequiresUserAction: false,
			SuggestedAction:    "Check your internet connection and retry",
			TechnicalDetails:   details,
		}

	case shared.CategoryAuth:
		if extractStatusCode(err, text) == 401 || strings.Contains(text, "unauthorized") {
			return shared.Issue{
				Kind:               shared.IssueInvalidToken,
				Message:            "Your session is no longer valid",
				Severity:           shared.IssueSeverityCritical,
				CanAutoRecover:     true,
				RequiresUserAction: true,
				SuggestedAction:    "Sign in again to restore access",
				TechnicalDetails:   details,
			}
		}
		if strings.Contains(text, "expired") {
			return shared.Issue{
				Kind:               shared.IssueTokenExpired,
				Message:            "Your session has expired",
				Severity:           shared.IssueSeverityCritical,
				CanAutoRecover:     true,
				RequiresUserAction: false,
				SuggestedAction:    "The session will be refreshed automatically",
				TechnicalDetails:   details,
			}
		}

	case shared.CategoryScope:
		return shared.Issue{
			Kind:               shared.IssueInsufficientScope,
			Message:            "The app is missing required permissions",
			Severity:           shared.IssueSeverityCritical,
			CanAutoRecover:     true,
			RequiresUserAction: true,
			SuggestedAction:    "Grant the requested permissions to continue",
			TechnicalDetails:   details,
		}

	case shared.CategoryConsent:
		return shared.Issue{
			Kind:               shared.IssueConsentRequired,
			Message:            "Additional consent is required",
			Severity:           shared.IssueSeverityWarning,
			CanAutoRecover:     true,
			RequiresUserAction: true,
			SuggestedAction:    "Complete the consent flow when prompted",
			TechnicalDetails:   details,
		}

	case shared.CategoryRateLimit:
		return shared.Issue{
			Kind:               shared.IssueNetworkError,
			Message:            "Too many requests, the service is throttling",
			Severity:           shared.IssueSeverityWarning,
			CanAutoRecover:     true,
			RequiresUserAction: false,
			SuggestedAction:    "Wait a moment, requests will be retried automatically",
			TechnicalDetails:   details,
		}
	}

	return shared.Issue{
		Kind:               shared.IssueUnknownError,
		Message:            "An unexpected error occurred",
		Severity:           shared.IssueSeverityWarning,
		CanAutoRecover:     false,
		RequiresUserAction: true,
		SuggestedAction:    "Try refreshing the page or signing in again",
		TechnicalDetails:   details,
	}
}
