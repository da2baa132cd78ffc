package diagnose

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// StatusCoder is implemented by failures that carry an explicit HTTP-style
// status code. Checked before any string heuristics.
type StatusCoder interface {
	StatusCode() int
}

var statusCodePattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// Keyword sets are fixed enumerations. Matching is on the lower-cased
// error text.
var (
	networkKeywords   = []string{"network", "timeout", "fetch", "connection", "offline"}
	authKeywords      = []string{"401", "unauthorized", "unauthenticated", "invalid_token", "token_expired"}
	scopeKeywords     = []string{"403", "forbidden", "insufficient_scope", "permission_denied"}
	consentKeywords   = []string{"consent_required", "consent_needed", "authorization_required"}
	rateLimitKeywords = []string{"429", "rate_limit", "quota_exceeded", "too_many_requests"}
)

// Classify maps a raw failure to an error category with a confidence score.
// An explicit status code (via StatusCoder) is decisive; otherwise the
// classification falls back to keyword heuristics over the error text, with
// a 3-digit status pattern extracted from the text standing in for a code.
func Classify(err error) shared.Classification {
	if err == nil {
		return shared.Classification{Category: shared.CategoryUnknown, Confidence: 0.1}
	}

	text := strings.ToLower(err.Error())

	// Structured fast path: an explicit code needs no guessing.
	var coder StatusCoder
	if errors.As(err, &coder) {
		switch coder.StatusCode() {
		case 429:
			return shared.Classification{Category: shared.CategoryRateLimit, Confidence: 0.95}
		case 401:
			return shared.Classification{Category: shared.CategoryAuth, Confidence: 0.9}
		case 403:
			return shared.Classification{Category: shared.CategoryScope, Confidence: 0.85}
		}
	}

	code := extractStatusCode(err, text)

	if containsAny(text, networkKeywords) {
		return shared.Classification{Category: shared.CategoryNetwork, Confidence: 0.9}
	}
	if code == 429 || containsAny(text, rateLimitKeywords) {
		return shared.Classification{Category: shared.CategoryRateLimit, Confidence: 0.95}
	}
	if code == 401 || containsAny(text, authKeywords) {
		return shared.Classification{Category: shared.CategoryAuth, Confidence: 0.9}
	}
	if code == 403 || containsAny(text, scopeKeywords) {
		return shared.Classification{Category: shared.CategoryScope, Confidence: 0.85}
	}
	if containsAny(text, consentKeywords) {
		return shared.Classification{Category: shared.CategoryConsent, Confidence: 0.8}
	}

	return shared.Classification{Category: shared.CategoryUnknown, Confidence: 0.1}
}

// extractStatusCode prefers an explicit code field, then a 3-digit
// 4xx/5xx pattern in the text. Returns 0 when neither is present.
func extractStatusCode(err error, text string) int {
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.StatusCode()
	}
	if match := statusCodePattern.FindString(text); match != "" {
		code, convErr := strconv.Atoi(match)
		if convErr == nil && code >= 400 && code <= 599 {
			return code
		}
	}
	return 0
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
