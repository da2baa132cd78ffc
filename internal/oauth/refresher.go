package oauth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// Refresher drives token refresh with bounded retries and exponential
// backoff. AttemptRefresh never fails the caller: every failure mode is
// reported through the returned OAuthConsentResult.
type Refresher struct {
	issuer         TokenIssuer
	validator      TokenValidator
	requiredScopes []string
	optionalScopes []string
	logger         *zap.Logger

	// sleep is replaceable in tests; it returns false when ctx ends
	// before the delay elapses.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewRefresher builds a token refresher.
func NewRefresher(issuer TokenIssuer, validator TokenValidator, requiredScopes, optionalScopes []string, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		issuer:         issuer,
		validator:      validator,
		requiredScopes: requiredScopes,
		optionalScopes: optionalScopes,
		logger:         logger,
		sleep:          sleepContext,
	}
}

// AttemptRefresh runs up to cfg.RetryCount refresh attempts. Each attempt
// issues a token under the per-attempt timeout, validates it, and on
// validated success returns immediately with the denied scope set.
func (r *Refresher) AttemptRefresh(ctx context.Context, cfg shared.TokenRefreshConfig) (result shared.OAuthConsentResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("token refresh recovered from panic", zap.Any("panic", recovered))
			result = shared.OAuthConsentResult{
				Success: false,
				Error:   fmt.Sprintf("internal fault during refresh: %v", recovered),
			}
		}
	}()

	cfg = cfg.Normalize()
	scopes := r.scopeSet(cfg.IncludeOptionalScopes)
	interactive := cfg.Interactive || cfg.ForceReauth
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	backoff := DefaultBackoff()

	var lastErr error
	for attempt := 1; attempt <= cfg.RetryCount; attempt++ {
		token, granted, err := r.tryOnce(ctx, interactive, scopes, timeout)
		if err == nil {
			r.logger.Info("token refresh succeeded",
				zap.Int("attempt", attempt),
				zap.Int("granted_scopes", len(granted)),
			)
			return shared.OAuthConsentResult{
				Success:       true,
				GrantedScopes: granted,
				DeniedScopes:  scopeDiff(scopes, granted),
				NewToken:      token,
			}
		}

		lastErr = err
		r.logger.Warn("token refresh attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("retry_count", cfg.RetryCount),
			zap.Error(err),
		)

		if attempt < cfg.RetryCount {
			if !r.sleep(ctx, backoff.Duration()) {
				break
			}
		}
	}

	return shared.OAuthConsentResult{
		Success: false,
		Error:   fmt.Sprintf("token refresh failed after %d attempts: %v", cfg.RetryCount, lastErr),
	}
}

// tryOnce runs a single issue-then-validate attempt. The issuer call is
// raced against the per-attempt timeout so a collaborator that ignores its
// context still fails the attempt in time.
func (r *Refresher) tryOnce(ctx context.Context, interactive bool, scopes []string, timeout time.Duration) (string, []string, error) {
	if r.issuer == nil {
		return "", nil, fmt.Errorf("token issuer not configured")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type issued struct {
		token string
		err   error
	}
	done := make(chan issued, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- issued{err: fmt.Errorf("token issuer panicked: %v", recovered)}
			}
		}()
		token, err := r.issuer.Issue(attemptCtx, interactive, scopes)
		done <- issued{token: token, err: err}
	}()

	var token string
	select {
	case <-attemptCtx.Done():
		return "", nil, fmt.Errorf("token issuance timed out after %s", timeout)
	case outcome := <-done:
		if outcome.err != nil {
			return "", nil, fmt.Errorf("issue token: %w", outcome.err)
		}
		token = outcome.token
	}

	if r.validator == nil {
		return token, nil, nil
	}
	validation, err := r.validator.Validate(attemptCtx, token)
	if err != nil {
		return "", nil, fmt.Errorf("validate issued token: %w", err)
	}
	if !validation.IsValid {
		return "", nil, fmt.Errorf("issued token failed validation: %v", validation.Errors)
	}

	return token, validation.GrantedScopes, nil
}

// scopeSet is the required scopes, plus the optional ones when configured.
func (r *Refresher) scopeSet(includeOptional bool) []string {
	scopes := make([]string, 0, len(r.requiredScopes)+len(r.optionalScopes))
	seen := make(map[string]struct{})
	add := func(list []string) {
		for _, scope := range list {
			if _, ok := seen[scope]; ok {
				continue
			}
			seen[scope] = struct{}{}
			scopes = append(scopes, scope)
		}
	}
	add(r.requiredScopes)
	if includeOptional {
		add(r.optionalScopes)
	}
	return scopes
}

// scopeDiff returns requested scopes that were not granted.
func scopeDiff(requested, granted []string) []string {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		grantedSet[scope] = struct{}{}
	}
	var denied []string
	for _, scope := range requested {
		if _, ok := grantedSet[scope]; !ok {
			denied = append(denied, scope)
		}
	}
	return denied
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
