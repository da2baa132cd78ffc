package diagnose

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// TokenValidator checks a token against the identity provider.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (shared.TokenValidation, error)
}

// ReachabilityProbe answers whether the network path to the identity
// provider is currently usable.
type ReachabilityProbe interface {
	Reachable(ctx context.Context) bool
}

// Environment exposes read-only host environment facts.
type Environment interface {
	IdentityAPIAvailable() bool
	OAuthConfigPresent() bool
	AppVersion() string
}

// Probe computes point-in-time system health snapshots. A nil collaborator
// degrades the corresponding field rather than failing the probe.
type Probe struct {
	validator     TokenValidator
	network       ReachabilityProbe
	env           Environment
	minAppVersion *semver.Version
	logger        *zap.Logger
}

// NewProbe builds a health probe. minAppVersion may be nil to skip the
// app version check.
func NewProbe(validator TokenValidator, network ReachabilityProbe, env Environment, minAppVersion *semver.Version, logger *zap.Logger) *Probe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		validator:     validator,
		network:       network,
		env:           env,
		minAppVersion: minAppVersion,
		logger:        logger,
	}
}

// Snapshot recomputes the full health status. It never propagates a fault:
// a panic anywhere inside the probe flips CacheOperational to false and
// returns whatever was gathered so far.
func (p *Probe) Snapshot(ctx context.Context, state *shared.AuthState) (status shared.SystemHealthStatus) {
	status = shared.SystemHealthStatus{CacheOperational: true}

	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.Warn("health probe recovered from panic", zap.Any("panic", recovered))
			status.CacheOperational = false
		}
	}()

	status.AuthManagerHealthy = state != nil

	if state.HasToken() && p.validator != nil {
		validation, err := p.validator.Validate(ctx, state.User.AccessToken)
		if err != nil {
			p.logger.Debug("token validation failed during probe", zap.Error(err))
		} else {
			status.TokenValid = validation.IsValid
			status.ScopesValid = validation.HasRequiredScopes
		}
	}

	if p.network != nil {
		status.NetworkReachable = p.network.Reachable(ctx)
	}

	if p.env != nil {
		status.IdentityAPIAvailable = p.env.IdentityAPIAvailable()
		status.ConfigValid = p.env.OAuthConfigPresent() && p.appVersionSupported()
	}

	return status
}

// appVersionSupported compares the reported app version against the
// configured minimum. Missing or unparsable versions only fail the check
// when a minimum is configured.
func (p *Probe) appVersionSupported() bool {
	if p.minAppVersion == nil {
		return true
	}
	reported, err := semver.NewVersion(p.env.AppVersion())
	if err != nil {
		p.logger.Debug("unparsable app version", zap.String("version", p.env.AppVersion()))
		return false
	}
	return !reported.LessThan(p.minAppVersion)
}
