package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// TokenValidator checks an issued token with the identity provider.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (shared.TokenValidation, error)
}

// TokenIssuer obtains a fresh access token for the given scopes. It must
// honor ctx cancellation and deadlines.
type TokenIssuer interface {
	Issue(ctx context.Context, interactive bool, scopes []string) (string, error)
}

// HTTPTokenValidator validates tokens against a tokeninfo-style endpoint
// that answers with validity, expiry, and granted scopes.
type HTTPTokenValidator struct {
	endpoint       string
	requiredScopes []string
	client         *http.Client
}

// NewHTTPTokenValidator builds a validator for the given tokeninfo endpoint.
func NewHTTPTokenValidator(endpoint string, requiredScopes []string, client *http.Client) *HTTPTokenValidator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTokenValidator{
		endpoint:       endpoint,
		requiredScopes: requiredScopes,
		client:         client,
	}
}

type tokeninfoResponse struct {
	Valid   bool     `json:"valid"`
	Expired bool     `json:"expired"`
	Scopes  []string `json:"scopes"`
	Errors  []string `json:"errors"`
}

func (v *HTTPTokenValidator) Validate(ctx context.Context, token string) (shared.TokenValidation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return shared.TokenValidation{}, fmt.Errorf("build tokeninfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return shared.TokenValidation{}, fmt.Errorf("tokeninfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return shared.TokenValidation{}, &shared.StatusError{Code: resp.StatusCode, Message: "tokeninfo endpoint"}
	}

	var info tokeninfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return shared.TokenValidation{}, fmt.Errorf("decode tokeninfo response: %w", err)
	}

	granted := make(map[string]struct{}, len(info.Scopes))
	for _, scope := range info.Scopes {
		granted[scope] = struct{}{}
	}
	hasRequired := true
	for _, scope := range v.requiredScopes {
		if _, ok := granted[scope]; !ok {
			hasRequired = false
			break
		}
	}

	return shared.TokenValidation{
		IsValid:           info.Valid,
		HasRequiredScopes: hasRequired,
		IsExpired:         info.Expired,
		Errors:            info.Errors,
		GrantedScopes:     info.Scopes,
	}, nil
}

// HTTPTokenIssuer obtains tokens from a refresh endpoint. The upstream
// provider wire protocol stays behind this boundary.
type HTTPTokenIssuer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTokenIssuer builds an issuer for the given refresh endpoint.
func NewHTTPTokenIssuer(endpoint string, client *http.Client) *HTTPTokenIssuer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTokenIssuer{endpoint: endpoint, client: client}
}

func (i *HTTPTokenIssuer) Issue(ctx context.Context, interactive bool, scopes []string) (string, error) {
	form := url.Values{}
	form.Set("scopes", strings.Join(scopes, " "))
	if interactive {
		form.Set("prompt", "consent")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &shared.StatusError{Code: resp.StatusCode, Message: "token endpoint"}
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}
	return body.AccessToken, nil
}

// StaticEnvironment reports environment facts fixed at startup, with
// identity API availability probed over HTTP when a probe URL is set.
type StaticEnvironment struct {
	identityURL   string
	configPresent bool
	appVersion    string
	client        *http.Client
}

// NewStaticEnvironment builds the environment facts source. identityURL
// may be empty, in which case the identity API is reported available.
func NewStaticEnvironment(identityURL string, configPresent bool, appVersion string, client *http.Client) *StaticEnvironment {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &StaticEnvironment{
		identityURL:   identityURL,
		configPresent: configPresent,
		appVersion:    appVersion,
		client:        client,
	}
}

func (e *StaticEnvironment) IdentityAPIAvailable() bool {
	if e.identityURL == "" {
		return true
	}
	req, err := http.NewRequest(http.MethodHead, e.identityURL, nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func (e *StaticEnvironment) OAuthConfigPresent() bool { return e.configPresent }

func (e *StaticEnvironment) AppVersion() string { return e.appVersion }

// HTTPReachabilityProbe reports whether an HTTP endpoint answers at all.
type HTTPReachabilityProbe struct {
	endpoint string
	client   *http.Client
}

// NewHTTPReachabilityProbe builds a reachability probe for endpoint.
func NewHTTPReachabilityProbe(endpoint string, client *http.Client) *HTTPReachabilityProbe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPReachabilityProbe{endpoint: endpoint, client: client}
}

func (p *HTTPReachabilityProbe) Reachable(ctx context.Context) bool {
	if p.endpoint == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
