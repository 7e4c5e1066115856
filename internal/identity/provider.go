package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/text/unicode/norm"

	"github.com/rickgao/cellgrid/internal/config"
)

var (
	ErrMissingCode    = errors.New("missing authorization code")
	ErrInvalidProfile = errors.New("invalid profile")
	ErrExchangeFailed = errors.New("code exchange failed")
)

// Profile is the subset of the provider's user object the grid needs.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Provider exchanges authorization codes and fetches profiles.
type Provider struct {
	oauth      *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// NewProvider creates a provider from the oauth config section.
func NewProvider(cfg config.OAuthConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithRetries sets the retry configuration for profile fetches.
func WithRetries(max int, backoff time.Duration) ProviderOption {
	return func(p *Provider) {
		p.maxRetries = max
		p.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client, used for both the token and profile calls.
func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// AuthCodeURL returns the provider URL the browser is redirected to at login.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (p *Provider) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ErrMissingCode
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}
	return tok.AccessToken, nil
}

// FetchProfile reads the current user's profile with the given access token.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	var prof Profile
	if err := p.get(ctx, "/users/@me", accessToken, &prof); err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}

	prof.ID = strings.TrimSpace(prof.ID)
	prof.Username = NormalizeUsername(prof.Username)
	if prof.ID == "" {
		return Profile{}, fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	if prof.Username == "" {
		prof.Username = prof.ID
	}
	return prof, nil
}

// Authenticate runs Exchange then FetchProfile.
func (p *Provider) Authenticate(ctx context.Context, code string) (Profile, error) {
	token, err := p.Exchange(ctx, code)
	if err != nil {
		return Profile{}, err
	}
	return p.FetchProfile(ctx, token)
}

// NormalizeUsername trims whitespace and converts to Unicode NFC so the
// same visible name is stored with one byte sequence.
func NormalizeUsername(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
