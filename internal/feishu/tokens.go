package feishu

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	// ExpiryMargin is how long before expiry a token stops being handed out.
	ExpiryMargin    = 300 * time.Second
	DefaultTokenTTL = 7200

	DefaultRedirectURL = "http://localhost:9000/callback"
	AuthState          = "feishu_sync"
)

var (
	ErrAuthUnavailable = errors.New("feishu authorization unavailable, re-authorization required")
	ErrNoRefreshToken  = errors.New("no refresh token cached")
)

// lifecycle is one of the two token flavours a TokenManager can run on.
type lifecycle interface {
	name() string
	bearer(ctx context.Context, m *TokenManager) (*oauth2.Token, error)
}

type delegatedLifecycle struct{}

func (delegatedLifecycle) name() string { return "delegated" }

func (delegatedLifecycle) bearer(ctx context.Context, m *TokenManager) (*oauth2.Token, error) {
	return m.delegatedToken(ctx)
}

type serviceLifecycle struct{}

func (serviceLifecycle) name() string { return "service" }

func (serviceLifecycle) bearer(ctx context.Context, m *TokenManager) (*oauth2.Token, error) {
	return m.serviceToken(ctx)
}

// TokenManager owns the cached tokens and the persisted mode flag. Every
// renewal is written back through the ConfigStore before it is returned.
type TokenManager struct {
	http  *resty.Client
	store *ConfigStore
	cfg   *Config
	oauth *oauth2.Config
	now   func() time.Time

	mu sync.Mutex
}

type TokenOption func(*TokenManager)

// WithTokenHTTP swaps the transport, mostly for tests.
func WithTokenHTTP(hc *http.Client) TokenOption {
	return func(m *TokenManager) { m.http = newResty(resty.NewWithClient(hc), m.http.BaseURL) }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithRedirectURL sets the OAuth redirect the authorization page sends the
// user back to.
func WithRedirectURL(url string) TokenOption {
	return func(m *TokenManager) { m.oauth.RedirectURL = url }
}

// NewTokenManager loads the stored config and refuses to start without real
// app credentials.
func NewTokenManager(baseURL string, store *ConfigStore, opts ...TokenOption) (*TokenManager, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &TokenManager{
		http:  newResty(resty.New().SetTimeout(30*time.Second), baseURL),
		store: store,
		cfg:   cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  DefaultRedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  baseURL + "/authen/v1/index",
				TokenURL: baseURL + "/authen/v1/oidc/access_token",
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// FolderToken is the configured default drive folder, possibly empty.
func (m *TokenManager) FolderToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.FolderToken
}

// ServiceMode reports whether the persisted mode is the app-level one.
func (m *TokenManager) ServiceMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.UseTenantToken
}

// AuthURL is the page the user opens to grant delegated access.
func (m *TokenManager) AuthURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("app_id", m.cfg.AppID))
}

// Bearer returns the token for the persisted mode.
func (m *TokenManager) Bearer(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := m.mode()
	tok, err := mode.bearer(ctx, m)
	if err != nil {
		log.Debug().Err(err).Str("mode", mode.name()).Msg("No usable bearer token")
		return nil, err
	}
	return tok, nil
}

func (m *TokenManager) mode() lifecycle {
	if m.cfg.UseTenantToken {
		return serviceLifecycle{}
	}
	return delegatedLifecycle{}
}

// ServiceToken returns the cached app-level token or fetches a new one.
func (m *TokenManager) ServiceToken(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serviceToken(ctx)
}

// DelegatedToken returns the cached user token, refreshing it when it is
// inside the expiry margin. ErrAuthUnavailable means the user has to
// authorize again.
func (m *TokenManager) DelegatedToken(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delegatedToken(ctx)
}

// ExchangeCode trades an authorization code for a delegated token pair and
// switches the persisted mode to delegated.
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.oidcToken(ctx, "exchange authorization code", "/authen/v1/oidc/access_token", map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	})
	if err != nil {
		return err
	}

	m.cfg.UseTenantToken = false
	if err := m.storeDelegated(tok); err != nil {
		return err
	}
	log.Info().Str("user", tok.name).Time("expires", tok.Expiry).Msg("User authorization complete")
	return nil
}

// RefreshDelegated renews the user token with the cached refresh token.
func (m *TokenManager) RefreshDelegated(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshDelegated(ctx)
}

// EnableServiceMode proves the app credentials work and then persists the
// switch to app-level tokens.
func (m *TokenManager) EnableServiceMode(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.serviceToken(ctx); err != nil {
		return fmt.Errorf("failed to enable service mode: %w", err)
	}
	m.cfg.UseTenantToken = true
	if err := m.store.Save(m.cfg); err != nil {
		return fmt.Errorf("failed to persist service mode: %w", err)
	}
	log.Info().Msg("Service mode enabled")
	return nil
}

func (m *TokenManager) usable(tok *oauth2.Token) bool {
	return tok != nil && tok.AccessToken != "" && m.now().Before(tok.Expiry.Add(-ExpiryMargin))
}

func (m *TokenManager) serviceToken(ctx context.Context) (*oauth2.Token, error) {
	cached := &oauth2.Token{
		AccessToken: m.cfg.TenantAccessToken,
		TokenType:   "Bearer",
		Expiry:      fromUnix(m.cfg.TenantTokenExpiresAt),
	}
	if m.usable(cached) {
		return cached, nil
	}

	var resp struct {
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	req := m.http.R().SetContext(ctx).SetBody(map[string]string{
		"app_id":     m.cfg.AppID,
		"app_secret": m.cfg.AppSecret,
	})
	if err := execute(req, http.MethodPost, "/auth/v3/tenant_access_token/internal", "get tenant access token", &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}

	expiry := m.now().Add(ttl(resp.Expire))
	m.cfg.TenantAccessToken = resp.TenantAccessToken
	m.cfg.TenantTokenExpiresAt = toUnix(expiry)
	if err := m.store.Save(m.cfg); err != nil {
		return nil, fmt.Errorf("failed to persist tenant token: %w", err)
	}

	log.Debug().Time("expires", expiry).Msg("Tenant access token renewed")
	return &oauth2.Token{AccessToken: resp.TenantAccessToken, TokenType: "Bearer", Expiry: expiry}, nil
}

func (m *TokenManager) delegatedToken(ctx context.Context) (*oauth2.Token, error) {
	cached := &oauth2.Token{
		AccessToken:  m.cfg.UserAccessToken,
		RefreshToken: m.cfg.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       fromUnix(m.cfg.TokenExpiresAt),
	}
	if m.usable(cached) {
		return cached, nil
	}

	if err := m.refreshDelegated(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	return &oauth2.Token{
		AccessToken:  m.cfg.UserAccessToken,
		RefreshToken: m.cfg.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       fromUnix(m.cfg.TokenExpiresAt),
	}, nil
}

func (m *TokenManager) refreshDelegated(ctx context.Context) error {
	if m.cfg.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	tok, err := m.oidcToken(ctx, "refresh user access token", "/authen/v1/oidc/refresh_access_token", map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": m.cfg.RefreshToken,
	})
	if err != nil {
		return err
	}
	if err := m.storeDelegated(tok); err != nil {
		return err
	}
	log.Debug().Time("expires", tok.Expiry).Msg("User access token refreshed")
	return nil
}

type delegatedGrant struct {
	*oauth2.Token
	name string
}

// oidcToken runs the two-step exchange: an app token first, then the
// user-token grant authorized by it.
func (m *TokenManager) oidcToken(ctx context.Context, op, path string, body map[string]string) (*delegatedGrant, error) {
	appToken, err := m.appAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int    `json:"expires_in"`
			Name         string `json:"name"`
		} `json:"data"`
	}
	req := m.http.R().SetContext(ctx).SetAuthToken(appToken).SetBody(body)
	if err := execute(req, http.MethodPost, path, op, &resp); err != nil {
		return nil, err
	}

	return &delegatedGrant{
		Token: &oauth2.Token{
			AccessToken:  resp.Data.AccessToken,
			RefreshToken: resp.Data.RefreshToken,
			TokenType:    "Bearer",
			Expiry:       m.now().Add(ttl(resp.Data.ExpiresIn)),
		},
		name: resp.Data.Name,
	}, nil
}

func (m *TokenManager) appAccessToken(ctx context.Context) (string, error) {
	var resp struct {
		AppAccessToken string `json:"app_access_token"`
		Expire         int    `json:"expire"`
	}
	req := m.http.R().SetContext(ctx).SetBody(map[string]string{
		"app_id":     m.cfg.AppID,
		"app_secret": m.cfg.AppSecret,
	})
	if err := execute(req, http.MethodPost, "/auth/v3/app_access_token/internal", "get app access token", &resp); err != nil {
		return "", err
	}
	return resp.AppAccessToken, nil
}

func (m *TokenManager) storeDelegated(tok *delegatedGrant) error {
	m.cfg.UserAccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		m.cfg.RefreshToken = tok.RefreshToken
	}
	m.cfg.TokenExpiresAt = toUnix(tok.Expiry)
	if err := m.store.Save(m.cfg); err != nil {
		return fmt.Errorf("failed to persist user token: %w", err)
	}
	return nil
}

func ttl(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = DefaultTokenTTL
	}
	return time.Duration(seconds) * time.Second
}

func fromUnix(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func toUnix(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
