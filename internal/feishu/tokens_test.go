package feishu_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"xinfadi_prices/internal/feishu"
)

func TestDelegatedTokenExpiryMargin(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		usable    bool
	}{
		{"exactly at margin", 300 * time.Second, false},
		{"one second past margin", 301 * time.Second, true},
		{"long lived", time.Hour, true},
		{"already expired", -time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, base := newFakeFeishu(t)
			store := writeConfig(t, feishu.Config{
				UserAccessToken: "cached-user",
				TokenExpiresAt:  unix(tt.remaining),
			})
			m := newManager(t, base, store)

			tok, err := m.DelegatedToken(context.Background())
			if tt.usable {
				if err != nil {
					t.Fatalf("Expected cached token, got %v", err)
				}
				if tok.AccessToken != "cached-user" {
					t.Errorf("Expected cached-user, got %s", tok.AccessToken)
				}
			} else {
				if !errors.Is(err, feishu.ErrAuthUnavailable) {
					t.Errorf("Expected ErrAuthUnavailable, got %v", err)
				}
				if !errors.Is(err, feishu.ErrNoRefreshToken) {
					t.Errorf("Expected missing refresh token cause, got %v", err)
				}
			}
			if fake.count("/authen/v1/oidc/refresh_access_token") != 0 {
				t.Error("No refresh should be attempted without a refresh token")
			}
		})
	}
}

func TestServiceTokenExpiryMargin(t *testing.T) {
	tests := []struct {
		remaining time.Duration
		expected  string
		requests  int
	}{
		{300 * time.Second, "tenant-token", 1},
		{301 * time.Second, "cached-tenant", 0},
	}

	for _, tt := range tests {
		fake, base := newFakeFeishu(t)
		store := writeConfig(t, feishu.Config{
			TenantAccessToken:    "cached-tenant",
			TenantTokenExpiresAt: unix(tt.remaining),
		})
		m := newManager(t, base, store)

		tok, err := m.ServiceToken(context.Background())
		if err != nil {
			t.Fatalf("ServiceToken failed: %v", err)
		}
		if tok.AccessToken != tt.expected {
			t.Errorf("remaining %v: expected %s, got %s", tt.remaining, tt.expected, tok.AccessToken)
		}
		if got := fake.count("/auth/v3/tenant_access_token/internal"); got != tt.requests {
			t.Errorf("remaining %v: expected %d tenant requests, got %d", tt.remaining, tt.requests, got)
		}
	}
}

func TestServiceTokenPersistsRenewal(t *testing.T) {
	_, base := newFakeFeishu(t)
	store := writeConfig(t, feishu.Config{})
	m := newManager(t, base, store)

	tok, err := m.ServiceToken(context.Background())
	if err != nil {
		t.Fatalf("ServiceToken failed: %v", err)
	}
	if !tok.Expiry.Equal(fixedNow.Add(7200 * time.Second)) {
		t.Errorf("Expected expiry now+7200s, got %v", tok.Expiry)
	}

	cfg, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TenantAccessToken != "tenant-token" {
		t.Errorf("Expected tenant token persisted, got %q", cfg.TenantAccessToken)
	}
	if cfg.TenantTokenExpiresAt != unix(7200*time.Second) {
		t.Errorf("Expected persisted expiry %v, got %v", unix(7200*time.Second), cfg.TenantTokenExpiresAt)
	}
}

func TestServiceTokenRejected(t *testing.T) {
	fake, base := newFakeFeishu(t)
	fake.tenantCode = 10003
	m := newManager(t, base, writeConfig(t, feishu.Config{}))

	_, err := m.ServiceToken(context.Background())
	if !errors.Is(err, feishu.ErrAuthUnavailable) {
		t.Errorf("Expected ErrAuthUnavailable, got %v", err)
	}
	var apiErr *feishu.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 10003 {
		t.Errorf("Expected APIError with code 10003, got %v", err)
	}
}

func TestExchangeCodeTwoStep(t *testing.T) {
	fake, base := newFakeFeishu(t)
	store := writeConfig(t, feishu.Config{UseTenantToken: true})
	m := newManager(t, base, store)

	if err := m.ExchangeCode(context.Background(), "good-code"); err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}

	if fake.count("/auth/v3/app_access_token/internal") != 1 {
		t.Error("Expected one app token request")
	}
	if got := fake.authHeader("/authen/v1/oidc/access_token"); got != "Bearer app-token" {
		t.Errorf("Expected exchange authorized by app token, got %q", got)
	}

	cfg, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.UserAccessToken != "user-token" || cfg.RefreshToken != "refresh-1" {
		t.Errorf("Tokens not persisted: %+v", cfg)
	}
	if cfg.TokenExpiresAt != unix(7200*time.Second) {
		t.Errorf("Expected default 7200s expiry, got %v", cfg.TokenExpiresAt)
	}
	if cfg.UseTenantToken {
		t.Error("Expected delegated mode after authorization")
	}
	if cfg.UpdatedAt == "" {
		t.Error("Expected updated_at to be stamped")
	}
}

func TestExchangeCodeRejected(t *testing.T) {
	_, base := newFakeFeishu(t)
	store := writeConfig(t, feishu.Config{})
	m := newManager(t, base, store)

	err := m.ExchangeCode(context.Background(), "bad-code")
	var apiErr *feishu.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 20003 {
		t.Fatalf("Expected APIError 20003, got %v", err)
	}

	cfg, _ := store.Load()
	if cfg.UserAccessToken != "" {
		t.Errorf("Expected nothing persisted, got %q", cfg.UserAccessToken)
	}
}

func TestDelegatedTokenRefreshes(t *testing.T) {
	fake, base := newFakeFeishu(t)
	store := writeConfig(t, feishu.Config{
		UserAccessToken: "stale",
		RefreshToken:    "refresh-1",
		TokenExpiresAt:  unix(time.Minute),
	})
	m := newManager(t, base, store)

	tok, err := m.DelegatedToken(context.Background())
	if err != nil {
		t.Fatalf("DelegatedToken failed: %v", err)
	}
	if tok.AccessToken != "user-token-2" {
		t.Errorf("Expected refreshed token, got %s", tok.AccessToken)
	}
	if got := fake.authHeader("/authen/v1/oidc/refresh_access_token"); got != "Bearer app-token" {
		t.Errorf("Expected refresh authorized by app token, got %q", got)
	}

	cfg, _ := store.Load()
	if cfg.RefreshToken != "refresh-2" || cfg.TokenExpiresAt != unix(6900*time.Second) {
		t.Errorf("Refresh not persisted: %+v", cfg)
	}
}

func TestDelegatedTokenRefreshRejected(t *testing.T) {
	_, base := newFakeFeishu(t)
	m := newManager(t, base, writeConfig(t, feishu.Config{
		UserAccessToken: "stale",
		RefreshToken:    "revoked",
	}))

	_, err := m.DelegatedToken(context.Background())
	if !errors.Is(err, feishu.ErrAuthUnavailable) {
		t.Errorf("Expected ErrAuthUnavailable, got %v", err)
	}
}

func TestRefreshDelegatedWithoutRefreshToken(t *testing.T) {
	_, base := newFakeFeishu(t)
	m := newManager(t, base, writeConfig(t, feishu.Config{}))

	if err := m.RefreshDelegated(context.Background()); !errors.Is(err, feishu.ErrNoRefreshToken) {
		t.Errorf("Expected ErrNoRefreshToken, got %v", err)
	}
}

func TestBearerFollowsPersistedMode(t *testing.T) {
	_, base := newFakeFeishu(t)

	service := newManager(t, base, writeConfig(t, feishu.Config{
		UseTenantToken:  true,
		UserAccessToken: "user",
		TokenExpiresAt:  unix(time.Hour),
	}))
	tok, err := service.Bearer(context.Background())
	if err != nil || tok.AccessToken != "tenant-token" {
		t.Errorf("Expected tenant token in service mode, got %v, %v", tok, err)
	}

	delegated := newManager(t, base, writeConfig(t, feishu.Config{
		UserAccessToken: "user",
		TokenExpiresAt:  unix(time.Hour),
	}))
	tok, err = delegated.Bearer(context.Background())
	if err != nil || tok.AccessToken != "user" {
		t.Errorf("Expected user token in delegated mode, got %v, %v", tok, err)
	}
}

func TestEnableServiceMode(t *testing.T) {
	_, base := newFakeFeishu(t)
	store := writeConfig(t, feishu.Config{})
	m := newManager(t, base, store)

	if err := m.EnableServiceMode(context.Background()); err != nil {
		t.Fatalf("EnableServiceMode failed: %v", err)
	}
	if !m.ServiceMode() {
		t.Error("Expected service mode in memory")
	}
	cfg, _ := store.Load()
	if !cfg.UseTenantToken {
		t.Error("Expected service mode persisted")
	}
}

func TestEnableServiceModeRejected(t *testing.T) {
	fake, base := newFakeFeishu(t)
	fake.tenantCode = 10014
	store := writeConfig(t, feishu.Config{})
	m := newManager(t, base, store)

	if err := m.EnableServiceMode(context.Background()); err == nil {
		t.Fatal("Expected error")
	}
	cfg, _ := store.Load()
	if cfg.UseTenantToken {
		t.Error("Mode must not switch when the probe fails")
	}
}

func TestAuthURL(t *testing.T) {
	_, base := newFakeFeishu(t)
	m := newManager(t, base, writeConfig(t, feishu.Config{AppID: "cli_abc"}))

	u, err := url.Parse(m.AuthURL(feishu.AuthState))
	if err != nil {
		t.Fatalf("Invalid auth URL: %v", err)
	}
	if u.Path != "/authen/v1/index" {
		t.Errorf("Unexpected path %s", u.Path)
	}
	q := u.Query()
	if q.Get("app_id") != "cli_abc" {
		t.Errorf("Expected app_id cli_abc, got %q", q.Get("app_id"))
	}
	if q.Get("redirect_uri") != feishu.DefaultRedirectURL {
		t.Errorf("Expected default redirect, got %q", q.Get("redirect_uri"))
	}
	if q.Get("state") != "feishu_sync" {
		t.Errorf("Expected state feishu_sync, got %q", q.Get("state"))
	}
}

func TestNewTokenManagerRequiresCredentials(t *testing.T) {
	store := writeConfig(t, feishu.Config{AppID: "YOUR_APP_ID"})
	if _, err := feishu.NewTokenManager("", store); !errors.Is(err, feishu.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}
