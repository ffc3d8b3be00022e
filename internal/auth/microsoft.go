package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/keebstore/internal/model"
)

const (
	defaultMicrosoftAuthURL    = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	defaultMicrosoftTokenURL   = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	defaultMicrosoftProfileURL = "https://graph.microsoft.com/v1.0/me"
)

// MicrosoftConfig はMicrosoft OAuthプロバイダーの設定。
type MicrosoftConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	ProfileURL string
}

// MicrosoftProvider はMicrosoft identity platform（OAuth 2.0）による認証を提供する。
type MicrosoftProvider struct {
	config MicrosoftConfig
	client *http.Client
}

// NewMicrosoftProvider はMicrosoftProviderを生成する。
func NewMicrosoftProvider(config MicrosoftConfig) *MicrosoftProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultMicrosoftAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultMicrosoftTokenURL
	}
	if config.ProfileURL == "" {
		config.ProfileURL = defaultMicrosoftProfileURL
	}
	return &MicrosoftProvider{config: config, client: newOAuthHTTPClient()}
}

// Name はプロバイダー名を返す。
func (p *MicrosoftProvider) Name() string { return model.ProviderMicrosoft }

// AuthCodeURL はMicrosoftの認可URLを生成する。PKCEは使用しない。
func (p *MicrosoftProvider) AuthCodeURL(state, _ string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"response_mode": {"query"},
		"scope":         {"openid email profile User.Read"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange は認可コードをアクセストークンに交換し、Microsoft Graphから
// ユーザー情報を取得する。
func (p *MicrosoftProvider) Exchange(ctx context.Context, code, _ string) (*Profile, error) {
	token, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	profile, err := p.fetchProfile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	return profile, nil
}

func (p *MicrosoftProvider) exchangeToken(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

func (p *MicrosoftProvider) fetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var msUser struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.Unmarshal(body, &msUser); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}
	if msUser.ID == "" {
		return nil, fmt.Errorf("empty user id in profile response")
	}

	// mailが空のアカウントはuserPrincipalNameをメールアドレスとして扱う
	email := msUser.Mail
	if email == "" {
		email = msUser.UserPrincipalName
	}
	if email == "" {
		return nil, fmt.Errorf("no email available in profile response")
	}

	return &Profile{
		Provider:      model.ProviderMicrosoft,
		ProviderID:    msUser.ID,
		Email:         email,
		Name:          msUser.DisplayName,
		EmailVerified: true,
	}, nil
}

// compile-time interface check
var _ Provider = (*MicrosoftProvider)(nil)
