package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hitoshi/keebstore/internal/model"
)

const (
	defaultFacebookAuthURL    = "https://www.facebook.com/v19.0/dialog/oauth"
	defaultFacebookTokenURL   = "https://graph.facebook.com/v19.0/oauth/access_token"
	defaultFacebookProfileURL = "https://graph.facebook.com/v19.0/me"
)

// FacebookConfig はFacebook OAuthプロバイダーの設定。
type FacebookConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	ProfileURL string
}

// FacebookProvider はFacebook Login（OAuth 2.0）による認証を提供する。
type FacebookProvider struct {
	config FacebookConfig
	client *http.Client
}

// NewFacebookProvider はFacebookProviderを生成する。
func NewFacebookProvider(config FacebookConfig) *FacebookProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultFacebookAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultFacebookTokenURL
	}
	if config.ProfileURL == "" {
		config.ProfileURL = defaultFacebookProfileURL
	}
	return &FacebookProvider{config: config, client: newOAuthHTTPClient()}
}

// Name はプロバイダー名を返す。
func (p *FacebookProvider) Name() string { return model.ProviderFacebook }

// AuthCodeURL はFacebookの認可URLを生成する。PKCEは使用しない。
func (p *FacebookProvider) AuthCodeURL(state, _ string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"email public_profile"},
		"state":        {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// Facebookのメールアドレスは検証状態が取得できないため、
// EmailVerifiedはfalseで返す。
func (p *FacebookProvider) Exchange(ctx context.Context, code, _ string) (*Profile, error) {
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

func (p *FacebookProvider) exchangeToken(ctx context.Context, code string) (string, error) {
	// Facebookのトークンエンドポイントはクエリパラメータ付きGET
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"code":          {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.config.TokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

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

func (p *FacebookProvider) fetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	params := url.Values{
		"fields":       {"id,name,email"},
		"access_token": {accessToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.config.ProfileURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}

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

	var fbUser struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &fbUser); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}
	if fbUser.ID == "" {
		return nil, fmt.Errorf("empty user id in profile response")
	}
	if fbUser.Email == "" {
		return nil, fmt.Errorf("no email available in profile response")
	}

	return &Profile{
		Provider:      model.ProviderFacebook,
		ProviderID:    fbUser.ID,
		Email:         fbUser.Email,
		Name:          fbUser.Name,
		EmailVerified: false,
	}, nil
}

// compile-time interface check
var _ Provider = (*FacebookProvider)(nil)
