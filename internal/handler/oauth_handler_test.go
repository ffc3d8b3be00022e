package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/keebstore/internal/auth"
	"github.com/hitoshi/keebstore/internal/model"
)

// --- モック ---

type mockProvider struct {
	name       string
	exchangeFn func(ctx context.Context, code, codeVerifier string) (*auth.Profile, error)
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) AuthCodeURL(state, codeChallenge string) string {
	params := url.Values{"state": {state}}
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
	}
	return "https://provider.example.com/authorize?" + params.Encode()
}
func (m *mockProvider) Exchange(ctx context.Context, code, codeVerifier string) (*auth.Profile, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, codeVerifier)
	}
	return &auth.Profile{Provider: m.name, ProviderID: "12345", Email: "taro@example.com"}, nil
}

type mockOAuthLoginService struct {
	loginFn func(ctx context.Context, profile *auth.Profile, cartSessionKey string) (string, *model.User, error)
	cartKey string
}

func (m *mockOAuthLoginService) LoginWithProfile(ctx context.Context, profile *auth.Profile, cartSessionKey string) (string, *model.User, error) {
	m.cartKey = cartSessionKey
	if m.loginFn != nil {
		return m.loginFn(ctx, profile, cartSessionKey)
	}
	return "session-token-1", &model.User{ID: "user-1", Email: profile.Email}, nil
}

func newOAuthTestRouter(h *OAuthHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/auth/login/{provider}", h.Login)
	r.Get("/auth/callback/{provider}", h.Callback)
	return r
}

func newOAuthTestHandler(service *mockOAuthLoginService, exchangeFn func(ctx context.Context, code, codeVerifier string) (*auth.Profile, error)) *OAuthHandler {
	providers := map[string]auth.Provider{
		model.ProviderGitHub: &mockProvider{name: model.ProviderGitHub, exchangeFn: exchangeFn},
		model.ProviderGoogle: &mockProvider{name: model.ProviderGoogle, exchangeFn: exchangeFn},
	}
	return NewOAuthHandler(providers, service, nil, OAuthHandlerConfig{
		SessionMaxAge: 3600,
		FrontendURL:   "https://store.example.com",
	})
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

// TestOAuthLogin_SetsStateAndRedirects はフロー開始時にstate Cookieが設定され、
// プロバイダの認可URLへリダイレクトされることを検証する。
func TestOAuthLogin_SetsStateAndRedirects(t *testing.T) {
	router := newOAuthTestRouter(newOAuthTestHandler(&mockOAuthLoginService{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/login/github?redirect=/cart", nil)
	req.AddCookie(&http.Cookie{Name: "cart-session", Value: "anon-cart-key"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusFound)
	}

	stateCookie := findCookie(t, rec, "github_oauth_state")
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("state Cookieが設定されていない")
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Locationがパースできない: %v", err)
	}
	if got := location.Query().Get("state"); got != stateCookie.Value {
		t.Errorf("認可URLのstate = %q, Cookieの値 = %q", got, stateCookie.Value)
	}

	// 戻り先とカートキーが退避されている
	if c := findCookie(t, rec, "oauth_redirect"); c == nil || c.Value != "/cart" {
		t.Error("oauth_redirect Cookieが設定されていない")
	}
	if c := findCookie(t, rec, "preserved_cart_session"); c == nil || c.Value != "anon-cart-key" {
		t.Error("preserved_cart_session Cookieが設定されていない")
	}
	// GitHubはPKCE非対応
	if c := findCookie(t, rec, "google_code_verifier"); c != nil {
		t.Error("GitHubフローでcode verifier Cookieが設定された")
	}
}

// TestOAuthLogin_GooglePKCE はGoogleフローでcode verifier Cookieと
// code_challengeが発行されることを検証する。
func TestOAuthLogin_GooglePKCE(t *testing.T) {
	router := newOAuthTestRouter(newOAuthTestHandler(&mockOAuthLoginService{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/login/google", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	verifierCookie := findCookie(t, rec, "google_code_verifier")
	if verifierCookie == nil || verifierCookie.Value == "" {
		t.Fatal("code verifier Cookieが設定されていない")
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Locationがパースできない: %v", err)
	}
	want := auth.CodeChallengeS256(verifierCookie.Value)
	if got := location.Query().Get("code_challenge"); got != want {
		t.Errorf("code_challenge = %q, want %q", got, want)
	}
}

// TestOAuthLogin_UnknownProvider は未対応プロバイダが404になることを検証する。
func TestOAuthLogin_UnknownProvider(t *testing.T) {
	router := newOAuthTestRouter(newOAuthTestHandler(&mockOAuthLoginService{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/login/twitter", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// TestOAuthCallback_StateMismatch はstate不一致のコールバックが
// 拒否されることを検証する。
func TestOAuthCallback_StateMismatch(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		cookieState string
	}{
		{"stateが一致しない", "?code=c1&state=attacker-state", "real-state"},
		{"state Cookieが無い", "?code=c1&state=some-state", ""},
		{"stateパラメータが無い", "?code=c1", "real-state"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newOAuthTestRouter(newOAuthTestHandler(&mockOAuthLoginService{}, nil))

			req := httptest.NewRequest(http.MethodGet, "/auth/callback/github"+tc.query, nil)
			if tc.cookieState != "" {
				req.AddCookie(&http.Cookie{Name: "github_oauth_state", Value: tc.cookieState})
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			var body struct {
				Code string `json:"code"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("レスポンスのパースに失敗: %v", err)
			}
			if body.Code != model.ErrCodeOAuthStateMismatch {
				t.Errorf("エラーコード = %s, want %s", body.Code, model.ErrCodeOAuthStateMismatch)
			}
		})
	}
}

// TestOAuthCallback_Success は正常なコールバックでセッションCookieが設定され、
// 退避していた戻り先へリダイレクトされることを検証する。
func TestOAuthCallback_Success(t *testing.T) {
	service := &mockOAuthLoginService{}
	router := newOAuthTestRouter(newOAuthTestHandler(service, nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/callback/github?code=c1&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: "github_oauth_state", Value: "state-1"})
	req.AddCookie(&http.Cookie{Name: "oauth_redirect", Value: "/cart"})
	req.AddCookie(&http.Cookie{Name: "preserved_cart_session", Value: "preserved-key"})
	req.AddCookie(&http.Cookie{Name: "cart-session", Value: "current-key"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); got != "https://store.example.com/cart" {
		t.Errorf("Location = %q, want https://store.example.com/cart", got)
	}

	sessionCookie := findCookie(t, rec, "auth-session")
	if sessionCookie == nil || sessionCookie.Value != "session-token-1" {
		t.Error("セッションCookieが設定されていない")
	}
	// プロバイダ往復前に退避したカートキーを優先する
	if service.cartKey != "preserved-key" {
		t.Errorf("マージに使われたカートキー = %q, want preserved-key", service.cartKey)
	}
}

// TestOAuthCallback_ProviderConflict は別プロバイダで登録済みの場合に
// 衝突したプロバイダ名付きでログイン画面へ戻されることを検証する。
func TestOAuthCallback_ProviderConflict(t *testing.T) {
	service := &mockOAuthLoginService{
		loginFn: func(ctx context.Context, profile *auth.Profile, cartSessionKey string) (string, *model.User, error) {
			return "", nil, model.NewProviderConflictError(model.ProviderGoogle)
		},
	}
	router := newOAuthTestRouter(newOAuthTestHandler(service, nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/callback/github?code=c1&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: "github_oauth_state", Value: "state-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusFound)
	}
	location := rec.Header().Get("Location")
	if !strings.Contains(location, "error=provider_conflict") {
		t.Errorf("Location = %q, error=provider_conflictを含むべき", location)
	}
	// どのアカウントでログインし直せばよいかをフロントに伝える
	if !strings.Contains(location, "provider="+model.ProviderGoogle) {
		t.Errorf("Location = %q, provider=%sを含むべき", location, model.ProviderGoogle)
	}
	if findCookie(t, rec, "auth-session") != nil {
		t.Error("衝突時にセッションCookieが設定された")
	}
}

// TestSanitizeRedirect はオープンリダイレクト対策の検証。
func TestSanitizeRedirect(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/cart", "/cart"},
		{"/orders/abc", "/orders/abc"},
		{"", ""},
		{"https://evil.example.com", ""},
		{"//evil.example.com", ""},
		{"cart", ""},
	}

	for _, tc := range tests {
		if got := sanitizeRedirect(tc.in); got != tc.want {
			t.Errorf("sanitizeRedirect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
