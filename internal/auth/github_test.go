package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/keebstore/internal/model"
)

// TestGitHubAuthCodeURL は認可URLに必要なパラメータが含まれることを検証する。
func TestGitHubAuthCodeURL(t *testing.T) {
	p := NewGitHubProvider(GitHubConfig{
		ClientID:    "client-1",
		RedirectURL: "https://store.example.com/auth/callback/github",
	})

	raw := p.AuthCodeURL("state-abc", "")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("認可URLがパースできない: %v", err)
	}

	q := u.Query()
	if q.Get("client_id") != "client-1" {
		t.Errorf("client_id = %q, want client-1", q.Get("client_id"))
	}
	if q.Get("state") != "state-abc" {
		t.Errorf("state = %q, want state-abc", q.Get("state"))
	}
	if !strings.Contains(q.Get("scope"), "user:email") {
		t.Errorf("scope = %q, user:emailを含むべき", q.Get("scope"))
	}
	// GitHubはPKCE非対応のためcode_challengeを付けない
	if q.Get("code_challenge") != "" {
		t.Errorf("code_challengeが付与されている: %q", q.Get("code_challenge"))
	}
}

// TestGitHubExchange はコード交換からプロフィール取得までの一連の流れを検証する。
// プロフィールのメールアドレスが非公開の場合はemailsエンドポイントへ
// フォールバックする。
func TestGitHubExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("トークン交換のメソッド = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("フォームのパースに失敗: %v", err)
		}
		if r.PostForm.Get("code") != "auth-code-1" {
			t.Errorf("code = %q, want auth-code-1", r.PostForm.Get("code"))
		}
		if r.PostForm.Get("client_secret") != "secret-1" {
			t.Errorf("client_secret = %q, want secret-1", r.PostForm.Get("client_secret"))
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gh-token-1"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer gh-token-1" {
			t.Errorf("Authorization = %q, want Bearer gh-token-1", got)
		}
		// メールアドレス非公開のユーザー
		json.NewEncoder(w).Encode(map[string]any{
			"id":    12345,
			"login": "keebfan",
			"name":  "",
			"email": "",
		})
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "unverified@example.com", "primary": true, "verified": false},
			{"email": "primary@example.com", "primary": true, "verified": true},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := NewGitHubProvider(GitHubConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		TokenURL:     server.URL + "/token",
		UserURL:      server.URL + "/user",
		EmailsURL:    server.URL + "/emails",
	})

	profile, err := p.Exchange(context.Background(), "auth-code-1", "")
	if err != nil {
		t.Fatalf("Exchange() がエラーを返した: %v", err)
	}

	if profile.Provider != model.ProviderGitHub {
		t.Errorf("Provider = %q, want %q", profile.Provider, model.ProviderGitHub)
	}
	if profile.ProviderID != "12345" {
		t.Errorf("ProviderID = %q, want 12345", profile.ProviderID)
	}
	// プライマリかつ検証済みのアドレスを選ぶ
	if profile.Email != "primary@example.com" {
		t.Errorf("Email = %q, want primary@example.com", profile.Email)
	}
	// 表示名が空の場合はloginへフォールバック
	if profile.Name != "keebfan" {
		t.Errorf("Name = %q, want keebfan", profile.Name)
	}
}

// TestGitHubExchange_TokenRejected はトークン交換の失敗が
// エラーとして伝播することを検証する。
func TestGitHubExchange_TokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "bad_verification_code",
			"error_description": "The code passed is incorrect or expired.",
		})
	}))
	defer server.Close()

	p := NewGitHubProvider(GitHubConfig{
		ClientID: "client-1",
		TokenURL: server.URL,
	})

	_, err := p.Exchange(context.Background(), "expired-code", "")
	if err == nil {
		t.Fatal("拒否されたコードがエラーにならなかった")
	}
	if !strings.Contains(err.Error(), "bad_verification_code") {
		t.Errorf("エラーにプロバイダーの理由が含まれていない: %v", err)
	}
}
