package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/keebstore/internal/auth"
	"github.com/hitoshi/keebstore/internal/model"
)

// OAuthLoginService はOAuthコールバック後のログイン処理に必要なインターフェース。
type OAuthLoginService interface {
	LoginWithProfile(ctx context.Context, profile *auth.Profile, cartSessionKey string) (string, *model.User, error)
}

// OAuthHandlerConfig はOAuthハンドラーの設定。
type OAuthHandlerConfig struct {
	Cookie        CookieConfig
	SessionMaxAge int    // セッションCookieの有効期間（秒）
	FrontendURL   string // リダイレクト先のベースURL
}

// OAuthHandler はOAuthログインフローのHTTPハンドラー。
// 対応プロバイダはprovidersマップで登録されたもののみ。
type OAuthHandler struct {
	providers map[string]auth.Provider
	service   OAuthLoginService
	metrics   AuthMetricsRecorder
	config    OAuthHandlerConfig
}

// NewOAuthHandler はOAuthHandlerを生成する。metricsはnilでもよい。
func NewOAuthHandler(providers map[string]auth.Provider, service OAuthLoginService, metrics AuthMetricsRecorder, config OAuthHandlerConfig) *OAuthHandler {
	return &OAuthHandler{
		providers: providers,
		service:   service,
		metrics:   metrics,
		config:    config,
	}
}

// oauthCookieMaxAge はOAuthフロー中の一時Cookieの有効期間（秒）。
const oauthCookieMaxAge = 600

// Login はOAuth認可フローを開始する。
// GET /auth/login/{provider}?redirect=/path
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewUpstreamFailedError())
		return
	}

	// stateをCookieに保存（CSRF対策）
	setCookie(w, h.config.Cookie, name+oauthStateCookieName, state, oauthCookieMaxAge)

	// PKCE対応プロバイダにはcode verifierを発行
	var codeChallenge string
	if name == model.ProviderGoogle {
		verifier, err := auth.GenerateCodeVerifier()
		if err != nil {
			slog.Error("failed to generate code verifier", slog.String("error", err.Error()))
			writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewUpstreamFailedError())
			return
		}
		setCookie(w, h.config.Cookie, codeVerifierCookie, verifier, oauthCookieMaxAge)
		codeChallenge = auth.CodeChallengeS256(verifier)
	}

	// ログイン後の戻り先を保存（相対パスのみ許可）
	if redirect := sanitizeRedirect(r.URL.Query().Get("redirect")); redirect != "" {
		setCookie(w, h.config.Cookie, oauthRedirectCookie, redirect, oauthCookieMaxAge)
	}

	// プロバイダとの往復でカートCookieが失われる場合に備えて退避
	if cartKey := cookieValue(r, cartSessionCookie); cartKey != "" {
		setCookie(w, h.config.Cookie, preservedCartCookie, cartKey, oauthCookieMaxAge)
	}

	http.Redirect(w, r, provider.AuthCodeURL(state, codeChallenge), http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/callback/{provider}?code=xxx&state=yyy
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	if state == "" || state != cookieValue(r, name+oauthStateCookieName) {
		slog.Warn("oauth state mismatch", slog.String("provider", name))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewOAuthStateMismatchError())
		return
	}
	clearCookie(w, h.config.Cookie, name+oauthStateCookieName)

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewOAuthStateMismatchError())
		return
	}

	// 3. トークン交換とプロフィール取得
	var codeVerifier string
	if name == model.ProviderGoogle {
		codeVerifier = cookieValue(r, codeVerifierCookie)
		clearCookie(w, h.config.Cookie, codeVerifierCookie)
	}

	profile, err := provider.Exchange(r.Context(), code, codeVerifier)
	if err != nil {
		slog.Error("oauth exchange failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, model.NewUpstreamFailedError())
		return
	}

	// 4. ログイン処理。退避したカートキーがあればそちらを優先する
	cartKey := cookieValue(r, preservedCartCookie)
	if cartKey == "" {
		cartKey = cookieValue(r, cartSessionCookie)
	}
	clearCookie(w, h.config.Cookie, preservedCartCookie)

	token, _, err := h.service.LoginWithProfile(r.Context(), profile, cartKey)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeProviderConflict {
			// 既存アカウントと衝突した場合は衝突したプロバイダー名付きで
			// ログイン画面に戻す
			h.redirectWithError(w, r, "provider_conflict", apiErr.Fields["provider"])
			return
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin(name)
	}

	// 5. セッションCookieを設定し、保存しておいた戻り先にリダイレクト
	setCookie(w, h.config.Cookie, authSessionCookie, token, h.config.SessionMaxAge)

	redirect := sanitizeRedirect(cookieValue(r, oauthRedirectCookie))
	clearCookie(w, h.config.Cookie, oauthRedirectCookie)

	http.Redirect(w, r, h.config.FrontendURL+redirect, http.StatusSeeOther)
}

// redirectWithError はエラーコード付きでログイン画面にリダイレクトする。
// providerが空でなければクエリに含める。
func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, errorCode, provider string) {
	query := url.Values{"error": {errorCode}}
	if provider != "" {
		query.Set("provider", provider)
	}
	target := h.config.FrontendURL + "/login?" + query.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// sanitizeRedirect はオープンリダイレクトを防ぐため、
// サイト内の相対パス以外の戻り先を破棄する。
func sanitizeRedirect(redirect string) string {
	if redirect == "" || !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
		return ""
	}
	return redirect
}
