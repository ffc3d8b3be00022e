// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/keebstore/internal/model"
)

// Cookie名。フロントエンドとの互換のため変更しない。
const (
	authSessionCookie    = "auth-session"
	cartSessionCookie    = "cart-session"
	oauthRedirectCookie  = "oauth_redirect"
	preservedCartCookie  = "preserved_cart_session"
	codeVerifierCookie   = "google_code_verifier"
	localeCookie         = "PARAGLIDE_LOCALE"
	oauthStateCookieName = "_oauth_state" // {provider}_oauth_state のサフィックス
)

// CookieConfig はCookie発行の共通設定。
type CookieConfig struct {
	Domain string
	Secure bool
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Action   string            `json:"action"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Fields:   apiErr.Fields,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログのみに記録し、一般的な500レスポンスを返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, apiErr.StatusCode(), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// decodeJSONBody はリクエストボディをJSONとして読み取る。
// 解析失敗時は統一フォーマットのエラーを書き込み、falseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// cookieValue はCookieの値を返す。存在しない場合は空文字列。
func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setCookie はHTTP Only Cookieを設定する。
func setCookie(w http.ResponseWriter, config CookieConfig, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: sameSiteFor(name),
	})
}

// sameSiteFor はCookie名に応じたSameSite属性を返す。
// カートCookieはクロスサイトのフォーム送信に載らないようStrict。
// OAuthプロバイダからのリダイレクトでStrict Cookieは送信されないため、
// カートキーはフロー開始時にpreserved_cart_sessionへ退避している。
// 認証・OAuth系のCookieはリダイレクトをまたぐ必要があるためLax。
func sameSiteFor(name string) http.SameSite {
	if name == cartSessionCookie {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// clearCookie はCookieを削除する。
func clearCookie(w http.ResponseWriter, config CookieConfig, name string) {
	setCookie(w, config, name, "", -1)
}
