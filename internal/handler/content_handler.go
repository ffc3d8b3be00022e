package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/keebstore/internal/content"
	"github.com/hitoshi/keebstore/internal/model"
)

// localeCookieMaxAge はロケールCookieの有効期間（秒）。1年。
const localeCookieMaxAge = 365 * 24 * 60 * 60

// ContentHandler は静的ページとロケール設定のHTTPハンドラー。
type ContentHandler struct {
	loader        *content.Loader
	cookie        CookieConfig
	defaultLocale string
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(loader *content.Loader, cookie CookieConfig, defaultLocale string) *ContentHandler {
	return &ContentHandler{
		loader:        loader,
		cookie:        cookie,
		defaultLocale: defaultLocale,
	}
}

// GetPage はローカライズ済みの静的ページを返す。
// ロケールはCookieから決定し、翻訳が無い場合は既定ロケールにフォールバックする。
// GET /pages/{slug}
func (h *ContentHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	locale := cookieValue(r, localeCookie)
	if locale == "" {
		locale = h.defaultLocale
	}

	page, err := h.loader.Get(locale, chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// localeRequest はロケール設定リクエストのボディ。
type localeRequest struct {
	Locale string `json:"locale"`
}

// SetLocale は表示言語をCookieに保存する。
// コンテンツが存在しないロケールは拒否する。
// POST /locale
func (h *ContentHandler) SetLocale(w http.ResponseWriter, r *http.Request) {
	var req localeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if !h.loader.HasLocale(req.Locale) {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeValidationFailed,
			Message:  "対応していない言語です。",
			Category: "validation",
			Action:   "対応している言語を指定してください。",
			Fields:   map[string]string{"locale": "unsupported"},
		})
		return
	}

	// フロントエンドからも参照するためHttpOnlyにはしない
	http.SetCookie(w, &http.Cookie{
		Name:     localeCookie,
		Value:    req.Locale,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   localeCookieMaxAge,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"locale": req.Locale})
}
