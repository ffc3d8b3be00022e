package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/keebstore/internal/middleware"
	"github.com/hitoshi/keebstore/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, cartSessionKey string) (string, *model.User, error)
	Login(ctx context.Context, email, password, cartSessionKey string) (string, *model.User, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*model.User, error)
	ChangePassword(ctx context.Context, userID, current, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

// AuthMetricsRecorder は認証イベントのメトリクス記録に必要なインターフェース。
type AuthMetricsRecorder interface {
	RecordLogin(provider string)
	RecordRegistration()
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie        CookieConfig
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメール・パスワード認証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics AuthMetricsRecorder
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。metricsはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, metrics AuthMetricsRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		metrics: metrics,
		config:  config,
	}
}

// credentialsRequest は登録・ログインリクエストのボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// changePasswordRequest はパスワード変更リクエストのボディ。
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// resetRequest はパスワード再設定リクエストのボディ。
type resetRequest struct {
	Email string `json:"email"`
}

// resetConfirmRequest はパスワード再設定確定リクエストのボディ。
type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Provider      string    `json:"provider"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Email:         user.Email,
		Provider:      user.Provider,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
	}
}

// Register は新規ユーザー登録を処理する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	token, user, err := h.service.Register(r.Context(), req.Email, req.Password, cookieValue(r, cartSessionCookie))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordRegistration()
	}

	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login はメール・パスワードによるログインを処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Email, req.Password, cookieValue(r, cartSessionCookie))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin(model.ProviderEmail)
	}

	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := cookieValue(r, authSessionCookie); token != "" {
		// 破棄に失敗してもCookieはクリアする
		if err := h.service.Logout(r.Context(), token); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	clearCookie(w, h.config.Cookie, authSessionCookie)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, authSessionCookie)
	if token == "" {
		handleServiceError(w, model.NewSessionRequiredError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ChangePassword はログイン中ユーザーのパスワードを変更する。
// POST /auth/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewSessionRequiredError())
		return
	}

	var req changePasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	// 全セッションが無効化されるためCookieもクリアする
	clearCookie(w, h.config.Cookie, authSessionCookie)
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset はパスワード再設定メールの送信を受け付ける。
// アカウントの存在を漏らさないため、常に202を返す。
// POST /auth/password/reset
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// ConfirmPasswordReset は再設定トークンによるパスワード更新を処理する。
// POST /auth/password/reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// setSessionCookie は認証セッションCookieを設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	setCookie(w, h.config.Cookie, authSessionCookie, token, h.config.SessionMaxAge)
}
