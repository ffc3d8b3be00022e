package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/keebstore/internal/middleware"
	"github.com/hitoshi/keebstore/internal/model"
)

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	AddItem(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error)
	UpdateItemQuantity(ctx context.Context, sessionKey, userID, itemID string, quantity int) (*model.Cart, error)
	RemoveItem(ctx context.Context, sessionKey, userID, itemID string) (*model.Cart, error)
	Clear(ctx context.Context, sessionKey, userID string) error
	ApplyDiscount(ctx context.Context, sessionKey, userID, code string) (*model.Cart, error)
	RemoveDiscount(ctx context.Context, sessionKey, userID string) (*model.Cart, error)
	ViewModel(ctx context.Context, sessionKey, userID string) (*model.CartView, error)
}

// CartMetricsRecorder はカート操作のメトリクス記録に必要なインターフェース。
type CartMetricsRecorder interface {
	RecordCartMutation(action string)
}

// CartHandlerConfig はカートハンドラーの設定。
type CartHandlerConfig struct {
	Cookie            CookieConfig
	CartSessionMaxAge int // 匿名カートCookieの有効期間（秒）
}

// CartHandler はカート操作のHTTPハンドラー。
// フロントエンドのフォームアクションに対応するPOSTエンドポイントを提供する。
type CartHandler struct {
	service CartServiceInterface
	metrics CartMetricsRecorder
	config  CartHandlerConfig
}

// NewCartHandler はCartHandlerを生成する。metricsはnilでもよい。
func NewCartHandler(service CartServiceInterface, metrics CartMetricsRecorder, config CartHandlerConfig) *CartHandler {
	return &CartHandler{
		service: service,
		metrics: metrics,
		config:  config,
	}
}

// Get は現在のカートを返す。カートが無い場合は空のビューを返す。
// GET /cart
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionKey, userID := h.identity(r)

	view, err := h.service.ViewModel(r.Context(), sessionKey, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// AddItem は商品をカートに追加する。
// POST /cart/addItem (variantId, quantity, composites)
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sessionKey, userID := h.ensureIdentity(w, r)

	variantID := r.FormValue("variantId")
	quantity := parseQuantity(r.FormValue("quantity"))
	composites := parseComposites(r)

	cart, err := h.service.AddItem(r.Context(), sessionKey, userID, variantID, quantity, composites)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record("add_item")
	h.writeCart(w, r, cart, sessionKey, userID)
}

// UpdateItem はカートアイテムの数量を変更する。
// POST /cart/updateItem (itemId, quantity)
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	sessionKey, userID := h.identity(r)

	cart, err := h.service.UpdateItemQuantity(r.Context(), sessionKey, userID,
		r.FormValue("itemId"), parseQuantity(r.FormValue("quantity")))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record("update_item")
	h.writeCart(w, r, cart, sessionKey, userID)
}

// RemoveItem はカートからアイテムを削除する。
// POST /cart/removeItem (itemId)
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionKey, userID := h.identity(r)

	cart, err := h.service.RemoveItem(r.Context(), sessionKey, userID, r.FormValue("itemId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record("remove_item")
	h.writeCart(w, r, cart, sessionKey, userID)
}

// ApplyDiscount は割引コードを適用する。
// POST /cart/applyDiscount (code)
func (h *CartHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	sessionKey, userID := h.identity(r)

	cart, err := h.service.ApplyDiscount(r.Context(), sessionKey, userID, strings.TrimSpace(r.FormValue("code")))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record("apply_discount")
	h.writeCart(w, r, cart, sessionKey, userID)
}

// RemoveDiscount は割引を解除する。
// POST /cart/removeDiscount
func (h *CartHandler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	sessionKey, userID := h.identity(r)

	if _, err := h.service.RemoveDiscount(r.Context(), sessionKey, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.record("remove_discount")
	h.Get(w, r)
}

// ClearCart はカートを空にする。
// POST /cart/clearCart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sessionKey, userID := h.identity(r)

	if err := h.service.Clear(r.Context(), sessionKey, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.record("clear_cart")
	h.Get(w, r)
}

// identity はリクエストからカートの識別キーを取得する。
func (h *CartHandler) identity(r *http.Request) (sessionKey, userID string) {
	userID, _ = middleware.UserIDFromContext(r.Context())
	return cookieValue(r, cartSessionCookie), userID
}

// ensureIdentity は識別キーを取得し、匿名かつCookie未発行の場合は
// 新しいカートセッションキーを発行する。
func (h *CartHandler) ensureIdentity(w http.ResponseWriter, r *http.Request) (sessionKey, userID string) {
	sessionKey, userID = h.identity(r)
	if userID != "" || sessionKey != "" {
		return sessionKey, userID
	}

	key, err := generateCartSessionKey()
	if err != nil {
		slog.Error("failed to generate cart session key", slog.String("error", err.Error()))
		return "", ""
	}
	setCookie(w, h.config.Cookie, cartSessionCookie, key, h.config.CartSessionMaxAge)
	return key, ""
}

// writeCart はカートのビューモデルを書き込む。
func (h *CartHandler) writeCart(w http.ResponseWriter, r *http.Request, cart *model.Cart, sessionKey, userID string) {
	view, err := h.service.ViewModel(r.Context(), sessionKey, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if view.CartID == "" && cart != nil {
		view.CartID = cart.ID
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CartHandler) record(action string) {
	if h.metrics != nil {
		h.metrics.RecordCartMutation(action)
	}
}

// parseQuantity はフォーム値から数量を解析する。不正な値は0を返し、
// サービス層のバリデーションで拒否させる。
func parseQuantity(raw string) int {
	quantity, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return quantity
}

// parseComposites はフォームから同梱バリアントIDの一覧を解析する。
// 繰り返しフィールドとカンマ区切りの両方を受け付ける。
func parseComposites(r *http.Request) []string {
	var composites []string
	for _, raw := range r.Form["composites"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				composites = append(composites, id)
			}
		}
	}
	return composites
}

// generateCartSessionKey は匿名カートの識別キーを生成する。
func generateCartSessionKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
