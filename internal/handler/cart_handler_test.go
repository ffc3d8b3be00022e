package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/hitoshi/keebstore/internal/middleware"
	"github.com/hitoshi/keebstore/internal/model"
)

// mockCartService は関数フィールドで挙動を差し替えるカートサービスのモック。
type mockCartService struct {
	addItemFn        func(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error)
	updateItemFn     func(ctx context.Context, sessionKey, userID, itemID string, quantity int) (*model.Cart, error)
	removeItemFn     func(ctx context.Context, sessionKey, userID, itemID string) (*model.Cart, error)
	clearFn          func(ctx context.Context, sessionKey, userID string) error
	applyDiscountFn  func(ctx context.Context, sessionKey, userID, code string) (*model.Cart, error)
	removeDiscountFn func(ctx context.Context, sessionKey, userID string) (*model.Cart, error)
	viewModelFn      func(ctx context.Context, sessionKey, userID string) (*model.CartView, error)
}

func (m *mockCartService) AddItem(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error) {
	if m.addItemFn != nil {
		return m.addItemFn(ctx, sessionKey, userID, variantID, quantity, composites)
	}
	return &model.Cart{ID: "cart-1"}, nil
}
func (m *mockCartService) UpdateItemQuantity(ctx context.Context, sessionKey, userID, itemID string, quantity int) (*model.Cart, error) {
	if m.updateItemFn != nil {
		return m.updateItemFn(ctx, sessionKey, userID, itemID, quantity)
	}
	return &model.Cart{ID: "cart-1"}, nil
}
func (m *mockCartService) RemoveItem(ctx context.Context, sessionKey, userID, itemID string) (*model.Cart, error) {
	if m.removeItemFn != nil {
		return m.removeItemFn(ctx, sessionKey, userID, itemID)
	}
	return &model.Cart{ID: "cart-1"}, nil
}
func (m *mockCartService) Clear(ctx context.Context, sessionKey, userID string) error {
	if m.clearFn != nil {
		return m.clearFn(ctx, sessionKey, userID)
	}
	return nil
}
func (m *mockCartService) ApplyDiscount(ctx context.Context, sessionKey, userID, code string) (*model.Cart, error) {
	if m.applyDiscountFn != nil {
		return m.applyDiscountFn(ctx, sessionKey, userID, code)
	}
	return &model.Cart{ID: "cart-1"}, nil
}
func (m *mockCartService) RemoveDiscount(ctx context.Context, sessionKey, userID string) (*model.Cart, error) {
	if m.removeDiscountFn != nil {
		return m.removeDiscountFn(ctx, sessionKey, userID)
	}
	return &model.Cart{ID: "cart-1"}, nil
}
func (m *mockCartService) ViewModel(ctx context.Context, sessionKey, userID string) (*model.CartView, error) {
	if m.viewModelFn != nil {
		return m.viewModelFn(ctx, sessionKey, userID)
	}
	return &model.CartView{CartID: "cart-1", Items: []model.CartItem{}}, nil
}

func newCartHandler(service *mockCartService) *CartHandler {
	return NewCartHandler(service, nil, CartHandlerConfig{CartSessionMaxAge: 3600})
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// TestCartAddItem_FormValues はフォーム値がサービスへ正しく渡されることを検証する。
func TestCartAddItem_FormValues(t *testing.T) {
	var gotVariantID string
	var gotQuantity int
	var gotComposites []string
	service := &mockCartService{
		addItemFn: func(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error) {
			gotVariantID = variantID
			gotQuantity = quantity
			gotComposites = composites
			return &model.Cart{ID: "cart-1"}, nil
		},
	}
	h := newCartHandler(service)

	req := formRequest("/cart/addItem", url.Values{
		"variantId":  {"v1"},
		"quantity":   {"2"},
		"composites": {"sw-1,sw-2", "cap-1"},
	})
	req.AddCookie(&http.Cookie{Name: "cart-session", Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotVariantID != "v1" || gotQuantity != 2 {
		t.Errorf("variantID/quantity = %q/%d, want v1/2", gotVariantID, gotQuantity)
	}
	// カンマ区切りと繰り返しフィールドの両方を受け付ける
	if want := []string{"sw-1", "sw-2", "cap-1"}; !reflect.DeepEqual(gotComposites, want) {
		t.Errorf("composites = %v, want %v", gotComposites, want)
	}
}

// TestCartAddItem_IssuesSessionCookie は匿名の初回操作で
// カートセッションCookieが発行されることを検証する。
func TestCartAddItem_IssuesSessionCookie(t *testing.T) {
	var gotSessionKey string
	service := &mockCartService{
		addItemFn: func(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error) {
			gotSessionKey = sessionKey
			return &model.Cart{ID: "cart-1"}, nil
		},
	}
	h := newCartHandler(service)

	req := formRequest("/cart/addItem", url.Values{"variantId": {"v1"}, "quantity": {"1"}})
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)

	cookie := findCookie(t, rec, "cart-session")
	if cookie == nil || cookie.Value == "" {
		t.Fatal("カートセッションCookieが発行されていない")
	}
	if gotSessionKey != cookie.Value {
		t.Errorf("サービスに渡されたキー = %q, Cookieの値 = %q", gotSessionKey, cookie.Value)
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("カートCookieのSameSite = %v, want Strict", cookie.SameSite)
	}
}

// TestSameSiteFor はCookie名ごとのSameSite属性を検証する。
// カートCookieだけStrictで、OAuthフローをまたぐCookieはLaxのまま。
func TestSameSiteFor(t *testing.T) {
	tests := []struct {
		name string
		want http.SameSite
	}{
		{cartSessionCookie, http.SameSiteStrictMode},
		{authSessionCookie, http.SameSiteLaxMode},
		{preservedCartCookie, http.SameSiteLaxMode},
		{"github" + oauthStateCookieName, http.SameSiteLaxMode},
	}
	for _, tc := range tests {
		if got := sameSiteFor(tc.name); got != tc.want {
			t.Errorf("sameSiteFor(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// TestCartAddItem_LoggedInUserSkipsCookie はログイン中のユーザーには
// 新しいカートCookieを発行しないことを検証する。
func TestCartAddItem_LoggedInUserSkipsCookie(t *testing.T) {
	var gotUserID string
	service := &mockCartService{
		addItemFn: func(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error) {
			gotUserID = userID
			return &model.Cart{ID: "cart-1"}, nil
		},
	}
	h := newCartHandler(service)

	req := formRequest("/cart/addItem", url.Values{"variantId": {"v1"}, "quantity": {"1"}})
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)

	if gotUserID != "user-1" {
		t.Errorf("userID = %q, want user-1", gotUserID)
	}
	if findCookie(t, rec, "cart-session") != nil {
		t.Error("ログイン中ユーザーにカートCookieが発行された")
	}
}

// TestCartAddItem_InsufficientStock は在庫不足エラーが統一フォーマットで
// 返ることを検証する。
func TestCartAddItem_InsufficientStock(t *testing.T) {
	service := &mockCartService{
		addItemFn: func(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error) {
			return nil, model.NewInsufficientStockError(5, 2)
		},
	}
	h := newCartHandler(service)

	req := formRequest("/cart/addItem", url.Values{"variantId": {"v1"}, "quantity": {"5"}})
	req.AddCookie(&http.Cookie{Name: "cart-session", Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	got := decodeErrorBody(t, rec)
	if got.Code != model.ErrCodeInsufficientStock {
		t.Errorf("エラーコード = %s, want %s", got.Code, model.ErrCodeInsufficientStock)
	}
	if got.Category != "cart" {
		t.Errorf("カテゴリ = %q, want cart", got.Category)
	}
}

// TestCartAddItem_InvalidQuantityString は数値でない数量がサービス層で
// 拒否されることを検証する（ハンドラーは0として渡す）。
func TestCartAddItem_InvalidQuantityString(t *testing.T) {
	var gotQuantity = -999
	service := &mockCartService{
		addItemFn: func(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error) {
			gotQuantity = quantity
			return nil, model.NewInvalidQuantityError()
		},
	}
	h := newCartHandler(service)

	req := formRequest("/cart/addItem", url.Values{"variantId": {"v1"}, "quantity": {"abc"}})
	req.AddCookie(&http.Cookie{Name: "cart-session", Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)

	if gotQuantity != 0 {
		t.Errorf("quantity = %d, want 0", gotQuantity)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// TestCartGet_ReturnsView はGET /cartがビューモデルを返すことを検証する。
func TestCartGet_ReturnsView(t *testing.T) {
	service := &mockCartService{
		viewModelFn: func(ctx context.Context, sessionKey, userID string) (*model.CartView, error) {
			return &model.CartView{
				CartID:    "cart-1",
				Items:     []model.CartItem{{ID: "item-1", VariantID: "v1", Quantity: 2, Price: 1000}},
				Subtotal:  2000,
				Total:     2000,
				ItemCount: 2,
			}, nil
		},
	}
	h := newCartHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: "cart-session", Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
	var view struct {
		CartID    string `json:"cartId"`
		ItemCount int    `json:"itemCount"`
		Total     int64  `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if view.CartID != "cart-1" || view.ItemCount != 2 || view.Total != 2000 {
		t.Errorf("ビュー = %+v", view)
	}
}

// TestCheckoutPlaceOrder_Success は注文確定の成功レスポンスの形式を検証する。
func TestCheckoutPlaceOrder_Success(t *testing.T) {
	checkout := NewCheckoutHandler(&mockCheckoutService{
		createFn: func(ctx context.Context, sessionKey, userID string, addr model.Address, paymentIntentID string) (*model.Order, error) {
			if addr.Name != "山田 太郎" || addr.Email != "taro@example.com" {
				t.Errorf("住所がフォームから渡されていない: %+v", addr)
			}
			// フォームの決済参照がそのままサービスに届くこと
			if paymentIntentID != "pi_20260829_abc" {
				t.Errorf("決済参照 = %q, want pi_20260829_abc", paymentIntentID)
			}
			return &model.Order{ID: "order-1", OrderNumber: "KB-20260829-AB12CD", Total: 27500}, nil
		},
	}, nil)

	req := formRequest("/checkout/placeOrder", url.Values{
		"name":            {"山田 太郎"},
		"email":           {"taro@example.com"},
		"postalCode":      {"150-0001"},
		"prefecture":      {"東京都"},
		"city":            {"渋谷区"},
		"line1":           {"神宮前1-2-3"},
		"paymentIntentId": {"pi_20260829_abc"},
	})
	req.AddCookie(&http.Cookie{Name: "cart-session", Value: "sess-1"})
	rec := httptest.NewRecorder()
	checkout.PlaceOrder(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusCreated)
	}
	var body struct {
		Success     bool   `json:"success"`
		OrderID     string `json:"orderId"`
		OrderNumber string `json:"orderNumber"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if !body.Success || body.OrderID != "order-1" || body.OrderNumber != "KB-20260829-AB12CD" {
		t.Errorf("レスポンス = %+v", body)
	}
}

// TestCheckoutPlaceOrder_Failure は失敗時のレスポンス形式を検証する。
// フォームアクションの形式に合わせ、エラーはボディのerrorフィールドに入る。
func TestCheckoutPlaceOrder_Failure(t *testing.T) {
	checkout := NewCheckoutHandler(&mockCheckoutService{
		createFn: func(ctx context.Context, sessionKey, userID string, addr model.Address, paymentIntentID string) (*model.Order, error) {
			return nil, model.NewInvalidAddressError(map[string]string{"email": "required"})
		},
	}, nil)

	req := formRequest("/checkout/placeOrder", url.Values{"name": {"山田 太郎"}})
	rec := httptest.NewRecorder()
	checkout.PlaceOrder(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body struct {
		Success bool              `json:"success"`
		Error   *apiErrorResponse `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body.Success {
		t.Error("失敗なのにsuccess=true")
	}
	if body.Error == nil || body.Error.Code != model.ErrCodeInvalidAddress {
		t.Errorf("エラー = %+v, want %s", body.Error, model.ErrCodeInvalidAddress)
	}
	if body.Error != nil && body.Error.Fields["email"] != "required" {
		t.Errorf("Fields[email] = %q, want required", body.Error.Fields["email"])
	}
}

type mockCheckoutService struct {
	createFn func(ctx context.Context, sessionKey, userID string, addr model.Address, paymentIntentID string) (*model.Order, error)
}

func (m *mockCheckoutService) Create(ctx context.Context, sessionKey, userID string, addr model.Address, paymentIntentID string) (*model.Order, error) {
	if m.createFn != nil {
		return m.createFn(ctx, sessionKey, userID, addr, paymentIntentID)
	}
	return &model.Order{ID: "order-1"}, nil
}
