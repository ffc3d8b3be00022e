package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/keebstore/internal/middleware"
	"github.com/hitoshi/keebstore/internal/model"
)

// OrderServiceInterface は注文ハンドラーが必要とするサービスインターフェース。
type OrderServiceInterface interface {
	GetByID(ctx context.Context, orderID, requesterUserID, requesterEmail string) (*model.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*model.Order, error)
}

// AdminChecker は管理者権限の確認に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type AdminChecker interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// OrderHandler は注文参照・管理のHTTPハンドラー。
type OrderHandler struct {
	service OrderServiceInterface
	users   AdminChecker
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(service OrderServiceInterface, users AdminChecker) *OrderHandler {
	return &OrderHandler{
		service: service,
		users:   users,
	}
}

// orderItemResponse は注文明細のAPIレスポンス。
type orderItemResponse struct {
	ProductName string `json:"productName"`
	VariantName string `json:"variantName"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
}

// orderResponse は注文のAPIレスポンス。
type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Status          string              `json:"status"`
	Items           []orderItemResponse `json:"items"`
	ShippingAddress model.Address       `json:"shippingAddress"`
	Subtotal        int64               `json:"subtotal"`
	DiscountAmount  int64               `json:"discountAmount"`
	Total           int64               `json:"total"`
	CreatedAt       time.Time           `json:"createdAt"`
}

func toOrderResponse(order *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Price:       item.Price,
			Quantity:    item.Quantity,
		})
	}
	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		Items:           items,
		ShippingAddress: order.ShippingAddress,
		Subtotal:        order.Subtotal,
		DiscountAmount:  order.DiscountAmount,
		Total:           order.Total,
		CreatedAt:       order.CreatedAt,
	}
}

// Get は注文詳細を返す。
// ログインユーザーは自分の注文のみ、ゲストは注文時のメールアドレスを
// emailクエリで提示した場合のみ参照できる。
// GET /orders/{id}?email=xxx
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	userID, _ := middleware.UserIDFromContext(r.Context())
	email := r.URL.Query().Get("email")

	order, err := h.service.GetByID(r.Context(), orderID, userID, email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// List はログインユーザーの注文履歴を返す。
// GET /orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewSessionRequiredError())
		return
	}

	orders, err := h.service.ListByUser(r.Context(), userID, 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]orderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": responses})
}

// updateStatusRequest はステータス更新リクエストのボディ。
type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus は注文ステータスを遷移させる。管理者のみ実行可能。
// PATCH /admin/orders/{id}/status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewSessionRequiredError())
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil || !user.IsAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req updateStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
