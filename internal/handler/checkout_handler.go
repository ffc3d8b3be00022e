package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/keebstore/internal/middleware"
	"github.com/hitoshi/keebstore/internal/model"
)

// CheckoutServiceInterface はチェックアウトハンドラーが必要とするサービスインターフェース。
type CheckoutServiceInterface interface {
	Create(ctx context.Context, sessionKey, userID string, addr model.Address, paymentIntentID string) (*model.Order, error)
}

// OrderMetricsRecorder は注文のメトリクス記録に必要なインターフェース。
type OrderMetricsRecorder interface {
	RecordOrderPlaced(total int64)
}

// CheckoutHandler は注文確定のHTTPハンドラー。
type CheckoutHandler struct {
	service CheckoutServiceInterface
	metrics OrderMetricsRecorder
}

// NewCheckoutHandler はCheckoutHandlerを生成する。metricsはnilでもよい。
func NewCheckoutHandler(service CheckoutServiceInterface, metrics OrderMetricsRecorder) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		metrics: metrics,
	}
}

// placeOrderResponse は注文確定のレスポンス。
// フロントエンドのフォームアクションが期待する形式。
type placeOrderResponse struct {
	Success     bool              `json:"success"`
	OrderID     string            `json:"orderId,omitempty"`
	OrderNumber string            `json:"orderNumber,omitempty"`
	Error       *apiErrorResponse `json:"error,omitempty"`
}

// PlaceOrder はカートの内容から注文を確定する。
// POST /checkout/placeOrder (name, email, phone, postalCode, prefecture, city,
// line1, line2, paymentIntentId)
//
// paymentIntentIdは認可済みの決済参照で、検証せずそのまま注文に記録する。
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	sessionKey := cookieValue(r, cartSessionCookie)

	addr := model.Address{
		Name:       r.FormValue("name"),
		Email:      r.FormValue("email"),
		Phone:      r.FormValue("phone"),
		PostalCode: r.FormValue("postalCode"),
		Prefecture: r.FormValue("prefecture"),
		City:       r.FormValue("city"),
		Line1:      r.FormValue("line1"),
		Line2:      r.FormValue("line2"),
	}

	order, err := h.service.Create(r.Context(), sessionKey, userID, addr, r.FormValue("paymentIntentId"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordOrderPlaced(order.Total)
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{
		Success:     true,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	})
}

// writeFailure は注文確定の失敗レスポンスを書き込む。
// フォームアクションの形式に合わせ、エラーはボディに含める。
func (h *CheckoutHandler) writeFailure(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	statusCode := http.StatusInternalServerError
	if errors.As(err, &apiErr) {
		statusCode = apiErr.StatusCode()
	} else {
		slog.Error("failed to place order", slog.String("error", err.Error()))
		apiErr = &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}

	writeJSON(w, statusCode, placeOrderResponse{
		Success: false,
		Error: &apiErrorResponse{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
			Fields:   apiErr.Fields,
		},
	})
}
