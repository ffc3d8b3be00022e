package model

import "testing"

// TestCanTransitionOrderStatus は注文ステータスの遷移ルールを検証する。
func TestCanTransitionOrderStatus(t *testing.T) {
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{OrderStatusPendingPayment, OrderStatusProcessing, true},
		{OrderStatusPendingPayment, OrderStatusPaymentFailed, true},
		{OrderStatusPendingPayment, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusRefunded, true},

		// 逆行・飛び越しは許可しない
		{OrderStatusShipped, OrderStatusProcessing, false},
		{OrderStatusPendingPayment, OrderStatusShipped, false},
		{OrderStatusPendingPayment, OrderStatusDelivered, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},

		// 終端ステータスからは遷移できない
		{OrderStatusCancelled, OrderStatusProcessing, false},
		{OrderStatusRefunded, OrderStatusProcessing, false},
		{OrderStatusPaymentFailed, OrderStatusProcessing, false},
	}

	for _, tc := range cases {
		if got := CanTransitionOrderStatus(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionOrderStatus(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

// TestAPIError_StatusCode はエラーコードとHTTPステータスの対応を検証する。
func TestAPIError_StatusCode(t *testing.T) {
	cases := []struct {
		err  *APIError
		want int
	}{
		{NewProductNotFoundError("x"), 404},
		{NewOrderNotFoundError("x"), 404},
		{NewCartItemNotFoundError("x"), 404},
		{NewPageNotFoundError("x"), 404},
		{NewInvalidCredentialsError(), 401},
		{NewSessionRequiredError(), 401},
		{NewUpstreamFailedError(), 502},
		{NewEmailTakenError(), 400},
		{NewInsufficientStockError(5, 2), 400},
	}

	for _, tc := range cases {
		if got := tc.err.StatusCode(); got != tc.want {
			t.Errorf("%s: StatusCode() = %d, want %d", tc.err.Code, got, tc.want)
		}
	}
}

// TestNewEmailTakenError_HasFieldMessage は登録フォームに表示する
// フィールド単位のメッセージを持つことを検証する。
func TestNewEmailTakenError_HasFieldMessage(t *testing.T) {
	err := NewEmailTakenError()
	if err.Fields["email"] == "" {
		t.Error("emailフィールドのメッセージが空")
	}
}
