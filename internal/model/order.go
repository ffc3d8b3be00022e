package model

import "time"

// 注文ステータス。
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusProcessing     = "processing"
	OrderStatusShipped        = "shipped"
	OrderStatusDelivered      = "delivered"
	OrderStatusPaymentFailed  = "payment_failed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusRefunded       = "refunded"
)

// orderTransitions は許可された注文ステータス遷移を定義する。
var orderTransitions = map[string][]string{
	OrderStatusPendingPayment: {OrderStatusProcessing, OrderStatusPaymentFailed, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusDelivered},
	OrderStatusDelivered:      {OrderStatusRefunded},
}

// CanTransitionOrderStatus はfromからtoへのステータス遷移が許可されているかを返す。
func CanTransitionOrderStatus(from, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Address は配送先住所を表す。
type Address struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	PostalCode string `json:"postalCode"`
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
}

// Order はチェックアウト時にカートから作成される不変のスナップショット。
// 作成後はステータス遷移以外の変更を行わない。
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string // ゲスト注文は空
	Email           string
	Status          string
	Items           []OrderItem
	ShippingAddress Address
	Subtotal        int64
	DiscountAmount  int64
	Total           int64
	PaymentIntentID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem は注文の1行を表す。価格・数量は注文確定時点で凍結される。
// 商品名・バリアント名もスナップショットとして保持し、
// カタログ側の変更に依存しない。
type OrderItem struct {
	ID          string
	OrderID     string
	VariantID   string
	ProductName string
	VariantName string
	Price       int64
	Quantity    int
}
