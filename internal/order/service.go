// Package order は注文作成とステータス管理のビジネスロジックを提供する。
package order

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/keebstore/internal/model"
	"github.com/hitoshi/keebstore/internal/repository"
)

// ConfirmationMailer は注文確認メールの送信を抽象化する。
type ConfirmationMailer interface {
	SendOrderConfirmation(ctx context.Context, to string, order *model.Order) error
}

// Service は注文のビジネスロジックを提供する。
type Service struct {
	orders   repository.OrderRepository
	carts    repository.CartRepository
	products repository.ProductRepository
	mailer   ConfirmationMailer
	now      func() time.Time
}

// NewService はServiceを生成する。mailerはnilでもよい（メール送信をスキップする）。
func NewService(
	orders repository.OrderRepository,
	carts repository.CartRepository,
	products repository.ProductRepository,
	mailer ConfirmationMailer,
) *Service {
	return &Service{
		orders:   orders,
		carts:    carts,
		products: products,
		mailer:   mailer,
		now:      time.Now,
	}
}

// Create はカートの内容から注文を作成する。
//
// 注文は作成時点のスナップショットであり、商品名・バリアント名・価格・
// 数量・割引額をすべて凍結する。以降のカタログや割引の変更は
// 作成済み注文に影響しない。作成成功後にカートを空にし、
// 確認メールを送信する（メール失敗は注文を失敗させない）。
//
// paymentIntentIDは認可済みの決済参照としてそのまま受け取り、
// 注文スナップショットに保存する。
func (s *Service) Create(ctx context.Context, sessionKey, userID string, addr model.Address, paymentIntentID string) (*model.Order, error) {
	if fields := validateAddress(addr); len(fields) > 0 {
		return nil, model.NewInvalidAddressError(fields)
	}

	cart, err := s.findCart(ctx, sessionKey, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, model.NewCartEmptyError()
	}

	// 注文確定時点の在庫を再確認する
	variantIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		variantIDs = append(variantIDs, item.VariantID)
	}
	variants, err := s.products.FindVariantsByIDs(ctx, variantIDs)
	if err != nil {
		return nil, err
	}
	variantByID := make(map[string]model.ProductVariant, len(variants))
	productIDs := make([]string, 0, len(variants))
	for _, v := range variants {
		variantByID[v.ID] = v
		productIDs = append(productIDs, v.ProductID)
	}
	for _, item := range cart.Items {
		v, ok := variantByID[item.VariantID]
		if !ok {
			return nil, model.NewProductNotFoundError(item.VariantID)
		}
		if item.Quantity > v.StockQuantity {
			return nil, model.NewInsufficientStockError(item.Quantity, v.StockQuantity)
		}
	}

	productNames, err := s.products.NamesByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	orderID := uuid.New().String()
	order := &model.Order{
		ID:              orderID,
		OrderNumber:     generateOrderNumber(orderID, now),
		UserID:          userID,
		Email:           addr.Email,
		Status:          model.OrderStatusPendingPayment,
		ShippingAddress: addr,
		Subtotal:        cart.Subtotal(),
		DiscountAmount:  cart.DiscountAmount,
		Total:           cart.Total(),
		PaymentIntentID: paymentIntentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, item := range cart.Items {
		v := variantByID[item.VariantID]
		order.Items = append(order.Items, model.OrderItem{
			ID:          uuid.New().String(),
			OrderID:     orderID,
			VariantID:   item.VariantID,
			ProductName: productNames[v.ProductID],
			VariantName: v.Name,
			Price:       item.Price,
			Quantity:    item.Quantity,
		})
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	// 注文確定後にカートを空にする。失敗してもロールバックはしない
	if err := s.carts.DeleteItems(ctx, cart.ID); err != nil {
		slog.Warn("failed to clear cart after order",
			slog.String("order_id", orderID),
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	} else if err := s.carts.ClearDiscount(ctx, cart.ID); err != nil {
		slog.Warn("failed to clear cart discount after order",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.mailer != nil {
		if err := s.mailer.SendOrderConfirmation(ctx, order.Email, order); err != nil {
			slog.Warn("failed to send order confirmation email",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("order created",
		slog.String("order_id", orderID),
		slog.String("order_number", order.OrderNumber),
		slog.Int64("total", order.Total),
	)

	return order, nil
}

// GetByID は注文を取得する。所有権の確認もここで行う。
//
// ユーザー注文は注文のユーザーIDが要求者と一致する場合のみ、
// ゲスト注文は注文のメールアドレスが要求者のメールと一致する場合のみ返す。
// 所有権がない場合も存在を漏らさないようnot foundとして扱う。
func (s *Service) GetByID(ctx context.Context, orderID, requesterUserID, requesterEmail string) (*model.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.NewOrderNotFoundError(orderID)
	}

	if order.UserID != "" {
		if order.UserID != requesterUserID {
			return nil, model.NewOrderNotFoundError(orderID)
		}
	} else if !strings.EqualFold(order.Email, requesterEmail) || requesterEmail == "" {
		return nil, model.NewOrderNotFoundError(orderID)
	}

	return order, nil
}

// ListByUser はユーザーの注文履歴を新しい順に返す。
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	return s.orders.ListByUserID(ctx, userID, limit)
}

// UpdateStatus は注文ステータスを遷移させる。
// 許可されていない遷移はエラーとして拒否する。
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*model.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.NewOrderNotFoundError(orderID)
	}

	if !model.CanTransitionOrderStatus(order.Status, status) {
		return nil, model.NewInvalidTransitionError(order.Status, status)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, err
	}

	slog.Info("order status updated",
		slog.String("order_id", orderID),
		slog.String("from", order.Status),
		slog.String("to", status),
	)

	order.Status = status
	return order, nil
}

func (s *Service) findCart(ctx context.Context, sessionKey, userID string) (*model.Cart, error) {
	if userID != "" {
		return s.carts.FindByUserID(ctx, userID)
	}
	if sessionKey != "" {
		return s.carts.FindBySessionKey(ctx, sessionKey)
	}
	return nil, nil
}

// generateOrderNumber は人間が読める注文番号を生成する。
// 形式は KB-YYYYMMDD-XXXXXX（XXXXXXは注文IDのSHA-1先頭6桁）。
func generateOrderNumber(orderID string, at time.Time) string {
	sum := sha1.Sum([]byte(orderID))
	suffix := strings.ToUpper(hex.EncodeToString(sum[:3]))
	return "KB-" + at.Format("20060102") + "-" + suffix
}

// validateAddress は配送先住所の必須項目を検証し、
// 不備のある項目名と理由のマップを返す。
func validateAddress(addr model.Address) map[string]string {
	fields := make(map[string]string)

	if strings.TrimSpace(addr.Name) == "" {
		fields["name"] = "required"
	}
	if strings.TrimSpace(addr.Email) == "" {
		fields["email"] = "required"
	} else if _, err := mail.ParseAddress(addr.Email); err != nil {
		fields["email"] = "invalid format"
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		fields["postalCode"] = "required"
	}
	if strings.TrimSpace(addr.Prefecture) == "" {
		fields["prefecture"] = "required"
	}
	if strings.TrimSpace(addr.City) == "" {
		fields["city"] = "required"
	}
	if strings.TrimSpace(addr.Line1) == "" {
		fields["line1"] = "required"
	}

	return fields
}
