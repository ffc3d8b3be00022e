// Package repository はデータ永続化層のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/keebstore/internal/model"
)

// UserRepository はユーザーの永続化を抽象化する。
// Findメソッドは該当なしの場合に (nil, nil) を返す。
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByProviderIdentity(ctx context.Context, provider, providerID string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SessionRepository はセッションの永続化を抽象化する。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// PasswordResetRepository はパスワード再設定トークンの永続化を抽象化する。
type PasswordResetRepository interface {
	Create(ctx context.Context, token *model.PasswordResetToken) error
	FindByID(ctx context.Context, id string) (*model.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string) error
}

// CartRepository はカートとカートアイテムの永続化を抽象化する。
// Findメソッドはアイテムをロードした状態のカートを返す。
type CartRepository interface {
	Create(ctx context.Context, cart *model.Cart) error
	FindByID(ctx context.Context, id string) (*model.Cart, error)
	FindByUserID(ctx context.Context, userID string) (*model.Cart, error)
	FindBySessionKey(ctx context.Context, sessionKey string) (*model.Cart, error)
	AssignToUser(ctx context.Context, cartID, userID string) error
	Delete(ctx context.Context, cartID string) error

	InsertItem(ctx context.Context, item *model.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error
	DeleteItem(ctx context.Context, itemID string) error
	DeleteItems(ctx context.Context, cartID string) error

	SetDiscount(ctx context.Context, cartID, code string, amount int64) error
	ClearDiscount(ctx context.Context, cartID string) error
}

// DiscountRepository は割引コードの参照を抽象化する。
type DiscountRepository interface {
	FindByCode(ctx context.Context, code string) (*model.Discount, error)
}

// ProductRepository は商品カタログの参照を抽象化する。
type ProductRepository interface {
	ListPage(ctx context.Context, category string, limit, offset int) ([]model.Product, error)
	Count(ctx context.Context, category string) (int, error)
	FindBySlug(ctx context.Context, slug string) (*model.Product, error)
	NamesByIDs(ctx context.Context, productIDs []string) (map[string]string, error)
	VariantsByProductIDs(ctx context.Context, productIDs []string) (map[string][]model.ProductVariant, error)
	ImagesByProductIDs(ctx context.Context, productIDs []string) (map[string][]model.ProductImage, error)
	FindVariant(ctx context.Context, variantID string) (*model.ProductVariant, error)
	FindVariantsByIDs(ctx context.Context, variantIDs []string) ([]model.ProductVariant, error)
}

// OrderRepository は注文の永続化を抽象化する。
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id string) (*model.Order, error)
	ListByUserID(ctx context.Context, userID string, limit int) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id, status string) error
}
