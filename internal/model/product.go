package model

import "time"

// 商品カテゴリ。カタログ表示はこの優先順で並ぶ。
const (
	CategoryKeyboards   = "keyboards"
	CategorySwitches    = "switches"
	CategoryKeycaps     = "keycaps"
	CategoryAccessories = "accessories"
)

// 在庫ステータス。保存せず、StockQuantityから読み取り時に導出する。
const (
	StockStatusInStock    = "in_stock"
	StockStatusLowStock   = "low_stock"
	StockStatusOutOfStock = "out_of_stock"
)

// lowStockThreshold はlow_stock表示となる在庫数の閾値。
const lowStockThreshold = 5

// Product はカタログ上の商品を表す。
type Product struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Category    string
	Variants    []ProductVariant
	Images      []ProductImage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductVariant は商品のバリアント（軸、配列、色等）を表す。
// Priceは最小通貨単位（円）で保持する。
type ProductVariant struct {
	ID            string
	ProductID     string
	Name          string
	Price         int64
	StockQuantity int
	CreatedAt     time.Time
}

// StockStatus は在庫数から在庫ステータスを導出する。
func (v *ProductVariant) StockStatus() string {
	switch {
	case v.StockQuantity == 0:
		return StockStatusOutOfStock
	case v.StockQuantity < lowStockThreshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// ProductImage は商品画像を表す。Positionで表示順を制御する。
type ProductImage struct {
	ID        string
	ProductID string
	URL       string
	Alt       string
	Position  int
}
