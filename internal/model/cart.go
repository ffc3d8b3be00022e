package model

import (
	"sort"
	"strings"
	"time"
)

// Cart はショッピングカートを表す。
// ログイン前はSessionKeyで、ログイン後はUserIDで一意に特定される。
// 1つの識別キーに対してアクティブなカートは常に1つ。
type Cart struct {
	ID             string
	UserID         string // 匿名カートは空
	SessionKey     string // ユーザーカートは空
	Items          []CartItem
	DiscountCode   string
	DiscountAmount int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Subtotal はカート内全アイテムの小計を返す。
func (c *Cart) Subtotal() int64 {
	var sum int64
	for _, item := range c.Items {
		sum += item.Price * int64(item.Quantity)
	}
	return sum
}

// Total は割引適用後の合計を返す。割引が小計を上回る場合は0。
func (c *Cart) Total() int64 {
	total := c.Subtotal() - c.DiscountAmount
	if total < 0 {
		return 0
	}
	return total
}

// ItemCount はカート内の商品数（数量の合計）を返す。
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// CartItem はカート内の1行を表す。
// Priceは追加時点のスナップショットで、以後の価格改定の影響を受けない。
// Compositesはキーボード本体に紐づくスイッチ・キーキャップ等の
// 同梱バリアントIDのリスト。
type CartItem struct {
	ID         string
	CartID     string
	VariantID  string
	Quantity   int
	Price      int64
	Composites []string
}

// CompositeKey はバリアントIDと同梱セットから行の同一性キーを生成する。
// 同梱IDは順序に依存しないよう正規化（ソート）してから連結する。
func (i *CartItem) CompositeKey() string {
	return CompositeKey(i.VariantID, i.Composites)
}

// CompositeKey はvariantIDとcompositesの組から行の同一性キーを生成する。
func CompositeKey(variantID string, composites []string) string {
	if len(composites) == 0 {
		return variantID
	}
	sorted := make([]string, len(composites))
	copy(sorted, composites)
	sort.Strings(sorted)
	return variantID + "|" + strings.Join(sorted, ",")
}

// Discount は割引コードの定義を表す。
type Discount struct {
	Code        string
	Amount      int64
	MinSubtotal int64
	Active      bool
	ExpiresAt   *time.Time
}

// IsApplicable は指定時刻・小計に対して割引が適用可能かを判定する。
func (d *Discount) IsApplicable(subtotal int64, now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
		return false
	}
	return subtotal >= d.MinSubtotal
}

// CartView はカートのUI向けビューモデル。
type CartView struct {
	CartID         string     `json:"cartId"`
	Items          []CartItem `json:"items"`
	DiscountCode   string     `json:"discountCode,omitempty"`
	DiscountAmount int64      `json:"discountAmount"`
	Subtotal       int64      `json:"subtotal"`
	Total          int64      `json:"total"`
	ItemCount      int        `json:"itemCount"`
}
