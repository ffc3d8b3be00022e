// Package cart はショッピングカートのビジネスロジックを提供する。
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/keebstore/internal/model"
	"github.com/hitoshi/keebstore/internal/repository"
)

// Service はカート操作のビジネスロジックを提供する。
// カートはログイン前はセッションキー、ログイン後はユーザーIDで特定される。
// 識別キーは呼び出しごとに (sessionKey, userID) の組で渡し、
// userIDが空でない場合はユーザーカートを優先する。
type Service struct {
	carts     repository.CartRepository
	products  repository.ProductRepository
	discounts repository.DiscountRepository
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	carts repository.CartRepository,
	products repository.ProductRepository,
	discounts repository.DiscountRepository,
) *Service {
	return &Service{
		carts:     carts,
		products:  products,
		discounts: discounts,
		now:       time.Now,
	}
}

// find は識別キーに対応するカートを取得する。存在しない場合はnilを返す。
func (s *Service) find(ctx context.Context, sessionKey, userID string) (*model.Cart, error) {
	if userID != "" {
		return s.carts.FindByUserID(ctx, userID)
	}
	if sessionKey != "" {
		return s.carts.FindBySessionKey(ctx, sessionKey)
	}
	return nil, nil
}

// GetOrCreate は識別キーに対応するカートを取得し、なければ作成する。
// 1つの識別キーに対してアクティブなカートは常に1つ。
func (s *Service) GetOrCreate(ctx context.Context, sessionKey, userID string) (*model.Cart, error) {
	cart, err := s.find(ctx, sessionKey, userID)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}

	now := s.now()
	cart = &model.Cart{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if userID != "" {
		cart.UserID = userID
	} else {
		cart.SessionKey = sessionKey
	}

	if err := s.carts.Create(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItem は商品バリアントをカートに追加する。
//
// 追加後の数量が現在の在庫を超える場合は明示的なエラーで拒否する
// （数量の切り詰めは行わない）。拒否時にはカート行も作成しない。
// 同一バリアント・同一同梱セットの行が既にある場合は数量を加算する。
// 価格は追加時点のスナップショットとして保存する。
func (s *Service) AddItem(ctx context.Context, sessionKey, userID, variantID string, quantity int, composites []string) (*model.Cart, error) {
	if quantity <= 0 {
		return nil, model.NewInvalidQuantityError()
	}

	variant, err := s.products.FindVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if variant == nil {
		return nil, model.NewProductNotFoundError(variantID)
	}

	// 同梱バリアントの実在確認
	if len(composites) > 0 {
		found, err := s.products.FindVariantsByIDs(ctx, composites)
		if err != nil {
			return nil, err
		}
		if len(found) != len(composites) {
			return nil, model.NewProductNotFoundError("composite variant")
		}
	}

	// 在庫チェックはカート作成より先に行う。
	// 拒否されたリクエストがカート行を残さないようにするため。
	cart, err := s.find(ctx, sessionKey, userID)
	if err != nil {
		return nil, err
	}

	key := model.CompositeKey(variantID, composites)
	var existing *model.CartItem
	if cart != nil {
		for i := range cart.Items {
			if cart.Items[i].CompositeKey() == key {
				existing = &cart.Items[i]
				break
			}
		}
	}

	requested := quantity
	if existing != nil {
		requested += existing.Quantity
	}
	if requested > variant.StockQuantity {
		return nil, model.NewInsufficientStockError(requested, variant.StockQuantity)
	}

	if cart == nil {
		cart, err = s.GetOrCreate(ctx, sessionKey, userID)
		if err != nil {
			return nil, err
		}
	}

	if existing != nil {
		if err := s.carts.UpdateItemQuantity(ctx, existing.ID, requested); err != nil {
			return nil, err
		}
	} else {
		item := &model.CartItem{
			ID:         uuid.New().String(),
			CartID:     cart.ID,
			VariantID:  variantID,
			Quantity:   quantity,
			Price:      variant.Price,
			Composites: composites,
		}
		if err := s.carts.InsertItem(ctx, item); err != nil {
			return nil, err
		}
	}

	return s.refresh(ctx, cart.ID)
}

// UpdateItemQuantity はカートアイテムの数量を変更する。
// 変更後の数量が在庫を超える場合は拒否する。
func (s *Service) UpdateItemQuantity(ctx context.Context, sessionKey, userID, itemID string, quantity int) (*model.Cart, error) {
	if quantity <= 0 {
		return nil, model.NewInvalidQuantityError()
	}

	cart, item, err := s.findItem(ctx, sessionKey, userID, itemID)
	if err != nil {
		return nil, err
	}

	variant, err := s.products.FindVariant(ctx, item.VariantID)
	if err != nil {
		return nil, err
	}
	if variant != nil && quantity > variant.StockQuantity {
		return nil, model.NewInsufficientStockError(quantity, variant.StockQuantity)
	}

	if err := s.carts.UpdateItemQuantity(ctx, itemID, quantity); err != nil {
		return nil, err
	}

	return s.refresh(ctx, cart.ID)
}

// RemoveItem はカートからアイテムを1行削除する。
func (s *Service) RemoveItem(ctx context.Context, sessionKey, userID, itemID string) (*model.Cart, error) {
	cart, _, err := s.findItem(ctx, sessionKey, userID, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.carts.DeleteItem(ctx, itemID); err != nil {
		return nil, err
	}

	return s.refresh(ctx, cart.ID)
}

// Clear はカートを空にし、割引も解除する。
func (s *Service) Clear(ctx context.Context, sessionKey, userID string) error {
	cart, err := s.find(ctx, sessionKey, userID)
	if err != nil {
		return err
	}
	if cart == nil {
		return nil
	}

	if err := s.carts.DeleteItems(ctx, cart.ID); err != nil {
		return err
	}
	return s.carts.ClearDiscount(ctx, cart.ID)
}

// ApplyDiscount は割引コードをカートに適用する。
// コードが存在しない・無効・最低小計を満たさない場合はドメインエラーを返す。
func (s *Service) ApplyDiscount(ctx context.Context, sessionKey, userID, code string) (*model.Cart, error) {
	cart, err := s.find(ctx, sessionKey, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, model.NewInvalidDiscountError(code)
	}

	discount, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if discount == nil || !discount.IsApplicable(cart.Subtotal(), s.now()) {
		return nil, model.NewInvalidDiscountError(code)
	}

	if err := s.carts.SetDiscount(ctx, cart.ID, discount.Code, discount.Amount); err != nil {
		return nil, err
	}

	return s.refresh(ctx, cart.ID)
}

// RemoveDiscount はカートの割引を解除する。
func (s *Service) RemoveDiscount(ctx context.Context, sessionKey, userID string) (*model.Cart, error) {
	cart, err := s.find(ctx, sessionKey, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, nil
	}

	if err := s.carts.ClearDiscount(ctx, cart.ID); err != nil {
		return nil, err
	}

	return s.refresh(ctx, cart.ID)
}

// MergeOnLogin は匿名カートをログインユーザーのカートにマージする。
//
// 同一バリアント・同一同梱セットの行は数量を合算し、それ以外は追加する。
// マージ後に割引の適用条件を再評価し、匿名カートは削除する。
// 匿名カートが存在しない場合は何もしないため、OAuthコールバックの
// 再入などで繰り返し呼ばれても結果は変わらない（冪等）。
func (s *Service) MergeOnLogin(ctx context.Context, sessionKey, userID string) error {
	if sessionKey == "" || userID == "" {
		return nil
	}

	anon, err := s.carts.FindBySessionKey(ctx, sessionKey)
	if err != nil {
		return err
	}
	if anon == nil {
		// マージ済みまたは匿名カートなし
		return nil
	}

	userCart, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if userCart == nil {
		// ユーザーカートが無ければ匿名カートをそのまま付け替える
		if err := s.carts.AssignToUser(ctx, anon.ID, userID); err != nil {
			return err
		}
		slog.Info("anonymous cart assigned to user",
			slog.String("user_id", userID),
			slog.String("cart_id", anon.ID),
		)
		return s.revalidateDiscount(ctx, anon.ID)
	}

	// 行単位のマージ
	byKey := make(map[string]*model.CartItem, len(userCart.Items))
	for i := range userCart.Items {
		byKey[userCart.Items[i].CompositeKey()] = &userCart.Items[i]
	}

	for _, item := range anon.Items {
		if existing, ok := byKey[item.CompositeKey()]; ok {
			if err := s.carts.UpdateItemQuantity(ctx, existing.ID, existing.Quantity+item.Quantity); err != nil {
				return err
			}
		} else {
			merged := &model.CartItem{
				ID:         uuid.New().String(),
				CartID:     userCart.ID,
				VariantID:  item.VariantID,
				Quantity:   item.Quantity,
				Price:      item.Price,
				Composites: item.Composites,
			}
			if err := s.carts.InsertItem(ctx, merged); err != nil {
				return err
			}
		}
	}

	// ユーザーカートに割引がなく、匿名カート側にあれば引き継ぎを試みる
	if userCart.DiscountCode == "" && anon.DiscountCode != "" {
		if err := s.carts.SetDiscount(ctx, userCart.ID, anon.DiscountCode, anon.DiscountAmount); err != nil {
			return err
		}
	}

	if err := s.carts.Delete(ctx, anon.ID); err != nil {
		return err
	}

	slog.Info("anonymous cart merged into user cart",
		slog.String("user_id", userID),
		slog.String("cart_id", userCart.ID),
	)

	return s.revalidateDiscount(ctx, userCart.ID)
}

// ViewModel はカートのUI向けビューモデルを返す。
// カートが存在しない場合は空のビューを返す。
func (s *Service) ViewModel(ctx context.Context, sessionKey, userID string) (*model.CartView, error) {
	cart, err := s.find(ctx, sessionKey, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return &model.CartView{Items: []model.CartItem{}}, nil
	}

	items := cart.Items
	if items == nil {
		items = []model.CartItem{}
	}

	return &model.CartView{
		CartID:         cart.ID,
		Items:          items,
		DiscountCode:   cart.DiscountCode,
		DiscountAmount: cart.DiscountAmount,
		Subtotal:       cart.Subtotal(),
		Total:          cart.Total(),
		ItemCount:      cart.ItemCount(),
	}, nil
}

// findItem は識別キーのカートとその中の指定アイテムを取得する。
func (s *Service) findItem(ctx context.Context, sessionKey, userID, itemID string) (*model.Cart, *model.CartItem, error) {
	cart, err := s.find(ctx, sessionKey, userID)
	if err != nil {
		return nil, nil, err
	}
	if cart == nil {
		return nil, nil, model.NewCartItemNotFoundError(itemID)
	}

	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			return cart, &cart.Items[i], nil
		}
	}
	return nil, nil, model.NewCartItemNotFoundError(itemID)
}

// refresh はカートを再読込し、割引の適用条件を再評価して返す。
func (s *Service) refresh(ctx context.Context, cartID string) (*model.Cart, error) {
	if err := s.revalidateDiscount(ctx, cartID); err != nil {
		return nil, err
	}
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, fmt.Errorf("cart disappeared during refresh: %s", cartID)
	}
	return cart, nil
}

// revalidateDiscount はカート内容の変化後に割引の適用条件を再評価する。
// 条件を満たさなくなった割引は解除する。
func (s *Service) revalidateDiscount(ctx context.Context, cartID string) error {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return err
	}
	if cart == nil || cart.DiscountCode == "" {
		return nil
	}

	discount, err := s.discounts.FindByCode(ctx, cart.DiscountCode)
	if err != nil {
		return err
	}
	if discount == nil || !discount.IsApplicable(cart.Subtotal(), s.now()) {
		return s.carts.ClearDiscount(ctx, cart.ID)
	}
	return nil
}
