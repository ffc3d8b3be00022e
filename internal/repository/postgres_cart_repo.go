package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/keebstore/internal/model"
)

// PostgresCartRepo はPostgreSQLを使用したカートリポジトリ。
type PostgresCartRepo struct {
	db *sql.DB
}

// NewPostgresCartRepo はPostgresCartRepoを生成する。
func NewPostgresCartRepo(db *sql.DB) *PostgresCartRepo {
	return &PostgresCartRepo{db: db}
}

// Create はカートを作成する。user_id/session_keyのどちらか一方を持つこと。
func (r *PostgresCartRepo) Create(ctx context.Context, cart *model.Cart) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO carts (id, user_id, session_key, discount_code, discount_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cart.ID, nullString(cart.UserID), nullString(cart.SessionKey),
		nullString(cart.DiscountCode), cart.DiscountAmount, cart.CreatedAt, cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

// FindByID は指定IDのカートをアイテム込みで取得する。該当なしの場合はnilを返す。
func (r *PostgresCartRepo) FindByID(ctx context.Context, id string) (*model.Cart, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByUserID は指定ユーザーのカートをアイテム込みで取得する。該当なしの場合はnilを返す。
func (r *PostgresCartRepo) FindByUserID(ctx context.Context, userID string) (*model.Cart, error) {
	return r.findOne(ctx, `WHERE user_id = $1`, userID)
}

// FindBySessionKey は指定セッションキーの匿名カートをアイテム込みで取得する。
// 該当なしの場合はnilを返す。
func (r *PostgresCartRepo) FindBySessionKey(ctx context.Context, sessionKey string) (*model.Cart, error) {
	return r.findOne(ctx, `WHERE session_key = $1`, sessionKey)
}

// AssignToUser は匿名カートを指定ユーザーのカートに付け替える。
// セッションキーは外され、以後このカートはユーザーキーでのみ参照される。
func (r *PostgresCartRepo) AssignToUser(ctx context.Context, cartID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE carts SET user_id = $2, session_key = NULL, updated_at = now() WHERE id = $1`,
		cartID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign cart to user: %w", err)
	}
	return nil
}

// Delete はカートを削除する。アイテムはCASCADEで削除される。
func (r *PostgresCartRepo) Delete(ctx context.Context, cartID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// InsertItem はカートアイテムを追加する。
func (r *PostgresCartRepo) InsertItem(ctx context.Context, item *model.CartItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cart_items (id, cart_id, variant_id, quantity, price, composites)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.CartID, item.VariantID, item.Quantity, item.Price,
		encodeComposites(item.Composites),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

// UpdateItemQuantity はカートアイテムの数量を更新する。
func (r *PostgresCartRepo) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2 WHERE id = $1`,
		itemID, quantity,
	)
	if err != nil {
		return fmt.Errorf("failed to update cart item quantity: %w", err)
	}
	return nil
}

// DeleteItem はカートアイテムを1行削除する。
func (r *PostgresCartRepo) DeleteItem(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}

// DeleteItems はカート内の全アイテムを削除する。
func (r *PostgresCartRepo) DeleteItems(ctx context.Context, cartID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	return nil
}

// SetDiscount はカートに割引コードと割引額を設定する。
func (r *PostgresCartRepo) SetDiscount(ctx context.Context, cartID, code string, amount int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE carts SET discount_code = $2, discount_amount = $3, updated_at = now() WHERE id = $1`,
		cartID, code, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to set cart discount: %w", err)
	}
	return nil
}

// ClearDiscount はカートの割引を解除する。
func (r *PostgresCartRepo) ClearDiscount(ctx context.Context, cartID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE carts SET discount_code = NULL, discount_amount = 0, updated_at = now() WHERE id = $1`,
		cartID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear cart discount: %w", err)
	}
	return nil
}

func (r *PostgresCartRepo) findOne(ctx context.Context, where string, arg interface{}) (*model.Cart, error) {
	cart := &model.Cart{}
	var userID, sessionKey, discountCode sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_key, discount_code, discount_amount, created_at, updated_at
		 FROM carts `+where,
		arg,
	).Scan(&cart.ID, &userID, &sessionKey, &discountCode, &cart.DiscountAmount,
		&cart.CreatedAt, &cart.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}

	cart.UserID = userID.String
	cart.SessionKey = sessionKey.String
	cart.DiscountCode = discountCode.String

	items, err := r.loadItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func (r *PostgresCartRepo) loadItems(ctx context.Context, cartID string) ([]model.CartItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cart_id, variant_id, quantity, price, composites
		 FROM cart_items WHERE cart_id = $1 ORDER BY id`,
		cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var item model.CartItem
		var composites string
		if err := rows.Scan(&item.ID, &item.CartID, &item.VariantID,
			&item.Quantity, &item.Price, &composites); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		item.Composites = decodeComposites(composites)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart items: %w", err)
	}

	return items, nil
}

// encodeComposites は同梱バリアントIDをソート済みカンマ区切り文字列に正規化する。
// 行の同一性判定（UNIQUE制約）が順序に依存しないようにするため。
func encodeComposites(composites []string) string {
	if len(composites) == 0 {
		return ""
	}
	sorted := make([]string, len(composites))
	copy(sorted, composites)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func decodeComposites(encoded string) []string {
	if encoded == "" {
		return nil
	}
	return strings.Split(encoded, ",")
}

// nullString は空文字列をNULLとして扱うためのヘルパー。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ CartRepository = (*PostgresCartRepo)(nil)
