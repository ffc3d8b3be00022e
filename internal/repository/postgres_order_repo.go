package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/keebstore/internal/model"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

// Create は注文とその明細行を1トランザクションで作成する。
func (r *PostgresOrderRepo) Create(ctx context.Context, order *model.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, order_number, user_id, email, status,
		        subtotal, discount_amount, total,
		        shipping_name, shipping_email, shipping_phone, shipping_postal,
		        shipping_prefecture, shipping_city, shipping_line1, shipping_line2,
		        payment_intent_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		order.ID, order.OrderNumber, nullString(order.UserID), order.Email, order.Status,
		order.Subtotal, order.DiscountAmount, order.Total,
		order.ShippingAddress.Name, order.ShippingAddress.Email, order.ShippingAddress.Phone,
		order.ShippingAddress.PostalCode, order.ShippingAddress.Prefecture,
		order.ShippingAddress.City, order.ShippingAddress.Line1, order.ShippingAddress.Line2,
		order.PaymentIntentID, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, variant_id, product_name, variant_name, price, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, order.ID, item.VariantID, item.ProductName, item.VariantName,
			item.Price, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

const orderColumns = `id, order_number, user_id, email, status,
	subtotal, discount_amount, total,
	shipping_name, shipping_email, shipping_phone, shipping_postal,
	shipping_prefecture, shipping_city, shipping_line1, shipping_line2,
	payment_intent_id, created_at, updated_at`

// FindByID は指定IDの注文を明細込みで取得する。該当なしの場合はnilを返す。
func (r *PostgresOrderRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	itemsByOrder, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = itemsByOrder[order.ID]

	return order, nil
}

// ListByUserID は指定ユーザーの注文を新しい順に取得する。明細を含む。
func (r *PostgresOrderRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	var orderIDs []string
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	itemsByOrder, err := r.loadItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}

	return orders, nil
}

// UpdateStatus は注文ステータスを更新する。
// 遷移可否の検証は呼び出し側（注文サービス）が行う。
func (r *PostgresOrderRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// scanner はsql.Rowとsql.Rowsの共通部分を抽象化する。
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*model.Order, error) {
	order := &model.Order{}
	var userID sql.NullString
	err := s.Scan(
		&order.ID, &order.OrderNumber, &userID, &order.Email, &order.Status,
		&order.Subtotal, &order.DiscountAmount, &order.Total,
		&order.ShippingAddress.Name, &order.ShippingAddress.Email, &order.ShippingAddress.Phone,
		&order.ShippingAddress.PostalCode, &order.ShippingAddress.Prefecture,
		&order.ShippingAddress.City, &order.ShippingAddress.Line1, &order.ShippingAddress.Line2,
		&order.PaymentIntentID, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.UserID = userID.String
	return order, nil
}

func (r *PostgresOrderRepo) loadItems(ctx context.Context, orderIDs []string) (map[string][]model.OrderItem, error) {
	result := make(map[string][]model.OrderItem)
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, variant_id, product_name, variant_name, price, quantity
		 FROM order_items WHERE order_id = ANY($1) ORDER BY id`,
		pq.Array(orderIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VariantID,
			&item.ProductName, &item.VariantName, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	return result, nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
