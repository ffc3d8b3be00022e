package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/keebstore/internal/model"
)

// PostgresDiscountRepo はPostgreSQLを使用した割引コードリポジトリ。
type PostgresDiscountRepo struct {
	db *sql.DB
}

// NewPostgresDiscountRepo はPostgresDiscountRepoを生成する。
func NewPostgresDiscountRepo(db *sql.DB) *PostgresDiscountRepo {
	return &PostgresDiscountRepo{db: db}
}

// FindByCode は指定コードの割引を取得する。該当なしの場合はnilを返す。
// 適用可否（有効期限・最低小計）の判定は呼び出し側が行う。
func (r *PostgresDiscountRepo) FindByCode(ctx context.Context, code string) (*model.Discount, error) {
	d := &model.Discount{}
	err := r.db.QueryRowContext(ctx,
		`SELECT code, amount, min_subtotal, active, expires_at
		 FROM discounts WHERE code = $1`,
		code,
	).Scan(&d.Code, &d.Amount, &d.MinSubtotal, &d.Active, &d.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find discount: %w", err)
	}

	return d, nil
}

// compile-time interface check
var _ DiscountRepository = (*PostgresDiscountRepo)(nil)
