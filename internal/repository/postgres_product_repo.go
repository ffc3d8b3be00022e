package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/keebstore/internal/model"
)

// PostgresProductRepo はPostgreSQLを使用した商品カタログリポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

// ListPage は商品を1ページ分取得する。categoryが空の場合は全カテゴリを対象とする。
// バリアント・画像は含まない（呼び出し側がページのID集合でバッチ取得する）。
func (r *PostgresProductRepo) ListPage(ctx context.Context, category string, limit, offset int) ([]model.Product, error) {
	query := `SELECT id, slug, name, description, category, created_at, updated_at
	          FROM products`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = $1 ORDER BY name LIMIT $2 OFFSET $3`
		args = append(args, category, limit, offset)
	} else {
		query += ` ORDER BY category, name LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Category,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return products, nil
}

// Count は商品数を返す。categoryが空の場合は全カテゴリを対象とする。
func (r *PostgresProductRepo) Count(ctx context.Context, category string) (int, error) {
	var count int
	var err error
	if category != "" {
		err = r.db.QueryRowContext(ctx,
			`SELECT count(*) FROM products WHERE category = $1`, category).Scan(&count)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT count(*) FROM products`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// FindBySlug は指定スラッグの商品を取得する。該当なしの場合はnilを返す。
// バリアント・画像は含まない。
func (r *PostgresProductRepo) FindBySlug(ctx context.Context, slug string) (*model.Product, error) {
	p := &model.Product{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, name, description, category, created_at, updated_at
		 FROM products WHERE slug = $1`,
		slug,
	).Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Category, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}

	return p, nil
}

// VariantsByProductIDs は商品ID集合に対するバリアントを1クエリで取得し、
// 商品IDをキーとするマップで返す。
func (r *PostgresProductRepo) VariantsByProductIDs(ctx context.Context, productIDs []string) (map[string][]model.ProductVariant, error) {
	result := make(map[string][]model.ProductVariant)
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, name, price, stock_quantity, created_at
		 FROM product_variants WHERE product_id = ANY($1) ORDER BY product_id, name`,
		pq.Array(productIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v model.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price,
			&v.StockQuantity, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		result[v.ProductID] = append(result[v.ProductID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate variants: %w", err)
	}

	return result, nil
}

// ImagesByProductIDs は商品ID集合に対する画像を1クエリで取得し、
// 商品IDをキーとするマップで返す。
func (r *PostgresProductRepo) ImagesByProductIDs(ctx context.Context, productIDs []string) (map[string][]model.ProductImage, error) {
	result := make(map[string][]model.ProductImage)
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, url, alt, position
		 FROM product_images WHERE product_id = ANY($1) ORDER BY product_id, position`,
		pq.Array(productIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img model.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.Alt, &img.Position); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		result[img.ProductID] = append(result[img.ProductID], img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate images: %w", err)
	}

	return result, nil
}

// NamesByIDs は商品ID集合に対する商品名を1クエリで取得し、
// 商品IDをキーとするマップで返す。
func (r *PostgresProductRepo) NamesByIDs(ctx context.Context, productIDs []string) (map[string]string, error) {
	result := make(map[string]string)
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM products WHERE id = ANY($1)`,
		pq.Array(productIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load product names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan product name: %w", err)
		}
		result[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product names: %w", err)
	}

	return result, nil
}

// FindVariant は指定IDのバリアントを取得する。該当なしの場合はnilを返す。
func (r *PostgresProductRepo) FindVariant(ctx context.Context, variantID string) (*model.ProductVariant, error) {
	v := &model.ProductVariant{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, product_id, name, price, stock_quantity, created_at
		 FROM product_variants WHERE id = $1`,
		variantID,
	).Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.StockQuantity, &v.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find variant: %w", err)
	}

	return v, nil
}

// FindVariantsByIDs はバリアントID集合に対するバリアントを1クエリで取得する。
func (r *PostgresProductRepo) FindVariantsByIDs(ctx context.Context, variantIDs []string) ([]model.ProductVariant, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, name, price, stock_quantity, created_at
		 FROM product_variants WHERE id = ANY($1)`,
		pq.Array(variantIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants by ids: %w", err)
	}
	defer rows.Close()

	var variants []model.ProductVariant
	for rows.Next() {
		var v model.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price,
			&v.StockQuantity, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate variants: %w", err)
	}

	return variants, nil
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)
