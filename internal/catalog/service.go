// Package catalog は商品カタログの参照ロジックを提供する。
package catalog

import (
	"context"
	"sort"

	"github.com/hitoshi/keebstore/internal/model"
	"github.com/hitoshi/keebstore/internal/repository"
)

// categoryPriority はカタログ一覧の固定カテゴリ順。
var categoryPriority = map[string]int{
	model.CategoryKeyboards:   0,
	model.CategorySwitches:    1,
	model.CategoryKeycaps:     2,
	model.CategoryAccessories: 3,
}

// ProductPage は1ページ分の商品一覧とページング情報を表す。
type ProductPage struct {
	Products   []model.Product `json:"products"`
	Page       int             `json:"page"`
	PerPage    int             `json:"perPage"`
	TotalCount int             `json:"totalCount"`
	TotalPages int             `json:"totalPages"`
}

// CategoryGroup はカテゴリごとにまとめた商品一覧を表す。
type CategoryGroup struct {
	Category string          `json:"category"`
	Products []model.Product `json:"products"`
}

// CataloguePage は1ページ分のカテゴリ別商品一覧とページング情報を表す。
type CataloguePage struct {
	Groups     []CategoryGroup `json:"categories"`
	Page       int             `json:"page"`
	PerPage    int             `json:"perPage"`
	TotalCount int             `json:"totalCount"`
	TotalPages int             `json:"totalPages"`
}

// Service は商品カタログの参照ロジックを提供する。
type Service struct {
	products repository.ProductRepository
	perPage  int
}

// NewService はServiceを生成する。perPageが0以下の場合は既定値を使用する。
func NewService(products repository.ProductRepository, perPage int) *Service {
	if perPage <= 0 {
		perPage = 24
	}
	return &Service{products: products, perPage: perPage}
}

// GetProducts は商品を1ページ分取得する。
//
// ページの商品ID集合に対してバリアントと画像を2本のバッチクエリで
// 並行に取得し、結合してから返す。商品ごとのN+1クエリは発行しない。
func (s *Service) GetProducts(ctx context.Context, category string, page int) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * s.perPage

	products, err := s.products.ListPage(ctx, category, s.perPage, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.products.Count(ctx, category)
	if err != nil {
		return nil, err
	}

	if err := s.attachDetails(ctx, products); err != nil {
		return nil, err
	}

	totalPages := (total + s.perPage - 1) / s.perPage
	if products == nil {
		products = []model.Product{}
	}

	return &ProductPage{
		Products:   products,
		Page:       page,
		PerPage:    s.perPage,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil
}

// GetCatalogue は商品1ページ分をカテゴリごとにグループ化して返す。
// カテゴリはキーボード・スイッチ・キーキャップ・アクセサリの固定順、
// 未知のカテゴリはその後にアルファベット順で並ぶ。
// グループ化はページ内の商品に対して行う。
func (s *Service) GetCatalogue(ctx context.Context, page int) (*CataloguePage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * s.perPage

	products, err := s.products.ListPage(ctx, "", s.perPage, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.products.Count(ctx, "")
	if err != nil {
		return nil, err
	}

	if err := s.attachDetails(ctx, products); err != nil {
		return nil, err
	}

	byCategory := make(map[string][]model.Product)
	for _, p := range products {
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		pi, iKnown := categoryPriority[categories[i]]
		pj, jKnown := categoryPriority[categories[j]]
		switch {
		case iKnown && jKnown:
			return pi < pj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return categories[i] < categories[j]
		}
	})

	groups := make([]CategoryGroup, 0, len(categories))
	for _, category := range categories {
		groups = append(groups, CategoryGroup{
			Category: category,
			Products: byCategory[category],
		})
	}

	return &CataloguePage{
		Groups:     groups,
		Page:       page,
		PerPage:    s.perPage,
		TotalCount: total,
		TotalPages: (total + s.perPage - 1) / s.perPage,
	}, nil
}

// GetProduct はスラッグで商品を1件取得する。該当なしの場合はドメインエラーを返す。
func (s *Service) GetProduct(ctx context.Context, slug string) (*model.Product, error) {
	product, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(slug)
	}

	single := []model.Product{*product}
	if err := s.attachDetails(ctx, single); err != nil {
		return nil, err
	}
	return &single[0], nil
}

// attachDetails は商品集合にバリアントと画像を付与する。
// 2本のバッチクエリを並行に実行し、両方の完了を待ってから結合する。
func (s *Service) attachDetails(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}

	var (
		variants map[string][]model.ProductVariant
		images   map[string][]model.ProductImage
		vErr     error
		iErr     error
	)

	done := make(chan struct{}, 2)
	go func() {
		variants, vErr = s.products.VariantsByProductIDs(ctx, ids)
		done <- struct{}{}
	}()
	go func() {
		images, iErr = s.products.ImagesByProductIDs(ctx, ids)
		done <- struct{}{}
	}()
	<-done
	<-done

	if vErr != nil {
		return vErr
	}
	if iErr != nil {
		return iErr
	}

	for i := range products {
		products[i].Variants = variants[products[i].ID]
		products[i].Images = images[products[i].ID]
	}
	return nil
}
