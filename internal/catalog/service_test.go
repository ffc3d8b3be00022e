package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/hitoshi/keebstore/internal/model"
)

// mockProductRepo は関数フィールドで挙動を差し替えるモック。
type mockProductRepo struct {
	listPageFn             func(ctx context.Context, category string, limit, offset int) ([]model.Product, error)
	countFn                func(ctx context.Context, category string) (int, error)
	findBySlugFn           func(ctx context.Context, slug string) (*model.Product, error)
	variantsByProductIDsFn func(ctx context.Context, productIDs []string) (map[string][]model.ProductVariant, error)
	imagesByProductIDsFn   func(ctx context.Context, productIDs []string) (map[string][]model.ProductImage, error)
}

func (m *mockProductRepo) ListPage(ctx context.Context, category string, limit, offset int) ([]model.Product, error) {
	if m.listPageFn != nil {
		return m.listPageFn(ctx, category, limit, offset)
	}
	return nil, nil
}
func (m *mockProductRepo) Count(ctx context.Context, category string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, category)
	}
	return 0, nil
}
func (m *mockProductRepo) FindBySlug(ctx context.Context, slug string) (*model.Product, error) {
	if m.findBySlugFn != nil {
		return m.findBySlugFn(ctx, slug)
	}
	return nil, nil
}
func (m *mockProductRepo) NamesByIDs(ctx context.Context, productIDs []string) (map[string]string, error) {
	return nil, nil
}
func (m *mockProductRepo) VariantsByProductIDs(ctx context.Context, productIDs []string) (map[string][]model.ProductVariant, error) {
	if m.variantsByProductIDsFn != nil {
		return m.variantsByProductIDsFn(ctx, productIDs)
	}
	return map[string][]model.ProductVariant{}, nil
}
func (m *mockProductRepo) ImagesByProductIDs(ctx context.Context, productIDs []string) (map[string][]model.ProductImage, error) {
	if m.imagesByProductIDsFn != nil {
		return m.imagesByProductIDsFn(ctx, productIDs)
	}
	return map[string][]model.ProductImage{}, nil
}
func (m *mockProductRepo) FindVariant(ctx context.Context, variantID string) (*model.ProductVariant, error) {
	return nil, nil
}
func (m *mockProductRepo) FindVariantsByIDs(ctx context.Context, variantIDs []string) ([]model.ProductVariant, error) {
	return nil, nil
}

// TestGetProducts_Pagination はページング計算とリポジトリへ渡される
// limit/offsetを検証する。
func TestGetProducts_Pagination(t *testing.T) {
	var gotLimit, gotOffset int
	repo := &mockProductRepo{
		listPageFn: func(ctx context.Context, category string, limit, offset int) ([]model.Product, error) {
			gotLimit, gotOffset = limit, offset
			return []model.Product{{ID: "p1"}, {ID: "p2"}}, nil
		},
		countFn: func(ctx context.Context, category string) (int, error) {
			return 50, nil
		},
	}
	svc := NewService(repo, 24)

	page, err := svc.GetProducts(context.Background(), "keyboards", 2)
	if err != nil {
		t.Fatalf("GetProducts() がエラーを返した: %v", err)
	}

	if gotLimit != 24 || gotOffset != 24 {
		t.Errorf("limit/offset = %d/%d, want 24/24", gotLimit, gotOffset)
	}
	if page.Page != 2 || page.PerPage != 24 {
		t.Errorf("page/perPage = %d/%d, want 2/24", page.Page, page.PerPage)
	}
	if page.TotalCount != 50 {
		t.Errorf("TotalCount = %d, want 50", page.TotalCount)
	}
	// 50件 ÷ 24件/ページ → 3ページ（端数切り上げ）
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}
}

// TestGetProducts_PageBelowOne は1未満のページ指定が1に丸められることを検証する。
func TestGetProducts_PageBelowOne(t *testing.T) {
	var gotOffset int
	repo := &mockProductRepo{
		listPageFn: func(ctx context.Context, category string, limit, offset int) ([]model.Product, error) {
			gotOffset = offset
			return nil, nil
		},
	}
	svc := NewService(repo, 24)

	page, err := svc.GetProducts(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("GetProducts() がエラーを返した: %v", err)
	}
	if gotOffset != 0 {
		t.Errorf("offset = %d, want 0", gotOffset)
	}
	if page.Page != 1 {
		t.Errorf("Page = %d, want 1", page.Page)
	}
	if page.Products == nil {
		t.Error("ProductsはJSONで[]になるよう非nilであるべき")
	}
}

// TestGetProducts_AttachesDetails はバリアントと画像の両方のバッチクエリが
// 商品ID集合に対して発行され、結果が結合されることを検証する。
func TestGetProducts_AttachesDetails(t *testing.T) {
	var variantCalls, imageCalls int32
	repo := &mockProductRepo{
		listPageFn: func(ctx context.Context, category string, limit, offset int) ([]model.Product, error) {
			return []model.Product{{ID: "p1"}, {ID: "p2"}}, nil
		},
		countFn: func(ctx context.Context, category string) (int, error) { return 2, nil },
		variantsByProductIDsFn: func(ctx context.Context, productIDs []string) (map[string][]model.ProductVariant, error) {
			atomic.AddInt32(&variantCalls, 1)
			if len(productIDs) != 2 {
				t.Errorf("バリアントクエリのID数 = %d, want 2", len(productIDs))
			}
			return map[string][]model.ProductVariant{
				"p1": {{ID: "v1", ProductID: "p1"}},
			}, nil
		},
		imagesByProductIDsFn: func(ctx context.Context, productIDs []string) (map[string][]model.ProductImage, error) {
			atomic.AddInt32(&imageCalls, 1)
			return map[string][]model.ProductImage{
				"p2": {{ID: "img1", ProductID: "p2"}},
			}, nil
		},
	}
	svc := NewService(repo, 24)

	page, err := svc.GetProducts(context.Background(), "", 1)
	if err != nil {
		t.Fatalf("GetProducts() がエラーを返した: %v", err)
	}

	if variantCalls != 1 || imageCalls != 1 {
		t.Errorf("バッチクエリ回数 = %d/%d, want 1/1（商品ごとのN+1は発行しない）", variantCalls, imageCalls)
	}
	if len(page.Products[0].Variants) != 1 {
		t.Errorf("p1のバリアント数 = %d, want 1", len(page.Products[0].Variants))
	}
	if len(page.Products[1].Images) != 1 {
		t.Errorf("p2の画像数 = %d, want 1", len(page.Products[1].Images))
	}
}

// TestGetProducts_BatchQueryError はバッチクエリの失敗が呼び出し元へ
// 伝播することを検証する。
func TestGetProducts_BatchQueryError(t *testing.T) {
	wantErr := errors.New("connection reset")
	repo := &mockProductRepo{
		listPageFn: func(ctx context.Context, category string, limit, offset int) ([]model.Product, error) {
			return []model.Product{{ID: "p1"}}, nil
		},
		variantsByProductIDsFn: func(ctx context.Context, productIDs []string) (map[string][]model.ProductVariant, error) {
			return nil, wantErr
		},
	}
	svc := NewService(repo, 24)

	_, err := svc.GetProducts(context.Background(), "", 1)
	if !errors.Is(err, wantErr) {
		t.Errorf("GetProducts() のエラー = %v, want %v", err, wantErr)
	}
}

// TestGetCatalogue_CategoryOrder はカテゴリの固定順と、未知のカテゴリが
// その後にアルファベット順で並ぶことを検証する。
func TestGetCatalogue_CategoryOrder(t *testing.T) {
	repo := &mockProductRepo{
		countFn: func(ctx context.Context, category string) (int, error) { return 6, nil },
		listPageFn: func(ctx context.Context, category string, limit, offset int) ([]model.Product, error) {
			return []model.Product{
				{ID: "p1", Category: "deskmats"},
				{ID: "p2", Category: model.CategoryKeycaps},
				{ID: "p3", Category: model.CategoryKeyboards},
				{ID: "p4", Category: "cables"},
				{ID: "p5", Category: model.CategorySwitches},
				{ID: "p6", Category: model.CategoryAccessories},
			}, nil
		},
	}
	svc := NewService(repo, 24)

	result, err := svc.GetCatalogue(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetCatalogue() がエラーを返した: %v", err)
	}

	want := []string{
		model.CategoryKeyboards,
		model.CategorySwitches,
		model.CategoryKeycaps,
		model.CategoryAccessories,
		"cables",
		"deskmats",
	}
	if len(result.Groups) != len(want) {
		t.Fatalf("グループ数 = %d, want %d", len(result.Groups), len(want))
	}
	for i, group := range result.Groups {
		if group.Category != want[i] {
			t.Errorf("groups[%d].Category = %s, want %s", i, group.Category, want[i])
		}
	}
}

// TestGetCatalogue_Pagination は1ページ分だけ取得してグループ化することを検証する。
func TestGetCatalogue_Pagination(t *testing.T) {
	var gotLimit, gotOffset int
	repo := &mockProductRepo{
		countFn: func(ctx context.Context, category string) (int, error) { return 50, nil },
		listPageFn: func(ctx context.Context, category string, limit, offset int) ([]model.Product, error) {
			gotLimit, gotOffset = limit, offset
			return []model.Product{{ID: "p25", Category: model.CategorySwitches}}, nil
		},
	}
	svc := NewService(repo, 24)

	result, err := svc.GetCatalogue(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetCatalogue() がエラーを返した: %v", err)
	}

	// 全件ではなく2ページ目の範囲だけを読む
	if gotLimit != 24 || gotOffset != 24 {
		t.Errorf("limit/offset = %d/%d, want 24/24", gotLimit, gotOffset)
	}
	if result.Page != 2 || result.PerPage != 24 {
		t.Errorf("page/perPage = %d/%d, want 2/24", result.Page, result.PerPage)
	}
	if result.TotalCount != 50 || result.TotalPages != 3 {
		t.Errorf("totalCount/totalPages = %d/%d, want 50/3", result.TotalCount, result.TotalPages)
	}
	if len(result.Groups) != 1 || result.Groups[0].Category != model.CategorySwitches {
		t.Errorf("グループ = %+v", result.Groups)
	}
}

// TestGetProduct はスラッグ検索と該当なしのエラーを検証する。
func TestGetProduct(t *testing.T) {
	repo := &mockProductRepo{
		findBySlugFn: func(ctx context.Context, slug string) (*model.Product, error) {
			if slug == "kb-75" {
				return &model.Product{ID: "p1", Slug: "kb-75"}, nil
			}
			return nil, nil
		},
		variantsByProductIDsFn: func(ctx context.Context, productIDs []string) (map[string][]model.ProductVariant, error) {
			return map[string][]model.ProductVariant{
				"p1": {{ID: "v1", ProductID: "p1"}},
			}, nil
		},
	}
	svc := NewService(repo, 24)

	product, err := svc.GetProduct(context.Background(), "kb-75")
	if err != nil {
		t.Fatalf("GetProduct() がエラーを返した: %v", err)
	}
	if len(product.Variants) != 1 {
		t.Errorf("バリアント数 = %d, want 1", len(product.Variants))
	}

	_, err = svc.GetProduct(context.Background(), "no-such-product")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorではないエラーが返された: %v", err)
	}
	if apiErr.Code != model.ErrCodeProductNotFound {
		t.Errorf("エラーコード = %s, want %s", apiErr.Code, model.ErrCodeProductNotFound)
	}
}
