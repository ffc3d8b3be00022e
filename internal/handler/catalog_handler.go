package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/keebstore/internal/catalog"
	"github.com/hitoshi/keebstore/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	GetProducts(ctx context.Context, category string, page int) (*catalog.ProductPage, error)
	GetCatalogue(ctx context.Context, page int) (*catalog.CataloguePage, error)
	GetProduct(ctx context.Context, slug string) (*model.Product, error)
}

// CatalogHandler は商品カタログのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// variantResponse はバリアントのAPIレスポンス。在庫数そのものは公開せず、
// 導出した在庫ステータスのみを返す。
type variantResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	StockStatus string `json:"stockStatus"`
}

// imageResponse は商品画像のAPIレスポンス。
type imageResponse struct {
	URL      string `json:"url"`
	Alt      string `json:"alt"`
	Position int    `json:"position"`
}

// productResponse は商品のAPIレスポンス。
type productResponse struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Variants    []variantResponse `json:"variants"`
	Images      []imageResponse   `json:"images"`
}

func toProductResponse(p *model.Product) productResponse {
	variants := make([]variantResponse, 0, len(p.Variants))
	for i := range p.Variants {
		v := &p.Variants[i]
		variants = append(variants, variantResponse{
			ID:          v.ID,
			Name:        v.Name,
			Price:       v.Price,
			StockStatus: v.StockStatus(),
		})
	}

	images := make([]imageResponse, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, imageResponse{
			URL:      img.URL,
			Alt:      img.Alt,
			Position: img.Position,
		})
	}

	return productResponse{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Variants:    variants,
		Images:      images,
	}
}

// ListProducts は商品一覧を1ページ分返す。
// GET /products?category=keyboards&page=2
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	result, err := h.service.GetProducts(r.Context(), r.URL.Query().Get("category"), page)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	products := make([]productResponse, 0, len(result.Products))
	for i := range result.Products {
		products = append(products, toProductResponse(&result.Products[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"products":   products,
		"page":       result.Page,
		"perPage":    result.PerPage,
		"totalCount": result.TotalCount,
		"totalPages": result.TotalPages,
	})
}

// Catalogue は商品1ページ分をカテゴリごとにグループ化して返す。
// GET /catalogue?page=2
func (h *CatalogHandler) Catalogue(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	result, err := h.service.GetCatalogue(r.Context(), page)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	type groupResponse struct {
		Category string            `json:"category"`
		Products []productResponse `json:"products"`
	}

	responses := make([]groupResponse, 0, len(result.Groups))
	for _, g := range result.Groups {
		products := make([]productResponse, 0, len(g.Products))
		for i := range g.Products {
			products = append(products, toProductResponse(&g.Products[i]))
		}
		responses = append(responses, groupResponse{
			Category: g.Category,
			Products: products,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"categories": responses,
		"page":       result.Page,
		"perPage":    result.PerPage,
		"totalCount": result.TotalCount,
		"totalPages": result.TotalPages,
	})
}

// GetProduct はスラッグで商品詳細を返す。
// GET /products/{slug}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}
