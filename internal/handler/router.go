package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/keebstore/internal/auth"
	"github.com/hitoshi/keebstore/internal/content"
	"github.com/hitoshi/keebstore/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionValidator  middleware.SessionValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService    AuthServiceInterface
	OAuthService   OAuthLoginService
	OAuthProviders map[string]auth.Provider
	AuthConfig     AuthHandlerConfig
	FrontendURL    string

	// カタログ・カート・注文
	CatalogService  CatalogServiceInterface
	CartService     CartServiceInterface
	CheckoutService CheckoutServiceInterface
	OrderService    OrderServiceInterface
	AdminChecker    AdminChecker
	CartConfig      CartHandlerConfig

	// コンテンツ
	ContentLoader *content.Loader
	DefaultLocale string

	// メトリクス
	AuthMetrics    AuthMetricsRecorder
	CartMetrics    CartMetricsRecorder
	OrderMetrics   OrderMetricsRecorder
	RequestMetrics middleware.RequestRecorder
	RequestLogger  *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → SecurityHeaders → Logging → Session → RateLimit(General)
//
// セッションミドルウェアは任意認証のため全ルートに適用し、
// 認証必須のルートのみRequireAuthを追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.RequestLogger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.RequestLogger, deps.RequestMetrics))
	}
	r.Use(middleware.NewSessionMiddleware(deps.SessionValidator))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	oauthConfig := OAuthHandlerConfig{
		Cookie:        deps.AuthConfig.Cookie,
		SessionMaxAge: deps.AuthConfig.SessionMaxAge,
		FrontendURL:   deps.FrontendURL,
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthMetrics, deps.AuthConfig)
	oauthHandler := NewOAuthHandler(deps.OAuthProviders, deps.OAuthService, deps.AuthMetrics, oauthConfig)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	cartHandler := NewCartHandler(deps.CartService, deps.CartMetrics, deps.CartConfig)
	checkoutHandler := NewCheckoutHandler(deps.CheckoutService, deps.OrderMetrics)
	orderHandler := NewOrderHandler(deps.OrderService, deps.AdminChecker)
	contentHandler := NewContentHandler(deps.ContentLoader, deps.AuthConfig.Cookie, deps.DefaultLocale)

	// ヘルスチェック
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// 認証
	r.Route("/auth", func(r chi.Router) {
		// 総当たり対策として認証系専用のレート制限を重ねる
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.Register)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		r.With(middleware.RequireAuth()).Post("/password", authHandler.ChangePassword)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/password/reset", authHandler.RequestPasswordReset)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/password/reset/confirm", authHandler.ConfirmPasswordReset)

		// OAuthフロー
		r.Get("/login/{provider}", oauthHandler.Login)
		r.Get("/callback/{provider}", oauthHandler.Callback)
	})

	// カタログ
	r.Get("/catalogue", catalogHandler.Catalogue)
	r.Route("/products", func(r chi.Router) {
		r.Get("/", catalogHandler.ListProducts)
		r.Get("/{slug}", catalogHandler.GetProduct)
	})

	// カート（フォームアクション）
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", cartHandler.Get)
		r.Post("/addItem", cartHandler.AddItem)
		r.Post("/updateItem", cartHandler.UpdateItem)
		r.Post("/removeItem", cartHandler.RemoveItem)
		r.Post("/applyDiscount", cartHandler.ApplyDiscount)
		r.Post("/removeDiscount", cartHandler.RemoveDiscount)
		r.Post("/clearCart", cartHandler.ClearCart)
	})

	// チェックアウト
	r.Post("/checkout/placeOrder", checkoutHandler.PlaceOrder)

	// 注文
	r.Route("/orders", func(r chi.Router) {
		r.With(middleware.RequireAuth()).Get("/", orderHandler.List)
		r.Get("/{id}", orderHandler.Get)
	})

	// 管理
	r.With(middleware.RequireAuth()).Patch("/admin/orders/{id}/status", orderHandler.UpdateStatus)

	// コンテンツ
	r.Get("/pages/{slug}", contentHandler.GetPage)
	r.Post("/locale", contentHandler.SetLocale)

	return r
}
