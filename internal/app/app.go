// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/keebstore/internal/auth"
	"github.com/hitoshi/keebstore/internal/cart"
	"github.com/hitoshi/keebstore/internal/catalog"
	"github.com/hitoshi/keebstore/internal/config"
	"github.com/hitoshi/keebstore/internal/content"
	"github.com/hitoshi/keebstore/internal/database"
	"github.com/hitoshi/keebstore/internal/handler"
	"github.com/hitoshi/keebstore/internal/logger"
	"github.com/hitoshi/keebstore/internal/mailer"
	"github.com/hitoshi/keebstore/internal/metrics"
	"github.com/hitoshi/keebstore/internal/middleware"
	"github.com/hitoshi/keebstore/internal/model"
	"github.com/hitoshi/keebstore/internal/order"
	"github.com/hitoshi/keebstore/internal/password"
	"github.com/hitoshi/keebstore/internal/repository"
	"github.com/hitoshi/keebstore/internal/session"
	"github.com/hitoshi/keebstore/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	resetRepo := repository.NewPostgresPasswordResetRepo(db)
	cartRepo := repository.NewPostgresCartRepo(db)
	discountRepo := repository.NewPostgresDiscountRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)
	orderRepo := repository.NewPostgresOrderRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	sessionStore := session.NewStore(sessionRepo, session.StoreConfig{
		TTL:           cfg.SessionTTL,
		RenewalWindow: cfg.SessionRenewal,
	})

	breachChecker := password.NewBreachChecker(cfg.BreachCheckBaseURL, cfg.BreachCheckTimeout)

	smtpMailer := newSMTPMailer(cfg)
	var resetMailer auth.ResetMailer
	var confirmMailer order.ConfirmationMailer
	if smtpMailer != nil {
		resetMailer = smtpMailer
		confirmMailer = smtpMailer
	}

	cartService := cart.NewService(cartRepo, productRepo, discountRepo)
	catalogService := catalog.NewService(productRepo, 0)
	orderService := order.NewService(orderRepo, cartRepo, productRepo, confirmMailer)

	authService := auth.NewService(
		userRepo, resetRepo, sessionStore,
		breachChecker, cartService, resetMailer,
		auth.ServiceConfig{FrontendURL: cfg.FrontendURL},
	)

	contentLoader, err := content.NewLoader(cfg.DefaultLocale)
	if err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}

	// 5. OAuthプロバイダーの構築（設定済みのプロバイダーのみ）
	providers := buildOAuthProviders(cfg)
	slog.Info("oauth providers configured", slog.Int("count", len(providers)))

	// 6. ルーターの構築
	rateLimiterCfg := middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		AuthRate:        rate.Limit(float64(cfg.RateLimitAuth) / 60.0),
		AuthBurst:       cfg.RateLimitAuth,
		CleanupInterval: 5 * time.Minute,
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	cookieConfig := handler.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	}

	deps := &handler.RouterDeps{
		SessionValidator:  sessionStore,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		AuthService:    authService,
		OAuthService:   authService,
		OAuthProviders: providers,
		AuthConfig: handler.AuthHandlerConfig{
			Cookie:        cookieConfig,
			SessionMaxAge: int(cfg.SessionTTL.Seconds()),
		},
		FrontendURL: cfg.FrontendURL,

		CatalogService:  catalogService,
		CartService:     cartService,
		CheckoutService: orderService,
		OrderService:    orderService,
		AdminChecker:    userRepo,
		CartConfig: handler.CartHandlerConfig{
			Cookie:            cookieConfig,
			CartSessionMaxAge: int(cfg.AnonymousCartTTL.Seconds()),
		},

		ContentLoader: contentLoader,
		DefaultLocale: cfg.DefaultLocale,

		AuthMetrics:    collector,
		CartMetrics:    collector,
		OrderMetrics:   collector,
		RequestMetrics: collector,
		RequestLogger:  slog.Default(),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		slog.Info("metrics server starting",
			slog.String("addr", metricsServer.Addr),
		)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はクリーンアップワーカーモードで起動する。
// 期限切れセッション・再設定トークン・放置カートを日次で削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	if days := int(cfg.AnonymousCartTTL.Hours() / 24); days > 0 {
		cleanupJob.AnonymousCartDays = days
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("anonymous_cart_days", cleanupJob.AnonymousCartDays),
	)

	// 起動直後に1回実行し、以降は日次で実行する
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// buildOAuthProviders は設定済みのOAuthプロバイダーを構築する。
func buildOAuthProviders(cfg *config.Config) map[string]auth.Provider {
	providers := make(map[string]auth.Provider)

	if cfg.GitHub.Enabled() {
		providers[model.ProviderGitHub] = auth.NewGitHubProvider(auth.GitHubConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.GitHub.RedirectURL,
		})
	}
	if cfg.Google.Enabled() {
		providers[model.ProviderGoogle] = auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
	}
	if cfg.Facebook.Enabled() {
		providers[model.ProviderFacebook] = auth.NewFacebookProvider(auth.FacebookConfig{
			ClientID:     cfg.Facebook.ClientID,
			ClientSecret: cfg.Facebook.ClientSecret,
			RedirectURL:  cfg.Facebook.RedirectURL,
		})
	}
	if cfg.Microsoft.Enabled() {
		providers[model.ProviderMicrosoft] = auth.NewMicrosoftProvider(auth.MicrosoftConfig{
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			RedirectURL:  cfg.Microsoft.RedirectURL,
		})
	}

	return providers
}

// newSMTPMailer はSMTP設定が有効な場合のみメーラーを生成する。
func newSMTPMailer(cfg *config.Config) *mailer.SMTPMailer {
	port, err := strconv.Atoi(cfg.SMTPPort)
	if err != nil {
		port = 587
	}

	mailConfig := mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     port,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
	}
	if !mailConfig.Enabled() {
		slog.Info("smtp is not configured, transactional mail disabled")
		return nil
	}
	return mailer.NewSMTPMailer(mailConfig)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
