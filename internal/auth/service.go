package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/keebstore/internal/model"
	"github.com/hitoshi/keebstore/internal/password"
	"github.com/hitoshi/keebstore/internal/repository"
	"github.com/hitoshi/keebstore/internal/session"
)

// BreachChecker は漏洩パスワードチェックのインターフェース。
type BreachChecker interface {
	IsBreached(ctx context.Context, pw string) (bool, error)
}

// CartMerger はログイン時の匿名カートのマージを抽象化する。
// cartパッケージへの依存を避けるため、ここで部分インターフェースとして定義する。
type CartMerger interface {
	MergeOnLogin(ctx context.Context, sessionKey, userID string) error
}

// ResetMailer はパスワード再設定メールの送信を抽象化する。
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ResetTokenTTL time.Duration // パスワード再設定トークンの有効期間
	FrontendURL   string        // 再設定リンクのベースURL
}

// Service は認証に関するビジネスロジックを提供する。
// パスワード認証・OAuth連携の両方のログインはここを経由し、
// セッション発行と匿名カートのマージを一貫して行う。
type Service struct {
	users    repository.UserRepository
	resets   repository.PasswordResetRepository
	sessions *session.Store
	breach   BreachChecker
	carts    CartMerger
	mailer   ResetMailer
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	sessions *session.Store,
	breach BreachChecker,
	carts CartMerger,
	mailer ResetMailer,
	config ServiceConfig,
) *Service {
	if config.ResetTokenTTL == 0 {
		config.ResetTokenTTL = time.Hour
	}
	return &Service{
		users:    users,
		resets:   resets,
		sessions: sessions,
		breach:   breach,
		carts:    carts,
		mailer:   mailer,
		config:   config,
		now:      time.Now,
	}
}

// Register はメールアドレスとパスワードで新規ユーザーを登録し、
// セッションを発行する。戻り値のトークンはクライアントに渡す生のトークン。
// cartSessionKeyが空でない場合、匿名カートをユーザーカートにマージする。
func (s *Service) Register(ctx context.Context, email, pw, cartSessionKey string) (string, *model.User, error) {
	email = NormalizeEmail(email)

	if fields := ValidateCredentials(email, pw); fields != nil {
		return "", nil, model.NewValidationError(fields)
	}

	if err := s.checkBreach(ctx, pw); err != nil {
		return "", nil, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if existing != nil {
		return "", nil, model.NewEmailTakenError()
	}

	hash, err := password.Hash(pw)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:            uuid.New().String(),
		Email:         email,
		PasswordHash:  hash,
		Provider:      model.ProviderEmail,
		EmailVerified: false,
		Status:        model.UserStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return "", nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)

	token, err := s.issueSession(ctx, user.ID, cartSessionKey)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// Login はメールアドレスとパスワードでログインし、セッションを発行する。
// 認証失敗はメールアドレスの存在有無を区別しない単一のエラーで返す。
func (s *Service) Login(ctx context.Context, email, pw, cartSessionKey string) (string, *model.User, error) {
	email = NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if user == nil || user.PasswordHash == "" || !password.Verify(user.PasswordHash, pw) {
		return "", nil, model.NewInvalidCredentialsError()
	}

	token, err := s.issueSession(ctx, user.ID, cartSessionKey)
	if err != nil {
		return "", nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", model.ProviderEmail),
	)

	return token, user, nil
}

// LoginWithProfile はOAuthプロバイダーから取得したプロフィールでログインする。
//
// 解決順序:
//  1. (provider, providerID)の組で既存ユーザーを検索し、見つかればログイン。
//  2. メールアドレスで検索し、別プロバイダーのアカウントが存在する場合は
//     PROVIDER_CONFLICTエラー（アカウントの自動リンクは行わない）。
//  3. どちらにも該当しなければ新規ユーザーを作成する。
func (s *Service) LoginWithProfile(ctx context.Context, profile *Profile, cartSessionKey string) (string, *model.User, error) {
	user, err := s.users.FindByProviderIdentity(ctx, profile.Provider, profile.ProviderID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to find provider identity: %w", err)
	}

	if user == nil {
		email := NormalizeEmail(profile.Email)
		byEmail, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			return "", nil, fmt.Errorf("failed to look up email: %w", err)
		}
		if byEmail != nil {
			return "", nil, model.NewProviderConflictError(byEmail.Provider)
		}

		now := s.now()
		user = &model.User{
			ID:            uuid.New().String(),
			Email:         email,
			Provider:      profile.Provider,
			ProviderID:    profile.ProviderID,
			EmailVerified: profile.EmailVerified,
			Status:        model.UserStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return "", nil, fmt.Errorf("failed to create user: %w", err)
		}

		slog.Info("new user created via oauth",
			slog.String("user_id", user.ID),
			slog.String("provider", profile.Provider),
		)
	}

	token, err := s.issueSession(ctx, user.ID, cartSessionKey)
	if err != nil {
		return "", nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", profile.Provider),
	)

	return token, user, nil
}

// Logout はトークンに対応するセッションを失効させる。
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Invalidate(ctx, session.HashToken(token))
}

// CurrentUser はトークンから現在のユーザーを取得する。
// セッションが無効な場合はSESSION_REQUIREDエラーを返す。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}
	if sess == nil {
		return nil, model.NewSessionRequiredError()
	}

	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewSessionRequiredError()
	}

	return user, nil
}

// ChangePassword は認証済みユーザーのパスワードを変更する。
// 現在のパスワードの照合に成功した場合のみ変更し、
// 他の端末のセッションをすべて失効させる。
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" || !password.Verify(user.PasswordHash, current) {
		return model.NewInvalidCredentialsError()
	}

	if reason, ok := password.ValidateLength(newPassword); !ok {
		return model.NewWeakPasswordError(reason)
	}
	if err := s.checkBreach(ctx, newPassword); err != nil {
		return err
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.sessions.InvalidateAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}

	slog.Info("password changed", slog.String("user_id", userID))
	return nil
}

// RequestPasswordReset はパスワード再設定トークンを発行し、メールで送付する。
// アカウントの有無を呼び出し側に漏らさないため、未登録メールアドレスでも
// エラーにはならない。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up email: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		// OAuth専用アカウントにもパスワード再設定メールは送らない
		return nil
	}

	token, err := session.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := s.now()
	reset := &model.PasswordResetToken{
		ID:        session.HashToken(token),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.config.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	resetURL := s.config.FrontendURL + "/auth/password-reset?token=" + url.QueryEscape(token)
	if s.mailer != nil {
		if err := s.mailer.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
			// メール送信失敗はログのみ。トークンは発行済みのため再実行で回復できる。
			slog.Error("failed to send password reset mail",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// ConfirmPasswordReset はワンタイムトークンでパスワードを再設定する。
// トークンは1回のみ有効で、成功時には対象ユーザーの全セッションを失効させる。
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	reset, err := s.resets.FindByID(ctx, session.HashToken(token))
	if err != nil {
		return fmt.Errorf("failed to find reset token: %w", err)
	}
	if reset == nil || reset.UsedAt != nil || !s.now().Before(reset.ExpiresAt) {
		return model.NewResetTokenInvalidError()
	}

	if reason, ok := password.ValidateLength(newPassword); !ok {
		return model.NewWeakPasswordError(reason)
	}
	if err := s.checkBreach(ctx, newPassword); err != nil {
		return err
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, reset.UserID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.resets.MarkUsed(ctx, reset.ID); err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}
	if err := s.sessions.InvalidateAllForUser(ctx, reset.UserID); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}

	slog.Info("password reset completed", slog.String("user_id", reset.UserID))
	return nil
}

// issueSession はトークンを生成してセッションを保存し、匿名カートをマージする。
// マージの失敗はログインを妨げない（ログのみ）。
func (s *Service) issueSession(ctx context.Context, userID, cartSessionKey string) (string, error) {
	token, err := session.GenerateToken()
	if err != nil {
		return "", err
	}
	if _, err := s.sessions.Create(ctx, token, userID); err != nil {
		return "", err
	}

	if cartSessionKey != "" && s.carts != nil {
		if err := s.carts.MergeOnLogin(ctx, cartSessionKey, userID); err != nil {
			slog.Warn("failed to merge anonymous cart on login",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	return token, nil
}

// checkBreach は漏洩パスワードチェックを実行する。
// 明示的な一致のみをエラーとする（到達不能時はチェッカー側でfail-open）。
func (s *Service) checkBreach(ctx context.Context, pw string) error {
	if s.breach == nil {
		return nil
	}
	breached, err := s.breach.IsBreached(ctx, pw)
	if err != nil {
		return fmt.Errorf("breach check failed: %w", err)
	}
	if breached {
		return model.NewBreachedPasswordError()
	}
	return nil
}
