// Package session はオペークトークンによるセッションの発行・検証・失効を提供する。
//
// クライアントにはランダムなトークンを渡し、データベースには
// そのSHA-256ハッシュのみを保存する。トークンが漏洩しても
// データベース側から逆引きすることはできない。
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/keebstore/internal/model"
	"github.com/hitoshi/keebstore/internal/repository"
)

// StoreConfig はセッションストアの設定。
type StoreConfig struct {
	TTL           time.Duration // セッション有効期間
	RenewalWindow time.Duration // 残り有効期間がこれを切ったら延長する
}

// DefaultStoreConfig は既定のセッションストア設定を返す。
// 有効期間30日、残り15日を切った時点の検証で延長する。
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TTL:           30 * 24 * time.Hour,
		RenewalWindow: 15 * 24 * time.Hour,
	}
}

// Store はセッションのライフサイクルを管理する。
type Store struct {
	repo   repository.SessionRepository
	config StoreConfig
	now    func() time.Time // テスト用に差し替え可能
}

// NewStore はStoreを生成する。
func NewStore(repo repository.SessionRepository, config StoreConfig) *Store {
	if config.TTL == 0 {
		config = DefaultStoreConfig()
	}
	return &Store{
		repo:   repo,
		config: config,
		now:    time.Now,
	}
}

// GenerateToken は暗号的に安全なセッショントークンを生成する。
// 戻り値はクライアントに渡す生のトークンであり、保存してはならない。
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken はトークンから保存用のセッションIDを導出する。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create はトークンに対応するセッションを作成する。
func (s *Store) Create(ctx context.Context, token, userID string) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:        HashToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(s.config.TTL),
		CreatedAt: now,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Validate はトークンを検証し、有効なセッションを返す。
// セッションが存在しない場合は (nil, nil) を返す。
// 期限切れのセッションは削除したうえで (nil, nil) を返す。
// 残り有効期間がRenewalWindowを切っている場合は有効期限を延長する
// （スライディング方式）。このため検証は読み取り専用の操作ではない。
func (s *Store) Validate(ctx context.Context, token string) (*model.Session, error) {
	session, err := s.repo.FindByID(ctx, HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	now := s.now()

	// 期限切れは検出時に削除し、セッションなしとして扱う
	if !now.Before(session.ExpiresAt) {
		if err := s.repo.DeleteByID(ctx, session.ID); err != nil {
			slog.Warn("failed to delete expired session",
				slog.String("error", err.Error()),
			)
		}
		return nil, nil
	}

	// スライディング延長
	if session.ExpiresAt.Sub(now) < s.config.RenewalWindow {
		newExpiry := now.Add(s.config.TTL)
		if err := s.repo.ExtendExpiry(ctx, session.ID, newExpiry); err != nil {
			// 延長失敗はセッション自体の有効性に影響しない
			slog.Warn("failed to extend session expiry",
				slog.String("error", err.Error()),
			)
		} else {
			session.ExpiresAt = newExpiry
		}
	}

	return session, nil
}

// Invalidate は指定セッションを失効させる。ログアウトで使用する。
func (s *Store) Invalidate(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// InvalidateAllForUser は指定ユーザーの全セッションを失効させる。
// パスワード変更・再設定時に使用する。
func (s *Store) InvalidateAllForUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate user sessions: %w", err)
	}
	return nil
}
