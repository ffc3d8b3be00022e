package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/keebstore/internal/model"
)

// PostgresPasswordResetRepo はPostgreSQLを使用したパスワード再設定トークンリポジトリ。
type PostgresPasswordResetRepo struct {
	db *sql.DB
}

// NewPostgresPasswordResetRepo はPostgresPasswordResetRepoを生成する。
func NewPostgresPasswordResetRepo(db *sql.DB) *PostgresPasswordResetRepo {
	return &PostgresPasswordResetRepo{db: db}
}

// Create はパスワード再設定トークンを作成する。
func (r *PostgresPasswordResetRepo) Create(ctx context.Context, token *model.PasswordResetToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		token.ID, token.UserID, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create password reset token: %w", err)
	}
	return nil
}

// FindByID は指定IDのトークンを取得する。該当なしの場合はnilを返す。
func (r *PostgresPasswordResetRepo) FindByID(ctx context.Context, id string) (*model.PasswordResetToken, error) {
	token := &model.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, used_at, created_at
		 FROM password_reset_tokens WHERE id = $1`,
		id,
	).Scan(&token.ID, &token.UserID, &token.ExpiresAt, &token.UsedAt, &token.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find password reset token: %w", err)
	}

	return token, nil
}

// MarkUsed はトークンを使用済みにする。
func (r *PostgresPasswordResetRepo) MarkUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark password reset token used: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PasswordResetRepository = (*PostgresPasswordResetRepo)(nil)
