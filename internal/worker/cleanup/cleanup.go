// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッション、使用済み・期限切れのパスワード再設定トークン、
// 放置された匿名カートを日次バッチで削除する。
// cart_itemsはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db                Executor
	logger            *slog.Logger
	AnonymousCartDays int // 匿名カートの保持日数（デフォルト: 60）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// 匿名カートのデフォルト保持日数は60日。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                db,
		logger:            logger,
		AnonymousCartDays: 60,
	}
}

// Run は期限切れデータを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, err := j.purge(ctx, "sessions",
		`DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return err
	}

	resets, err := j.purge(ctx, "password_reset_tokens",
		`DELETE FROM password_reset_tokens WHERE expires_at < now() OR used_at IS NOT NULL`)
	if err != nil {
		return err
	}

	interval := fmt.Sprintf("%d days", j.AnonymousCartDays)
	carts, err := j.purge(ctx, "carts",
		`DELETE FROM carts WHERE user_id IS NULL AND updated_at < now() - $1::interval`, interval)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_reset_tokens", resets),
		slog.Int64("deleted_carts", carts),
		slog.Int("anonymous_cart_days", j.AnonymousCartDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// purge は削除クエリを実行し、削除件数を返す。
func (j *CleanupJob) purge(ctx context.Context, target, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%sのクリーンアップに失敗: %w", target, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	return deleted, nil
}
