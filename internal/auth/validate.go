package auth

import (
	"net/mail"
	"strings"

	"github.com/hitoshi/keebstore/internal/password"
)

// メール・パスワードのバリデーションルールはここに集約する。
// 各ハンドラーで個別にルールを持たない。

// NormalizeEmail はメールアドレスを比較可能な形式に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials は登録・パスワード変更時のメールアドレスと
// パスワードを検証する。問題があるフィールドごとのメッセージを返す。
func ValidateCredentials(email, pw string) map[string]string {
	fields := make(map[string]string)

	if email == "" {
		fields["email"] = "required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "invalid format"
	}

	if pw == "" {
		fields["password"] = "required"
	} else if reason, ok := password.ValidateLength(pw); !ok {
		fields["password"] = reason
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}
