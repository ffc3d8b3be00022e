// Package password はパスワードのハッシュ化・検証・強度チェックを提供する。
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 16
	keyLength  = 32
	iterations = 100000

	// パスワード長の要件
	MinLength = 8
	MaxLength = 255
)

// Hash はパスワードをPBKDF2-SHA256でハッシュ化する。
// 16バイトのランダムソルトを生成し、base64(salt ‖ hash)形式で返す。
func Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)

	combined := make([]byte, 0, saltLength+keyLength)
	combined = append(combined, salt...)
	combined = append(combined, key...)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// Verify は保存済みハッシュとパスワードを照合する。
// 比較はXOR累積による定数時間比較で行い、タイミングリークを避ける。
// フォーマット不正のハッシュは照合失敗として扱う。
func Verify(stored, password string) bool {
	combined, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(combined) != saltLength+keyLength {
		return false
	}

	salt := combined[:saltLength]
	expected := combined[saltLength:]

	key := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)

	// 早期リターンせず全バイトを比較する
	var diff byte
	for i := 0; i < keyLength; i++ {
		diff |= expected[i] ^ key[i]
	}
	return diff == 0
}

// ValidateLength はパスワード長の要件を検証する。
// 満たさない場合は理由を表す文字列を返す。
func ValidateLength(password string) (string, bool) {
	if len(password) < MinLength {
		return fmt.Sprintf("%d文字以上である必要があります", MinLength), false
	}
	if len(password) > MaxLength {
		return fmt.Sprintf("%d文字以下である必要があります", MaxLength), false
	}
	return "", true
}
