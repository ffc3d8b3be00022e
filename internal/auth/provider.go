// Package auth は認証（パスワード・OAuth連携）とアカウント管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"
)

// Profile はOAuthプロバイダーから取得したユーザー情報を表す。
type Profile struct {
	Provider      string
	ProviderID    string
	Email         string
	Name          string
	EmailVerified bool // プロバイダーの信頼度に基づく初期値
}

// Provider はOAuth認証プロバイダーのインターフェース。
// codeChallenge/codeVerifierはPKCEを使用するプロバイダー（Google）のみが参照し、
// それ以外のプロバイダーは無視する。
type Provider interface {
	// Name はプロバイダー名（"github"等）を返す。
	Name() string
	// AuthCodeURL は認可エンドポイントのURLを生成する。
	AuthCodeURL(state, codeChallenge string) string
	// Exchange は認可コードをトークンに交換し、ユーザー情報を取得する。
	Exchange(ctx context.Context, code, codeVerifier string) (*Profile, error)
}

// newOAuthHTTPClient はプロバイダーAPI呼び出し用のHTTPクライアントを生成する。
// 外部APIのハングがリクエスト全体をブロックしないようタイムアウトを設ける。
func newOAuthHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// GenerateState はCSRF対策用のランダムなstate値を生成する。
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateCodeVerifier はPKCE用のcode_verifierを生成する。
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CodeChallengeS256 はcode_verifierからS256方式のcode_challengeを導出する。
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
