package mailer

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/hitoshi/keebstore/internal/model"
)

// capturedMail は送信関数に渡された内容を記録する。
type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestMailer(config Config) (*SMTPMailer, *capturedMail) {
	captured := &capturedMail{}
	m := NewSMTPMailer(config)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		captured.addr = addr
		captured.auth = a
		captured.from = from
		captured.to = to
		captured.msg = string(msg)
		return nil
	}
	return m, captured
}

func enabledConfig() Config {
	return Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer",
		Password: "secret",
		From:     "store@keebstore.example",
	}
}

// TestSendPasswordReset は再設定メールの宛先・件名・リンクを検証する。
func TestSendPasswordReset(t *testing.T) {
	m, captured := newTestMailer(enabledConfig())

	resetURL := "https://store.example.com/auth/password-reset?token=abc123"
	if err := m.SendPasswordReset(context.Background(), "taro@example.com", resetURL); err != nil {
		t.Fatalf("SendPasswordReset() がエラーを返した: %v", err)
	}

	if captured.addr != "smtp.example.com:587" {
		t.Errorf("接続先 = %q, want smtp.example.com:587", captured.addr)
	}
	if len(captured.to) != 1 || captured.to[0] != "taro@example.com" {
		t.Errorf("宛先 = %v, want [taro@example.com]", captured.to)
	}
	if captured.from != "store@keebstore.example" {
		t.Errorf("差出人 = %q", captured.from)
	}
	if !strings.Contains(captured.msg, "Subject: 【KeebStore】パスワード再設定のご案内") {
		t.Error("件名が設定されていない")
	}
	if !strings.Contains(captured.msg, resetURL) {
		t.Error("本文に再設定リンクが無い")
	}
	if captured.auth == nil {
		t.Error("ユーザー名設定時はSMTP認証を使うべき")
	}
}

// TestSendOrderConfirmation は注文確認メールの内容を検証する。
func TestSendOrderConfirmation(t *testing.T) {
	m, captured := newTestMailer(enabledConfig())

	order := &model.Order{
		OrderNumber:    "KB-20260829-AB12CD",
		Subtotal:       28000,
		DiscountAmount: 500,
		Total:          27500,
		Items: []model.OrderItem{
			{ProductName: "KB-75 メカニカルキーボード", VariantName: "茶軸", Price: 12000, Quantity: 2},
		},
	}

	if err := m.SendOrderConfirmation(context.Background(), "taro@example.com", order); err != nil {
		t.Fatalf("SendOrderConfirmation() がエラーを返した: %v", err)
	}

	for _, want := range []string{
		"KB-20260829-AB12CD",
		"KB-75 メカニカルキーボード / 茶軸 x2  24000円",
		"小計: 28000円",
		"割引: -500円",
		"合計: 27500円",
	} {
		if !strings.Contains(captured.msg, want) {
			t.Errorf("本文に %q が無い", want)
		}
	}
}

// TestDeliver_NotConfigured はSMTP未設定での送信がエラーになることを検証する。
func TestDeliver_NotConfigured(t *testing.T) {
	m, captured := newTestMailer(Config{})

	err := m.SendPasswordReset(context.Background(), "taro@example.com", "https://example.com/reset")
	if err == nil {
		t.Fatal("未設定でエラーが返らなかった")
	}
	if captured.msg != "" {
		t.Error("未設定なのに送信関数が呼ばれた")
	}
}

// TestDeliver_NoAuthWithoutUsername はユーザー名未設定の場合に
// 認証なしで送信することを検証する。
func TestDeliver_NoAuthWithoutUsername(t *testing.T) {
	config := enabledConfig()
	config.Username = ""
	m, captured := newTestMailer(config)

	if err := m.SendPasswordReset(context.Background(), "taro@example.com", "https://example.com/reset"); err != nil {
		t.Fatalf("SendPasswordReset() がエラーを返した: %v", err)
	}
	if captured.auth != nil {
		t.Error("ユーザー名未設定なのにSMTP認証が使われた")
	}
}

// TestDeliver_CancelledContext はキャンセル済みコンテキストで
// 送信しないことを検証する。
func TestDeliver_CancelledContext(t *testing.T) {
	m, captured := newTestMailer(enabledConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.SendPasswordReset(ctx, "taro@example.com", "https://example.com/reset"); err == nil {
		t.Fatal("キャンセル済みコンテキストでエラーが返らなかった")
	}
	if captured.msg != "" {
		t.Error("キャンセル済みなのに送信関数が呼ばれた")
	}
}
