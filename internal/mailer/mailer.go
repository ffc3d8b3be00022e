// Package mailer はトランザクションメールの送信を提供する。
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/hitoshi/keebstore/internal/model"
)

// Config はSMTP接続の設定。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled はメール送信が設定済みかを返す。
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// SMTPMailer はnet/smtpによるメール送信実装。
type SMTPMailer struct {
	config Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(config Config) *SMTPMailer {
	return &SMTPMailer{
		config: config,
		send:   smtp.SendMail,
	}
}

// SendPasswordReset はパスワード再設定メールを送信する。
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	body := strings.Join([]string{
		"KeebStoreをご利用いただきありがとうございます。",
		"",
		"以下のリンクからパスワードを再設定してください。リンクの有効期限は1時間です。",
		"",
		resetURL,
		"",
		"このメールに心当たりがない場合は破棄してください。",
	}, "\r\n")

	return m.deliver(ctx, to, "【KeebStore】パスワード再設定のご案内", body)
}

// SendOrderConfirmation は注文確認メールを送信する。
func (m *SMTPMailer) SendOrderConfirmation(ctx context.Context, to string, order *model.Order) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ご注文ありがとうございます。\r\n\r\n")
	fmt.Fprintf(&b, "注文番号: %s\r\n\r\n", order.OrderNumber)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "%s / %s x%d  %d円\r\n",
			item.ProductName, item.VariantName, item.Quantity, item.Price*int64(item.Quantity))
	}
	fmt.Fprintf(&b, "\r\n小計: %d円\r\n", order.Subtotal)
	if order.DiscountAmount > 0 {
		fmt.Fprintf(&b, "割引: -%d円\r\n", order.DiscountAmount)
	}
	fmt.Fprintf(&b, "合計: %d円\r\n", order.Total)

	subject := fmt.Sprintf("【KeebStore】ご注文確認 (%s)", order.OrderNumber)
	return m.deliver(ctx, to, subject, b.String())
}

// deliver はメッセージを組み立てて送信する。
func (m *SMTPMailer) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.config.Enabled() {
		return fmt.Errorf("smtp is not configured")
	}

	msg := strings.Join([]string{
		"From: " + m.config.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	if err := m.send(addr, auth, m.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}
