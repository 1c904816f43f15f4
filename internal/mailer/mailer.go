// Package mailer はSMTP経由のメール送信を提供する。
package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// resetSubject はパスワードリセット通知の件名。
const resetSubject = "Password reset request"

// Config はSMTP接続設定。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer はgomailを使ってメールを送信する。
type Mailer struct {
	from string
	send func(msg *gomail.Message) error
}

// New はSMTPサーバーに接続するMailerを生成する。接続は送信時に行う。
func New(cfg Config) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{from: cfg.From, send: func(msg *gomail.Message) error {
		return dialer.DialAndSend(msg)
	}}
}

// NewWithSender は任意のgomail.Senderで送信するMailerを生成する。
func NewWithSender(from string, sender gomail.Sender) *Mailer {
	return &Mailer{from: from, send: func(msg *gomail.Message) error {
		return gomail.Send(sender, msg)
	}}
}

// SendResetToken はパスワードリセットトークンを宛先に送信する。
func (m *Mailer) SendResetToken(ctx context.Context, email, token string) error {
	if email == "" {
		return fmt.Errorf("no recipient specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", resetSubject)
	msg.SetBody("text/plain", fmt.Sprintf(
		"A password reset was requested for %s.\r\n\r\nReset token: %s\r\n\r\nIf you did not request this, you can ignore this message.\r\n",
		email, token,
	))

	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send reset token mail: %w", err)
	}
	return nil
}
