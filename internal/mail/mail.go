// Package mail はトランザクションメールの組み立てと送信を提供します。
package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Kind はメールの種別です。メトリクスやログのラベルに使います。
type Kind string

const (
	KindPasswordReset   Kind = "password_reset"
	KindPasswordChanged Kind = "password_changed"
)

// Message は送信するメール1通を表します。
type Message struct {
	Kind    Kind   `json:"kind"`
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate は送信に必要な項目が揃っているかを確認します。
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("empty recipient")
	}
	if strings.TrimSpace(m.From) == "" {
		return fmt.Errorf("empty sender")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("empty subject")
	}
	return nil
}

// Sender はメール送信の抽象です。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Queued は s が送信をキュー投入だけで終える Sender かを返します。
func Queued(s Sender) bool {
	q, ok := s.(interface{ Queued() bool })
	return ok && q.Queued()
}

// SenderFunc は関数を Sender として扱うためのアダプタです。
type SenderFunc func(ctx context.Context, msg Message) error

// Send は f(ctx, msg) を呼び出します。
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// ResetLink は baseURL とトークンからリセット用URLを組み立てます。
func ResetLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/reset/" + url.PathEscape(token)
}

// PasswordResetMessage はリセット手順を案内するメールを作成します。
func PasswordResetMessage(from, to, link string) Message {
	body := "You are receiving this because you (or someone else) have requested the reset of the password for your account.\n\n" +
		"Please click on the following link, or paste this into your browser to complete the process:\n\n" +
		link + "\n\n" +
		"If you did not request this, please ignore this email and your password will remain unchanged.\n"

	return Message{
		Kind:    KindPasswordReset,
		To:      to,
		From:    from,
		Subject: "Password Reset",
		Body:    body,
	}
}

// PasswordChangedMessage はパスワード変更完了を通知するメールを作成します。
func PasswordChangedMessage(from, to string) Message {
	body := "Hello,\n\n" +
		"This is a confirmation that the password for your account " + to + " has just been changed.\n"

	return Message{
		Kind:    KindPasswordChanged,
		To:      to,
		From:    from,
		Subject: "Your password has been changed",
		Body:    body,
	}
}
