package mail

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// SMTPConfig は SMTP 接続設定です。
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// SMTPSender は gomail を使って SMTP でメールを送信します。
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
	dial   func(m *gomail.Message) error
}

// NewSMTPSender は SMTPSender を作成します。
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	s := &SMTPSender{
		cfg:    cfg,
		logger: logger,
	}
	s.dial = func(m *gomail.Message) error {
		d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password)
		return d.DialAndSend(m)
	}
	return s
}

// Send はメールを1通送信します。
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp host is not configured")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dial(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("email sent", slog.String("to", msg.To), slog.String("kind", string(msg.Kind)))
	}
	return nil
}

// LogSender は SMTP 未設定の開発環境向けに、メール内容をログに出力します。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender は LogSender を作成します。
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send はメール内容をログに書き出します。
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "email (smtp not configured, logged only)",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", msg.To),
		slog.String("from", msg.From),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
