package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"
)

func TestResetLink(t *testing.T) {
	got := ResetLink("http://localhost:3000/", "abc123")
	if got != "http://localhost:3000/reset/abc123" {
		t.Fatalf("unexpected link: %s", got)
	}
}

func TestPasswordResetMessage(t *testing.T) {
	msg := PasswordResetMessage("noreply@example.com", "a@x.com", "http://host/reset/tok")
	if msg.Kind != KindPasswordReset || msg.To != "a@x.com" || msg.From != "noreply@example.com" {
		t.Fatalf("unexpected header fields: %#v", msg)
	}
	if !strings.Contains(msg.Body, "http://host/reset/tok") {
		t.Fatalf("body does not contain link: %q", msg.Body)
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestPasswordChangedMessage(t *testing.T) {
	msg := PasswordChangedMessage("noreply@example.com", "a@x.com")
	if msg.Subject != "Your password has been changed" {
		t.Fatalf("unexpected subject: %s", msg.Subject)
	}
	if !strings.Contains(msg.Body, "a@x.com") {
		t.Fatalf("body does not mention account: %q", msg.Body)
	}
}

func TestMessageValidate(t *testing.T) {
	if err := (Message{From: "f", Subject: "s"}).Validate(); err == nil {
		t.Fatal("expected error for empty recipient")
	}
	if err := (Message{To: "t", Subject: "s"}).Validate(); err == nil {
		t.Fatal("expected error for empty sender")
	}
}

func TestSMTPSenderSend(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587}, nil)
	var sent *gomail.Message
	s.dial = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	msg := PasswordChangedMessage("noreply@example.com", "a@x.com")
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if sent == nil {
		t.Fatal("expected message to be dialed")
	}
	if got := sent.GetHeader("To"); len(got) != 1 || got[0] != "a@x.com" {
		t.Fatalf("unexpected To header: %v", got)
	}
}

func TestSMTPSenderWrapsDialError(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587}, nil)
	dialErr := errors.New("connection refused")
	s.dial = func(*gomail.Message) error { return dialErr }

	err := s.Send(context.Background(), PasswordChangedMessage("f@x.com", "a@x.com"))
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}

func TestSMTPSenderRequiresHost(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{}, nil)
	if err := s.Send(context.Background(), PasswordChangedMessage("f@x.com", "a@x.com")); err == nil {
		t.Fatal("expected error without host")
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := s.Send(context.Background(), PasswordResetMessage("f@x.com", "a@x.com", "http://host/reset/tok")); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "reset/tok") {
		t.Fatalf("expected link in log output: %q", buf.String())
	}
}

type queueOnly struct{ LogSender }

func (queueOnly) Queued() bool { return true }

func TestQueued(t *testing.T) {
	if Queued(NewLogSender(slog.Default())) {
		t.Fatal("LogSender must not report queued delivery")
	}
	if !Queued(&queueOnly{}) {
		t.Fatal("expected queued sender")
	}
}
