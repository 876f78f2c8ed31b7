package delivery

import (
	"context"
	"testing"

	"github.com/markdave123-py/Rentora/internal/config"
)

func TestConstructorsRequireConfiguration(t *testing.T) {
	t.Parallel()

	if _, err := NewSMTPMailer(&config.Config{SMTPHost: "smtp.example"}, nil); err == nil {
		t.Error("mailer without SMTP_FROM should fail")
	}
	if _, err := NewGoogleCalendar(context.Background(), &config.Config{}); err == nil {
		t.Error("calendar without credentials should fail")
	}
}

func TestSMTPMailerRejectsEmptyRecipients(t *testing.T) {
	t.Parallel()

	m, err := NewSMTPMailer(&config.Config{SMTPHost: "smtp.example", SMTPPort: 587, SMTPFrom: "bot@example.com"}, nil)
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	if err := m.Send(context.Background(), nil, "s", "b"); err == nil {
		t.Fatal("expected error for empty recipients")
	}
}
