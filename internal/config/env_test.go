package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NOTIFY_INTERVAL", "")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "")
	t.Setenv("WHATSAPP_TOKEN", "")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "")
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "")
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("MEDIA_MIRROR", "")
	t.Setenv("WHATSAPP_COUNTRY_CODE", "")
	t.Setenv("LEAD_JOURNAL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NotifyInterval != 30*time.Second {
		t.Errorf("NotifyInterval = %v, want 30s", cfg.NotifyInterval)
	}
	if cfg.NotifyBatch != 10 || cfg.NotifyMaxAttempts != 3 {
		t.Errorf("batch/attempts = %d/%d, want 10/3", cfg.NotifyBatch, cfg.NotifyMaxAttempts)
	}
	if cfg.MeetingDuration != 30*time.Minute {
		t.Errorf("MeetingDuration = %v", cfg.MeetingDuration)
	}
	if cfg.LeadRenotifyAfter != 3*time.Hour {
		t.Errorf("LeadRenotifyAfter = %v", cfg.LeadRenotifyAfter)
	}
	if cfg.WhatsAppCountryCode != "972" || cfg.LeadJournal != JournalWorker {
		t.Errorf("country code %q, journal %q", cfg.WhatsAppCountryCode, cfg.LeadJournal)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("NOTIFY_INTERVAL", "5s")
	t.Setenv("NOTIFY_BATCH", "25")
	t.Setenv("MEDIA_MIRROR", "true")
	t.Setenv("BUCKET_NAME", "media")
	t.Setenv("EMBED_DIM", "not-a-number")
	t.Setenv("WHATSAPP_TOKEN", "")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "")
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "")
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("SMTP_HOST", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NotifyInterval != 5*time.Second || cfg.NotifyBatch != 25 {
		t.Errorf("got interval %v batch %d", cfg.NotifyInterval, cfg.NotifyBatch)
	}
	if !cfg.MediaMirror {
		t.Error("MediaMirror should be on")
	}
	if cfg.EmbedDim != 768 {
		t.Errorf("invalid EMBED_DIM should fall back to 768, got %d", cfg.EmbedDim)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Port:              "8080",
		Storage:           StoragePostgres,
		NotifyInterval:    0,
		NotifyBatch:       10,
		NotifyMaxAttempts: -1,
		MeetingDuration:   time.Minute,
		NLUTimeout:        time.Second,
		EmbedDim:          768,
		WhatsAppToken:     "tok",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "NOTIFY_INTERVAL", "NOTIFY_MAX_ATTEMPTS", "WHATSAPP_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateUnknownStorage(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Port: "8080", Storage: "sqlite",
		NotifyInterval: time.Second, NotifyBatch: 1, NotifyMaxAttempts: 1,
		MeetingDuration: time.Minute, NLUTimeout: time.Second, EmbedDim: 1,
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "STORAGE") {
		t.Fatalf("expected STORAGE error, got %v", err)
	}
}

func TestValidateCountryCodeAndJournal(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Port: "8080", Storage: StorageMemory,
		NotifyInterval: time.Second, NotifyBatch: 1, NotifyMaxAttempts: 1,
		MeetingDuration: time.Minute, NLUTimeout: time.Second, EmbedDim: 1,
		WhatsAppCountryCode: "44", LeadJournal: JournalDirect,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg.WhatsAppCountryCode = "+44"
	cfg.LeadJournal = "kafka"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"WHATSAPP_COUNTRY_CODE", "LEAD_JOURNAL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
