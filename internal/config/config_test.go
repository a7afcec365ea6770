package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequired(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DATABASE_URL", "postgres://localhost/docutalk")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ENCRYPTION_KEY", testKey)
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Auth.CookieName != "docu-talk" {
		t.Errorf("cookie = %q", cfg.Auth.CookieName)
	}
	if cfg.Auth.TokenExpiration() != 24*time.Hour {
		t.Errorf("token expiration = %s", cfg.Auth.TokenExpiration())
	}
	if len(cfg.Auth.EncryptionKey) != 32 {
		t.Errorf("encryption key len = %d", len(cfg.Auth.EncryptionKey))
	}
	if cfg.GCS.SignedURLTTL != 15*time.Minute {
		t.Errorf("signed url ttl = %s", cfg.GCS.SignedURLTTL)
	}
	if cfg.SES.Sender != "support@ai-apps.cloud" {
		t.Errorf("sender = %q", cfg.SES.Sender)
	}
	if cfg.OAuth.Google.Enabled() {
		t.Errorf("google oauth should be disabled without client id")
	}
}

func TestLoadPrefixedEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DOCUTALK_LIMITS_MAX_DOCS_PER_CHATBOT", "3")
	t.Setenv("DOCUTALK_CREDITS_EXCHANGE_RATE", "250")
	t.Setenv("DOCUTALK_MODELS_PREMIUM", "gemini-2.0-pro")
	t.Setenv("DOCUTALK_REDIS_CONVERSATION_TTL", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limits.MaxDocsPerChatbot != 3 {
		t.Errorf("max docs = %d", cfg.Limits.MaxDocsPerChatbot)
	}
	if cfg.Credits.ExchangeRate != 250 {
		t.Errorf("rate = %v", cfg.Credits.ExchangeRate)
	}
	if cfg.Models.Premium != "gemini-2.0-pro" {
		t.Errorf("premium = %q", cfg.Models.Premium)
	}
	if cfg.Redis.ConversationTTL != 2*time.Hour {
		t.Errorf("conversation ttl = %s", cfg.Redis.ConversationTTL)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"short key", map[string]string{"ENCRYPTION_KEY": "abcd"}, "32 bytes"},
		{"non hex key", map[string]string{"ENCRYPTION_KEY": strings.Repeat("zz", 32)}, "must be hex"},
		{"bad driver", map[string]string{"DOCUTALK_DATABASE_DRIVER": "sqlite"}, "postgres or mongo"},
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "jwt_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
