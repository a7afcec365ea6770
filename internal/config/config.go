package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting of the server, the mail worker and the seed job.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Models   ModelsConfig   `mapstructure:"models"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Auth     AuthConfig     `mapstructure:"auth"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	SES      SESConfig      `mapstructure:"ses"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
}

type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"` // postgres | mongo
	URL           string `mapstructure:"url"`
	MongoDatabase string `mapstructure:"mongo_database"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	ConversationTTL time.Duration `mapstructure:"conversation_ttl"`
	FileCacheTTL    time.Duration `mapstructure:"file_cache_ttl"`
}

type RabbitMQConfig struct {
	URL               string        `mapstructure:"url"`
	Queue             string        `mapstructure:"queue"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MetricsAddr       string        `mapstructure:"metrics_addr"` // cmd/mailer only
}

type GCSConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	SignedURLTTL    time.Duration `mapstructure:"signed_url_ttl"`
	CredentialsFile string        `mapstructure:"credentials_file"`
}

type GeminiConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

type ModelsConfig struct {
	Basic   string `mapstructure:"basic"`
	Premium string `mapstructure:"premium"`
}

// CreditsConfig amounts are in dollars per week. ExchangeRate converts
// dollars to the credits shown to users.
type CreditsConfig struct {
	UserWeeklyAmount  float64 `mapstructure:"user_weekly_amount"`
	GuestWeeklyAmount float64 `mapstructure:"guest_weekly_amount"`
	ExchangeRate      float64 `mapstructure:"exchange_rate"`
}

type LimitsConfig struct {
	MaxIconFileSizeKB  int `mapstructure:"max_icon_file_size_kb"`
	MaxDocsPerChatbot  int `mapstructure:"max_docs_per_chatbot"`
	MaxPagesPerChatbot int `mapstructure:"max_pages_per_chatbot"`
}

type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"`
	TokenExpirationHours int    `mapstructure:"token_expiration_hours"`
	CookieName           string `mapstructure:"cookie_name"`
	CookieSecure         bool   `mapstructure:"cookie_secure"`
	EncryptionKeyHex     string `mapstructure:"encryption_key"`
	GuestModeEnabled     bool   `mapstructure:"guest_mode_enabled"`

	// Decoded EncryptionKeyHex, 32 bytes for AES-256.
	EncryptionKey []byte `mapstructure:"-"`
}

func (a AuthConfig) TokenExpiration() time.Duration {
	return time.Duration(a.TokenExpirationHours) * time.Hour
}

type OAuthProviderConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	Tenant       string `mapstructure:"tenant"`
}

func (p OAuthProviderConfig) Enabled() bool { return p.ClientID != "" }

type OAuthConfig struct {
	Google    OAuthProviderConfig `mapstructure:"google"`
	Microsoft OAuthProviderConfig `mapstructure:"microsoft"`
}

type SESConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Sender          string `mapstructure:"sender"`
	Bcc             string `mapstructure:"bcc"`
	LogoURL         string `mapstructure:"logo_url"`
}

type SlackConfig struct {
	BotToken string `mapstructure:"bot_token"`
	Channel  string `mapstructure:"channel"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads .env (if present), then config.yaml (if present), then
// DOCUTALK_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/docu-talk")

	v.SetEnvPrefix("DOCUTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute) // answers are streamed
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.base_url", "http://localhost:3000")
	v.SetDefault("server.max_upload_mb", 64)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.mongo_database", "docu-talk")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.conversation_ttl", 24*time.Hour)
	v.SetDefault("redis.file_cache_ttl", 46*time.Hour)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.queue", "docutalk.emails")
	v.SetDefault("rabbitmq.worker_concurrency", 2)
	v.SetDefault("rabbitmq.max_attempts", 5)
	v.SetDefault("rabbitmq.retry_delay", 30*time.Second)
	v.SetDefault("rabbitmq.metrics_addr", ":9091")

	v.SetDefault("gcs.bucket", "")
	v.SetDefault("gcs.signed_url_ttl", 15*time.Minute)
	v.SetDefault("gcs.credentials_file", "")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.max_retries", 5)
	v.SetDefault("gemini.initial_backoff", 2*time.Second)

	v.SetDefault("models.basic", "gemini-1.5-flash-002")
	v.SetDefault("models.premium", "gemini-1.5-pro-002")

	v.SetDefault("credits.user_weekly_amount", 1.0)
	v.SetDefault("credits.guest_weekly_amount", 0.2)
	v.SetDefault("credits.exchange_rate", 100.0)

	v.SetDefault("limits.max_icon_file_size_kb", 200)
	v.SetDefault("limits.max_docs_per_chatbot", 5)
	v.SetDefault("limits.max_pages_per_chatbot", 500)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_expiration_hours", 24)
	v.SetDefault("auth.cookie_name", "docu-talk")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.encryption_key", "")
	v.SetDefault("auth.guest_mode_enabled", true)

	for _, p := range []string{"google", "microsoft"} {
		v.SetDefault("oauth."+p+".client_id", "")
		v.SetDefault("oauth."+p+".client_secret", "")
		v.SetDefault("oauth."+p+".redirect_url", "")
	}
	v.SetDefault("oauth.microsoft.tenant", "common")

	v.SetDefault("ses.region", "eu-west-1")
	v.SetDefault("ses.access_key_id", "")
	v.SetDefault("ses.secret_access_key", "")
	v.SetDefault("ses.sender", "support@ai-apps.cloud")
	v.SetDefault("ses.bcc", "support@ai-apps.cloud")
	v.SetDefault("ses.logo_url", "https://ai-apps.cloud/static/docu-talk-logo.png")

	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.channel", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// bindLegacyEnv keeps the unprefixed variable names deployments already use.
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string]string{
		"database.url":        "DATABASE_URL",
		"auth.jwt_secret":     "JWT_SECRET",
		"auth.encryption_key": "ENCRYPTION_KEY",
		"gemini.api_key":      "GEMINI_API_KEY",
		"server.port":         "HTTP_PORT",
		"redis.addr":          "REDIS_ADDR",
		"rabbitmq.url":        "RABBITMQ_URL",
	}
	for key, env := range legacy {
		prefixed := "DOCUTALK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url (DATABASE_URL) is required")
	}
	switch c.Database.Driver {
	case "postgres", "mongo":
	default:
		return fmt.Errorf("database.driver must be postgres or mongo, got %q", c.Database.Driver)
	}

	key, err := hex.DecodeString(c.Auth.EncryptionKeyHex)
	if err != nil {
		return fmt.Errorf("auth.encryption_key (ENCRYPTION_KEY) must be hex: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("auth.encryption_key must be 32 bytes (64 hex characters), got %d bytes", len(key))
	}
	c.Auth.EncryptionKey = key

	if c.Auth.TokenExpirationHours <= 0 {
		c.Auth.TokenExpirationHours = 24
	}
	if c.Credits.ExchangeRate <= 0 {
		return errors.New("credits.exchange_rate must be positive")
	}
	if c.Limits.MaxDocsPerChatbot <= 0 || c.Limits.MaxPagesPerChatbot <= 0 {
		return errors.New("limits.max_docs_per_chatbot and limits.max_pages_per_chatbot must be positive")
	}
	return nil
}
