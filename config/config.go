package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all server configuration
type Config struct {
	Port            int
	TwilioPort      int    // Port for the Twilio server when ServerType is "both"
	ServerType      string // "websocket", "twilio", or "both"
	PublicHost      string // Host used in TwiML callbacks; falls back to the request Host
	RedisURL        string
	RedisPassword   string
	MaxSessions     int
	SessionTimeout  time.Duration
	CallRetention   time.Duration
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration
	MaxBufferSize   int // Maximum audio buffer size in bytes per browser session

	Profiles ProfileSettings
	Gemini   GeminiConfig
	Twilio   TwilioConfig
	Email    EmailConfig
	NATS     NATSConfig
	Webhook  WebhookConfig
	Logging  LoggingConfig
}

// ProfileSettings locate the tenant profiles on disk.
type ProfileSettings struct {
	Dir             string
	DefaultClientID string
}

type GeminiConfig struct {
	APIKey       string
	Model        string
	SummaryModel string
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	RecordCalls bool
}

// EmailConfig selects the notification transport. Provider is "smtp", "ses" or "log".
type EmailConfig struct {
	Provider       string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	From           string
	NotifyTo       string
	BCC            string
	AWSRegion      string
	SMSAlertNumber string
}

type NATSConfig struct {
	URL   string
	Token string
}

type WebhookConfig struct {
	RateLimit float64 // requests per second per client IP
	RateBurst int
}

type LoggingConfig struct {
	Level  string
	Format string
}

const (
	ServerTypeWebsocket = "websocket"
	ServerTypeTwilio    = "twilio"
	ServerTypeBoth      = "both"
)

func newViper() *viper.Viper {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("TWILIO_PORT", 8081)
	v.SetDefault("SERVER_TYPE", ServerTypeTwilio)
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("MAX_SESSIONS", 100)
	v.SetDefault("SESSION_TIMEOUT", 30) // minutes
	v.SetDefault("CALL_RETENTION", 24)  // hours
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("KEEPALIVE_PERIOD", 30)         // seconds
	v.SetDefault("MAX_BUFFER_SIZE", 5*1024*1024) // 5MB
	v.SetDefault("CLIENTS_DIR", "clients")
	v.SetDefault("CLIENT_ID", "default")
	v.SetDefault("GEMINI_MODEL", "models/gemini-2.5-flash-native-audio-preview-12-2025")
	v.SetDefault("GEMINI_SUMMARY_MODEL", "gemini-2.5-flash")
	v.SetDefault("EMAIL_PROVIDER", "log")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("WEBHOOK_RATE_LIMIT", 10.0)
	v.SetDefault("WEBHOOK_RATE_BURST", 20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	return v
}

// LoadProfileSettings reads only what is needed to locate tenant profiles.
// Offline commands use it so they run without API credentials.
func LoadProfileSettings() ProfileSettings {
	v := newViper()
	return ProfileSettings{
		Dir:             v.GetString("CLIENTS_DIR"),
		DefaultClientID: v.GetString("CLIENT_ID"),
	}
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	v := newViper()

	config := &Config{
		Port:            v.GetInt("PORT"),
		TwilioPort:      v.GetInt("TWILIO_PORT"),
		ServerType:      v.GetString("SERVER_TYPE"),
		PublicHost:      v.GetString("PUBLIC_HOST"),
		RedisURL:        v.GetString("REDIS_URL"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		MaxSessions:     v.GetInt("MAX_SESSIONS"),
		SessionTimeout:  time.Duration(v.GetInt("SESSION_TIMEOUT")) * time.Minute,
		CallRetention:   time.Duration(v.GetInt("CALL_RETENTION")) * time.Hour,
		AllowedOrigins:  splitList(v.GetString("ALLOWED_ORIGINS")),
		KeepAlivePeriod: time.Duration(v.GetInt("KEEPALIVE_PERIOD")) * time.Second,
		MaxBufferSize:   v.GetInt("MAX_BUFFER_SIZE"),
		Profiles: ProfileSettings{
			Dir:             v.GetString("CLIENTS_DIR"),
			DefaultClientID: v.GetString("CLIENT_ID"),
		},
		Gemini: GeminiConfig{
			APIKey:       v.GetString("GEMINI_API_KEY"),
			Model:        v.GetString("GEMINI_MODEL"),
			SummaryModel: v.GetString("GEMINI_SUMMARY_MODEL"),
		},
		Twilio: TwilioConfig{
			AccountSID:  v.GetString("TWILIO_ACCOUNT_SID"),
			AuthToken:   v.GetString("TWILIO_AUTH_TOKEN"),
			RecordCalls: v.GetBool("RECORD_CALLS"),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
			SMTPHost:       v.GetString("SMTP_HOST"),
			SMTPPort:       v.GetInt("SMTP_PORT"),
			SMTPUser:       v.GetString("SMTP_USER"),
			SMTPPass:       v.GetString("SMTP_PASS"),
			From:           v.GetString("EMAIL_FROM"),
			NotifyTo:       v.GetString("NOTIFY_EMAIL"),
			BCC:            v.GetString("BCC_EMAIL"),
			AWSRegion:      v.GetString("AWS_REGION"),
			SMSAlertNumber: v.GetString("SMS_ALERT_NUMBER"),
		},
		NATS: NATSConfig{
			URL:   v.GetString("NATS_URL"),
			Token: v.GetString("NATS_TOKEN"),
		},
		Webhook: WebhookConfig{
			RateLimit: v.GetFloat64("WEBHOOK_RATE_LIMIT"),
			RateBurst: v.GetInt("WEBHOOK_RATE_BURST"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	// Required: GEMINI_API_KEY
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.TwilioPort <= 0 || c.TwilioPort > 65535 {
		return fmt.Errorf("invalid TWILIO_PORT: %d", c.TwilioPort)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("invalid MAX_SESSIONS: %d", c.MaxSessions)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("invalid SESSION_TIMEOUT: %s", c.SessionTimeout)
	}
	if c.CallRetention <= 0 {
		return fmt.Errorf("invalid CALL_RETENTION: %s", c.CallRetention)
	}
	if c.MaxBufferSize <= 0 {
		return fmt.Errorf("invalid MAX_BUFFER_SIZE: %d", c.MaxBufferSize)
	}

	switch c.ServerType {
	case ServerTypeWebsocket, ServerTypeTwilio, ServerTypeBoth:
	default:
		return fmt.Errorf("invalid SERVER_TYPE: must be 'websocket', 'twilio', or 'both'")
	}

	switch c.Email.Provider {
	case "smtp":
		if c.Email.SMTPUser == "" || c.Email.SMTPPass == "" {
			return fmt.Errorf("SMTP_USER and SMTP_PASS are required when EMAIL_PROVIDER is smtp")
		}
	case "ses", "log":
	default:
		return fmt.Errorf("invalid EMAIL_PROVIDER: must be 'smtp', 'ses', or 'log'")
	}

	if c.Twilio.RecordCalls && (c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "") {
		return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required when RECORD_CALLS is set")
	}
	if c.Webhook.RateLimit <= 0 || c.Webhook.RateBurst <= 0 {
		return fmt.Errorf("invalid WEBHOOK_RATE_LIMIT/WEBHOOK_RATE_BURST")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
