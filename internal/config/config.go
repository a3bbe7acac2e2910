package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AuthModeUserId = "user-id"
	AuthModeJWT    = "jwt"

	envPrefix = "CHAT_APP"
)

type Config struct {
	ServerAddr       string
	AllowedOrigins   []string
	ShutdownTimeout  time.Duration
	LogLevel         string
	LogFormat        string
	AuthMode         string
	SigningKey       []byte
	TokenTTL         time.Duration
	ReplyDelay       time.Duration
	ReplyText        string
	DedupeDeliveries bool
	KafkaBrokers     []string
	KafkaTopic       string
}

// Settings mirrors the config file layout.
type Settings struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Auth struct {
		Mode       string        `mapstructure:"mode"`
		SigningKey string        `mapstructure:"signing_key"`
		TokenTTL   time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Responder struct {
		Delay     time.Duration `mapstructure:"delay"`
		ReplyText string        `mapstructure:"reply_text"`
	} `mapstructure:"responder"`
	Websocket struct {
		DedupeDeliveries bool `mapstructure:"dedupe_deliveries"`
	} `mapstructure:"websocket"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":9293")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.mode", AuthModeUserId)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("responder.delay", 2500*time.Millisecond)
	v.SetDefault("responder.reply_text", "I'm sorry, I don't understand. Can you please rephrase that?")
	v.SetDefault("websocket.dedupe_deliveries", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "chat.messages")
}

// Load reads settings from defaults, an optional config file and the
// environment (CHAT_APP_SERVER_ADDR and friends, plus PORT).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("port", "PORT"); err != nil {
		return nil, fmt.Errorf("bind PORT: %w", err)
	}
	if port := v.GetString("port"); port != "" {
		v.Set("server.addr", ":"+port)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return NewConfig(s)
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(s Settings) (*Config, error) {
	if s.Server.Addr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if s.Responder.Delay <= 0 {
		return nil, fmt.Errorf("responder delay must be positive")
	}
	if s.Responder.ReplyText == "" {
		return nil, fmt.Errorf("responder reply text cannot be empty")
	}

	cfg := &Config{
		ServerAddr:       s.Server.Addr,
		AllowedOrigins:   s.Server.AllowedOrigins,
		ShutdownTimeout:  s.Server.ShutdownTimeout,
		LogLevel:         s.Log.Level,
		LogFormat:        s.Log.Format,
		AuthMode:         s.Auth.Mode,
		TokenTTL:         s.Auth.TokenTTL,
		ReplyDelay:       s.Responder.Delay,
		ReplyText:        s.Responder.ReplyText,
		DedupeDeliveries: s.Websocket.DedupeDeliveries,
		KafkaBrokers:     s.Kafka.Brokers,
		KafkaTopic:       s.Kafka.Topic,
	}

	switch s.Auth.Mode {
	case AuthModeUserId:
	case AuthModeJWT:
		// Decode the base64 encoded signing secret
		key, err := decodeSigningSecret(s.Auth.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
		if s.Auth.TokenTTL <= 0 {
			return nil, fmt.Errorf("token ttl must be positive")
		}
		cfg.SigningKey = key
	default:
		return nil, fmt.Errorf("unknown auth mode %q", s.Auth.Mode)
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("kafka topic cannot be empty when brokers are set")
	}

	return cfg, nil
}
