package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIMaxTokens  int
	AITemperature    float64
	DispatchWorkers  int
	EventChannelBase string
	StreamKeepAlive  time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// SMTPConfigured reports whether outbound mail can be sent.
func (c Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("BNF")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "BrainNotFound API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("ai.temperature", 0.3)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("event.channel_base", "bnf")
	v.SetDefault("stream.keepalive", "30s")
	v.SetDefault("smtp.port", 587)

	keepAliveString := v.GetString("stream.keepalive")
	keepAlive, err := time.ParseDuration(keepAliveString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid stream keepalive: %w", err)
	}

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		JWTSecret:   v.GetString("jwt.secret"),

		OpenAIAPIKey:     v.GetString("openai.api_key"),
		OpenAIBaseURL:    v.GetString("openai.base_url"),
		OpenAIModel:      v.GetString("openai.model"),
		OpenAIMaxTokens:  v.GetInt("openai.max_tokens"),
		AITemperature:    v.GetFloat64("ai.temperature"),
		DispatchWorkers:  v.GetInt("dispatch.workers"),
		EventChannelBase: v.GetString("event.channel_base"),
		StreamKeepAlive:  keepAlive,

		SMTPHost:     v.GetString("smtp.host"),
		SMTPPort:     v.GetInt("smtp.port"),
		SMTPUsername: v.GetString("smtp.username"),
		SMTPPassword: v.GetString("smtp.password"),
		SMTPFrom:     v.GetString("smtp.from"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("openai api key must be provided")
	}

	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = 4
	}

	return cfg, nil
}
