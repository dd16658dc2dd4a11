package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	OrthancURL     string        `mapstructure:"ORTHANC_URL"`
	OrthancTimeout time.Duration `mapstructure:"ORTHANC_TIMEOUT"`

	AiServiceURL     string        `mapstructure:"AI_SERVICE_URL"`
	AiServiceTimeout time.Duration `mapstructure:"AI_SERVICE_TIMEOUT"`

	EventQueueSize int   `mapstructure:"EVENT_QUEUE_SIZE"`
	MaxUploadBytes int64 `mapstructure:"MAX_UPLOAD_BYTES"`

	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("ORTHANC_URL", "http://localhost:8042")
	v.SetDefault("ORTHANC_TIMEOUT", "30s")
	v.SetDefault("AI_SERVICE_URL", "http://localhost:8001")
	v.SetDefault("AI_SERVICE_TIMEOUT", "120s")
	v.SetDefault("EVENT_QUEUE_SIZE", 256)
	v.SetDefault("MAX_UPLOAD_BYTES", 512<<20)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("ORTHANC_URL")
	v.BindEnv("ORTHANC_TIMEOUT")
	v.BindEnv("AI_SERVICE_URL")
	v.BindEnv("AI_SERVICE_TIMEOUT")
	v.BindEnv("EVENT_QUEUE_SIZE")
	v.BindEnv("MAX_UPLOAD_BYTES")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if !cfg.IsDev() && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required outside development")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}
