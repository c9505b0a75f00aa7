package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string   `mapstructure:"REDIS_URL"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	DefaultSpecialty  string   `mapstructure:"DEFAULT_SPECIALTY"`
	AvgConsultMinutes int      `mapstructure:"AVG_CONSULT_MINUTES"`
	TxRetryAttempts   int      `mapstructure:"TX_RETRY_ATTEMPTS"`
	LockTTLSeconds    int      `mapstructure:"LOCK_TTL_SECONDS"`
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
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEFAULT_SPECIALTY", "General Medicine")
	v.SetDefault("AVG_CONSULT_MINUTES", 15)
	v.SetDefault("TX_RETRY_ATTEMPTS", 3)
	v.SetDefault("LOCK_TTL_SECONDS", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("DEFAULT_SPECIALTY")
	v.BindEnv("AVG_CONSULT_MINUTES")
	v.BindEnv("TX_RETRY_ATTEMPTS")
	v.BindEnv("LOCK_TTL_SECONDS")

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
	if cfg.AvgConsultMinutes <= 0 {
		return nil, fmt.Errorf("AVG_CONSULT_MINUTES must be positive")
	}
	if cfg.TxRetryAttempts < 1 {
		return nil, fmt.Errorf("TX_RETRY_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
