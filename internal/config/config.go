package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                    string        `mapstructure:"ENV"`
	Port                   string        `mapstructure:"PORT"`
	DatabaseURL            string        `mapstructure:"DATABASE_URL"`
	MigrateOnStart         bool          `mapstructure:"MIGRATE_ON_START"`
	AdminKey               string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed            string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout         time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel               string        `mapstructure:"LOG_LEVEL"`
	Timezone               string        `mapstructure:"TIMEZONE"`
	EscalationSweepEnabled bool          `mapstructure:"ESCALATION_SWEEP_ENABLED"`
	EscalationSweepSpec    string        `mapstructure:"ESCALATION_SWEEP_SPEC"`
	NotifyWebhookURL       string        `mapstructure:"NOTIFY_WEBHOOK_URL"`
	NotifyTimeout          time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	NotifyMaxAttempts      int           `mapstructure:"NOTIFY_MAX_ATTEMPTS"`
	NotifyQueueSize        int           `mapstructure:"NOTIFY_QUEUE_SIZE"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("ESCALATION_SWEEP_ENABLED", true)
	v.SetDefault("ESCALATION_SWEEP_SPEC", "@every 1m")
	v.SetDefault("NOTIFY_WEBHOOK_URL", "")
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 5)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
