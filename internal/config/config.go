// Package config loads service settings from the environment, an optional
// .env file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port            string
	RedisAddr       string
	PostgresDSN     string
	CachePath       string
	UserID          string
	Timezone        string
	WorkStart       int
	WorkEnd         int
	LoadTimeout     time.Duration
	SaveTimeout     time.Duration
	PersistInterval time.Duration
	SyncInterval    time.Duration
	StaleAfter      time.Duration
	LogLevel        string
	Email           EmailConfig
}

type EmailConfig struct {
	APIKey      string
	FromName    string
	FromAddress string
	To          string
}

func (e EmailConfig) Enabled() bool {
	return e.APIKey != "" && e.FromAddress != "" && e.To != ""
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pomodoro", "cache.db")
	}
	return filepath.Join(home, ".pomodoro", "cache.db")
}

// Load reads the env file named by POMODORO_ENV_FILE (default .env) when it
// exists, then resolves every key from the environment with defaults.
func Load() (*Config, error) {
	envFile := os.Getenv("POMODORO_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("POMODORO_CACHE_PATH", defaultCachePath())
	v.SetDefault("POMODORO_USER_ID", "")
	v.SetDefault("POMODORO_TZ", "Local")
	v.SetDefault("POMODORO_WORK_START", 8)
	v.SetDefault("POMODORO_WORK_END", 20)
	v.SetDefault("POMODORO_LOAD_TIMEOUT", 5*time.Second)
	v.SetDefault("POMODORO_SAVE_TIMEOUT", 10*time.Second)
	v.SetDefault("POMODORO_PERSIST_INTERVAL", 10*time.Second)
	v.SetDefault("POMODORO_SYNC_INTERVAL", 30*time.Second)
	v.SetDefault("POMODORO_STALE_AFTER", 30*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("FROM_NAME", "Pomodoro")
	v.SetDefault("FROM_ADDRESS", "")
	v.SetDefault("NOTIFY_EMAIL", "")

	cfg := &Config{
		Port:            v.GetString("PORT"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		PostgresDSN:     v.GetString("POSTGRES_DSN"),
		CachePath:       v.GetString("POMODORO_CACHE_PATH"),
		UserID:          v.GetString("POMODORO_USER_ID"),
		Timezone:        v.GetString("POMODORO_TZ"),
		WorkStart:       v.GetInt("POMODORO_WORK_START"),
		WorkEnd:         v.GetInt("POMODORO_WORK_END"),
		LoadTimeout:     v.GetDuration("POMODORO_LOAD_TIMEOUT"),
		SaveTimeout:     v.GetDuration("POMODORO_SAVE_TIMEOUT"),
		PersistInterval: v.GetDuration("POMODORO_PERSIST_INTERVAL"),
		SyncInterval:    v.GetDuration("POMODORO_SYNC_INTERVAL"),
		StaleAfter:      v.GetDuration("POMODORO_STALE_AFTER"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		Email: EmailConfig{
			APIKey:      v.GetString("EMAIL_API_KEY"),
			FromName:    v.GetString("FROM_NAME"),
			FromAddress: v.GetString("FROM_ADDRESS"),
			To:          v.GetString("NOTIFY_EMAIL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.WorkStart < 0 || c.WorkEnd > 24 || c.WorkStart >= c.WorkEnd {
		return fmt.Errorf("%w: working hours %d-%d", ErrInvalidConfig, c.WorkStart, c.WorkEnd)
	}
	for name, d := range map[string]time.Duration{
		"load timeout":     c.LoadTimeout,
		"save timeout":     c.SaveTimeout,
		"persist interval": c.PersistInterval,
		"sync interval":    c.SyncInterval,
		"stale after":      c.StaleAfter,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Location resolves Timezone. "Local" and the empty string mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
