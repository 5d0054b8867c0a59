package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/spf13/viper"
)

// Config holds all configuration for medikit
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Lookup   LookupConfig   `mapstructure:"lookup"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
	// EncryptionKey enables AES-GCM encryption of the medication blob when
	// non-empty. Key material is hashed to 256 bits before use.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// AlertsConfig holds reminder engine settings
type AlertsConfig struct {
	// Timezone for alert firing, IANA name. Empty = system local.
	Timezone string `mapstructure:"timezone"`
}

// LookupConfig holds CIMA drug lookup settings
type LookupConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	RateBurst      int     `mapstructure:"rate_burst"`
	CacheTTLHours  int     `mapstructure:"cache_ttl_hours"`
}

// ChannelsConfig holds reminder delivery integrations
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram delivery settings
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
}

// SecurityConfig holds local API auth settings
type SecurityConfig struct {
	PIN          string   `mapstructure:"pin"`
	JWTSecret    string   `mapstructure:"jwt_secret"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "medikit.db"))
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medikit.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (MEDIKIT_SERVER_PORT, MEDIKIT_SECURITY_PIN, etc.)
	v.SetEnvPrefix("MEDIKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8315)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("alerts.timezone", "")

	v.SetDefault("lookup.base_url", "https://cima.aemps.es/cima/rest")
	v.SetDefault("lookup.timeout_seconds", 10)
	v.SetDefault("lookup.rate_per_second", 2.0)
	v.SetDefault("lookup.rate_burst", 4)
	v.SetDefault("lookup.cache_ttl_hours", 24)

	v.SetDefault("security.allow_origins", []string{"*"})
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medikit")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medikit")
}

// loadEnvOverrides loads specific env vars that Viper doesn't pick up
// reliably through nested structures
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.Server.Address = getEnv("MEDIKIT_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("MEDIKIT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.Storage.DataDir = getEnv("MEDIKIT_STORAGE_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.EncryptionKey = getEnv("MEDIKIT_STORAGE_ENCRYPTION_KEY", cfg.Storage.EncryptionKey)

	cfg.Channels.Telegram.BotToken = getEnv("MEDIKIT_CHANNELS_TELEGRAM_BOT_TOKEN", cfg.Channels.Telegram.BotToken)
	if cfg.Channels.Telegram.BotToken != "" && os.Getenv("MEDIKIT_CHANNELS_TELEGRAM_BOT_TOKEN") != "" {
		cfg.Channels.Telegram.Enabled = true
	}

	cfg.Security.PIN = getEnv("MEDIKIT_SECURITY_PIN", cfg.Security.PIN)
	cfg.Security.JWTSecret = getEnv("MEDIKIT_SECURITY_JWT_SECRET", cfg.Security.JWTSecret)
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", apperrors.ErrConfigInvalid, cfg.Server.Port)
	}

	if cfg.Lookup.BaseURL == "" {
		return fmt.Errorf("%w: lookup.base_url is required", apperrors.ErrConfigInvalid)
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.BotToken == "" {
		return fmt.Errorf("%w: channels.telegram.bot_token is required when telegram is enabled", apperrors.ErrConfigInvalid)
	}

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

// generateRandomString returns n hex characters from crypto/rand. Used
// for the JWT secret when none is configured, which means issued tokens
// stop verifying after a restart.
func generateRandomString(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)[:n]
}
