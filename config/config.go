package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that decodes from TOML strings like "45m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ServerConfig struct {
	Port          int    `toml:"port"`
	StaticDir     string `toml:"static_dir"`
	AdminPassword string `toml:"admin_password"`
}

type AuthConfig struct {
	JWTSecret     string   `toml:"jwt_secret"`
	UserTokenTTL  Duration `toml:"user_token_ttl"`
	AdminTokenTTL Duration `toml:"admin_token_ttl"`
}

// OAuthConfig describes the identity provider used to refresh access tokens
type OAuthConfig struct {
	TokenURL string   `toml:"token_url"`
	Scope    string   `toml:"scope"`
	Timeout  Duration `toml:"timeout"`
}

type IMAPConfig struct {
	Server         string   `toml:"server"`
	Port           int      `toml:"port"`
	DialTimeout    Duration `toml:"dial_timeout"`
	CommandTimeout Duration `toml:"command_timeout"`
}

// CacheConfig holds the freshness window of every cached read
type CacheConfig struct {
	TokenTTL   Duration `toml:"token_ttl"`
	FoldersTTL Duration `toml:"folders_ttl"`
	ListTTL    Duration `toml:"list_ttl"`
	EmailTTL   Duration `toml:"email_ttl"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RateLimitConfig struct {
	LoginRequests int      `toml:"login_requests"`
	LoginWindow   Duration `toml:"login_window"`
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	OAuth     OAuthConfig     `toml:"oauth"`
	IMAP      IMAPConfig      `toml:"imap"`
	Cache     CacheConfig     `toml:"cache"`
	Storage   StorageConfig   `toml:"storage"`
	Log       LogConfig       `toml:"log"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      3000,
			StaticDir: "./public",
		},
		Auth: AuthConfig{
			UserTokenTTL:  Duration{7 * 24 * time.Hour},
			AdminTokenTTL: Duration{24 * time.Hour},
		},
		OAuth: OAuthConfig{
			TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			Scope:    "https://outlook.office.com/IMAP.AccessAsUser.All offline_access",
			Timeout:  Duration{15 * time.Second},
		},
		IMAP: IMAPConfig{
			Server:         "outlook.office365.com",
			Port:           993,
			DialTimeout:    Duration{15 * time.Second},
			CommandTimeout: Duration{30 * time.Second},
		},
		Cache: CacheConfig{
			TokenTTL:   Duration{45 * time.Minute},
			FoldersTTL: Duration{5 * time.Minute},
			ListTTL:    Duration{2 * time.Minute},
			EmailTTL:   Duration{10 * time.Minute},
		},
		Storage: StorageConfig{
			Path: "./data/fluxmail.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			LoginRequests: 10,
			LoginWindow:   Duration{time.Minute},
		},
	}
}

// LoadConfig reads the TOML file at filepath over the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(filepath string) (*Config, error) {
	config := Default()

	if filepath != "" {
		if _, err := toml.DecodeFile(filepath, config); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to decode %s: %w", filepath, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// Without a configured secret, sessions do not survive a restart
	if config.Auth.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		config.Auth.JWTSecret = secret
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT has invalid value %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv("JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := os.LookupEnv("ADMIN_PASSWORD"); ok {
		c.Server.AdminPassword = v
	}
	if v, ok := os.LookupEnv("DB_PATH"); ok {
		c.Storage.Path = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate checks values that would otherwise fail late at request time
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.IMAP.Server == "" {
		return errors.New("imap server is required")
	}
	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		return fmt.Errorf("imap port %d out of range", c.IMAP.Port)
	}
	if c.OAuth.TokenURL == "" {
		return errors.New("oauth token_url is required")
	}
	if c.Storage.Path == "" {
		return errors.New("storage path is required")
	}

	durations := map[string]Duration{
		"oauth.timeout":           c.OAuth.Timeout,
		"imap.dial_timeout":       c.IMAP.DialTimeout,
		"imap.command_timeout":    c.IMAP.CommandTimeout,
		"cache.token_ttl":         c.Cache.TokenTTL,
		"cache.folders_ttl":       c.Cache.FoldersTTL,
		"cache.list_ttl":          c.Cache.ListTTL,
		"cache.email_ttl":         c.Cache.EmailTTL,
		"auth.user_token_ttl":     c.Auth.UserTokenTTL,
		"auth.admin_token_ttl":    c.Auth.AdminTokenTTL,
		"rate_limit.login_window": c.RateLimit.LoginWindow,
	}
	for name, d := range durations {
		if d.Duration <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.RateLimit.LoginRequests <= 0 {
		return errors.New("rate_limit.login_requests must be positive")
	}

	return nil
}

// IMAPAddress returns host:port of the mail server
func (c *IMAPConfig) IMAPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

func randomSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "fluxmail_secret_" + hex.EncodeToString(b), nil
}
