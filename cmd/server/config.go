package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/researchllm/identity/notifier"
)

// AppConfig is the full server configuration, loaded from a TOML file with
// environment-friendly defaults.
type AppConfig struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
	SMTP     SMTPConfig     `toml:"smtp"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Address string `toml:"address"`
	BaseURL string `toml:"base_url"`
}

type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Debug bool   `toml:"debug"`
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
	TLS      bool   `toml:"tls"`
}

// AuthConfig implements identity.Config
type AuthConfig struct {
	SigningKey      string   `toml:"signing_key"`
	SigningMethod   string   `toml:"signing_method"`
	ContextKey      string   `toml:"context_key"`
	TokenExpiration int      `toml:"token_expiration"`
	TokenLookup     string   `toml:"token_lookup"`
	AuthScheme      string   `toml:"auth_scheme"`
	Issuer          string   `toml:"issuer"`
	Audience        []string `toml:"audience"`
}

func (c AuthConfig) GetSigningKey() string    { return c.SigningKey }
func (c AuthConfig) GetSigningMethod() string { return c.SigningMethod }
func (c AuthConfig) GetContextKey() string    { return c.ContextKey }

// GetTokenExpiration is in minutes
func (c AuthConfig) GetTokenExpiration() int { return c.TokenExpiration }

func (c AuthConfig) GetTokenLookup() string { return c.TokenLookup }
func (c AuthConfig) GetAuthScheme() string  { return c.AuthScheme }
func (c AuthConfig) GetIssuer() string      { return c.Issuer }
func (c AuthConfig) GetAudience() []string  { return c.Audience }

// LoadConfig reads the TOML file at path, if present, and fills in defaults.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if key := os.Getenv("IDENTITY_SIGNING_KEY"); key != "" {
		cfg.Auth.SigningKey = key
	}

	applyDefaults(cfg)

	if cfg.Auth.SigningKey == "" {
		return nil, fmt.Errorf("auth.signing_key is required (or set IDENTITY_SIGNING_KEY)")
	}

	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:identity.db?cache=shared&mode=rwc"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Auth.SigningMethod == "" {
		cfg.Auth.SigningMethod = "HS256"
	}
	if cfg.Auth.ContextKey == "" {
		cfg.Auth.ContextKey = "user"
	}
	if cfg.Auth.TokenExpiration <= 0 {
		cfg.Auth.TokenExpiration = 30 // minutes
	}
	if cfg.Auth.TokenLookup == "" {
		cfg.Auth.TokenLookup = "header:Authorization"
	}
	if cfg.Auth.AuthScheme == "" {
		cfg.Auth.AuthScheme = "Bearer"
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "researchllm-identity"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
}

// NotifierConfig maps the SMTP section to the notifier's config
func (c *AppConfig) NotifierConfig() notifier.Config {
	return notifier.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		FromName: c.SMTP.FromName,
		TLS:      c.SMTP.TLS,
		BaseURL:  c.Server.BaseURL,
	}
}
