package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultAPIListen is the default listen address of the API server.
	DefaultAPIListen = ":8080"

	// DefaultPresignExpiry is the lifetime of presigned archive URLs.
	DefaultPresignExpiry = "15m"
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server   APIServerConfig   `yaml:"server" mapstructure:"server"`
	Auth     APIAuthConfig     `yaml:"auth,omitempty" mapstructure:"auth"`
	Archives APIArchivesConfig `yaml:"archives,omitempty" mapstructure:"archives"`
}

// APIArchivesConfig controls serving of archived report folders.
type APIArchivesConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// PresignExpiry is used when archives live in S3.
	PresignExpiry string `yaml:"presign_expiry,omitempty" mapstructure:"presign_expiry"`
}

// PresignExpiryDuration parses PresignExpiry, falling back to the default.
func (a *APIArchivesConfig) PresignExpiryDuration() (time.Duration, error) {
	v := a.PresignExpiry
	if v == "" {
		v = DefaultPresignExpiry
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing archives.presign_expiry: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("archives.presign_expiry must be positive")
	}

	return d, nil
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	Basic BasicAuthConfig `yaml:"basic,omitempty" mapstructure:"basic"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user. PasswordHash is a bcrypt hash.
type BasicAuthUser struct {
	Username     string `yaml:"username" mapstructure:"username"`
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`
}

// Validate checks the API configuration for errors.
func (a *APIConfig) Validate() error {
	if a.Server.RateLimit.Enabled && a.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}

	if a.Archives.Enabled {
		if _, err := a.Archives.PresignExpiryDuration(); err != nil {
			return err
		}
	}

	if a.Auth.Basic.Enabled {
		if len(a.Auth.Basic.Users) == 0 {
			return fmt.Errorf("basic auth enabled without users")
		}

		for i, u := range a.Auth.Basic.Users {
			if u.Username == "" {
				return fmt.Errorf("basic auth user %d: username is required", i)
			}

			if !strings.HasPrefix(u.PasswordHash, "$2") {
				return fmt.Errorf("basic auth user %q: password_hash must be a bcrypt hash", u.Username)
			}
		}
	}

	return nil
}
