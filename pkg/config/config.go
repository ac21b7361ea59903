package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultReportName is the default canonical report filename.
	DefaultReportName = "report.json"

	// DefaultOutputFolder is the default report folder.
	DefaultOutputFolder = "report"

	// DefaultTestMatch identifies the file segment of a test title path.
	DefaultTestMatch = `.*\.(spec|test|setup)\.(j|t|mj)s`

	// DefaultTimezone renders snapshot labels in the host's local time.
	DefaultTimezone = "Local"

	// DefaultStorageMethod reads reports from the local report folder.
	DefaultStorageMethod = "local"

	// envPrefix is the prefix for environment variable overrides.
	envPrefix = "REPORTOOR"
)

// DefaultRerunCommand is the command selected failures are appended to.
var DefaultRerunCommand = []string{"npx", "playwright", "test"}

// ErrConfigurationMissing is returned when a configuration file does not
// define the reporter section.
var ErrConfigurationMissing = errors.New("the reporter is not defined in the config")

// Config is the root configuration for reportoor.
type Config struct {
	Global   GlobalConfig    `yaml:"global" mapstructure:"global"`
	Reporter *ReporterConfig `yaml:"reporter,omitempty" mapstructure:"reporter"`
	Storage  StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Rerun    RerunConfig     `yaml:"rerun" mapstructure:"rerun"`
	Upload   UploadConfig    `yaml:"upload,omitempty" mapstructure:"upload"`
	History  *HistoryConfig  `yaml:"history,omitempty" mapstructure:"history"`
	API      *APIConfig      `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// ResultsOwner is an optional "UID:GID" applied to written files.
	ResultsOwner string `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
}

// ReporterConfig mirrors the options of the JSON reporter.
type ReporterConfig struct {
	Name         string   `yaml:"name" mapstructure:"name"`
	OutputFolder string   `yaml:"output_folder" mapstructure:"output_folder"`
	Projects     []string `yaml:"projects,omitempty" mapstructure:"projects"`
	TestMatch    string   `yaml:"test_match" mapstructure:"test_match"`
	Timezone     string   `yaml:"timezone" mapstructure:"timezone"`
}

// StorageConfig selects where reports are read from.
type StorageConfig struct {
	// Method is "local" (the reporter output folder) or "s3" (upload.s3).
	Method string `yaml:"method" mapstructure:"method"`
}

// RerunConfig configures the external re-execution step.
type RerunConfig struct {
	Command []string `yaml:"command" mapstructure:"command"`
	Timeout string   `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// UploadConfig contains remote publishing settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
	Concurrency     int    `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
}

// HistoryConfig configures the run-history database.
type HistoryConfig struct {
	Interval    string         `yaml:"interval,omitempty" mapstructure:"interval"`
	Concurrency int            `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	Database    DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// Load reads one or more YAML configuration files. Later files are merged
// over earlier ones and REPORTOOR_* environment variables override both.
// Without any path the defaults are returned.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return Default(), nil
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Reporter: &ReporterConfig{}}
	cfg.applyDefaults()

	return cfg
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Reporter != nil {
		if c.Reporter.Name == "" {
			c.Reporter.Name = DefaultReportName
		}

		if c.Reporter.OutputFolder == "" {
			c.Reporter.OutputFolder = DefaultOutputFolder
		}

		if c.Reporter.TestMatch == "" {
			c.Reporter.TestMatch = DefaultTestMatch
		}

		if c.Reporter.Timezone == "" {
			c.Reporter.Timezone = DefaultTimezone
		}
	}

	if c.Storage.Method == "" {
		c.Storage.Method = DefaultStorageMethod
	}

	if len(c.Rerun.Command) == 0 {
		c.Rerun.Command = append([]string(nil), DefaultRerunCommand...)
	}

	if c.History != nil && c.History.Database.Driver == "" {
		c.History.Database.Driver = "sqlite"
	}

	if c.API != nil && c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultAPIListen
	}
}

// ReporterOptions returns the reporter section or ErrConfigurationMissing.
func (c *Config) ReporterOptions() (*ReporterConfig, error) {
	if c.Reporter == nil {
		return nil, ErrConfigurationMissing
	}

	return c.Reporter, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Reporter != nil {
		if _, err := c.Reporter.CompileTestMatch(); err != nil {
			return err
		}

		if _, err := c.Reporter.Location(); err != nil {
			return err
		}
	}

	switch c.Storage.Method {
	case "local":
	case "s3":
		if !c.S3Enabled() {
			return fmt.Errorf("storage method s3 requires upload.s3 to be enabled")
		}
	default:
		return fmt.Errorf("unsupported storage method %q (use \"local\" or \"s3\")", c.Storage.Method)
	}

	if c.Rerun.Timeout != "" {
		if _, err := time.ParseDuration(c.Rerun.Timeout); err != nil {
			return fmt.Errorf("parsing rerun timeout: %w", err)
		}
	}

	if c.S3Enabled() && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when s3 is enabled")
	}

	if c.History != nil {
		if err := c.History.Database.Validate(); err != nil {
			return fmt.Errorf("history: %w", err)
		}

		if c.History.Interval != "" {
			if _, err := time.ParseDuration(c.History.Interval); err != nil {
				return fmt.Errorf("parsing history interval: %w", err)
			}
		}
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}

// S3Enabled reports whether S3 publishing is configured and enabled.
func (c *Config) S3Enabled() bool {
	return c.Upload.S3 != nil && c.Upload.S3.Enabled
}

// RerunTimeout returns the parsed rerun timeout, zero when unset.
func (c *Config) RerunTimeout() time.Duration {
	if c.Rerun.Timeout == "" {
		return 0
	}

	d, err := time.ParseDuration(c.Rerun.Timeout)
	if err != nil {
		return 0
	}

	return d
}

// CompileTestMatch compiles the test match pattern.
func (r *ReporterConfig) CompileTestMatch() (*regexp.Regexp, error) {
	re, err := regexp.Compile(r.TestMatch)
	if err != nil {
		return nil, fmt.Errorf("compiling test_match %q: %w", r.TestMatch, err)
	}

	return re, nil
}

// Location resolves the configured timezone.
func (r *ReporterConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", r.Timezone, err)
	}

	return loc, nil
}

// Validate checks the database settings.
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if d.Postgres.Host == "" || d.Postgres.Database == "" {
			return fmt.Errorf("database.postgres host and database are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", d.Driver)
	}

	return nil
}
