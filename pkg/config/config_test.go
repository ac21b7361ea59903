package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Reporter)
	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultReportName, cfg.Reporter.Name)
	assert.Equal(t, DefaultOutputFolder, cfg.Reporter.OutputFolder)
	assert.Equal(t, DefaultTestMatch, cfg.Reporter.TestMatch)
	assert.Equal(t, DefaultStorageMethod, cfg.Storage.Method)
	assert.Equal(t, DefaultRerunCommand, cfg.Rerun.Command)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ReporterSection(t *testing.T) {
	path := writeConfig(t, `
global:
  log_level: debug
reporter:
  name: results.json
  output_folder: out/report
  projects:
    - chromium
    - firefox
  test_match: '.*\.spec\.ts'
  timezone: UTC
rerun:
  command: ["go", "test"]
  timeout: 10m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	opts, err := cfg.ReporterOptions()
	require.NoError(t, err)
	assert.Equal(t, "results.json", opts.Name)
	assert.Equal(t, "out/report", opts.OutputFolder)
	assert.Equal(t, []string{"chromium", "firefox"}, opts.Projects)
	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, []string{"go", "test"}, cfg.Rerun.Command)
	assert.Equal(t, 10*time.Minute, cfg.RerunTimeout())

	re, err := opts.CompileTestMatch()
	require.NoError(t, err)
	assert.True(t, re.MatchString("login.spec.ts"))

	loc, err := opts.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_ReporterMissing(t *testing.T) {
	path := writeConfig(t, `
global:
  log_level: info
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.ReporterOptions()
	require.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestLoad_MergesFiles(t *testing.T) {
	base := writeConfig(t, `
reporter:
  name: base.json
  output_folder: base
`)
	override := writeConfig(t, `
reporter:
  output_folder: override
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)
	assert.Equal(t, "base.json", cfg.Reporter.Name)
	assert.Equal(t, "override", cfg.Reporter.OutputFolder)
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	path := writeConfig(t, `
global:
  log_level: info
reporter:
  name: report.json
  output_folder: ./original
storage:
  method: local
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "./original", cfg.Reporter.OutputFolder)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"REPORTOOR_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "nested override - reporter.output_folder",
			envVars: map[string]string{
				"REPORTOOR_REPORTER_OUTPUT_FOLDER": "/tmp/custom",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/custom", cfg.Reporter.OutputFolder)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(path)
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "bad test match",
			mutate:  func(c *Config) { c.Reporter.TestMatch = "(" },
			wantErr: "compiling test_match",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Reporter.Timezone = "Mars/Olympus" },
			wantErr: "loading timezone",
		},
		{
			name:    "unknown storage method",
			mutate:  func(c *Config) { c.Storage.Method = "ftp" },
			wantErr: "unsupported storage method",
		},
		{
			name:    "s3 storage without upload config",
			mutate:  func(c *Config) { c.Storage.Method = "s3" },
			wantErr: "requires upload.s3",
		},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.Upload.S3 = &S3UploadConfig{Enabled: true}
			},
			wantErr: "bucket is required",
		},
		{
			name:    "bad rerun timeout",
			mutate:  func(c *Config) { c.Rerun.Timeout = "soon" },
			wantErr: "rerun timeout",
		},
		{
			name: "history without sqlite path",
			mutate: func(c *Config) {
				c.History = &HistoryConfig{Database: DatabaseConfig{Driver: "sqlite"}}
			},
			wantErr: "sqlite.path is required",
		},
		{
			name: "history with unknown driver",
			mutate: func(c *Config) {
				c.History = &HistoryConfig{Database: DatabaseConfig{Driver: "mysql"}}
			},
			wantErr: "unsupported database driver",
		},
		{
			name: "api basic auth with plain password",
			mutate: func(c *Config) {
				c.API = &APIConfig{Auth: APIAuthConfig{Basic: BasicAuthConfig{
					Enabled: true,
					Users:   []BasicAuthUser{{Username: "ci", PasswordHash: "hunter2"}},
				}}}
			},
			wantErr: "bcrypt hash",
		},
		{
			name: "api rate limit without limit",
			mutate: func(c *Config) {
				c.API = &APIConfig{Server: APIServerConfig{RateLimit: RateLimitConfig{Enabled: true}}}
			},
			wantErr: "requests_per_minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
