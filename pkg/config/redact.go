package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c

	if c.Upload.S3 != nil {
		s3 := *c.Upload.S3
		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = redacted
		}

		out.Upload.S3 = &s3
	}

	if c.History != nil {
		h := *c.History
		if h.Database.Postgres.Password != "" {
			h.Database.Postgres.Password = redacted
		}

		out.History = &h
	}

	if c.API != nil {
		a := *c.API
		users := make([]BasicAuthUser, len(a.Auth.Basic.Users))

		for i, u := range a.Auth.Basic.Users {
			users[i] = BasicAuthUser{Username: u.Username, PasswordHash: redacted}
		}

		a.Auth.Basic.Users = users
		out.API = &a
	}

	return &out
}

// YAML renders the redacted effective configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	return data, nil
}
