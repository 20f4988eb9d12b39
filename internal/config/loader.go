package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies defaults
// and validates the result. Every missing or malformed variable is
// reported, not only the first.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct fills tagged fields of v, descending into nested sections.
func loadStruct(v reflect.Value) error {
	var errs []error
	t := v.Type()

	for i := range t.NumField() {
		field, fieldVal := t.Field(i), v.Field(i)
		if !fieldVal.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		value, ok := lookupEnv(name, field.Tag.Get("envAlt"))
		if !ok {
			if field.Tag.Get("required") == "true" {
				errs = append(errs, fmt.Errorf("required environment variable %s is not set", name))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}
		if err := setField(fieldVal, value); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", name, value, err))
		}
	}

	return errors.Join(errs...)
}

// lookupEnv returns the first non-empty value of name or alt.
func lookupEnv(name, alt string) (string, bool) {
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	if alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v, true
		}
	}
	return "", false
}

// setField parses value into field. Config only holds strings, integers,
// durations and floats.
func setField(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(value)
	case field.CanInt():
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case field.CanFloat():
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// Validate reports every invalid setting, one error per problem.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// CKAN validation
	if c.CKAN.SiteURL == "" {
		fail("CKAN_SITE_URL is required")
	} else if u, err := url.Parse(c.CKAN.SiteURL); err != nil || u.Scheme == "" || u.Host == "" {
		fail("CKAN_SITE_URL (%q) must be an absolute URL", c.CKAN.SiteURL)
	}
	if c.CKAN.APIKey == "" {
		fail("CKAN_API_KEY is required")
	}

	// Ingest validation
	if c.Ingest.ChunkSize <= 0 {
		fail("INGEST_CHUNK_SIZE must be positive")
	}
	if c.Ingest.SampleSize <= 0 {
		fail("INGEST_SAMPLE_SIZE must be positive")
	}
	if c.Ingest.MaxContentLength <= 0 {
		fail("INGEST_MAX_CONTENT_LENGTH must be positive")
	}
	if c.Ingest.Parallelism <= 0 {
		fail("INGEST_PARALLELISM must be positive")
	}
	if c.Ingest.MaxConcurrent <= 0 {
		fail("INGEST_MAX_CONCURRENT must be positive")
	}
	if c.Ingest.MaxWaitTime <= 0 {
		fail("INGEST_MAX_WAIT_TIME must be positive")
	}

	// HTTP client validation
	if c.HTTP.Timeout <= 0 {
		fail("HTTP_TIMEOUT must be positive")
	}

	// Retry validation
	if c.Retry.MaxAttempts <= 0 {
		fail("RETRY_MAX_ATTEMPTS must be positive")
	}
	if c.Retry.InitialDelay < 0 {
		fail("RETRY_INITIAL_DELAY must be non-negative")
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		fail("RETRY_MAX_DELAY (%s) must be >= RETRY_INITIAL_DELAY (%s)",
			c.Retry.MaxDelay, c.Retry.InitialDelay)
	}
	if c.Retry.Multiplier < 1 {
		fail("RETRY_MULTIPLIER must be >= 1")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fail("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		fail("SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		fail("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Database validation (only when history is persisted)
	if c.Database.URL != "" {
		if c.Database.MaxConns < c.Database.MinConns {
			fail("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns)
		}
		if c.Database.MaxConns <= 0 {
			fail("DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			fail("DB_MIN_CONNS must be non-negative")
		}
	}

	if c.History.Size <= 0 {
		fail("HISTORY_SIZE must be positive")
	}
	if c.History.Retention < 0 {
		fail("HISTORY_RETENTION must be non-negative")
	}
	if c.History.Retention > 0 && c.History.PruneInterval <= 0 {
		fail("HISTORY_PRUNE_INTERVAL must be positive when HISTORY_RETENTION is set")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		fail("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		fail("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	return errors.Join(errs...)
}

// String returns a safe string representation of the config for logging.
// The API key and database URL are masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Config{CKAN: {SiteURL: %q, APIKey: [MASKED]}, ", c.CKAN.SiteURL)
	fmt.Fprintf(&b, "Ingest: {ChunkSize: %d, SampleSize: %d, MaxContentLength: %d, Parallelism: %d}, ",
		c.Ingest.ChunkSize, c.Ingest.SampleSize, c.Ingest.MaxContentLength, c.Ingest.Parallelism)
	fmt.Fprintf(&b, "Retry: {MaxAttempts: %d, InitialDelay: %s}, ", c.Retry.MaxAttempts, c.Retry.InitialDelay)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	if c.Database.URL != "" {
		b.WriteString("Database: {URL: [MASKED]}, ")
	}
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}}", c.Logging.Level, c.Logging.Format)
	return b.String()
}
