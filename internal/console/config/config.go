// Package config resolves console settings from defaults, a .env file, the process
// environment and explicit overrides.
package config

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultAddr         = ":8080"
	defaultBasePath     = "/"
	defaultEnvironment  = "Development"
	defaultLocale       = "pt"
	defaultCookieName   = "console_session"
	defaultCSRFCookie   = "console_csrf"
	defaultCSRFHeader   = "X-CSRF-Token"
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultSessionIdle  = 30 * time.Minute
	defaultSessionLife  = 12 * time.Hour
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	API         APIConfig
	Session     SessionConfig
	CSRF        CSRFConfig
	Environment string
	Locale      string
}

// ServerConfig configures the HTTP listener and routing roots.
type ServerConfig struct {
	Addr         string
	BasePath     string
	LoginPath    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// APIConfig points at the CRM identity API.
type APIConfig struct {
	BaseURL string
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	CookieName   string
	HashKey      []byte
	BlockKey     []byte
	CookieSecure bool
	IdleTimeout  time.Duration
	Lifetime     time.Duration
	// GeneratedKey is true when no hash key was configured and one was generated.
	GeneratedKey bool
}

// CSRFConfig controls the double-submit cookie.
type CSRFConfig struct {
	CookieName string
	HeaderName string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map win over everything else.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load resolves the configuration.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:         stringWithDefault(lookup, "CONSOLE_HTTP_ADDR", defaultAddr),
			BasePath:     stringWithDefault(lookup, "CONSOLE_BASE_PATH", defaultBasePath),
			LoginPath:    stringWithDefault(lookup, "CONSOLE_LOGIN_PATH", ""),
			ReadTimeout:  durationWithDefault(lookup, "CONSOLE_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CONSOLE_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CONSOLE_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		API: APIConfig{
			BaseURL: strings.TrimSpace(stringWithDefault(lookup, "CONSOLE_API_BASE_URL", "")),
		},
		Session: SessionConfig{
			CookieName:   stringWithDefault(lookup, "CONSOLE_SESSION_COOKIE_NAME", defaultCookieName),
			CookieSecure: boolWithDefault(lookup, "CONSOLE_SESSION_COOKIE_SECURE", false),
			IdleTimeout:  durationWithDefault(lookup, "CONSOLE_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
			Lifetime:     durationWithDefault(lookup, "CONSOLE_SESSION_LIFETIME", defaultSessionLife),
		},
		CSRF: CSRFConfig{
			CookieName: stringWithDefault(lookup, "CONSOLE_CSRF_COOKIE_NAME", defaultCSRFCookie),
			HeaderName: stringWithDefault(lookup, "CONSOLE_CSRF_HEADER", defaultCSRFHeader),
		},
		Environment: stringWithDefault(lookup, "CONSOLE_ENVIRONMENT", defaultEnvironment),
		Locale:      strings.ToLower(stringWithDefault(lookup, "CONSOLE_DEFAULT_LOCALE", defaultLocale)),
	}

	var invalid []string
	hashKey, hashErr := keyWithDefault(lookup, "CONSOLE_SESSION_HASH_KEY")
	if hashErr != nil {
		invalid = append(invalid, "Session.HashKey")
	}
	blockKey, blockErr := keyWithDefault(lookup, "CONSOLE_SESSION_BLOCK_KEY")
	if blockErr != nil {
		invalid = append(invalid, "Session.BlockKey")
	}
	cfg.Session.HashKey = hashKey
	cfg.Session.BlockKey = blockKey
	if len(hashKey) == 0 && hashErr == nil {
		key, err := randomKey(32)
		if err != nil {
			return Config{}, fmt.Errorf("config: generate session key: %w", err)
		}
		cfg.Session.HashKey = key
		cfg.Session.GeneratedKey = true
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	fields := append([]string(nil), invalid...)
	if cfg.API.BaseURL == "" {
		fields = append(fields, "API.BaseURL")
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		fields = append(fields, "API.BaseURL")
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		fields = append(fields, "Server.Addr")
	}
	switch len(cfg.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		fields = append(fields, "Session.BlockKey")
	}
	if len(fields) > 0 {
		return &ValidationError{fields: dedupe(fields)}
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// keyWithDefault reads a key either as "base64:<std base64>" or raw text.
func keyWithDefault(lookup func(string) (string, bool), key string) ([]byte, error) {
	value, ok := lookup(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return nil, nil
	}
	if encoded, found := strings.CutPrefix(value, "base64:"); found {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", key, err)
		}
		return decoded, nil
	}
	return []byte(value), nil
}

func randomKey(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
