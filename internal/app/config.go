package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/florianilch/tokenrelay/internal/interceptor"
	"github.com/florianilch/tokenrelay/internal/observability"
	"github.com/florianilch/tokenrelay/internal/storage"
	"github.com/florianilch/tokenrelay/internal/tokens"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the backends tokens can be persisted to.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeEnv     StorageType = "env"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeRedis   StorageType = "redis"
	StorageTypeMemory  StorageType = "memory"
)

// StatusAction is a built-in reaction to a response status.
type StatusAction string

const (
	// StatusActionLog emits a warning for the response.
	StatusActionLog StatusAction = "log"
	// StatusActionClear forgets all known tokens, in memory and in storage.
	StatusActionClear StatusAction = "clear"
)

// Default configuration values
const (
	DefaultConfigLogFormat        = LogFormatText
	DefaultConfigServerHost       = "127.0.0.1"
	DefaultConfigServerPort       = 4000
	DefaultConfigShutdownTimeout  = 5 * time.Second
	DefaultConfigUpstreamTimeout  = 60 * time.Second
	DefaultConfigStorageType      = StorageTypeFile
	DefaultConfigEnvPrefix        = "TOKENRELAY_STORE_"
	DefaultConfigKeyringService   = "tokenrelay"
	DefaultConfigRedisAddr        = "localhost:6379"
	DefaultConfigRedisPrefix      = "tokenrelay:"
	DefaultConfigUpstreamBaseURL  = "http://localhost:8080"
	defaultConfigStorageDirectory = "tokenrelay"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown, including pending token writes.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds upstream API configuration.
type UpstreamConfig struct {
	BaseURL string        `json:"base_url" validate:"required,url"`
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
}

// RedisConfig holds connection settings for redis storage.
type RedisConfig struct {
	Addr     string `json:"addr" validate:"omitempty,hostname_port"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db" validate:"gte=0"`
	Prefix   string `json:"prefix"`
}

// StorageConfig describes where tokens are persisted.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=file env keyring redis memory"`
	// Key the serialized tokens are stored under.
	Key string `json:"key" validate:"required,excludesall=/\\"`

	// Backend-specific settings
	Dir            string      `json:"dir,omitempty"`
	EnvPrefix      string      `json:"env_prefix,omitempty"`
	KeyringService string      `json:"keyring_service,omitempty"`
	Redis          RedisConfig `json:"redis"`
}

// TokensConfig configures token injection and harvesting.
type TokensConfig struct {
	RefreshToken bool `json:"refresh_token"`
	CSRFToken    bool `json:"csrf_token"`

	AuthHeaderName   string `json:"auth_header_name" validate:"required,printascii,excludesall= :"`
	AuthHeaderPrefix string `json:"auth_header_prefix" validate:"printascii"`
	CSRFHeaderName   string `json:"csrf_header_name" validate:"required,printascii,excludesall= :"`

	// Paths adds lookup paths per kind, e.g. {"access_token": ["data.session.jwt"]}.
	Paths map[string][]string `json:"paths" validate:"dive,dive,required"`

	InitialAccessToken  string `json:"initial_access_token,omitempty"`
	InitialRefreshToken string `json:"initial_refresh_token,omitempty"`
	InitialCSRFToken    string `json:"initial_csrf_token,omitempty"`

	ExtractOnError bool  `json:"extract_on_error"`
	MaxBodyBytes   int64 `json:"max_body_bytes" validate:"gte=0"`
}

// PathVariants converts Paths into typed path variants.
func (t *TokensConfig) PathVariants() (tokens.PathVariants, error) {
	if len(t.Paths) == 0 {
		return nil, nil
	}

	variants := make(tokens.PathVariants, len(t.Paths))
	for name, paths := range t.Paths {
		kind, err := tokens.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("tokens.paths: %w", err)
		}
		variants[kind] = append(variants[kind], paths...)
	}
	return variants, nil
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level             `json:"log_level"`
	LogFormat   LogFormat              `json:"log_format" validate:"oneof=text json"`
	LogExporter observability.Exporter `json:"log_exporter" validate:"omitempty,oneof=stdout otlp-grpc otlp-http"`
	Server      ServerConfig           `json:"server"`
	Shutdown    ShutdownConfig         `json:"shutdown"`
	Upstream    UpstreamConfig         `json:"upstream"`
	Storage     StorageConfig          `json:"storage"`
	Tokens      TokensConfig           `json:"tokens"`

	// StatusActions maps response status codes to built-in actions.
	StatusActions map[string]StatusAction `json:"status_actions" validate:"dive,keys,numeric,endkeys,oneof=log clear"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultConfigUpstreamBaseURL
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultConfigUpstreamTimeout
	}
	if c.Tokens.AuthHeaderName == "" {
		c.Tokens.AuthHeaderName = interceptor.DefaultAuthHeaderName
	}
	if c.Tokens.AuthHeaderPrefix == "" {
		c.Tokens.AuthHeaderPrefix = interceptor.DefaultAuthHeaderPrefix
	}
	if c.Tokens.CSRFHeaderName == "" {
		c.Tokens.CSRFHeaderName = interceptor.DefaultCSRFTokenHeaderName
	}
	if c.Tokens.MaxBodyBytes == 0 {
		c.Tokens.MaxBodyBytes = tokens.DefaultMaxBodyBytes
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorageType
	}
	if c.Storage.Key == "" {
		c.Storage.Key = tokens.DefaultStorageKey
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.dir required (auto-detect failed: %w)", err)
			}
			c.Storage.Dir = filepath.Join(configDir, defaultConfigStorageDirectory)
		}
	case StorageTypeEnv:
		if c.Storage.EnvPrefix == "" {
			c.Storage.EnvPrefix = DefaultConfigEnvPrefix
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			c.Storage.KeyringService = DefaultConfigKeyringService
		}
	case StorageTypeRedis:
		if c.Storage.Redis.Addr == "" {
			c.Storage.Redis.Addr = DefaultConfigRedisAddr
		}
		if c.Storage.Redis.Prefix == "" {
			c.Storage.Redis.Prefix = DefaultConfigRedisPrefix
		}
	case StorageTypeMemory:
		// nothing to configure
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir required for file storage")
		}
	case StorageTypeEnv:
		if c.Storage.EnvPrefix == "" {
			return errors.New("storage.env_prefix required for env storage")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			return errors.New("storage.keyring_service required for keyring storage")
		}
	case StorageTypeRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr required for redis storage")
		}
	}

	if _, err := c.Tokens.PathVariants(); err != nil {
		return err
	}

	return nil
}

// NewStorage creates the configured storage backend. The returned close
// function releases backend connections.
func (s *StorageConfig) NewStorage() (storage.Storage, func() error, error) {
	noop := func() error { return nil }

	switch s.Type {
	case StorageTypeFile:
		store, err := storage.NewFileStore(s.Dir)
		return store, noop, err
	case StorageTypeEnv:
		store, err := storage.NewEnvStore(s.EnvPrefix)
		return store, noop, err
	case StorageTypeKeyring:
		store, err := storage.NewKeyringStore(s.KeyringService)
		return store, noop, err
	case StorageTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		store, err := storage.NewRedisStore(client, s.Redis.Prefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	case StorageTypeMemory:
		return storage.NewMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// StatusCodes returns the configured status actions keyed by status code.
func (c *Config) StatusCodes() (map[int]StatusAction, error) {
	actions := make(map[int]StatusAction, len(c.StatusActions))
	for code, action := range c.StatusActions {
		status, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("status_actions: invalid status code %q", code)
		}
		actions[status] = action
	}
	return actions, nil
}

// InterceptorConfig builds the engine configuration. Status callbacks are
// supplied by the caller since they act on the running engine.
func (c *Config) InterceptorConfig(client interceptor.Host, store storage.Storage, callbacks map[int]interceptor.StatusCallback) (interceptor.Config, error) {
	variants, err := c.Tokens.PathVariants()
	if err != nil {
		return interceptor.Config{}, err
	}

	return interceptor.Config{
		Client:              client,
		Storage:             store,
		StorageKey:          c.Storage.Key,
		RefreshToken:        c.Tokens.RefreshToken,
		CSRFToken:           c.Tokens.CSRFToken,
		AuthHeaderName:      c.Tokens.AuthHeaderName,
		AuthHeaderPrefix:    c.Tokens.AuthHeaderPrefix,
		CSRFTokenHeaderName: c.Tokens.CSRFHeaderName,
		TokenPathVariants:   variants,
		InitialAccessToken:  c.Tokens.InitialAccessToken,
		InitialRefreshToken: c.Tokens.InitialRefreshToken,
		InitialCSRFToken:    c.Tokens.InitialCSRFToken,
		StatusCallbacks:     callbacks,
		ExtractOnError:      c.Tokens.ExtractOnError,
		MaxBodyBytes:        c.Tokens.MaxBodyBytes,
	}, nil
}
