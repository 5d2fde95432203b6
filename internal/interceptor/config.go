package interceptor

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/tokenrelay/internal/httpclient"
	"github.com/florianilch/tokenrelay/internal/storage"
	"github.com/florianilch/tokenrelay/internal/tokens"
)

// Default header configuration
const (
	DefaultAuthHeaderName      = "Authorization"
	DefaultAuthHeaderPrefix    = "Bearer"
	DefaultCSRFTokenHeaderName = "X-Csrf-Token"
)

// StatusCallback runs synchronously for responses with a matching status.
// A returned error is not handled by the engine; it replaces the result of
// the request.
type StatusCallback func(resp *http.Response) error

// Host is the interceptor registry of an HTTP client.
type Host interface {
	UseRequest(fn httpclient.RequestInterceptor) httpclient.Handle
	UseResponse(onResponse httpclient.ResponseInterceptor, onError httpclient.ErrorInterceptor) httpclient.Handle
	EjectRequest(h httpclient.Handle)
	EjectResponse(h httpclient.Handle)
}

// Compile-time check that httpclient.Client can host the engine.
var _ Host = (*httpclient.Client)(nil)

// Config is the snapshot an activation runs with. The zero value is usable:
// unset header options take their defaults and a nil Storage falls back to
// process memory.
type Config struct {
	// Client receives the interceptors. Nil leaves the engine inert.
	Client Host `json:"-"`
	// Storage persists tokens across activations and processes.
	Storage storage.Storage `json:"-"`
	// StorageKey is the key the serialized tokens are stored under.
	StorageKey string `json:"storage_key"`

	// RefreshToken prefers the refresh token for the auth header when one is known.
	RefreshToken bool `json:"refresh_token"`
	// CSRFToken attaches the CSRF header.
	CSRFToken bool `json:"csrf_token"`

	AuthHeaderName      string `json:"auth_header_name" validate:"omitempty,printascii,excludesall= :"`
	AuthHeaderPrefix    string `json:"auth_header_prefix" validate:"omitempty,printascii"`
	CSRFTokenHeaderName string `json:"csrf_token_header_name" validate:"omitempty,printascii,excludesall= :"`

	// TokenPathVariants adds lookup paths after the built-in ones.
	TokenPathVariants tokens.PathVariants `json:"-"`

	InitialAccessToken  string `json:"-"`
	InitialRefreshToken string `json:"-"`
	InitialCSRFToken    string `json:"-"`

	StatusCallbacks map[int]StatusCallback `json:"-"`

	// ExtractOnError also harvests tokens from failure responses.
	ExtractOnError bool `json:"extract_on_error"`
	// MaxBodyBytes bounds the response body buffered for token lookup.
	MaxBodyBytes int64 `json:"max_body_bytes" validate:"gte=0"`
}

// withDefaults returns a copy with unset options filled in.
func (c Config) withDefaults() Config {
	if c.AuthHeaderName == "" {
		c.AuthHeaderName = DefaultAuthHeaderName
	}
	if c.AuthHeaderPrefix == "" {
		c.AuthHeaderPrefix = DefaultAuthHeaderPrefix
	}
	if c.CSRFTokenHeaderName == "" {
		c.CSRFTokenHeaderName = DefaultCSRFTokenHeaderName
	}
	if c.StorageKey == "" {
		c.StorageKey = tokens.DefaultStorageKey
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = tokens.DefaultMaxBodyBytes
	}
	return c
}

// Validate checks header names and limits.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid interceptor config: %w", err)
	}
	return nil
}

// InitialTokens returns the seed values as a Bag, omitting empty ones.
func (c Config) InitialTokens() tokens.Bag {
	return tokens.Bag{}.Merge(tokens.Bag{
		tokens.AccessToken:  c.InitialAccessToken,
		tokens.RefreshToken: c.InitialRefreshToken,
		tokens.CSRFToken:    c.InitialCSRFToken,
	})
}
