package interceptor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/florianilch/tokenrelay/internal/httpclient"
	"github.com/florianilch/tokenrelay/internal/tokens"
)

// Engine owns one activation at a time: its configuration, its token store
// and the interceptor handles it registered. Safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	active *activation
}

// activation is immutable once published; reconfiguration swaps in a new one.
type activation struct {
	cfg      Config
	variants tokens.PathVariants
	store    *tokens.Store

	host       Host
	requestID  httpclient.Handle
	responseID httpclient.Handle
}

// New creates an inactive Engine.
func New() *Engine {
	return &Engine{}
}

// Activate starts an activation with cfg. Without cfg.Client nothing is
// registered and no error is returned. Activating an active engine behaves
// like Reconfigure.
func (e *Engine) Activate(cfg Config) error {
	return e.Reconfigure(cfg)
}

// Reconfigure replaces the configuration wholesale. Path variants are merged
// against the built-in defaults, never against the previous configuration.
// Interceptors of the previous configuration are ejected before the new pair
// is registered. Known tokens are kept for the lifetime of the activation.
func (e *Engine) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.active
	next := &activation{
		cfg:      cfg,
		variants: tokens.MergePathVariants(tokens.DefaultPathVariants(), cfg.TokenPathVariants),
	}

	switch {
	case prev == nil:
		next.store = tokens.NewStore(cfg.Storage, cfg.StorageKey)
	case prev.cfg.Storage == cfg.Storage && prev.cfg.StorageKey == cfg.StorageKey:
		next.store = prev.store
	default:
		next.store = tokens.NewStore(cfg.Storage, cfg.StorageKey)
		next.store.Prime(prev.store.Snapshot())
	}

	if prev != nil {
		prev.eject()
	}
	e.register(next)
	e.active = next

	slog.Debug("token interceptors configured",
		"registered", next.host != nil,
		"refresh_token", cfg.RefreshToken,
		"csrf_token", cfg.CSRFToken,
		"storage_key", cfg.StorageKey,
	)
	return nil
}

// Deactivate ejects the registered interceptors and discards in-memory
// tokens. Durable storage is left as is. Safe to call repeatedly, and before
// or without a successful activation.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return
	}
	e.active.eject()
	e.active = nil
}

// Active reports whether an activation is in progress.
func (e *Engine) Active() bool {
	return e.current() != nil
}

// Seed writes the configured initial tokens over the known ones.
// It returns the resulting tokens, or nil when the engine is inactive.
func (e *Engine) Seed(ctx context.Context) tokens.Bag {
	act := e.current()
	if act == nil {
		return nil
	}
	return act.store.Seed(ctx, act.cfg.InitialTokens())
}

// Tokens returns the currently known tokens, or nil when the engine is inactive.
func (e *Engine) Tokens(ctx context.Context) tokens.Bag {
	act := e.current()
	if act == nil {
		return nil
	}
	return act.store.Read(ctx)
}

// Store returns the token store of the current activation, or nil.
func (e *Engine) Store() *tokens.Store {
	act := e.current()
	if act == nil {
		return nil
	}
	return act.store
}

func (e *Engine) current() *activation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// register installs the pipelines on the configured host, if any.
func (e *Engine) register(act *activation) {
	if act.cfg.Client == nil {
		return
	}
	act.host = act.cfg.Client
	act.requestID = act.host.UseRequest(e.interceptRequest)
	act.responseID = act.host.UseResponse(e.interceptResponse, e.interceptError)
}

func (a *activation) eject() {
	if a.host == nil {
		return
	}
	a.host.EjectRequest(a.requestID)
	a.host.EjectResponse(a.responseID)
}
