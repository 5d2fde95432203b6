package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/tokenrelay/internal/httpclient"
	"github.com/florianilch/tokenrelay/internal/interceptor"
	"github.com/florianilch/tokenrelay/internal/proxy"
	"github.com/florianilch/tokenrelay/internal/storage"
)

// App wires storage, the token engine, its HTTP client and the proxy server,
// and orchestrates their lifecycle.
type App struct {
	cfg          *Config
	storage      storage.Storage
	closeStorage func() error
	client       *httpclient.Client
	engine       *interceptor.Engine
	proxy        *proxy.Proxy
}

// New creates a new App instance with an active token engine.
// No token I/O is performed until the first request or Seed.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, closeStorage, err := cfg.Storage.NewStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to create token storage: %w", err)
	}

	a := &App{
		cfg:          cfg,
		storage:      store,
		closeStorage: closeStorage,
		client:       httpclient.New(httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout})),
		engine:       interceptor.New(),
	}

	callbacks, err := a.statusCallbacks()
	if err != nil {
		_ = closeStorage()
		return nil, err
	}

	icfg, err := cfg.InterceptorConfig(a.client, store, callbacks)
	if err != nil {
		_ = closeStorage()
		return nil, err
	}
	if err := a.engine.Activate(icfg); err != nil {
		_ = closeStorage()
		return nil, fmt.Errorf("failed to activate token engine: %w", err)
	}

	proxyServer, err := proxy.New(a.client.Transport(), cfg.Upstream.BaseURL)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}
	a.proxy = proxyServer

	return a, nil
}

// Config returns the configuration the app was created with.
func (a *App) Config() *Config {
	return a.cfg
}

// Client returns the HTTP client the token engine is attached to.
func (a *App) Client() *httpclient.Client {
	return a.client
}

// Engine returns the token engine.
func (a *App) Engine() *interceptor.Engine {
	return a.engine
}

// Storage returns the durable token storage.
func (a *App) Storage() storage.Storage {
	return a.storage
}

// Close waits for pending token writes, detaches the engine and releases
// the storage backend.
func (a *App) Close(ctx context.Context) error {
	if store := a.engine.Store(); store != nil {
		done := make(chan struct{})
		go func() {
			store.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.WarnContext(ctx, "pending token writes did not finish", "error", ctx.Err())
		}
	}
	a.engine.Deactivate()

	if err := a.closeStorage(); err != nil {
		return fmt.Errorf("failed to close token storage: %w", err)
	}
	return nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	shutdownFuncs := []func(context.Context) error{a.Close}

	seeded := a.engine.Seed(gCtx)
	slog.InfoContext(gCtx, "token engine ready", "known_tokens", len(seeded), "storage", a.cfg.Storage.Type)

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "address", address, "upstream", a.cfg.Upstream.BaseURL)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services in reverse order
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// statusCallbacks turns configured status actions into engine callbacks.
func (a *App) statusCallbacks() (map[int]interceptor.StatusCallback, error) {
	codes, err := a.cfg.StatusCodes()
	if err != nil {
		return nil, err
	}

	callbacks := make(map[int]interceptor.StatusCallback, len(codes))
	for status, action := range codes {
		switch action {
		case StatusActionLog:
			callbacks[status] = logResponse
		case StatusActionClear:
			callbacks[status] = a.clearTokens
		default:
			return nil, fmt.Errorf("unsupported status action %q for status %d", action, status)
		}
	}
	return callbacks, nil
}

func logResponse(resp *http.Response) error {
	attrs := []any{"status", resp.StatusCode}
	if resp.Request != nil {
		attrs = append(attrs, "method", resp.Request.Method, "path", resp.Request.URL.Path)
	}
	slog.WarnContext(responseContext(resp), "upstream responded with watched status", attrs...)
	return nil
}

// clearTokens forgets all tokens. Storage failures are logged and do not
// affect the response.
func (a *App) clearTokens(resp *http.Response) error {
	ctx := context.WithoutCancel(responseContext(resp))

	store := a.engine.Store()
	if store == nil {
		return nil
	}
	if err := store.Reset(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to clear stored tokens", "status", resp.StatusCode, "error", err)
		return nil
	}
	slog.InfoContext(ctx, "cleared tokens", "status", resp.StatusCode)
	return nil
}

func responseContext(resp *http.Response) context.Context {
	if resp.Request != nil {
		return resp.Request.Context()
	}
	return context.Background()
}
