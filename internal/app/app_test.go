package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/tokenrelay/internal/httpclient"
	"github.com/florianilch/tokenrelay/internal/tokens"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			w.Header().Set("X-Access-Token", "issued")
			w.Header().Set("X-Refresh-Token", "refresh")
		case "/expired":
			w.WriteHeader(http.StatusUnauthorized)
		case "/slow-down":
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAppTest(t *testing.T, upstreamURL string, mutate func(*Config)) *App {
	t.Helper()
	cfg := validConfig(t)
	cfg.Upstream.BaseURL = upstreamURL
	if mutate != nil {
		mutate(cfg)
	}

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func fetch(t *testing.T, a *App, url string) error {
	t.Helper()
	resp, err := a.Client().Get(context.Background(), url)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Type = "s3"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestApp_HarvestsThroughClient(t *testing.T) {
	upstream := newUpstream(t)
	a := newAppTest(t, upstream.URL, nil)

	require.NoError(t, fetch(t, a, upstream.URL+"/login"))
	assert.Equal(t, tokens.Bag{
		tokens.AccessToken:  "issued",
		tokens.RefreshToken: "refresh",
	}, a.Engine().Tokens(context.Background()))
}

func TestApp_ClearActionResetsTokens(t *testing.T) {
	upstream := newUpstream(t)
	a := newAppTest(t, upstream.URL, func(c *Config) {
		c.StatusActions = map[string]StatusAction{"401": StatusActionClear, "429": StatusActionLog}
	})

	require.NoError(t, fetch(t, a, upstream.URL+"/login"))
	require.NotEmpty(t, a.Engine().Tokens(context.Background()))

	err := fetch(t, a, upstream.URL+"/slow-down")
	var respErr *httpclient.ResponseError
	require.ErrorAs(t, err, &respErr)
	respErr.Response.Body.Close()
	assert.NotEmpty(t, a.Engine().Tokens(context.Background()), "log action keeps tokens")

	err = fetch(t, a, upstream.URL+"/expired")
	require.ErrorAs(t, err, &respErr)
	respErr.Response.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, respErr.Response.StatusCode)

	assert.Empty(t, a.Engine().Tokens(context.Background()))
	stored, err := a.Storage().GetItem(context.Background(), "tokens")
	require.NoError(t, err)
	assert.Equal(t, "{}", stored)
}

func TestApp_SeedAndClose(t *testing.T) {
	upstream := newUpstream(t)
	a := newAppTest(t, upstream.URL, func(c *Config) {
		c.Tokens.InitialAccessToken = "from-config"
	})

	assert.Equal(t, tokens.Bag{tokens.AccessToken: "from-config"}, a.Engine().Seed(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	assert.False(t, a.Engine().Active())

	stored, err := a.Storage().GetItem(context.Background(), "tokens")
	require.NoError(t, err)
	assert.JSONEq(t, `{"accessToken":"from-config"}`, stored)
}
