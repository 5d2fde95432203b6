package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with file storage in a temporary directory.
func run(t *testing.T, dir string, stdin string, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.Writer = &out
	cmd.ErrWriter = io.Discard
	cmd.Reader = strings.NewReader(stdin)

	t.Setenv("TOKENRELAY_STORAGE__TYPE", "file")
	t.Setenv("TOKENRELAY_STORAGE__DIR", dir)

	err := cmd.Run(context.Background(), append([]string{"tokenrelay"}, args...))
	return out.String(), err
}

func showTokens(t *testing.T, dir string, args ...string) map[string]string {
	t.Helper()
	out, err := run(t, dir, "", append([]string{"tokens", "show"}, args...)...)
	require.NoError(t, err)

	var shown map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	return shown
}

func TestTokens_SetShowClear(t *testing.T) {
	dir := t.TempDir()

	assert.Empty(t, showTokens(t, dir))

	out, err := run(t, dir, "", "tokens", "set", "access_token", "abcdefghijkl")
	require.NoError(t, err)
	assert.Contains(t, out, "stored accessToken")

	_, err = run(t, dir, "piped-refresh-token\n", "tokens", "set", "refresh")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"accessToken":  "abcd****",
		"refreshToken": "pipe****",
	}, showTokens(t, dir))
	assert.Equal(t, map[string]string{
		"accessToken":  "abcdefghijkl",
		"refreshToken": "piped-refresh-token",
	}, showTokens(t, dir, "--reveal"))

	out, err = run(t, dir, "", "tokens", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared tokens")
	assert.Empty(t, showTokens(t, dir))
}

func TestTokens_SetRejectsUnknownKind(t *testing.T) {
	_, err := run(t, t.TempDir(), "", "tokens", "set", "id_token", "x")
	assert.Error(t, err)

	_, err = run(t, t.TempDir(), "", "tokens", "set", "access")
	assert.Error(t, err, "empty value")
}

func TestRequest(t *testing.T) {
	var auth []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/login":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"user":"u"}`, string(body))
			assert.Equal(t, "yes", r.Header.Get("X-Extra"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"from-login"}`)
		case "/api/denied":
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, "nope")
		default:
			_, _ = io.WriteString(w, "hello")
		}
	}))
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	base := "--upstream--base-url=" + upstream.URL + "/api"

	out, err := run(t, dir, "", "request", "-X", "post", "-d", `{"user":"u"}`, "-H", "X-Extra: yes", base, "/login")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"from-login"}`, out)

	out, err = run(t, dir, "", "request", upstream.URL+"/api/hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = run(t, dir, "", "request", base, "denied")
	assert.ErrorContains(t, err, "403")
	assert.Equal(t, "nope", out)

	assert.Equal(t, []string{"", "Bearer from-login", "Bearer from-login"}, auth)
}

func TestRequest_MissingURL(t *testing.T) {
	_, err := run(t, t.TempDir(), "", "request")
	assert.Error(t, err)
}

func TestRequest_InvalidHeader(t *testing.T) {
	_, err := run(t, t.TempDir(), "", "request", "-H", "no-colon", "http://127.0.0.1:1/")
	assert.Error(t, err)
}

func TestResolveURL(t *testing.T) {
	tests := []struct{ base, target, want string }{
		{"https://api.example.com/v1", "/users", "https://api.example.com/v1/users"},
		{"https://api.example.com/v1/", "users?page=2", "https://api.example.com/v1/users?page=2"},
		{"https://api.example.com/v1", "http://other.example.com/x", "http://other.example.com/x"},
	}
	for _, tt := range tests {
		got, err := resolveURL(tt.base, tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", mask("short"))
	assert.Equal(t, "abcd****", mask("abcdefghij"))
}
