package interceptor

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/florianilch/tokenrelay/internal/tokens"
)

// Compile-time check to ensure Engine implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Engine)(nil)

// Token exposes the credential the engine would attach right now as an
// oauth2.Token, so harvested tokens can drive an oauth2.Transport elsewhere.
// The token carries no expiry; the CSRF token, if known, is available as the
// "csrf_token" extra.
func (e *Engine) Token() (*oauth2.Token, error) {
	act := e.current()
	if act == nil {
		return nil, errors.New("token engine is not active")
	}

	// oauth2.TokenSource.Token() has no context parameter
	bag := act.store.Read(context.Background())

	value, ok := bag.Get(authKind(act.cfg, bag))
	if !ok {
		return nil, errors.New("no credential available")
	}

	token := &oauth2.Token{
		AccessToken: value,
		TokenType:   act.cfg.AuthHeaderPrefix,
	}
	if refresh, ok := bag.Get(tokens.RefreshToken); ok {
		token.RefreshToken = refresh
	}
	if csrf, ok := bag.Get(tokens.CSRFToken); ok {
		token = token.WithExtra(map[string]any{"csrf_token": csrf})
	}
	return token, nil
}
