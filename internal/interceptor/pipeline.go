package interceptor

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/florianilch/tokenrelay/internal/httpclient"
	"github.com/florianilch/tokenrelay/internal/tokens"
)

// interceptRequest attaches the current credentials to a clone of req.
// It never fails; missing tokens simply leave headers unset.
func (e *Engine) interceptRequest(req *http.Request) (*http.Request, error) {
	act := e.current()
	if act == nil {
		return req, nil
	}

	ctx := req.Context()
	bag := act.store.Read(ctx)
	out := req.Clone(ctx)

	kind := authKind(act.cfg, bag)
	if value, ok := bag.Get(kind); ok {
		out.Header.Set(act.cfg.AuthHeaderName, strings.TrimSpace(act.cfg.AuthHeaderPrefix+" "+value))
	}

	if act.cfg.CSRFToken {
		// Clear instead of skipping so a header carried over from a reused request does not go stale
		if value, ok := bag.Get(tokens.CSRFToken); ok {
			out.Header.Set(act.cfg.CSRFTokenHeaderName, value)
		} else {
			out.Header.Del(act.cfg.CSRFTokenHeaderName)
		}
	}

	return out, nil
}

// authKind picks the refresh token when enabled and known, the access token otherwise.
func authKind(cfg Config, bag tokens.Bag) tokens.Kind {
	if cfg.RefreshToken {
		if _, ok := bag.Get(tokens.RefreshToken); ok {
			return tokens.RefreshToken
		}
	}
	return tokens.AccessToken
}

// interceptResponse harvests tokens and runs the status callback.
// The response itself passes through untouched.
func (e *Engine) interceptResponse(resp *http.Response) (*http.Response, error) {
	act := e.current()
	if act == nil {
		return resp, nil
	}

	act.harvest(resp)

	if err := act.dispatch(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// interceptError runs the status callback for failure responses and returns
// the original error. Transport errors without a response are passed on as is.
func (e *Engine) interceptError(err error) (*http.Response, error) {
	act := e.current()
	if act == nil {
		return nil, err
	}

	var respErr *httpclient.ResponseError
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return nil, err
	}

	if act.cfg.ExtractOnError {
		act.harvest(respErr.Response)
	}

	if cbErr := act.dispatch(respErr.Response); cbErr != nil {
		_ = respErr.Response.Body.Close()
		return nil, cbErr
	}
	return nil, err
}

// harvest extracts tokens from resp and merges them into the store.
func (a *activation) harvest(resp *http.Response) {
	ctx := responseContext(resp)

	doc, err := tokens.NewDocument(resp, a.cfg.MaxBodyBytes)
	if err != nil {
		// Header paths still resolve
		slog.DebugContext(ctx, "response body unavailable for token lookup", "error", err)
	}

	bag := tokens.ExtractAll(a.variants, doc)
	if len(bag) == 0 {
		return
	}

	a.store.Write(ctx, bag)
	slog.DebugContext(ctx, "harvested tokens", "kinds", slices.Sorted(maps.Keys(bag)), "status", resp.StatusCode)
}

// dispatch runs the callback registered for the response status, if any.
func (a *activation) dispatch(resp *http.Response) error {
	callback := a.cfg.StatusCallbacks[resp.StatusCode]
	if callback == nil {
		return nil
	}
	return callback(resp)
}

func responseContext(resp *http.Response) context.Context {
	if resp != nil && resp.Request != nil {
		return resp.Request.Context()
	}
	return context.Background()
}
