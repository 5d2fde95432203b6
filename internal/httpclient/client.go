package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"sync"
)

// RequestInterceptor may replace the outgoing request. Returning an error
// aborts the request before it is sent.
type RequestInterceptor func(req *http.Request) (*http.Request, error)

// ResponseInterceptor runs on responses that passed status validation.
type ResponseInterceptor func(resp *http.Response) (*http.Response, error)

// ErrorInterceptor runs when the request failed or a previous interceptor
// returned an error. Returning a response with a nil error recovers.
type ErrorInterceptor func(err error) (*http.Response, error)

// Handle identifies a registered interceptor for ejection.
type Handle uint64

type requestEntry struct {
	handle Handle
	fn     RequestInterceptor
}

type responseEntry struct {
	handle     Handle
	onResponse ResponseInterceptor
	onError    ErrorInterceptor
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying client used by Do.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTransport sets the base transport used by Transport.
// If not provided, the transport of the underlying client is used, falling
// back to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// WithValidateStatus sets the predicate deciding which statuses count as success.
func WithValidateStatus(fn func(status int) bool) Option {
	return func(c *Client) {
		c.validateStatus = fn
	}
}

// Client is an HTTP client with ejectable request and response interceptors.
// Interceptors run in registration order. Safe for concurrent use;
// each call works on the interceptors registered when it started.
type Client struct {
	httpClient     *http.Client
	base           http.RoundTripper
	validateStatus func(status int) bool

	mu        sync.RWMutex
	next      Handle
	requests  []requestEntry
	responses []responseEntry
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{},
		validateStatus: DefaultValidateStatus,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = c.httpClient.Transport
	}
	if c.base == nil {
		c.base = http.DefaultTransport
	}
	return c
}

// DefaultValidateStatus accepts 2xx statuses.
func DefaultValidateStatus(status int) bool {
	return status >= 200 && status < 300
}

// UseRequest registers a request interceptor.
func (c *Client) UseRequest(fn RequestInterceptor) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.requests = append(c.requests, requestEntry{handle: c.next, fn: fn})
	return c.next
}

// UseResponse registers a response interceptor pair. Either function may be nil.
func (c *Client) UseResponse(onResponse ResponseInterceptor, onError ErrorInterceptor) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.responses = append(c.responses, responseEntry{handle: c.next, onResponse: onResponse, onError: onError})
	return c.next
}

// EjectRequest removes a request interceptor. Unknown handles are ignored.
func (c *Client) EjectRequest(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = slices.DeleteFunc(slices.Clone(c.requests), func(e requestEntry) bool { return e.handle == h })
}

// EjectResponse removes a response interceptor pair. Unknown handles are ignored.
func (c *Client) EjectResponse(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = slices.DeleteFunc(slices.Clone(c.responses), func(e responseEntry) bool { return e.handle == h })
}

// Interceptors reports how many request and response interceptors are registered.
func (c *Client) Interceptors() (requests, responses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.requests), len(c.responses)
}

// Do sends req through the interceptor chain and the underlying client.
// Statuses rejected by the validator are returned as *ResponseError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.run(req, c.httpClient.Do)
}

// Get is a convenience wrapper around Do.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post is a convenience wrapper around Do.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(req)
}

// Transport returns an http.RoundTripper running the interceptor chain around
// the base transport. Failure statuses are handed back as plain responses, as
// the RoundTripper contract requires, after the error interceptors have run.
func (c *Client) Transport() http.RoundTripper {
	return &chainTransport{client: c}
}

type chainTransport struct {
	client *Client
}

// Compile-time check that chainTransport implements http.RoundTripper.
var _ http.RoundTripper = (*chainTransport)(nil)

func (t *chainTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.client.run(req, t.client.base.RoundTrip)
	var respErr *ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response, nil
	}
	return resp, err
}

func (c *Client) snapshot() ([]requestEntry, []responseEntry) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requests, c.responses
}

func (c *Client) run(req *http.Request, send func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	requests, responses := c.snapshot()

	var err error
	for _, entry := range requests {
		if req, err = entry.fn(req); err != nil {
			return nil, err
		}
	}

	resp, err := send(req)
	if err == nil && !c.validateStatus(resp.StatusCode) {
		err = &ResponseError{Response: resp}
		resp = nil
	}

	for _, entry := range responses {
		if err != nil {
			if entry.onError != nil {
				resp, err = entry.onError(err)
			}
			continue
		}
		if entry.onResponse != nil {
			resp, err = entry.onResponse(resp)
		}
	}

	return resp, err
}
