// Package httpclient wraps net/http with an interceptor chain.
//
// Request interceptors see every outgoing request before it is sent; response
// interceptors see every response, or the error that replaced it:
//
//	c := httpclient.New()
//	h := c.UseRequest(func(req *http.Request) (*http.Request, error) {
//		req = req.Clone(req.Context())
//		req.Header.Set("X-Trace", "1")
//		return req, nil
//	})
//	defer c.EjectRequest(h)
//
// Do treats statuses rejected by the status validator (non-2xx by default) as
// failures and returns a *ResponseError that still carries the response.
// Transport exposes the same chain as an http.RoundTripper for consumers such
// as httputil.ReverseProxy, where failure statuses are passed through as
// regular responses once the interceptors have run.
package httpclient
