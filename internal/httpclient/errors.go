package httpclient

import (
	"fmt"
	"net/http"
)

// ResponseError reports a response whose status failed validation.
// The response body is left unread for the caller.
type ResponseError struct {
	Response *http.Response
}

func (e *ResponseError) Error() string {
	if e.Response == nil {
		return "request failed"
	}
	if e.Response.Request != nil && e.Response.Request.URL != nil {
		return fmt.Sprintf("%s %s: request failed with status %d", e.Response.Request.Method, e.Response.Request.URL.Redacted(), e.Response.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d", e.Response.StatusCode)
}
