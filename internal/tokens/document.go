package tokens

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultMaxBodyBytes bounds how much of a response body is buffered for token lookup.
const DefaultMaxBodyBytes int64 = 1 << 20

// Document is the structured view of a response that paths are resolved against:
//
//	{"status": 200, "headers": {"x-access-token": "..."}, "data": <JSON body>}
//
// Header names are lower-cased and multiple values are joined with ", ".
// A body that is not JSON is exposed as a string; a body larger than the
// limit, a streaming body, or a non-JSON body of unknown length is not
// exposed at all.
type Document struct {
	raw []byte
}

// NewDocument builds a Document from resp. At most maxBody bytes of the body
// are buffered, and resp.Body is replaced so downstream readers still see the
// complete, unconsumed stream. A non-positive maxBody disables body lookup.
func NewDocument(resp *http.Response, maxBody int64) (Document, error) {
	if resp == nil {
		return Document{}, nil
	}

	headers := make(map[string]string, len(resp.Header))
	for name, values := range resp.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	view := map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
	}

	data, err := peekBody(resp, maxBody)
	if data != nil {
		view["data"] = data
	}

	raw, marshalErr := json.Marshal(view)
	if marshalErr != nil {
		return Document{}, fmt.Errorf("encoding response document: %w", marshalErr)
	}
	if err != nil {
		return Document{raw: raw}, fmt.Errorf("reading response body: %w", err)
	}
	return Document{raw: raw}, nil
}

// NewDocumentFromJSON wraps an already structured JSON value.
func NewDocumentFromJSON(raw []byte) (Document, error) {
	if !json.Valid(raw) {
		return Document{}, fmt.Errorf("invalid JSON document")
	}
	return Document{raw: bytes.Clone(raw)}, nil
}

// peekBody buffers up to maxBody bytes and restores resp.Body.
// Returns json.RawMessage for JSON bodies, string for other text, nil otherwise.
func peekBody(resp *http.Response, maxBody int64) (any, error) {
	if maxBody <= 0 || resp.Body == nil || resp.Body == http.NoBody {
		return nil, nil
	}
	if !bufferable(resp, maxBody) {
		return nil, nil
	}

	original := resp.Body
	buf, err := io.ReadAll(io.LimitReader(original, maxBody+1))
	resp.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(buf), original), closer: original}
	if err != nil {
		return nil, err
	}

	if int64(len(buf)) > maxBody || len(buf) == 0 {
		return nil, nil
	}
	if json.Valid(buf) {
		return json.RawMessage(buf), nil
	}
	return string(buf), nil
}

// bufferable reports whether peeking at the body cannot hold up a stream.
// JSON documents are read as they only parse complete. Streaming media types
// are never read. Anything else is read only when its length is known and
// within maxBody.
func bufferable(resp *http.Response, maxBody int64) bool {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case streamingMediaTypes[mediaType]:
		return false
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return true
	default:
		return resp.ContentLength >= 0 && resp.ContentLength <= maxBody
	}
}

var streamingMediaTypes = map[string]bool{
	"text/event-stream":    true,
	"application/x-ndjson": true,
	"application/ndjson":   true,
	"application/jsonl":    true,
	"application/json-seq": true,
}

// replayBody serves the buffered prefix followed by the rest of the original body.
type replayBody struct {
	io.Reader
	closer io.Closer
}

func (r *replayBody) Close() error {
	return r.closer.Close()
}

// Resolve returns the value at path. Missing values, null, false, zero, empty
// strings, objects and arrays are absent. Other numbers and true are returned
// in their JSON text form.
func (d Document) Resolve(path string) (string, bool) {
	if path == "" || len(d.raw) == 0 {
		return "", false
	}

	result := gjson.GetBytes(d.raw, path)
	switch result.Type {
	case gjson.String:
		return result.Str, result.Str != ""
	case gjson.Number:
		if result.Num == 0 {
			return "", false
		}
		return result.Raw, true
	case gjson.True:
		return "true", true
	default:
		return "", false
	}
}

// ResolveFirst tries paths in order and returns the first present value.
// Later paths are not evaluated once a value is found.
func (d Document) ResolveFirst(paths []string) (string, bool) {
	for _, path := range paths {
		if value, ok := d.Resolve(path); ok {
			return value, true
		}
	}
	return "", false
}

// ExtractAll resolves every kind of variants against doc. Kinds without a
// value are omitted, so merging the result never clobbers known tokens.
func ExtractAll(variants PathVariants, doc Document) Bag {
	bag := Bag{}
	for kind, paths := range variants {
		if value, ok := doc.ResolveFirst(paths); ok {
			bag[kind] = value
		}
	}
	return bag
}
