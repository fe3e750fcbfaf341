// Package dispatch implements the transport-agnostic request router: path
// and method routing, query-string flattening, Content-Type-driven body
// parsing, handler-result shaping, and the failure-kind-to-HTTP-status
// mapping.
//
// Dispatch never touches net.Conn or any HTTP framework type directly —
// internal/httpserver adapts fiber's request/response types to and from
// Request/Response so this package stays trivially testable with plain
// values, keeping protocol framing separate from business dispatch.
package dispatch

import "net/url"

// Request is everything the dispatcher needs from an incoming HTTP
// request, independent of which HTTP framework received it.
type Request struct {
	// Method is "GET" or "POST".
	Method string
	// Path is the request path with the leading slash already stripped;
	// the empty string means the root path ("/").
	Path string
	// RawQuery is the parsed query string, not yet flattened.
	RawQuery url.Values
	// ContentType is the request's Content-Type header, or "" if absent.
	ContentType string
	// Body is the raw request body, read in full by the caller (exactly
	// Content-Length bytes).
	Body []byte
}

// Response is the dispatcher's answer: an HTTP status, a set of extra
// headers (beyond Content-Type, which is always set explicitly), a
// Content-Type, and a body.
type Response struct {
	Status      int
	Headers     map[string]string
	ContentType string
	Body        []byte
}

// FlattenQuery collapses a url.Values into the flattened map the protocol
// passes to GET/POST handlers: a key with one value becomes a scalar, a
// key with multiple values becomes a slice.
func FlattenQuery(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			seq := make([]any, len(v))
			for i, item := range v {
				seq[i] = item
			}
			out[k] = seq
		}
	}
	return out
}
