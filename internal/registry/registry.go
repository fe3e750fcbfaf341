// Package registry implements the in-process endpoint registry: a
// per-server-instance mapping from (flavor, name) to a handler and its
// descriptive metadata.
//
// Registration is idempotent-on-overwrite — registering a second handler
// under the same (flavor, name) replaces the first — and each flavor keeps
// its own independent name map, one map per flavor. A Registry is
// populated before the server starts serving and is read-only thereafter;
// the registration methods take the write lock and the Lookup methods used
// by internal/dispatch take the read lock.
package registry

import "time"

// Flavor is the dispatch mode of a registered endpoint.
type Flavor string

const (
	GET      Flavor = "GET"
	POST     Flavor = "POST"
	RPC      Flavor = "RPC"
	ASYNCRPC Flavor = "ASYNCRPC"
)

// DefaultSuggestedWait is used for ASYNC_RPC endpoints that don't specify
// their own polling hint.
const DefaultSuggestedWait = 5 * time.Second

// ParamDescriptor documents a single query or path parameter. It carries no
// behavior — query_params is documentation-only per the protocol.
type ParamDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// GetHandler serves a GET resource endpoint. query is the flattened query
// string; body is whatever dispatch.ParseBody produced for a GET request that
// happens to carry one (rare, but RFC 7231-legal).
type GetHandler func(query map[string]any, body any) (any, error)

// PostHandler serves a POST resource endpoint.
type PostHandler func(query map[string]any, body any) (any, error)

// RPCHandler serves both synchronous and asynchronous RPC endpoints —
// the two flavors share an identical handler signature and differ only in
// how the dispatcher invokes them (inline vs. submitted to the worker
// pool).
type RPCHandler func(args []any, kwargs map[string]any) (any, error)

// EndpointDescriptor is immutable after registration.
type EndpointDescriptor struct {
	Name           string
	Flavor         Flavor
	ResultMimetype string
	Description    string
	QueryParams    []ParamDescriptor

	// POST only.
	PayloadMimetype string
	PayloadSchema   any

	// ASYNCRPC only.
	SuggestedWait time.Duration

	Get  GetHandler
	Post PostHandler
	RPC  RPCHandler
}

// EndpointSummary is the subset of an EndpointDescriptor exposed to
// clients through discovery — only the fields relevant to the flavor are
// populated.
type EndpointSummary struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	QueryParams     []ParamDescriptor `json:"query_params,omitempty"`
	PayloadMimetype string            `json:"payload_mimetype,omitempty"`
	PayloadSchema   any               `json:"payload_schema,omitempty"`
	SuggestedWait   float64           `json:"suggested_wait,omitempty"`
}

func durationFromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
