// Package client implements the TARP client proxy: connection-time
// discovery, flavor-aware bound callables, envelope enforcement, and async
// job polling.
//
// Go has no runtime method injection, so bindings here are looked up by
// name through Call/CallKW/Get/Post/AsyncCall rather than synthesized as
// distinct methods on Client.
package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	fiberClient "github.com/gofiber/fiber/v3/client"
	"github.com/tarp-project/tarp/internal/envelope"
	"github.com/tarp-project/tarp/internal/registry"
	"github.com/tarp-project/tarp/internal/rpcenc"
	"go.uber.org/zap"
)

// Client is a connected TARP client: a discovery-bound set of callables over
// one base URL.
type Client struct {
	baseURL  string
	conn     *fiberClient.Client
	logger   *zap.Logger
	bindings map[string]*binding

	Config *Config
}

// Option customizes Client construction.
type Option func(*clientOptions)

type clientOptions struct {
	logger *zap.Logger
}

// WithLogger attaches a structured logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// New connects to baseURL, fetches its discovery record, and returns a
// Client bound to the endpoints it advertises. serverKey, when non-empty, is
// treated as an optional trust hint (a CA certificate PEM path) passed
// through to the underlying HTTP client.
func New(baseURL string, serverKey string, opts ...Option) (*Client, error) {
	options := clientOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&options)
	}

	conn := fiberClient.New().SetBaseURL(strings.TrimRight(baseURL, "/"))
	if serverKey != "" {
		tlsConfig, err := tlsConfigFromCAFile(serverKey)
		if err != nil {
			return nil, fmt.Errorf("tarp: load server_key: %w", err)
		}
		conn = conn.SetTLSConfig(tlsConfig)
	}

	c := &Client{
		baseURL: baseURL,
		conn:    conn,
		logger:  options.logger,
	}
	c.Config = &Config{client: c, values: make(map[string]any)}

	record, err := c.fetchDiscovery()
	if err != nil {
		return nil, fmt.Errorf("tarp: fetch discovery: %w", err)
	}
	c.bindings = buildBindings(record)

	return c, nil
}

func (c *Client) fetchDiscovery() (discoveryRecord, error) {
	res, err := c.conn.Get("/")
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != 200 {
		return nil, &APIError{StatusCode: res.StatusCode(), Message: "discovery request failed"}
	}
	var env envelope.Envelope
	if err := json.Unmarshal(res.Body(), &env); err != nil {
		return nil, fmt.Errorf("decode discovery envelope: %w", err)
	}
	raw, err := json.Marshal(env.Result)
	if err != nil {
		return nil, err
	}
	var record discoveryRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode discovery record: %w", err)
	}
	return record, nil
}

func (c *Client) lookup(name string, wantFlavor registry.Flavor) (*binding, error) {
	b, ok := c.bindings[name]
	if !ok {
		return nil, &APIError{StatusCode: 404, Message: fmt.Sprintf("no such endpoint: %s", name)}
	}
	if b.flavor != wantFlavor {
		return nil, fmt.Errorf("tarp: endpoint %q is flavor %s, not %s", name, b.flavor, wantFlavor)
	}
	return b, nil
}

// Get invokes a GET-flavor endpoint with the given query parameters and
// returns (mimetype, result).
func (c *Client) Get(name string, query url.Values) (string, any, error) {
	if _, err := c.lookup(name, registry.GET); err != nil {
		return "", nil, err
	}
	path := "/" + name
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	res, err := c.conn.Get(path)
	if err != nil {
		return "", nil, err
	}
	return decodeEnvelopeResponse(res.StatusCode(), string(res.Header("Content-Type")), string(res.Header("Retry-After")), res.Body())
}

// Post invokes a POST-flavor endpoint. If payload is a map it is
// JSON-encoded with Content-Type application/json; otherwise it is sent
// verbatim with Content-Type application/octet-stream.
func (c *Client) Post(name string, payload any, query url.Values) (string, any, error) {
	if _, err := c.lookup(name, registry.POST); err != nil {
		return "", nil, err
	}
	path := "/" + name
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var body any
	contentType := "application/octet-stream"
	switch v := payload.(type) {
	case map[string]any:
		body = v
		contentType = "application/json"
	case nil:
		body = []byte{}
	default:
		body = v
	}

	res, err := c.conn.Post(path, fiberClient.Config{
		Header: map[string]string{"Content-Type": contentType},
		Body:   body,
	})
	if err != nil {
		return "", nil, err
	}
	return decodeEnvelopeResponse(res.StatusCode(), string(res.Header("Content-Type")), string(res.Header("Retry-After")), res.Body())
}

// Call invokes a synchronous RPC endpoint with positional arguments and no
// keyword arguments, returning the decoded result value.
func (c *Client) Call(name string, args ...any) (any, error) {
	return c.CallKW(name, map[string]any{}, args...)
}

// CallKW invokes a synchronous RPC endpoint with both positional and
// keyword arguments.
func (c *Client) CallKW(name string, kwargs map[string]any, args ...any) (any, error) {
	if _, err := c.lookup(name, registry.RPC); err != nil {
		return nil, err
	}
	return c.doRPC("/"+name, args, kwargs)
}

func (c *Client) doRPC(path string, args []any, kwargs map[string]any) (any, error) {
	frame, err := rpcenc.EncodeFrame(args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("tarp: encode RPC frame: %w", err)
	}
	res, err := c.conn.Post(path, fiberClient.Config{
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   frame,
	})
	if err != nil {
		return nil, err
	}

	if err := checkEnvelopeStatus(res.StatusCode(), string(res.Header("Retry-After")), res.Body()); err != nil {
		return nil, err
	}

	var outer struct {
		Result rpcenc.Result `json:"result"`
	}
	if err := json.Unmarshal(res.Body(), &outer); err != nil {
		return nil, fmt.Errorf("tarp: decode RPC envelope: %w", err)
	}
	return rpcenc.DecodeResult(outer.Result)
}

// AsyncCall invokes an ASYNC_RPC endpoint and returns a handle for polling.
func (c *Client) AsyncCall(name string, kwargs map[string]any, args ...any) (*AsyncHandle, error) {
	b, err := c.lookup(name, registry.ASYNCRPC)
	if err != nil {
		return nil, err
	}

	frame, err := rpcenc.EncodeFrame(args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("tarp: encode RPC frame: %w", err)
	}
	res, err := c.conn.Post("/"+name, fiberClient.Config{
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   frame,
	})
	if err != nil {
		return nil, err
	}
	if err := checkEnvelopeStatus(res.StatusCode(), string(res.Header("Retry-After")), res.Body()); err != nil {
		return nil, err
	}

	var outer struct {
		Result struct {
			ID            string  `json:"ID"`
			SuggestedWait float64 `json:"suggested_wait"`
		} `json:"result"`
	}
	if err := json.Unmarshal(res.Body(), &outer); err != nil {
		return nil, fmt.Errorf("tarp: decode async-submit envelope: %w", err)
	}

	return &AsyncHandle{
		client:           c,
		name:             b.name,
		id:               outer.Result.ID,
		suggestedWait:    durationFromSeconds(outer.Result.SuggestedWait),
		suggestedDefault: durationFromSeconds(b.summary.SuggestedWait),
	}, nil
}

func durationFromSeconds(seconds float64) time.Duration {
	if seconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}

// decodeEnvelopeResponse implements the client's envelope-enforcement
// rules for GET/POST bindings: check status, then Content-Type, then
// envelope status.
func decodeEnvelopeResponse(status int, contentType, retryAfter string, body []byte) (string, any, error) {
	if status == 404 {
		return "", nil, &APIError{StatusCode: 404, Message: "not found"}
	}
	if !strings.HasPrefix(contentType, "application/json") {
		if status != 200 {
			return "", nil, &APIError{StatusCode: status, Message: string(body)}
		}
		return contentType, body, nil
	}

	var env envelope.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, fmt.Errorf("tarp: decode envelope: %w", err)
	}
	if err := classifyEnvelopeError(status, retryAfter, env); err != nil {
		return "", nil, err
	}
	if env.Status != "success" {
		return "", nil, &APIError{StatusCode: status, Message: env.Message}
	}
	return env.Mimetype, env.Result, nil
}

// checkEnvelopeStatus applies the same rules as decodeEnvelopeResponse but
// for RPC bindings, which always expect a JSON envelope.
func checkEnvelopeStatus(status int, retryAfter string, body []byte) error {
	if status == 200 {
		return nil
	}
	if status == 404 {
		return &APIError{StatusCode: 404, Message: "not found"}
	}
	var env envelope.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{StatusCode: status, Message: string(body)}
	}
	return classifyEnvelopeError(status, retryAfter, env)
}

// classifyEnvelopeError implements the envelope-enforcement table:
// OperationInProgress raises the retryable condition (Retry-After header,
// default 5s), InvalidServerState raises the state-invalid condition, and
// anything else is a generic APIError carrying the server's message.
func classifyEnvelopeError(status int, retryAfter string, env envelope.Envelope) error {
	if status == 200 {
		return nil
	}
	switch env.Type {
	case "OperationInProgress":
		return &OperationInProgress{Message: env.Message, RetryAfter: parseRetryAfter(retryAfter)}
	case "InvalidServerState":
		return &InvalidServerState{Message: env.Message}
	default:
		message := env.Message
		if message == "" {
			message = fmt.Sprintf("server returned status %d", status)
		}
		return &APIError{StatusCode: status, Message: message}
	}
}

func parseRetryAfter(value string) time.Duration {
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err != nil || seconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
