package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tarp-project/tarp/internal/asyncjob"
	"github.com/tarp-project/tarp/internal/registry"
	"github.com/tarp-project/tarp/internal/rpcenc"
	"github.com/tarp-project/tarp/internal/tarperrs"
	"go.uber.org/zap"
)

func newDispatcher() (*Dispatcher, *registry.Registry, *asyncjob.Manager) {
	reg := registry.NewRegistry()
	jobs := asyncjob.NewManager(asyncjob.NewThreadPool(4))
	return New(reg, jobs, zap.NewNop()), reg, jobs
}

func decodeEnvelope(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	return v
}

func TestDiscoveryAtRoot(t *testing.T) {
	d, reg, _ := newDispatcher()
	reg.AddGet("getData", func(query map[string]any, body any) (any, error) {
		return map[string]any{"ok": true}, nil
	}, registry.WithDescription("fetch data"))

	resp := d.Dispatch(Request{Method: "GET", Path: ""})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	env := decodeEnvelope(t, resp.Body)
	result, ok := env["result"].(map[string]any)
	if !ok {
		t.Fatalf("result is not a map: %#v", env["result"])
	}
	getList, ok := result["GET"].([]any)
	if !ok || len(getList) != 1 {
		t.Fatalf("GET discovery list = %#v, want one entry", result["GET"])
	}
}

func TestGetEndpointFlattensQuery(t *testing.T) {
	d, reg, _ := newDispatcher()
	var seenQuery map[string]any
	reg.AddGet("getData", func(query map[string]any, body any) (any, error) {
		seenQuery = query
		return map[string]any{"n": query["n"]}, nil
	})

	resp := d.Dispatch(Request{
		Method:   "GET",
		Path:     "getData",
		RawQuery: url.Values{"n": []string{"3"}},
	})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if seenQuery["n"] != "3" {
		t.Fatalf("query[n] = %v, want 3", seenQuery["n"])
	}
}

func TestGetEndpointFlattensRepeatedKeyToSlice(t *testing.T) {
	d, reg, _ := newDispatcher()
	reg.AddGet("echo", func(query map[string]any, body any) (any, error) {
		return query, nil
	})

	resp := d.Dispatch(Request{
		Method:   "GET",
		Path:     "echo",
		RawQuery: url.Values{"a": []string{"1"}, "b": []string{"2", "3"}},
	})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	env := decodeEnvelope(t, resp.Body)
	result, ok := env["result"].(map[string]any)
	if !ok {
		t.Fatalf("result is not a map: %#v", env["result"])
	}
	if result["a"] != "1" {
		t.Fatalf("a = %v, want scalar \"1\"", result["a"])
	}
	b, ok := result["b"].([]any)
	if !ok || len(b) != 2 || b[0] != "2" || b[1] != "3" {
		t.Fatalf("b = %#v, want [\"2\",\"3\"]", result["b"])
	}
}

func TestGetEndpointReturningNilHasLiteralNullResult(t *testing.T) {
	d, reg, _ := newDispatcher()
	reg.AddGet("ping", func(query map[string]any, body any) (any, error) {
		return nil, nil
	})

	resp := d.Dispatch(Request{Method: "GET", Path: "ping"})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if !strings.Contains(string(resp.Body), `"result":null`) {
		t.Fatalf("body = %s, want a literal \"result\":null", resp.Body)
	}
	env := decodeEnvelope(t, resp.Body)
	if _, ok := env["result"]; !ok {
		t.Fatalf("decoded envelope is missing the result key entirely: %#v", env)
	}
}

func TestGetEndpointReturningRawBytesBypassesEnvelope(t *testing.T) {
	d, reg, _ := newDispatcher()
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	reg.AddGet("showFigure", func(query map[string]any, body any) (any, error) {
		return RawPayload{Bytes: png, Mimetype: "image/png"}, nil
	})

	resp := d.Dispatch(Request{Method: "GET", Path: "showFigure"})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if resp.ContentType != "image/png" {
		t.Fatalf("content-type = %q, want image/png", resp.ContentType)
	}
	if string(resp.Body) != string(png) {
		t.Fatalf("body = %v, want raw PNG bytes", resp.Body)
	}
}

func TestOperationInProgressMapsTo503WithRetryAfter(t *testing.T) {
	d, reg, _ := newDispatcher()
	reg.AddGet("setRange", func(query map[string]any, body any) (any, error) {
		return nil, tarperrs.NewOperationInProgress("still warming up", 2*time.Second)
	})

	resp := d.Dispatch(Request{Method: "GET", Path: "setRange"})
	if resp.Status != 503 {
		t.Fatalf("status = %d, want 503", resp.Status)
	}
	if resp.Headers["Retry-After"] != "2" {
		t.Fatalf("Retry-After = %q, want 2", resp.Headers["Retry-After"])
	}
	env := decodeEnvelope(t, resp.Body)
	if env["type"] != "OperationInProgress" {
		t.Fatalf("type = %v, want OperationInProgress", env["type"])
	}
}

func TestUnknownPathIs404(t *testing.T) {
	d, _, _ := newDispatcher()
	resp := d.Dispatch(Request{Method: "GET", Path: "nope"})
	if resp.Status != 404 {
		t.Fatalf("status = %d, want 404", resp.Status)
	}
}

// toInt normalizes the numeric width msgpack chooses when decoding into
// interface{} (int8/int16/int32/int64/uint64 depending on magnitude).
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func rpcBody(t *testing.T, args []any, kwargs map[string]any) []byte {
	t.Helper()
	frame, err := rpcenc.EncodeFrame(args, kwargs)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	body, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return body
}

func TestSynchronousRPCRoundTrip(t *testing.T) {
	d, reg, _ := newDispatcher()
	reg.AddRPC("add", func(args []any, kwargs map[string]any) (any, error) {
		a, _ := toInt(args[0])
		b, _ := toInt(args[1])
		return a + b, nil
	})

	resp := d.Dispatch(Request{
		Method: "POST",
		Path:   "add",
		Body:   rpcBody(t, []any{1, 2}, map[string]any{}),
	})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200, body=%s", resp.Status, resp.Body)
	}
	env := decodeEnvelope(t, resp.Body)
	result := env["result"].(map[string]any)
	payload := result["payload"].(string)
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("decoded payload is empty")
	}
	value, err := rpcenc.DecodeResult(rpcenc.Result{Payload: payload})
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if n, ok := toInt(value); !ok || n != 3 {
		t.Fatalf("decoded result = %v (%T), want 3", value, value)
	}
}

func TestRPCWithQueryStringIsMalformed(t *testing.T) {
	d, reg, _ := newDispatcher()
	reg.AddRPC("add", func(args []any, kwargs map[string]any) (any, error) {
		return 0, nil
	})

	resp := d.Dispatch(Request{
		Method:   "POST",
		Path:     "add",
		RawQuery: url.Values{"x": []string{"1"}},
		Body:     rpcBody(t, []any{1}, map[string]any{}),
	})
	if resp.Status != 400 {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
}

func TestRPCWithMalformedBodyIs400(t *testing.T) {
	d, reg, _ := newDispatcher()
	reg.AddRPC("add", func(args []any, kwargs map[string]any) (any, error) {
		return 0, nil
	})

	resp := d.Dispatch(Request{
		Method: "POST",
		Path:   "add",
		Body:   []byte(`{"args": "not base64 json", "oops": 1}`),
	})
	if resp.Status != 400 {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
}

func TestRPCWithNonSequenceArgsIs400(t *testing.T) {
	d, reg, _ := newDispatcher()
	reg.AddRPC("add", func(args []any, kwargs map[string]any) (any, error) {
		return 0, nil
	})

	// EncodeFrame's Kwargs field is always a mapping on the wire. Reusing
	// it as the Args value produces a frame whose decoded args is a
	// mapping rather than a sequence.
	frame, err := rpcenc.EncodeFrame(nil, nil)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	body, err := json.Marshal(struct {
		Args   string `json:"args"`
		Kwargs string `json:"kwargs"`
	}{Args: frame.Kwargs, Kwargs: frame.Kwargs})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	resp := d.Dispatch(Request{Method: "POST", Path: "add", Body: body})
	if resp.Status != 400 {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
}

func TestAsyncRPCLifecycle(t *testing.T) {
	d, reg, _ := newDispatcher()
	release := make(chan struct{})
	reg.AddAsyncRPC("slowAdd", func(args []any, kwargs map[string]any) (any, error) {
		<-release
		a, _ := toInt(args[0])
		b, _ := toInt(args[1])
		return a + b, nil
	})

	submitResp := d.Dispatch(Request{
		Method: "POST",
		Path:   "slowAdd",
		Body:   rpcBody(t, []any{1, 2}, map[string]any{}),
	})
	if submitResp.Status != 200 {
		t.Fatalf("submit status = %d, want 200", submitResp.Status)
	}
	env := decodeEnvelope(t, submitResp.Body)
	result := env["result"].(map[string]any)
	id := result["ID"].(string)

	probeResp := d.Dispatch(Request{
		Method:   "GET",
		Path:     "asyncProbe",
		RawQuery: url.Values{"UUID": []string{id}},
	})
	probeEnv := decodeEnvelope(t, probeResp.Body)
	probeResult := probeEnv["result"].(map[string]any)
	if probeResult["status"] != "in_progress" {
		t.Fatalf("probe status = %v, want in_progress", probeResult["status"])
	}

	getResp := d.Dispatch(Request{
		Method:   "GET",
		Path:     "asyncGet",
		RawQuery: url.Values{"UUID": []string{id}},
	})
	if getResp.Status != 503 {
		t.Fatalf("asyncGet before completion status = %d, want 503", getResp.Status)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	var finalResp Response
	for time.Now().Before(deadline) {
		finalResp = d.Dispatch(Request{
			Method:   "GET",
			Path:     "asyncGet",
			RawQuery: url.Values{"UUID": []string{id}},
		})
		if finalResp.Status == 200 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if finalResp.Status != 200 {
		t.Fatalf("final asyncGet status = %d, want 200", finalResp.Status)
	}

	secondGet := d.Dispatch(Request{
		Method:   "GET",
		Path:     "asyncGet",
		RawQuery: url.Values{"UUID": []string{id}},
	})
	if secondGet.Status != 404 {
		t.Fatalf("second asyncGet status = %d, want 404 (at-most-once)", secondGet.Status)
	}
}

func TestAsyncGetUnknownIDIs404(t *testing.T) {
	d, _, _ := newDispatcher()
	resp := d.Dispatch(Request{
		Method:   "GET",
		Path:     "asyncGet",
		RawQuery: url.Values{"UUID": []string{"nonexistent"}},
	})
	if resp.Status != 404 {
		t.Fatalf("status = %d, want 404", resp.Status)
	}
}
