package client_test

import (
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/tarp-project/tarp/client"
	"github.com/tarp-project/tarp/internal/asyncjob"
	"github.com/tarp-project/tarp/internal/dispatch"
	"github.com/tarp-project/tarp/internal/httpserver"
	"github.com/tarp-project/tarp/internal/registry"
)

// startTestServer boots a real TARP server on a local port and returns its
// base URL, spinning up a live listener in a goroutine rather than mocking
// the transport.
func startTestServer(t *testing.T, port int) string {
	t.Helper()

	reg := registry.NewRegistry()
	reg.AddGet("getData", func(query map[string]any, body any) (any, error) {
		return map[string]any{"n": query["n"]}, nil
	})
	reg.AddRPC("add", func(args []any, kwargs map[string]any) (any, error) {
		a, _ := toInt(args[0])
		b, _ := toInt(args[1])
		return a + b, nil
	})
	release := make(chan struct{})
	reg.AddAsyncRPC("slowAdd", func(args []any, kwargs map[string]any) (any, error) {
		<-release
		a, _ := toInt(args[0])
		b, _ := toInt(args[1])
		return a + b, nil
	}, registry.WithSuggestedWait(0.05))
	t.Cleanup(func() { close(release) })

	jobs := asyncjob.NewManager(asyncjob.NewThreadPool(4))
	disp := dispatch.New(reg, jobs, nil)
	srv := httpserver.New(disp, nil)

	go srv.Serve(httpserver.Config{Host: "127.0.0.1", Port: port})
	t.Cleanup(func() { srv.Shutdown() })

	time.Sleep(150 * time.Millisecond)
	return "http://127.0.0.1:" + strconv.Itoa(port)
}

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

func TestClientDiscoveryAndGet(t *testing.T) {
	baseURL := startTestServer(t, 18180)

	c, err := client.New(baseURL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, result, err := c.Get("getData", url.Values{"n": []string{"7"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["n"] != "7" {
		t.Fatalf("result = %#v, want n=7", result)
	}
}

func TestClientSyncRPC(t *testing.T) {
	baseURL := startTestServer(t, 18181)

	c, err := client.New(baseURL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := c.Call("add", 2, 3)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	n, ok := toInt(result)
	if !ok || n != 5 {
		t.Fatalf("result = %v, want 5", result)
	}
}

func TestClientAsyncRPCProbe(t *testing.T) {
	baseURL := startTestServer(t, 18182)

	c, err := client.New(baseURL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handle, err := c.AsyncCall("slowAdd", map[string]any{}, 4, 5)
	if err != nil {
		t.Fatalf("AsyncCall: %v", err)
	}

	status, _, err := handle.Probe()
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if status != client.AsyncInProgress {
		t.Fatalf("status = %v, want in_progress", status)
	}
	if handle.Status() != client.AsyncInProgress {
		t.Fatalf("Status() = %v, want in_progress", handle.Status())
	}
}

func TestClientUnknownEndpointIsAPIError(t *testing.T) {
	baseURL := startTestServer(t, 18183)

	c, err := client.New(baseURL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var apiErr *client.APIError
	if _, err := c.Call("doesNotExist"); !errors.As(err, &apiErr) {
		t.Fatalf("Call on an unbound name: err = %v, want *client.APIError", err)
	}
}

func TestConfigRefusesToShadowRemoteName(t *testing.T) {
	baseURL := startTestServer(t, 18184)

	c, err := client.New(baseURL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Config.Set("add", "local override"); err == nil {
		t.Fatalf("expected Config.Set to refuse shadowing the remote \"add\" endpoint")
	}
	if err := c.Config.Set("timeout", 5); err != nil {
		t.Fatalf("Config.Set on a non-remote name should succeed: %v", err)
	}
}
