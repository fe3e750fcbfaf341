package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tarp-project/tarp/internal/dispatch"
)

func TestChainOrdersOuterToInner(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(req dispatch.Request) dispatch.Response {
				order = append(order, name+":before")
				resp := next(req)
				order = append(order, name+":after")
				return resp
			}
		}
	}

	handler := Chain(tag("A"), tag("B"))(func(req dispatch.Request) dispatch.Response {
		order = append(order, "handler")
		return dispatch.Response{Status: 200}
	})

	handler(dispatch.Request{})

	require.Equal(t, []string{"A:before", "B:before", "handler", "B:after", "A:after"}, order)
}

func TestLoggingPassesThroughResponse(t *testing.T) {
	handler := Logging(nil)(func(req dispatch.Request) dispatch.Response {
		return dispatch.Response{Status: 200, Body: []byte("ok")}
	})
	resp := handler(dispatch.Request{Path: "ping"})
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "ok", string(resp.Body))
}

func TestTimeoutReturnsRetryableErrorWhenHandlerOverruns(t *testing.T) {
	handler := Timeout(10 * time.Millisecond)(func(req dispatch.Request) dispatch.Response {
		time.Sleep(50 * time.Millisecond)
		return dispatch.Response{Status: 200}
	})
	resp := handler(dispatch.Request{})
	require.Equal(t, 503, resp.Status)
}

func TestTimeoutPassesThroughFastHandler(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(func(req dispatch.Request) dispatch.Response {
		return dispatch.Response{Status: 200, Body: []byte("fast")}
	})
	resp := handler(dispatch.Request{})
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "fast", string(resp.Body))
}
