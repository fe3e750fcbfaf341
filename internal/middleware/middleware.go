// Package middleware implements the onion-model middleware chain wrapping
// a Dispatcher's request/response pair.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
package middleware

import (
	"time"

	"github.com/tarp-project/tarp/internal/dispatch"
	"go.uber.org/zap"
)

// HandlerFunc is the signature shared by a Dispatcher's own Dispatch method
// and every middleware-wrapped handler around it.
type HandlerFunc func(req dispatch.Request) dispatch.Response

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, with the first in the list as the
// outermost layer (executed first on request, last on response).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Logging records the request path, flavor-independent method, status, and
// duration of every dispatched request.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(req dispatch.Request) dispatch.Response {
			start := time.Now()
			resp := next(req)
			logger.Info("dispatched",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", resp.Status),
				zap.Duration("duration", time.Since(start)),
			)
			return resp
		}
	}
}

// Timeout bounds how long a single dispatched request may run. The
// dispatched handler is not cancelled if it overruns — the timeout
// controls only how long the caller waits, not whether the underlying
// work keeps running. This is
// safe to wrap around every flavor, including ASYNCRPC: dispatch.Dispatch
// itself only submits an async job and returns, it does not block for the
// job's completion, so Timeout here bounds request handling, not job
// runtime.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(req dispatch.Request) dispatch.Response {
			done := make(chan dispatch.Response, 1)
			go func() {
				done <- next(req)
			}()
			select {
			case resp := <-done:
				return resp
			case <-time.After(timeout):
				return dispatch.Response{
					Status:      503,
					ContentType: "application/json",
					Body:        []byte(`{"status":"error","type":"OperationInProgress","message":"request exceeded the configured timeout"}`),
				}
			}
		}
	}
}
