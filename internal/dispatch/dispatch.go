package dispatch

import (
	"encoding/json"
	"strconv"

	"github.com/tarp-project/tarp/internal/asyncjob"
	"github.com/tarp-project/tarp/internal/envelope"
	"github.com/tarp-project/tarp/internal/registry"
	"github.com/tarp-project/tarp/internal/rpcenc"
	"github.com/tarp-project/tarp/internal/tarperrs"
	"go.uber.org/zap"
)

// Dispatcher routes an incoming Request to the matching endpoint and
// shapes its result (or failure) into a Response.
type Dispatcher struct {
	registry *registry.Registry
	jobs     *asyncjob.Manager
	logger   *zap.Logger
}

// New builds a Dispatcher over the given registry and async-job manager.
func New(reg *registry.Registry, jobs *asyncjob.Manager, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: reg, jobs: jobs, logger: logger}
}

// Dispatch routes req to the matching handler and returns the Response to
// write back to the transport.
func (d *Dispatcher) Dispatch(req Request) Response {
	switch req.Path {
	case "":
		return d.handleDiscovery()
	case "asyncProbe":
		return d.handleAsyncProbe(req)
	case "asyncGet":
		return d.handleAsyncGet(req)
	}

	switch req.Method {
	case "GET":
		if ep, ok := d.registry.LookupGet(req.Path); ok {
			return d.invokeGetOrPost(ep, req, ep.Get)
		}
	case "POST":
		if ep, ok := d.registry.LookupRPC(req.Path); ok {
			return d.invokeRPC(ep, req, false)
		}
		if ep, ok := d.registry.LookupAsyncRPC(req.Path); ok {
			return d.invokeRPC(ep, req, true)
		}
		if ep, ok := d.registry.LookupPost(req.Path); ok {
			return d.invokeGetOrPost(ep, req, ep.Post)
		}
	}
	return notFound("Endpoint not found")
}

func (d *Dispatcher) handleDiscovery() Response {
	return jsonEnvelopeResponse(200, envelope.Success(d.registry.Discovery(), "application/json"))
}

type getOrPostHandler func(query map[string]any, body any) (any, error)

func (d *Dispatcher) invokeGetOrPost(ep *registry.EndpointDescriptor, req Request, handler getOrPostHandler) Response {
	query := FlattenQuery(req.RawQuery)
	body := ParseBody(req.Body, req.ContentType)

	result, err := handler(query, body)
	if err != nil {
		d.logger.Info("handler failed", zap.String("endpoint", ep.Name), zap.Error(err))
		return mapHandlerError(err)
	}
	return d.shapeResult(result, ep.ResultMimetype)
}

func (d *Dispatcher) shapeResult(result any, descriptorMimetype string) Response {
	mimetype := descriptorMimetype
	switch v := result.(type) {
	case RawPayload:
		return Response{Status: 200, ContentType: v.Mimetype, Body: v.Bytes}
	case map[string]any:
		if mimetype == "" {
			mimetype = "application/json"
		}
		return jsonEnvelopeResponse(200, envelope.Success(v, mimetype))
	case []any:
		if mimetype == "" {
			mimetype = "application/json"
		}
		return jsonEnvelopeResponse(200, envelope.Success(v, mimetype))
	case string:
		if mimetype == "" {
			mimetype = "text/plain"
		}
		return jsonEnvelopeResponse(200, envelope.Success(v, mimetype))
	case []byte:
		if mimetype == "" {
			mimetype = "application/octet-stream"
		}
		return jsonEnvelopeResponse(200, envelope.Success(v, mimetype))
	case nil:
		if mimetype == "" {
			mimetype = "application/json"
		}
		return jsonEnvelopeResponse(200, envelope.Success(nil, mimetype))
	default:
		return jsonEnvelopeResponse(500, envelope.Error("Unrecognized payload type", tarperrs.KindGeneric))
	}
}

// invokeRPC handles both synchronous RPC and ASYNC_RPC, which share an
// identical request frame and validation.
func (d *Dispatcher) invokeRPC(ep *registry.EndpointDescriptor, req Request, async bool) Response {
	if len(req.RawQuery) != 0 {
		return badRequest("RPC requests must not carry a query string")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(req.Body, &raw); err != nil {
		return badRequest("RPC body must be a JSON object with args and kwargs")
	}
	argsRaw, hasArgs := raw["args"]
	kwargsRaw, hasKwargs := raw["kwargs"]
	if !hasArgs || !hasKwargs || len(raw) != 2 {
		return badRequest("RPC body must contain exactly args and kwargs")
	}

	var frame rpcenc.Frame
	if err := json.Unmarshal(argsRaw, &frame.Args); err != nil {
		return badRequest("args must be a base64 string")
	}
	if err := json.Unmarshal(kwargsRaw, &frame.Kwargs); err != nil {
		return badRequest("kwargs must be a base64 string")
	}

	args, kwargs, err := rpcenc.DecodeFrame(frame)
	if err != nil {
		return badRequest(err.Error())
	}

	if async {
		job := d.jobs.Submit(func() (any, error) {
			return ep.RPC(args, kwargs)
		}, ep.SuggestedWait)
		result := map[string]any{
			"ID":             job.ID,
			"suggested_wait": job.SuggestedWait.Seconds(),
		}
		return jsonEnvelopeResponse(200, envelope.Success(result, "application/json"))
	}

	result, err := ep.RPC(args, kwargs)
	if err != nil {
		d.logger.Info("RPC handler failed", zap.String("endpoint", ep.Name), zap.Error(err))
		return mapHandlerError(err)
	}
	payload, err := rpcenc.EncodeResult(result)
	if err != nil {
		return jsonEnvelopeResponse(500, envelope.Error(err.Error(), tarperrs.KindGeneric))
	}
	return jsonEnvelopeResponse(200, envelope.Success(map[string]any{"payload": payload.Payload}, "application/json"))
}

func (d *Dispatcher) handleAsyncProbe(req Request) Response {
	if req.Method != "GET" {
		return notFound("Endpoint not found")
	}
	id := req.RawQuery.Get("UUID")
	status, wait, ok := d.jobs.Probe(id)
	if !ok {
		return notFound("Unknown job id")
	}
	result := map[string]any{
		"status":         string(status),
		"suggested_wait": wait.Seconds(),
	}
	return jsonEnvelopeResponse(200, envelope.Success(result, "application/json"))
}

func (d *Dispatcher) handleAsyncGet(req Request) Response {
	if req.Method != "GET" {
		return notFound("Endpoint not found")
	}
	id := req.RawQuery.Get("UUID")
	state, outcome := d.jobs.Get(id)

	switch state {
	case asyncjob.StateUnknown:
		return notFound("Unknown job id")
	case asyncjob.StateInProgress:
		oip := tarperrs.NewOperationInProgress("Operation not completed. Please wait.", outcome.SuggestedWait)
		return mapHandlerError(oip)
	}

	if outcome.Err != nil {
		return jsonEnvelopeResponse(500, envelope.Error(outcome.Err.Error(), tarperrs.KindGeneric))
	}
	payload, err := rpcenc.EncodeResult(outcome.Result)
	if err != nil {
		return jsonEnvelopeResponse(500, envelope.Error(err.Error(), tarperrs.KindGeneric))
	}
	return jsonEnvelopeResponse(200, envelope.Success(map[string]any{"payload": payload.Payload}, "application/json"))
}

func mapHandlerError(err error) Response {
	kind, message, retryAfter := tarperrs.Classify(err)
	switch kind {
	case tarperrs.KindOperationInProgress:
		resp := jsonEnvelopeResponse(503, envelope.Error(message, kind))
		resp.Headers = map[string]string{"Retry-After": strconv.Itoa(int(retryAfter.Seconds()))}
		return resp
	case tarperrs.KindInvalidServerState:
		return jsonEnvelopeResponse(503, envelope.Error(message, kind))
	default:
		return jsonEnvelopeResponse(500, envelope.Error(message, tarperrs.KindGeneric))
	}
}

func notFound(message string) Response {
	return jsonEnvelopeResponse(404, envelope.Error(message, tarperrs.KindGeneric))
}

func badRequest(message string) Response {
	return jsonEnvelopeResponse(400, envelope.Error(message, tarperrs.KindGeneric))
}

func jsonEnvelopeResponse(status int, env envelope.Envelope) Response {
	body, err := json.Marshal(env)
	if err != nil {
		// Marshaling our own Envelope type cannot fail in practice (it
		// holds only JSON-safe leaves); fall back to a minimal generic
		// error body rather than panicking the request goroutine.
		body = []byte(`{"status":"error","type":"generic","message":"failed to encode response"}`)
		status = 500
	}
	return Response{Status: status, ContentType: "application/json", Body: body}
}
