package registry

// Option customizes an EndpointDescriptor at registration time.
type Option func(*EndpointDescriptor)

// WithDescription overrides the default description (the handler's
// docstring has no Go equivalent, so callers that want one set it
// explicitly; otherwise a generic placeholder is used).
func WithDescription(description string) Option {
	return func(d *EndpointDescriptor) { d.Description = description }
}

// WithResultMimetype overrides the mimetype chosen automatically from the
// handler's return value at dispatch time.
func WithResultMimetype(mimetype string) Option {
	return func(d *EndpointDescriptor) { d.ResultMimetype = mimetype }
}

// WithQueryParams attaches documentation-only query parameter metadata.
func WithQueryParams(params ...ParamDescriptor) Option {
	return func(d *EndpointDescriptor) { d.QueryParams = params }
}

// WithPayloadMimetype documents the expected POST payload mimetype.
func WithPayloadMimetype(mimetype string) Option {
	return func(d *EndpointDescriptor) { d.PayloadMimetype = mimetype }
}

// WithPayloadSchema attaches a documentation-only POST payload schema.
func WithPayloadSchema(schema any) Option {
	return func(d *EndpointDescriptor) { d.PayloadSchema = schema }
}

// WithSuggestedWait overrides the default polling hint advertised to
// clients of an ASYNC_RPC endpoint.
func WithSuggestedWait(seconds float64) Option {
	return func(d *EndpointDescriptor) {
		d.SuggestedWait = durationFromSeconds(seconds)
	}
}
