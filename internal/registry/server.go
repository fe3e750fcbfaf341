package registry

import "sync"

// Registry is the per-server-instance endpoint table: four independent
// name maps, one per flavor, so the same name may legally (if confusingly)
// appear in more than one flavor's map.
//
// NewRegistry is the factory that gives every server its own Registry,
// so two servers built in the same process never observe each other's
// endpoints.
type Registry struct {
	mu sync.RWMutex

	get      map[string]*EndpointDescriptor
	post     map[string]*EndpointDescriptor
	rpc      map[string]*EndpointDescriptor
	asyncRPC map[string]*EndpointDescriptor
}

// NewRegistry returns a fresh, empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		get:      make(map[string]*EndpointDescriptor),
		post:     make(map[string]*EndpointDescriptor),
		rpc:      make(map[string]*EndpointDescriptor),
		asyncRPC: make(map[string]*EndpointDescriptor),
	}
}

// AddGet registers a GET resource handler. Registering a second handler
// under a name already in use for GET replaces the first.
func (r *Registry) AddGet(name string, handler GetHandler, opts ...Option) {
	d := &EndpointDescriptor{Name: name, Flavor: GET, Get: handler, Description: defaultDescription}
	for _, opt := range opts {
		opt(d)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get[name] = d
}

// AddPost registers a POST resource handler.
func (r *Registry) AddPost(name string, handler PostHandler, opts ...Option) {
	d := &EndpointDescriptor{Name: name, Flavor: POST, Post: handler, Description: defaultDescription}
	for _, opt := range opts {
		opt(d)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.post[name] = d
}

// AddRPC registers a synchronous RPC handler.
func (r *Registry) AddRPC(name string, handler RPCHandler, opts ...Option) {
	d := &EndpointDescriptor{Name: name, Flavor: RPC, RPC: handler, Description: defaultDescription}
	for _, opt := range opts {
		opt(d)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rpc[name] = d
}

// AddAsyncRPC registers an asynchronous RPC handler. Its handler is
// submitted to the server's worker pool rather than invoked inline; see
// internal/asyncjob.
func (r *Registry) AddAsyncRPC(name string, handler RPCHandler, opts ...Option) {
	d := &EndpointDescriptor{
		Name:          name,
		Flavor:        ASYNCRPC,
		RPC:           handler,
		Description:   defaultDescription,
		SuggestedWait: DefaultSuggestedWait,
	}
	for _, opt := range opts {
		opt(d)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asyncRPC[name] = d
}

const defaultDescription = "No description provided"

// LookupGet, LookupPost, LookupRPC, and LookupAsyncRPC look up a single
// endpoint by name within their flavor's map.
func (r *Registry) LookupGet(name string) (*EndpointDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.get[name]
	return d, ok
}

func (r *Registry) LookupPost(name string) (*EndpointDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.post[name]
	return d, ok
}

func (r *Registry) LookupRPC(name string) (*EndpointDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.rpc[name]
	return d, ok
}

func (r *Registry) LookupAsyncRPC(name string) (*EndpointDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.asyncRPC[name]
	return d, ok
}

// Discovery synthesizes the discovery record from the current registry
// snapshot: a map with the four flavor keys, each an ordered slice of
// endpoint summaries.
func (r *Registry) Discovery() map[string][]EndpointSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string][]EndpointSummary{
		"GET":      summarize(r.get),
		"POST":     summarizePost(r.post),
		"RPC":      summarize(r.rpc),
		"ASYNCRPC": summarizeAsync(r.asyncRPC),
	}
}

func summarize(m map[string]*EndpointDescriptor) []EndpointSummary {
	out := make([]EndpointSummary, 0, len(m))
	for _, d := range m {
		out = append(out, EndpointSummary{
			Name:        d.Name,
			Description: d.Description,
			QueryParams: d.QueryParams,
		})
	}
	return out
}

func summarizePost(m map[string]*EndpointDescriptor) []EndpointSummary {
	out := make([]EndpointSummary, 0, len(m))
	for _, d := range m {
		out = append(out, EndpointSummary{
			Name:            d.Name,
			Description:     d.Description,
			QueryParams:     d.QueryParams,
			PayloadMimetype: d.PayloadMimetype,
			PayloadSchema:   d.PayloadSchema,
		})
	}
	return out
}

func summarizeAsync(m map[string]*EndpointDescriptor) []EndpointSummary {
	out := make([]EndpointSummary, 0, len(m))
	for _, d := range m {
		out = append(out, EndpointSummary{
			Name:          d.Name,
			Description:   d.Description,
			QueryParams:   d.QueryParams,
			SuggestedWait: d.SuggestedWait.Seconds(),
		})
	}
	return out
}
