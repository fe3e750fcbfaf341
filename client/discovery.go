package client

import (
	"strings"

	"github.com/tarp-project/tarp/internal/registry"
)

// binding is the client-side record of a single discovered endpoint: its
// advertised flavor and name-normalized identifier.
type binding struct {
	name    string // server-advertised name, e.g. "some/endpoint"
	ident   string // normalized identifier, e.g. "some_endpoint"
	flavor  registry.Flavor
	summary registry.EndpointSummary
}

// normalizeName translates server-advertised names (which may contain
// slashes) into an identifier safe to use as a Go map key or a generated
// method name, by substituting underscores for slashes.
func normalizeName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// discoveryRecord is the wire shape of GET / — a map of flavor name to
// ordered endpoint summaries. It mirrors internal/registry.Registry.Discovery
// exactly since both ends share the same JSON field names.
type discoveryRecord map[string][]registry.EndpointSummary

func buildBindings(record discoveryRecord) map[string]*binding {
	out := make(map[string]*binding)
	for flavorKey, summaries := range record {
		flavor := registry.Flavor(flavorKey)
		for _, summary := range summaries {
			b := &binding{
				name:    summary.Name,
				ident:   normalizeName(summary.Name),
				flavor:  flavor,
				summary: summary,
			}
			out[b.name] = b
		}
	}
	return out
}
