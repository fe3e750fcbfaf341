package client

import "fmt"

// Config is a guarded shadow namespace: it holds arbitrary client-local
// settings the caller wants to attach to the Client, but refuses to let a
// setting's name collide with a server-advertised endpoint name, so a
// typo never silently shadows a remote call.
type Config struct {
	client *Client
	values map[string]any
}

// Set stores a local setting under name. It returns an error if name is
// already bound to a discovered remote endpoint.
func (c *Config) Set(name string, value any) error {
	if _, isRemote := c.client.bindings[name]; isRemote {
		return fmt.Errorf("tarp: config key %q shadows a remote endpoint name", name)
	}
	c.values[name] = value
	return nil
}

// Get returns a previously Set value, or nil if absent.
func (c *Config) Get(name string) any {
	return c.values[name]
}
