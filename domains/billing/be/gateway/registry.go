package gateway

import (
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedGateway is returned when a payment is routed to a provider
// the registry does not know. Callers must treat this as a hard failure, not
// fall back to another provider.
var ErrUnsupportedGateway = fmt.Errorf("unsupported payment gateway")

// Registry resolves provider names to clients.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds a registry from the given clients, keyed by Name().
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		if c == nil {
			panic("nil gateway client")
		}
		r.clients[strings.ToLower(c.Name())] = c
	}
	return r
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (Client, error) {
	c, ok := r.clients[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGateway, name)
	}
	return c, nil
}

// Names lists the registered providers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
