// Package transport defines the boundary with the bundle transport:
// opaque payload bundles addressed to ipn:<node>.<service> endpoints.
// Grounded on p2p/discover/udp.go's conn interface and readLoop/send
// split: here Adapter plays the role udp played there, and UDPTransport
// is one concrete, NAT-aware reference binding.
package transport

import "fmt"

// Endpoint identifies a service on a node.
type Endpoint struct {
	Node    uint64
	Service int
}

// String renders the endpoint in ipn URI form, e.g. "ipn:268484800.12160".
func (e Endpoint) String() string {
	return fmt.Sprintf("ipn:%d.%d", e.Node, e.Service)
}
