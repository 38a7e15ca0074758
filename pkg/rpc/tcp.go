package rpc

import (
	"fmt"

	"github.com/anycall-go/anycall/pkg/transport"
)

// NewTCPSystem builds an RPCSystem over a plain TCP transport listening
// on port, with ownID defaulting to the advertise address peers should
// dial to reach it. It mirrors rpc.py's create_tcp_rpc_system
// convenience constructor: most programs need nothing fancier than "a
// TCP listener on this port, addressed as host:port".
func NewTCPSystem(advertiseHost string, port int, opts ...Option) *RPCSystem {
	ownID := fmt.Sprintf("%s:%d", advertiseHost, port)
	tr := &transport.TCP{ListenAddr: fmt.Sprintf(":%d", port)}
	return NewSystem(tr, ownID, opts...)
}
