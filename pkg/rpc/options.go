package rpc

import (
	"time"

	"github.com/anycall-go/anycall/pkg/codec"
	"github.com/anycall-go/anycall/pkg/metrics"
	"go.uber.org/zap"
)

// Option configures an RPCSystem at construction.
type Option func(*RPCSystem)

// WithCodec overrides the default CBOR wire codec.
func WithCodec(c codec.Codec) Option {
	return func(s *RPCSystem) { s.codec = c }
}

// WithLogger attaches structured logging. A nil logger keeps the default
// no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *RPCSystem) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *metrics.Collectors) Option {
	return func(s *RPCSystem) { s.metrics = m }
}

// WithPingInterval overrides the default time between liveness checks on
// every peer with an outstanding local-to-remote call.
func WithPingInterval(d time.Duration) Option {
	return func(s *RPCSystem) { s.pingInterval = d }
}

// WithPingTimeout overrides how long a single ping round trip (send plus
// reply) may take before the peer is declared lost.
func WithPingTimeout(d time.Duration) Option {
	return func(s *RPCSystem) { s.pingTimeout = d }
}
