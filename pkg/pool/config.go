package pool

import (
	"github.com/anycall-go/anycall/pkg/metrics"
	"github.com/anycall-go/anycall/pkg/transport"
	"go.uber.org/zap"
)

// OnPacket is invoked for every inbound packet on a live session, tagged
// with the peer that sent it.
type OnPacket func(peer, typeName string, payload []byte)

// Config configures a Pool. All fields except Transport, OwnID and
// OnPacket have sane zero-value defaults.
type Config struct {
	// Transport dials peers and, optionally, listens for inbound
	// connections. Required.
	Transport transport.Transport

	// OwnID is this process's PeerId, sent as the handshake payload.
	// Required.
	OwnID string

	// OnPacket receives every inbound packet once its session is live.
	// Required before Open.
	OnPacket OnPacket

	Log     *zap.Logger
	Metrics *metrics.Collectors
}

func (c *Config) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop()
}
