package transport

import (
	"context"
	"net"

	"go.uber.org/zap"
)

// TCP is the reference transport from spec §6: peer addresses are
// "host:port" strings, Dial opens a TCP connection, and Listen binds the
// configured port. Grounded in the accept-loop shape of
// other_examples tcp_transport.go (inagib21/DistributedFileStorageGo),
// adapted to the Transport interface instead of a custom RPC channel.
type TCP struct {
	// ListenAddr is passed to net.Listen, e.g. ":4000". Leave empty to
	// disable listening (client-only node).
	ListenAddr string
	Log        *zap.Logger
}

type tcpListener struct {
	ln net.Listener
}

func (l *tcpListener) Stop() error {
	return l.ln.Close()
}

// Listen implements Transport.
func (t *TCP) Listen(onStream func(Stream)) (Listener, error) {
	if t.ListenAddr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", t.ListenAddr)
	if err != nil {
		return nil, err
	}
	go t.acceptLoop(ln, onStream)
	return &tcpListener{ln: ln}, nil
}

func (t *TCP) acceptLoop(ln net.Listener, onStream func(Stream)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.Log != nil {
				t.Log.Debug("tcp accept loop stopped", zap.Error(err))
			}
			return
		}
		onStream(conn)
	}
}

// Dial implements Transport.
func (t *TCP) Dial(ctx context.Context, peer string) (Stream, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", peer)
}
