// Package pool implements the ConnectionPool from spec §4.2: it
// multiplexes all traffic to a peer over reusable packet.Protocol
// sessions, performs the peer-identity handshake, opens connections
// lazily, and cleans up on loss.
//
// Grounded on the channel-serialized connection bookkeeping of
// pkg/connmgr/connmgr.go (the teacher's actionch pattern) and the
// register/unregister-channel event loop of neo-go's network.Server
// (other_examples AlexVanin-neo-go__pkg-network-server.go.go), adapted
// from a peer-centric blockchain server to the peer-keyed session
// multiplexer spec.md describes.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/anycall-go/anycall/pkg/packet"
	"github.com/anycall-go/anycall/pkg/transport"
	"go.uber.org/zap"
)

// Pool is the ConnectionPool of spec §4.2.
type Pool struct {
	cfg Config

	mu        sync.RWMutex
	sessions  map[string][]*session // peer -> live sessions
	active    map[*session]struct{} // every session, live or not, until closed
	typeNames map[string]struct{}
	closed    bool

	collision *packet.Protocol // used only to detect RegisterType collisions

	listener transport.Listener

	wg sync.WaitGroup // one per session, Done() in sessionDone
}

// New creates a Pool. Call RegisterType for every packet type the caller
// will send or receive, then Open.
func New(cfg Config) *Pool {
	collision := packet.New(nil)
	// Every session registers the handshake type too, so a user type whose
	// tag collides with it must be rejected here as well.
	_ = collision.RegisterType(handshakeType)
	return &Pool{
		cfg:       cfg,
		sessions:  make(map[string][]*session),
		active:    make(map[*session]struct{}),
		typeNames: make(map[string]struct{}),
		collision: collision,
	}
}

// RegisterType registers a packet type name so it may be used with Send.
// Returns ErrCollision (via packet.ErrCollision) if two distinct names
// hash to the same tag.
func (p *Pool) RegisterType(name string) error {
	if err := p.collision.RegisterType(name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typeNames[name] = struct{}{}
	return nil
}

// Open starts accepting inbound connections, if the configured Transport
// supports listening.
func (p *Pool) Open() error {
	ln, err := p.cfg.Transport.Listen(p.onAccept)
	if err != nil {
		return err
	}
	p.listener = ln
	return nil
}

func (p *Pool) onAccept(stream transport.Stream) {
	s := newSession(p, stream, "", false)
	p.trackSession(s)
	s.start()
}

func (p *Pool) trackSession(s *session) {
	p.mu.Lock()
	p.active[s] = struct{}{}
	p.mu.Unlock()
	p.wg.Add(1)
}

// Send dispatches payload under typeName to peer, opening and awaiting a
// handshake on a new session if none is currently live (spec §4.2's lazy
// connect with handshake barrier).
func (p *Pool) Send(ctx context.Context, peer, typeName string, payload []byte) error {
	s := p.liveSession(peer)
	if s == nil {
		var err error
		s, err = p.connect(ctx, peer)
		if err != nil {
			return err
		}
	}
	return s.proto.SendPacket(typeName, payload)
}

// OwnID returns this pool's configured PeerId.
func (p *Pool) OwnID() string {
	return p.cfg.OwnID
}

// EnsureConnected opens and awaits a handshake with peer if no session is
// currently live, without sending a packet. It underlies Keepalive, which
// calls it on a timer instead of synchronously with a Send.
func (p *Pool) EnsureConnected(ctx context.Context, peer string) error {
	if p.liveSession(peer) != nil {
		return nil
	}
	_, err := p.connect(ctx, peer)
	return err
}

func (p *Pool) liveSession(peer string) *session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sessions := p.sessions[peer]
	if len(sessions) == 0 {
		return nil
	}
	return sessions[0]
}

func (p *Pool) connect(ctx context.Context, peer string) (*session, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	stream, err := p.cfg.Transport.Dial(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("pool: dial %s: %w", peer, err)
	}
	s := newSession(p, stream, peer, true)
	p.trackSession(s)
	s.start()

	select {
	case err := <-s.handshakeDone:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) register(s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.peer] = append(p.sessions[s.peer], s)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.LiveSessions.Inc()
	}
}

func (p *Pool) unregister(s *session, reason error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.sessions[s.peer]
	for i, cand := range list {
		if cand == s {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.sessions, s.peer)
	} else {
		p.sessions[s.peer] = list
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.LiveSessions.Dec()
	}
}

func (p *Pool) sessionDone(s *session) {
	p.mu.Lock()
	delete(p.active, s)
	p.mu.Unlock()
	p.wg.Done()
}

// Close stops accepting new inbound sessions and new outbound connects,
// closes every live session, and returns once every session has observed
// its close event.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	allSessions := make([]*session, 0, len(p.active))
	for s := range p.active {
		allSessions = append(allSessions, s)
	}
	p.mu.Unlock()

	if p.listener != nil {
		if err := p.listener.Stop(); err != nil {
			p.cfg.logger().Warn("error stopping listener", zap.Error(err))
		}
	}
	for _, s := range allSessions {
		_ = s.stream.Close()
	}
	p.wg.Wait()
	return nil
}
