package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/anycall-go/anycall/pkg/packet"
	"github.com/anycall-go/anycall/pkg/transport"
	"go.uber.org/zap"
)

// handshakeType is the reserved packet type carrying each side's PeerId,
// named __pool_handshake per spec §4.2.
const handshakeType = "__pool_handshake"

type sessionState int32

const (
	statePreHandshake sessionState = iota
	stateLive
	stateDead
)

// session wraps one packet.Protocol instance over one transport.Stream.
// It implements the state machine from spec §4.2's table: PRE_HANDSHAKE
// until a matching handshake is received, then LIVE until the stream is
// lost or a protocol violation is detected.
type session struct {
	pool   *Pool
	stream transport.Stream
	proto  *packet.Protocol

	// expectedPeer is set for outbound connects that declared which peer
	// they expect to reach; empty for inbound sessions and for outbound
	// connects to an as-yet-unknown peer.
	expectedPeer string
	outbound     bool

	peer string // valid once state >= stateLive

	state      int32 // sessionState, accessed atomically
	registered bool  // true once the pool has added this session to its live list

	handshakeDone chan error // buffered(1); sent to exactly once
	failReason    error
}

func newSession(p *Pool, stream transport.Stream, expectedPeer string, outbound bool) *session {
	s := &session{
		pool:          p,
		stream:        stream,
		expectedPeer:  expectedPeer,
		outbound:      outbound,
		handshakeDone: make(chan error, 1),
	}
	s.proto = packet.New(stream)
	// Registration errors here can only be collisions already caught by
	// Pool.RegisterType, so they are unreachable in practice; surfacing
	// them would require changing ReadLoop's signature for no benefit.
	_ = s.proto.RegisterType(handshakeType)
	p.mu.RLock()
	for name := range p.typeNames {
		_ = s.proto.RegisterType(name)
	}
	p.mu.RUnlock()
	return s
}

func (s *session) start() {
	go s.run()
}

func (s *session) run() {
	// The handshake is written from its own goroutine so ReadLoop is
	// already draining the stream: on an unbuffered stream (net.Pipe) two
	// ends that both write before reading would block each other forever.
	go func() {
		if err := s.proto.SendPacket(handshakeType, []byte(s.pool.cfg.OwnID)); err != nil {
			s.finishHandshake(err)
			_ = s.stream.Close()
		}
	}()
	err := s.proto.ReadLoop(s.stream, s.onPacket)
	s.close(err)
}

func (s *session) onPacket(name string, payload []byte) {
	if name == handshakeType {
		s.handleHandshake(string(payload))
		return
	}
	if sessionState(atomic.LoadInt32(&s.state)) != stateLive {
		s.fail(fmt.Errorf("%w: expected handshake, got %q", ErrProtocol, name))
		return
	}
	s.pool.cfg.OnPacket(s.peer, name, payload)
}

func (s *session) handleHandshake(peerID string) {
	state := sessionState(atomic.LoadInt32(&s.state))
	if state == stateLive {
		s.fail(fmt.Errorf("%w: duplicate handshake from %q", ErrProtocol, peerID))
		return
	}
	if s.expectedPeer != "" && s.expectedPeer != peerID {
		s.fail(fmt.Errorf("%w: expected %q, got %q", ErrPeerMismatch, s.expectedPeer, peerID))
		return
	}
	s.peer = peerID
	atomic.StoreInt32(&s.state, int32(stateLive))
	s.pool.register(s)
	s.registered = true
	s.finishHandshake(nil)
}

// fail marks the session as failed with err and closes its stream, which
// drives ReadLoop to return and session.close to run.
func (s *session) fail(err error) {
	s.failReason = err
	s.finishHandshake(err)
	_ = s.stream.Close()
}

func (s *session) finishHandshake(err error) {
	select {
	case s.handshakeDone <- err:
	default:
		// Already resolved (e.g. a prior fail() beat us to it).
	}
}

// close runs once ReadLoop returns, on either a transport error or a
// fail()-triggered stream close.
func (s *session) close(readErr error) {
	atomic.StoreInt32(&s.state, int32(stateDead))
	reason := s.failReason
	if reason == nil {
		reason = readErr
	}
	s.finishHandshake(reason)
	if s.registered {
		s.pool.unregister(s, reason)
	}
	s.pool.cfg.logger().Debug("session closed",
		zap.String("peer", s.peer), zap.Bool("outbound", s.outbound), zap.Error(reason))
	s.pool.sessionDone(s)
}
