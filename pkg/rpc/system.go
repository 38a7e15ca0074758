// Package rpc implements the RPCSystem from spec §4.3 on top of a
// pkg/pool ConnectionPool: function registration and URL minting,
// outbound calls as cancellable futures, inbound call dispatch, and a
// ping loop that declares peers with outstanding calls lost when they
// stop answering.
//
// Grounded in original_source/anycall/rpc.py's RPCSystem class (the
// local_to_remote/remote_to_local tables, _invoke_function's
// register-before-send ordering, and _ping_loop_iteration), expressed
// with context.Context for cancellation and channels for futures
// instead of Twisted Deferreds. Logging and metrics follow the
// teacher's zap/prometheus conventions, already wired through pkg/pool.
package rpc

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/anycall-go/anycall/pkg/codec"
	"github.com/anycall-go/anycall/pkg/metrics"
	"github.com/anycall-go/anycall/pkg/pool"
	"github.com/anycall-go/anycall/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPingInterval = 5 * time.Minute
	defaultPingTimeout  = 60 * time.Second
)

// pingFunctionID is the reserved _PING function id, derived the same way
// as the original's sha1-based deterministic id so every peer in a
// network agrees on it without negotiation.
var pingFunctionID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ping"))

type callKey struct {
	Peer   string
	CallID uuid.UUID
}

// RPCSystem is the top-level object applications construct: it owns a
// ConnectionPool, a function registry, and the in-flight call tables.
type RPCSystem struct {
	pool    *pool.Pool
	codec   codec.Codec
	log     *zap.Logger
	metrics *metrics.Collectors

	pingInterval time.Duration
	pingTimeout  time.Duration

	mu        sync.Mutex
	functions map[uuid.UUID]Callable
	funcIDs   map[uintptr]uuid.UUID // reflect pointer identity -> id, for GetFunctionURL idempotence

	localToRemote map[callKey]*Handle
	remoteToLocal map[callKey]context.CancelFunc

	ping      *pingLoop
	closeOnce sync.Once
}

// NewSystem builds an RPCSystem and the ConnectionPool underneath it,
// wiring the pool's inbound packet callback to the system's own
// dispatch so callers never have to do that wiring themselves.
func NewSystem(tr transport.Transport, ownID string, opts ...Option) *RPCSystem {
	s := &RPCSystem{
		codec:         codec.NewCBOR(),
		log:           zap.NewNop(),
		pingInterval:  defaultPingInterval,
		pingTimeout:   defaultPingTimeout,
		functions:     make(map[uuid.UUID]Callable),
		funcIDs:       make(map[uintptr]uuid.UUID),
		localToRemote: make(map[callKey]*Handle),
		remoteToLocal: make(map[callKey]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.functions[pingFunctionID] = s.handlePing

	var m *metrics.Collectors
	if s.metrics != nil {
		m = s.metrics
	}
	s.pool = pool.New(pool.Config{
		Transport: tr,
		OwnID:     ownID,
		OnPacket:  s.packetReceived,
		Log:       s.log,
		Metrics:   m,
	})
	return s
}

// Open registers the RPC packet type, opens the underlying pool, and
// starts the ping loop.
func (s *RPCSystem) Open() error {
	if err := s.pool.RegisterType(MessageType); err != nil {
		return err
	}
	if err := s.pool.Open(); err != nil {
		return err
	}
	s.ping = newPingLoop(s)
	s.ping.start()
	return nil
}

// Close stops the ping loop, closes the pool, and resolves every
// outstanding local-to-remote call with ErrShutdown.
func (s *RPCSystem) Close() error {
	s.closeOnce.Do(func() {
		if s.ping != nil {
			s.ping.stop()
		}
		_ = s.pool.Close()

		s.mu.Lock()
		pending := make([]*Handle, 0, len(s.localToRemote))
		for k, h := range s.localToRemote {
			pending = append(pending, h)
			delete(s.localToRemote, k)
		}
		cancels := make([]context.CancelFunc, 0, len(s.remoteToLocal))
		for k, c := range s.remoteToLocal {
			cancels = append(cancels, c)
			delete(s.remoteToLocal, k)
		}
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.LocalToRemote.Sub(float64(len(pending)))
			s.metrics.RemoteToLocal.Sub(float64(len(cancels)))
			s.metrics.CallsFailedTotal.Add(float64(len(pending)))
		}
		for _, h := range pending {
			h.resolve(nil, ErrShutdown)
		}
		for _, cancel := range cancels {
			cancel()
		}
	})
	return nil
}

// OwnID returns this system's PeerId.
func (s *RPCSystem) OwnID() string { return s.pool.OwnID() }

// GetFunctionURL registers fn (if not already registered) and returns
// the anycall:// url other peers can use to reach it. Calling it twice
// with the same callable reference returns the same url, matching
// spec §4.3's idempotence requirement; reference identity for a Go func
// value is approximated with its code pointer, which is stable across
// calls for any one closure or named function value.
func (s *RPCSystem) GetFunctionURL(fn Callable) string {
	ptr := reflect.ValueOf(fn).Pointer()
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.funcIDs[ptr]; ok {
		return buildFunctionURL(s.pool.OwnID(), id)
	}
	id := uuid.New()
	s.functions[id] = fn
	s.funcIDs[ptr] = id
	return buildFunctionURL(s.pool.OwnID(), id)
}

// CreateFunctionStub parses a function url and returns a Stub for
// invoking it. It does not contact the peer; invalid urls fail with
// ErrMalformedURL before any network activity.
func (s *RPCSystem) CreateFunctionStub(rawURL string) (*Stub, error) {
	peer, id, err := parseFunctionURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Stub{sys: s, peer: peer, id: id}, nil
}

// invokeFunction is the shared path for user Invoke calls and the ping
// loop's own pings. It inserts the call into local-to-remote before
// sending, per spec §4.3, so a reply racing the send can never be
// dropped as unknown.
func (s *RPCSystem) invokeFunction(ctx context.Context, peer string, functionID uuid.UUID, args []interface{}, kwargs map[string]interface{}) (*Handle, error) {
	callID := uuid.New()
	key := callKey{Peer: peer, CallID: callID}

	h := newHandle(func() { s.sendCancel(peer, key) })

	s.mu.Lock()
	s.localToRemote[key] = h
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.LocalToRemote.Inc()
	}

	payload, err := s.codec.Encode(envelope{Kind: kindCall, Call: &wireCall{
		CallID: callID, FunctionID: functionID, Args: args, Kwargs: kwargs,
	}})
	if err != nil {
		s.dropLocalToRemote(key)
		return nil, fmt.Errorf("rpc: encode call: %w", err)
	}

	s.log.Debug("sending call", zap.String("peer", peer), zap.String("call_id", callID.String()), zap.String("function_id", functionID.String()))
	if err := s.pool.Send(ctx, peer, MessageType, payload); err != nil {
		s.dropLocalToRemote(key)
		if s.metrics != nil {
			s.metrics.CallsFailedTotal.Inc()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CallsSentTotal.Inc()
	}
	return h, nil
}

func (s *RPCSystem) dropLocalToRemote(key callKey) {
	s.mu.Lock()
	_, ok := s.localToRemote[key]
	delete(s.localToRemote, key)
	s.mu.Unlock()
	if ok && s.metrics != nil {
		s.metrics.LocalToRemote.Dec()
	}
}

// sendCancel is the onCancel callback behind every Handle returned by
// invokeFunction: it removes the local-to-remote entry (a no-op if it
// already resolved) and best-effort notifies the peer.
func (s *RPCSystem) sendCancel(peer string, key callKey) {
	s.mu.Lock()
	_, present := s.localToRemote[key]
	delete(s.localToRemote, key)
	s.mu.Unlock()
	if !present {
		return
	}
	if s.metrics != nil {
		s.metrics.LocalToRemote.Dec()
	}
	payload, err := s.codec.Encode(envelope{Kind: kindCancel, Cancel: &wireCallCancel{CallID: key.CallID}})
	if err != nil {
		s.log.Warn("failed to encode call cancel", zap.Error(err))
		return
	}
	if err := s.pool.Send(context.Background(), peer, MessageType, payload); err != nil {
		s.log.Warn("failed to send call cancel", zap.String("peer", peer), zap.Error(err))
	}
}

func (s *RPCSystem) failLocalCall(key callKey, err error) {
	s.mu.Lock()
	h, ok := s.localToRemote[key]
	delete(s.localToRemote, key)
	s.mu.Unlock()
	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.LocalToRemote.Dec()
		s.metrics.CallsFailedTotal.Inc()
	}
	h.resolve(nil, err)
}

// packetReceived is wired as the pool's OnPacket callback: it decodes
// the envelope and dispatches to the matching handler.
func (s *RPCSystem) packetReceived(peer, typeName string, payload []byte) {
	if typeName != MessageType {
		s.log.Warn("received packet of unexpected type", zap.String("peer", peer), zap.String("type", typeName))
		return
	}
	var env envelope
	if err := s.codec.Decode(payload, &env); err != nil {
		s.log.Error("failed to decode RPC envelope", zap.String("peer", peer), zap.Error(err))
		return
	}
	s.log.Debug("received message", zap.String("peer", peer), zap.String("kind", env.Kind))
	switch env.Kind {
	case kindCall:
		s.handleCall(peer, env.Call)
	case kindReturn:
		s.handleCallReturn(peer, env.Return)
	case kindFail:
		s.handleCallFail(peer, env.Fail)
	case kindCancel:
		s.handleCallCancel(peer, env.Cancel)
	default:
		s.log.Error("received envelope of unknown kind", zap.String("peer", peer), zap.String("kind", env.Kind))
	}
}

func (s *RPCSystem) handleCall(peer string, call *wireCall) {
	s.mu.Lock()
	fn, ok := s.functions[call.FunctionID]
	s.mu.Unlock()
	if !ok {
		s.replyFail(peer, call.CallID, Failure{Kind: KindUnknownFunction, Message: call.FunctionID.String()})
		return
	}

	key := callKey{Peer: peer, CallID: call.CallID}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.remoteToLocal[key] = cancel
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RemoteToLocal.Inc()
	}

	go func() {
		defer cancel()
		retval, err := fn(ctx, call.Args, call.Kwargs)

		s.mu.Lock()
		_, present := s.remoteToLocal[key]
		delete(s.remoteToLocal, key)
		s.mu.Unlock()
		if !present {
			// Cancelled by the caller while fn was running; fn's own
			// result is moot, nothing left to reply to.
			return
		}
		if s.metrics != nil {
			s.metrics.RemoteToLocal.Dec()
		}
		if err != nil {
			s.replyFail(peer, call.CallID, captureFailure(err))
			return
		}
		s.replyReturn(peer, call.CallID, retval)
	}()
}

func (s *RPCSystem) replyReturn(peer string, callID uuid.UUID, value interface{}) {
	payload, err := s.codec.Encode(envelope{Kind: kindReturn, Return: &wireCallReturn{CallID: callID, Value: value}})
	if err != nil {
		s.log.Error("failed to encode call return", zap.Error(err))
		return
	}
	if err := s.pool.Send(context.Background(), peer, MessageType, payload); err != nil {
		s.log.Warn("failed to send call return", zap.String("peer", peer), zap.Error(err))
	}
}

func (s *RPCSystem) replyFail(peer string, callID uuid.UUID, f Failure) {
	payload, err := s.codec.Encode(envelope{Kind: kindFail, Fail: &wireCallFail{CallID: callID, Failure: f}})
	if err != nil {
		s.log.Error("failed to encode call fail", zap.Error(err))
		return
	}
	if err := s.pool.Send(context.Background(), peer, MessageType, payload); err != nil {
		s.log.Warn("failed to send call fail", zap.String("peer", peer), zap.Error(err))
	}
}

func (s *RPCSystem) handleCallReturn(peer string, ret *wireCallReturn) {
	key := callKey{Peer: peer, CallID: ret.CallID}
	s.mu.Lock()
	h, ok := s.localToRemote[key]
	delete(s.localToRemote, key)
	s.mu.Unlock()
	if !ok {
		s.log.Warn("received return for unknown call", zap.String("peer", peer), zap.String("call_id", ret.CallID.String()))
		return
	}
	if s.metrics != nil {
		s.metrics.LocalToRemote.Dec()
	}
	h.resolve(ret.Value, nil)
}

func (s *RPCSystem) handleCallFail(peer string, fail *wireCallFail) {
	key := callKey{Peer: peer, CallID: fail.CallID}
	s.mu.Lock()
	h, ok := s.localToRemote[key]
	delete(s.localToRemote, key)
	s.mu.Unlock()
	if !ok {
		s.log.Warn("received fail for unknown call", zap.String("peer", peer), zap.String("call_id", fail.CallID.String()))
		return
	}
	if s.metrics != nil {
		s.metrics.LocalToRemote.Dec()
		s.metrics.CallsFailedTotal.Inc()
	}
	h.resolve(nil, reify(fail.Failure))
}

func (s *RPCSystem) handleCallCancel(peer string, c *wireCallCancel) {
	key := callKey{Peer: peer, CallID: c.CallID}
	s.mu.Lock()
	cancel, ok := s.remoteToLocal[key]
	delete(s.remoteToLocal, key)
	s.mu.Unlock()
	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.RemoteToLocal.Dec()
	}
	cancel()
}

// handlePing is the reserved _PING function: it checks that the calling
// peer's claimed callID still has a live remote-to-local entry, i.e.
// that peer still has this process in its own local-to-remote table.
func (s *RPCSystem) handlePing(_ context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("rpc: malformed ping arguments")
	}
	senderPeer, _ := args[0].(string)
	callIDStr, _ := args[1].(string)
	callID, err := uuid.Parse(callIDStr)
	if err != nil {
		return nil, fmt.Errorf("rpc: malformed ping call id: %w", err)
	}
	key := callKey{Peer: senderPeer, CallID: callID}
	s.mu.Lock()
	_, ok := s.remoteToLocal[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no remote call %s from %s", ErrUnknownCall, callID, senderPeer)
	}
	return true, nil
}
