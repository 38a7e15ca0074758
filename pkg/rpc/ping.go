package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// pingLoop periodically checks every outstanding local-to-remote call by
// invoking the reserved _PING function with that call's own (peer,
// callid), per spec §4.3. A non-reply within pingTimeout means the peer
// itself is unreachable and fails every call still outstanding to it; an
// explicit negative reply (UnknownCall) means only that one call is no
// longer recognized by the peer and fails just that call, leaving its
// other in-flight calls to that same peer untouched. Grounded in
// rpc.py's _ping_loop_iteration, which pings per (peerid, callid) and
// lets timeout_deferred turn a stalled reply into a failure of that call
// alone.
type pingLoop struct {
	sys *RPCSystem

	stopCh chan struct{}
	doneCh chan struct{}
}

func newPingLoop(s *RPCSystem) *pingLoop {
	return &pingLoop{
		sys:    s,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (pl *pingLoop) start() { go pl.run() }

func (pl *pingLoop) stop() {
	close(pl.stopCh)
	<-pl.doneCh
}

func (pl *pingLoop) run() {
	defer close(pl.doneCh)
	timer := time.NewTimer(pl.sys.pingInterval)
	defer timer.Stop()
	for {
		select {
		case <-pl.stopCh:
			return
		case <-timer.C:
			pl.iteration()
			timer.Reset(pl.sys.pingInterval)
		}
	}
}

// iteration pings every (peer, callid) currently outstanding,
// concurrently, and waits for all of them before the next tick can
// start — overlapping ticks are never allowed to pile up concurrent
// pings against the same call.
func (pl *pingLoop) iteration() {
	s := pl.sys

	s.mu.Lock()
	keys := make([]callKey, 0, len(s.localToRemote))
	for k := range s.localToRemote {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k callKey) {
			defer wg.Done()
			pl.pingCall(k)
		}(k)
	}
	wg.Wait()
}

// pingCall sends one _PING naming k, and interprets the outcome
// according to what it means: a send failure or timeout means the peer
// itself is unreachable, failing every call outstanding to it; an
// explicit negative reply means only k is no longer recognized by the
// peer, failing k alone.
func (pl *pingLoop) pingCall(k callKey) {
	s := pl.sys

	// k may have already resolved between iteration's snapshot and now.
	s.mu.Lock()
	_, stillPending := s.localToRemote[k]
	s.mu.Unlock()
	if !stillPending {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.pingTimeout)
	defer cancel()

	h, err := s.invokeFunction(ctx, k.Peer, pingFunctionID, []interface{}{s.pool.OwnID(), k.CallID.String()}, nil)
	if err != nil {
		pl.declareLost(k.Peer, fmt.Errorf("%w: %v", ErrLostPeer, err))
		pl.recordFailure()
		return
	}

	select {
	case <-h.Done():
		if _, perr := h.Wait(context.Background()); perr != nil {
			s.log.Debug("ping answered negatively", zap.String("peer", k.Peer), zap.String("call_id", k.CallID.String()), zap.Error(perr))
			s.failLocalCall(k, perr)
			pl.recordFailure()
			return
		}
		s.log.Debug("received pong", zap.String("peer", k.Peer), zap.String("call_id", k.CallID.String()))
		pl.recordSuccess()
	case <-ctx.Done():
		h.Cancel()
		pl.declareLost(k.Peer, fmt.Errorf("%w: ping to %s timed out", ErrLostPeer, k.Peer))
		pl.recordFailure()
	}
}

// declareLost fails every local-to-remote call still addressed to peer.
func (pl *pingLoop) declareLost(peer string, err error) {
	s := pl.sys
	s.mu.Lock()
	keys := make([]callKey, 0)
	for k := range s.localToRemote {
		if k.Peer == peer {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.failLocalCall(k, err)
	}
}

func (pl *pingLoop) recordSuccess() {
	if pl.sys.metrics != nil {
		pl.sys.metrics.PingSuccessTotal.Inc()
	}
}

func (pl *pingLoop) recordFailure() {
	if pl.sys.metrics != nil {
		pl.sys.metrics.PingFailureTotal.Inc()
	}
}
