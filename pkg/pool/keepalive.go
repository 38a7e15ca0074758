package pool

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Keepalive dials each of a fixed set of peers as soon as it starts,
// redialing with capped linear backoff while a dial fails. spec §4.2's
// pool itself is purely reactive (connect lazily, on demand); Keepalive
// lets a long-lived process open sessions to specific peers without
// waiting for an outbound Send to trigger the first dial. Once a dial to
// a peer has succeeded that peer is not watched further: a session that
// drops later is not redialed by Keepalive.
//
// Adapted from pkg/connmgr/connmgr.go's actionch-serialized retry loop:
// the same split between a dial goroutine per request and a single
// channel serializing retry-count bookkeeping, with the original's
// seed-address bootstrapping (GetAddress) dropped since peers here are
// already named by PeerId rather than resolved from an address pool.
type Keepalive struct {
	pool *Pool
	log  *zap.Logger

	peers    []string
	actionch chan func()
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopped  int32
}

const (
	keepaliveDialTimeout = 5 * time.Second
	keepaliveBackoffUnit = 2 * time.Second
	keepaliveMaxBackoff  = 8 // retries beyond this keep retrying at the same capped interval
)

// NewKeepalive builds a Keepalive for pool over the given set of peers.
// Call Start once the pool is open.
func NewKeepalive(p *Pool, peers []string) *Keepalive {
	return &Keepalive{
		pool:     p,
		log:      p.cfg.logger(),
		peers:    peers,
		actionch: make(chan func(), 64),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins dialing every configured peer and launches the retry
// bookkeeping loop.
func (k *Keepalive) Start() {
	go k.loop()
	for _, peer := range k.peers {
		r := &keepaliveRequest{peer: peer}
		go k.connect(r)
	}
}

// Stop ends the retry loop. Backoff timers that fire afterwards see the
// stop flag and do nothing; a dial already in flight runs to completion,
// but its retry bookkeeping is never run.
func (k *Keepalive) Stop() {
	atomic.StoreInt32(&k.stopped, 1)
	close(k.stopCh)
	<-k.doneCh
}

func (k *Keepalive) loop() {
	defer close(k.doneCh)
	for {
		select {
		case f := <-k.actionch:
			f()
		case <-k.stopCh:
			return
		}
	}
}

type keepaliveRequest struct {
	peer    string
	retries int
}

func (k *Keepalive) connect(r *keepaliveRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), keepaliveDialTimeout)
	defer cancel()

	err := k.pool.EnsureConnected(ctx, r.peer)
	if err == nil {
		k.actionch <- func() { r.retries = 0 }
		return
	}

	k.log.Debug("keepalive dial failed", zap.String("peer", r.peer), zap.Error(err))
	k.actionch <- func() {
		if r.retries < keepaliveMaxBackoff {
			r.retries++
		}
		delay := time.Duration(r.retries) * keepaliveBackoffUnit
		time.AfterFunc(delay, func() { k.retry(r) })
	}
}

func (k *Keepalive) retry(r *keepaliveRequest) {
	if atomic.LoadInt32(&k.stopped) == 1 {
		return
	}
	go k.connect(r)
}
