// Package resolver implements the fan-out fetcher the syncer uses to
// backfill missing artifacts from peers (spec.md §4.6). It is polymorphic
// over key.Key and talks to the core only through two narrow interfaces —
// Sender (send a request to a specific peer, the out-of-scope P2P
// transport) and Deliverer (produce bytes to serve a peer, validate bytes
// a peer sent us) — so it never depends on the archive types directly.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/tokenbucket"
	"github.com/luxfi/alto/key"
	"github.com/luxfi/alto/logging"
	"github.com/luxfi/alto/metrics"
	"github.com/luxfi/ids"
	"go.uber.org/zap"
)

// Sender delivers an outbound fetch request for k to peer and returns the
// response bytes, or an error (timeout, peer unreachable, ...). It is the
// resolver's only dependency on the P2P transport, which is out of scope
// for this module (spec.md §1).
type Sender interface {
	Send(ctx context.Context, peer ids.NodeID, k key.Key) ([]byte, error)
}

// PeerSource supplies the current peer set to fan requests out over.
type PeerSource interface {
	Peers() []ids.NodeID
}

// Deliverer is what the resolver requires from the core: produce bytes to
// answer a peer's request, and validate+consume bytes a peer sent us.
type Deliverer interface {
	// Produce returns the bytes to serve for k, or ok=false if we don't
	// have it (the transport then sends an empty response).
	Produce(ctx context.Context, k key.Key) (data []byte, ok bool)
	// Deliver validates and stores data for k, returning whether it
	// validated. false causes the resolver to retry with another peer.
	Deliver(ctx context.Context, k key.Key, data []byte) bool
}

// Config carries the resolver's rate-limit/retry/concurrency tunables
// (spec.md §6).
type Config struct {
	BackfillQuota   int // tokens/sec/peer
	InitialTimeout  time.Duration
	RequestTimeout  time.Duration
	RetryFloor      time.Duration
	FetchConcurrent int
}

type task struct {
	key      key.Key
	cancelCh chan struct{}
	canceled bool
}

// Resolver fetches keys from peers with per-peer rate limiting, retry with
// a backoff floor, bounded outstanding concurrency, and coalesced
// duplicate fetches.
type Resolver struct {
	cfg       Config
	sender    Sender
	peers     PeerSource
	deliverer Deliverer
	log       logging.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	inflight map[key.Key]*task
	queue    chan *task
	limiters map[ids.NodeID]*tokenbucket.TokenBucket
	rrIndex  int

	wg   sync.WaitGroup
	done chan struct{}
}

// New constructs a Resolver and starts its worker pool. Callers must call
// Close to stop the workers.
func New(cfg Config, sender Sender, peers PeerSource, deliverer Deliverer, log logging.Logger, m *metrics.Metrics) *Resolver {
	r := &Resolver{
		cfg:       cfg,
		sender:    sender,
		peers:     peers,
		deliverer: deliverer,
		log:       log,
		metrics:   m,
		inflight:  make(map[key.Key]*task),
		queue:     make(chan *task, 4096),
		limiters:  make(map[ids.NodeID]*tokenbucket.TokenBucket),
		done:      make(chan struct{}),
	}
	for i := 0; i < cfg.FetchConcurrent; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Fetch enqueues a fetch for k if one is not already outstanding (duplicate
// fetches for the same key are coalesced, spec.md §4.6).
func (r *Resolver) Fetch(k key.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inflight[k]; ok {
		return
	}
	t := &task{key: k, cancelCh: make(chan struct{})}
	r.inflight[k] = t
	select {
	case r.queue <- t:
	default:
		// Queue is full; drop the inflight marker so a later Fetch can
		// retry rather than silently never enqueueing.
		delete(r.inflight, k)
	}
}

// Cancel removes k from the queue and drops any in-flight waiter
// best-effort: a response already in transit may still arrive and be
// delivered, but nothing awaits it (spec.md §5).
func (r *Resolver) Cancel(k key.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.inflight[k]
	if !ok {
		return
	}
	if !t.canceled {
		t.canceled = true
		close(t.cancelCh)
	}
	delete(r.inflight, k)
}

// HandleRequest answers an inbound peer request for k, called by the
// transport layer when a peer asks us for something.
func (r *Resolver) HandleRequest(ctx context.Context, k key.Key) ([]byte, bool) {
	return r.deliverer.Produce(ctx, k)
}

func (r *Resolver) nextPeer() (ids.NodeID, bool) {
	peers := r.peers.Peers()
	if len(peers) == 0 {
		return ids.NodeID{}, false
	}
	r.mu.Lock()
	idx := r.rrIndex % len(peers)
	r.rrIndex++
	r.mu.Unlock()
	return peers[idx], true
}

func (r *Resolver) limiterFor(peer ids.NodeID) *tokenbucket.TokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	tb, ok := r.limiters[peer]
	if !ok {
		tb = &tokenbucket.TokenBucket{}
		tb.Init(tokenbucket.Rate(r.cfg.BackfillQuota), tokenbucket.Tokens(r.cfg.BackfillQuota))
		r.limiters[peer] = tb
	}
	return tb
}

func (r *Resolver) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case t := <-r.queue:
			r.process(t)
		}
	}
}

func (r *Resolver) process(t *task) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.RetryFloor
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0 // retry until canceled

	first := true
	for {
		select {
		case <-t.cancelCh:
			return
		case <-r.done:
			return
		default:
		}

		peer, ok := r.nextPeer()
		if !ok {
			r.sleep(t, bo.NextBackOff())
			continue
		}

		limiter := r.limiterFor(peer)
		if granted, _ := limiter.TryToFetch(1); !granted {
			r.sleep(t, r.cfg.RetryFloor)
			continue
		}

		timeout := r.cfg.RequestTimeout
		if first {
			timeout = r.cfg.InitialTimeout
		}
		first = false

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		start := time.Now()
		data, err := r.sender.Send(ctx, peer, t.key)
		cancel()
		if r.metrics != nil {
			r.metrics.FetchLatency.Observe(float64(time.Since(start).Milliseconds()))
		}
		if err != nil {
			r.log.Debug("resolver fetch failed", zap.String("key", t.key.String()), zap.Stringer("peer", peer), zap.Error(err))
			if r.metrics != nil {
				r.metrics.ResolverRetries.Inc()
			}
			r.sleep(t, bo.NextBackOff())
			continue
		}

		valid := r.deliverer.Deliver(context.Background(), t.key, data)
		if !valid {
			r.log.Debug("resolver delivery rejected", zap.String("key", t.key.String()), zap.Stringer("peer", peer))
			if r.metrics != nil {
				r.metrics.ResolverRetries.Inc()
			}
			r.sleep(t, bo.NextBackOff())
			continue
		}

		r.mu.Lock()
		delete(r.inflight, t.key)
		r.mu.Unlock()
		return
	}
}

func (r *Resolver) sleep(t *task, d time.Duration) {
	if d < r.cfg.RetryFloor {
		d = r.cfg.RetryFloor
	}
	select {
	case <-time.After(d):
	case <-t.cancelCh:
	case <-r.done:
	}
}

// Close stops every worker. In-flight sends are not interrupted, matching
// cancel's best-effort contract.
func (r *Resolver) Close() {
	close(r.done)
	r.wg.Wait()
}
