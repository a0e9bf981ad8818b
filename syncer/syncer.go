// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package syncer implements the marshal actor (spec.md §4.7): the heart of
// the node. It owns every archive, the metadata cursor, and the resolver
// handle, and runs a single-consumer select loop with strict priority
// order — consensus mailbox, then finalizer orchestration, then resolver
// I/O — so backfill traffic never starves consensus progress. The
// finalizer itself runs as a second task (finalizer.go) communicating over
// a bounded orchestration channel plus a one-deep poke signal.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/alto/archive"
	"github.com/luxfi/alto/block"
	"github.com/luxfi/alto/buffer"
	"github.com/luxfi/alto/indexer"
	"github.com/luxfi/alto/key"
	"github.com/luxfi/alto/logging"
	"github.com/luxfi/alto/metrics"
	"github.com/luxfi/alto/signer"
	"github.com/luxfi/cache"
	"github.com/luxfi/ids"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// produceCacheOverhead approximates the per-entry bookkeeping cost the
// sizedLRU in produceCache charges against its byte budget, on top of the
// serving bundle's own length.
const produceCacheOverhead = 64

// Broadcaster is the syncer's only dependency on the P2P transport, which
// is out of scope for this module (spec.md §1): fire-and-forget gossip of
// a freshly built block.
type Broadcaster interface {
	Broadcast(ctx context.Context, blk *block.Block)
}

// ResolverHandle is what the syncer needs from the resolver: enqueue a
// fetch, or drop one that became obsolete. Satisfied by *resolver.Resolver.
type ResolverHandle interface {
	Fetch(k key.Key)
	Cancel(k key.Key)
}

// Archives bundles the four storage handles the syncer owns (spec.md §3,
// §4.4, §4.5): two prunable, view-indexed tiers for pre-finalization
// artifacts, and two immutable, height-indexed tiers for finalized ones.
type Archives struct {
	Verified  *archive.Prunable  // view → verified block bytes
	Notarized *archive.Prunable  // view → Notarized bundle bytes
	Finalized *archive.Immutable // height → Finalization proof bytes
	Blocks    *archive.Immutable // height → Block bytes
	Metadata  *archive.Metadata
}

// Config carries the syncer's tunables (spec.md §6).
type Config struct {
	ActivityTimeout   uint64 // views to retain behind last_view_processed
	MaxRepair         int    // widest height range a single Repair enqueues
	ProduceCacheBytes int    // bound on handleProduce's served-bundle cache
}

// Syncer is the marshal actor.
type Syncer struct {
	cfg      Config
	archives Archives
	buf      *buffer.Buffer
	resolver ResolverHandle
	indexer  indexer.Client
	gossip   Broadcaster
	identity *signer.Identity
	log      logging.Logger
	metrics  *metrics.Metrics

	mailbox   chan consensusMsg
	orchCh    chan orchMsg
	produceCh chan produceJob
	deliverCh chan deliverJob
	pokeCh    chan struct{}

	// produceCache holds recently-served bundle bytes for handleProduce,
	// so a burst of peers backfilling the same view or height during a
	// partition doesn't re-read the same archive entry once per requester.
	produceCache cache.Cacher[key.Key, []byte]

	// actor-private state; touched only from the select loop goroutine.
	latestView          uint64
	lastViewProcessed   uint64
	outstandingNotarize *orderedSet
	requestedBlocks     *orderedSet

	wg sync.WaitGroup
}

type produceJob struct {
	key   key.Key
	reply chan produceResult
}

type produceResult struct {
	data []byte
	ok   bool
}

type deliverJob struct {
	key   key.Key
	data  []byte
	reply chan bool
}

// New constructs a Syncer. Callers must call Run, and run a Finalizer
// (NewFinalizer, then Finalizer.Run) against it.
func New(cfg Config, archives Archives, buf *buffer.Buffer, resolver ResolverHandle, idx indexer.Client, gossip Broadcaster, identity *signer.Identity, log logging.Logger, m *metrics.Metrics, mailboxSize int) *Syncer {
	cacheBytes := cfg.ProduceCacheBytes
	if cacheBytes <= 0 {
		cacheBytes = 8 << 20
	}
	return &Syncer{
		cfg:                 cfg,
		archives:            archives,
		buf:                 buf,
		resolver:            resolver,
		indexer:             idx,
		gossip:              gossip,
		identity:            identity,
		log:                 log,
		metrics:             m,
		mailbox:             make(chan consensusMsg, mailboxSize),
		orchCh:              make(chan orchMsg, 2),
		produceCh:           make(chan produceJob),
		deliverCh:           make(chan deliverJob),
		pokeCh:              make(chan struct{}, 1),
		outstandingNotarize: newOrderedSet(),
		requestedBlocks:     newOrderedSet(),
		produceCache: cache.NewSizedLRU[key.Key, []byte](cacheBytes, func(_ key.Key, v []byte) int {
			return len(v) + produceCacheOverhead
		}),
	}
}

// --- Public API: consensus side (application.Syncer + resolver's transport) ---

// Broadcast enqueues a gossip request for blk.
func (s *Syncer) Broadcast(blk *block.Block) {
	s.mailbox <- consensusMsg{broadcast: &BroadcastMsg{Block: blk}}
}

// Verified enqueues notice that blk was accepted for view.
func (s *Syncer) Verified(view uint64, blk *block.Block) {
	s.mailbox <- consensusMsg{verified: &VerifiedMsg{View: view, Block: blk}}
}

// Notarization enqueues a gathered notarization.
func (s *Syncer) Notarization(n *block.Notarization) {
	s.mailbox <- consensusMsg{notarization: &NotarizationMsg{N: n}}
}

// Finalization enqueues a gathered finalization.
func (s *Syncer) Finalization(f *block.Finalization) {
	s.mailbox <- consensusMsg{finalization: &FinalizationMsg{F: f}}
}

// Get resolves digest to a block, optionally scoped to view. It blocks
// until the block is found locally or is later added to the broadcast
// buffer, or ctx is canceled. A view also triggers a resolver fetch of the
// notarized bundle, but a block that arrives that way lands in the
// notarized archive and does not complete an already-pending Get.
func (s *Syncer) Get(ctx context.Context, view *uint64, digest ids.ID) (*block.Block, bool) {
	reply := make(chan *block.Block, 1)
	select {
	case s.mailbox <- consensusMsg{get: &GetMsg{View: view, Payload: digest, Reply: reply}}:
	case <-ctx.Done():
		return nil, false
	}
	select {
	case blk := <-reply:
		return blk, blk != nil
	case <-ctx.Done():
		return nil, false
	}
}

// Buffer exposes the broadcast buffer so the (out-of-scope) P2P layer can
// record inbound gossip directly, without routing through the mailbox
// (spec.md §4.3 add(sender, block) is a buffer-level operation).
func (s *Syncer) Buffer() *buffer.Buffer { return s.buf }

// Produce implements resolver.Deliverer: answer a peer's request for k.
func (s *Syncer) Produce(ctx context.Context, k key.Key) ([]byte, bool) {
	reply := make(chan produceResult, 1)
	select {
	case s.produceCh <- produceJob{key: k, reply: reply}:
	case <-ctx.Done():
		return nil, false
	}
	select {
	case res := <-reply:
		return res.data, res.ok
	case <-ctx.Done():
		return nil, false
	}
}

// Deliver implements resolver.Deliverer: validate and store a peer's
// response to our own fetch of k.
func (s *Syncer) Deliver(ctx context.Context, k key.Key, data []byte) bool {
	reply := make(chan bool, 1)
	select {
	case s.deliverCh <- deliverJob{key: k, data: data, reply: reply}:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// --- The select loop ---

// Run drains the syncer's three input channels until ctx is canceled, in
// strict priority order: consensus mailbox, finalizer orchestration,
// resolver I/O (spec.md §4.7, §5).
func (s *Syncer) Run(ctx context.Context) {
	defer s.wg.Wait()
	for {
		s.pruneOutstanding()

		select {
		case m := <-s.mailbox:
			s.handleConsensus(ctx, m)
			continue
		default:
		}
		select {
		case m := <-s.orchCh:
			s.handleOrch(ctx, m)
			continue
		default:
		}
		select {
		case m := <-s.mailbox:
			s.handleConsensus(ctx, m)
		case m := <-s.orchCh:
			s.handleOrch(ctx, m)
		case j := <-s.produceCh:
			s.handleProduce(ctx, j)
		case j := <-s.deliverCh:
			s.handleDeliver(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

// pruneOutstanding cancels any backfill requests for views that fell below
// latest_view since the last iteration (spec.md §4.7, §5).
func (s *Syncer) pruneOutstanding() {
	for _, v := range s.outstandingNotarize.removeBelow(s.latestView) {
		s.resolver.Cancel(key.Notarized(v))
	}
}

func (s *Syncer) fatal(op string, err error) {
	s.log.Error("fatal archive error, aborting", zap.String("op", op), zap.Error(err))
	panic(fmt.Errorf("syncer: fatal archive error during %s: %w", op, err))
}

func (s *Syncer) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// --- Consensus-mailbox handlers (spec.md §4.7.1) ---

func (s *Syncer) handleConsensus(ctx context.Context, m consensusMsg) {
	switch {
	case m.broadcast != nil:
		s.handleBroadcast(ctx, m.broadcast)
	case m.verified != nil:
		s.handleVerified(m.verified)
	case m.notarization != nil:
		s.handleNotarization(ctx, m.notarization)
	case m.finalization != nil:
		s.handleFinalization(ctx, m.finalization)
	case m.get != nil:
		s.handleGet(ctx, m.get)
	}
}

func (s *Syncer) handleBroadcast(ctx context.Context, m *BroadcastMsg) {
	s.spawn(func() { s.gossip.Broadcast(ctx, m.Block) })
}

func (s *Syncer) handleVerified(m *VerifiedMsg) {
	err := s.archives.Verified.PutSync(m.View, m.Block.Digest(), m.Block.Bytes())
	if errors.Is(err, archive.ErrAlreadyPrunedTo) {
		s.log.Debug("verified: already pruned, dropping", zap.Uint64("view", m.View))
		return
	}
	if err != nil {
		s.fatal("verified.put_sync", err)
	}
}

func (s *Syncer) handleNotarization(ctx context.Context, m *NotarizationMsg) {
	n := m.N
	view := n.View()

	s.spawn(func() {
		if err := s.indexer.UploadSeed(ctx, n.Seed()); err != nil {
			s.log.Warn("notarization: seed upload failed", zap.Uint64("view", view), zap.Error(err))
		}
	})

	blk, ok := s.findBlock(n.Payload())
	if !ok {
		s.outstandingNotarize.add(view)
		s.resolver.Fetch(key.Notarized(view))
		return
	}

	notarized := &block.Notarized{Proof: n, Block: blk}
	s.spawn(func() {
		if err := s.indexer.UploadNotarized(ctx, notarized); err != nil {
			s.log.Warn("notarization: upload failed", zap.Uint64("view", view), zap.Error(err))
		}
	})
	if err := s.archives.Notarized.PutSync(view, blk.Digest(), notarized.Bytes()); err != nil {
		if errors.Is(err, archive.ErrAlreadyPrunedTo) {
			s.log.Debug("notarization: already pruned, dropping", zap.Uint64("view", view))
			return
		}
		s.fatal("notarized.put_sync", err)
	}
}

func (s *Syncer) handleFinalization(ctx context.Context, m *FinalizationMsg) {
	f := m.F
	view := f.View()

	s.spawn(func() {
		if err := s.indexer.UploadSeed(ctx, f.Seed()); err != nil {
			s.log.Warn("finalization: seed upload failed", zap.Uint64("view", view), zap.Error(err))
		}
	})

	blk, ok := s.findBlock(f.Payload())
	if !ok {
		s.resolver.Fetch(key.Digest(f.Payload()))
		return
	}

	finalized := &block.Finalized{Proof: f, Block: blk}
	s.spawn(func() {
		if err := s.indexer.UploadFinalized(ctx, finalized); err != nil {
			s.log.Warn("finalization: upload failed", zap.Uint64("view", view), zap.Error(err))
		}
	})

	var g errgroup.Group
	g.Go(func() error { return s.archives.Finalized.PutSync(blk.Height(), blk.Digest(), f.Bytes()) })
	g.Go(func() error { return s.archives.Blocks.PutSync(blk.Height(), blk.Digest(), blk.Bytes()) })
	if err := g.Wait(); err != nil {
		s.fatal("finalization.put_sync", err)
	}

	horizon := saturatingSub(s.lastViewProcessed, s.cfg.ActivityTimeout)
	if err := s.archives.Verified.Prune(horizon); err != nil {
		s.fatal("verified.prune", err)
	}
	if err := s.archives.Notarized.Prune(horizon); err != nil {
		s.fatal("notarized.prune", err)
	}
	if s.metrics != nil {
		s.metrics.ArchivePrunes.Inc()
	}

	s.poke()
	s.latestView = view
	if s.metrics != nil {
		s.metrics.FinalizedHeight.Set(float64(blk.Height()))
	}
}

func (s *Syncer) handleGet(ctx context.Context, m *GetMsg) {
	if blk, ok := s.findBlock(m.Payload); ok {
		m.Reply <- blk
		return
	}
	if m.View != nil {
		s.resolver.Fetch(key.Notarized(*m.View))
	}
	ch := s.buf.Await(m.Payload)
	s.spawn(func() {
		select {
		case blk := <-ch:
			m.Reply <- blk
		case <-ctx.Done():
		}
	})
}

// findBlock resolves a payload digest to a block via buffer, verified,
// notarized, then finalized-blocks, in that priority order (shared by
// handleGet, handleNotarization, handleFinalization, and Produce).
func (s *Syncer) findBlock(digest ids.ID) (*block.Block, bool) {
	if blk, ok := s.buf.Get(digest); ok {
		return blk, true
	}
	if raw, err := s.archives.Verified.Get(archive.ByKey(digest)); err == nil {
		if blk, err := block.ParseBlock(raw); err == nil {
			return blk, true
		}
	}
	if raw, err := s.archives.Notarized.Get(archive.ByKey(digest)); err == nil {
		if n, err := block.ParseNotarized(raw); err == nil {
			return n.Block, true
		}
	}
	if raw, err := s.archives.Blocks.GetByKey(digest); err == nil {
		if blk, err := block.ParseBlock(raw); err == nil {
			return blk, true
		}
	}
	return nil, false
}

func (s *Syncer) poke() {
	select {
	case s.pokeCh <- struct{}{}:
	default:
	}
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
