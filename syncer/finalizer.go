// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package syncer

import (
	"context"

	"github.com/luxfi/alto/archive"
	"github.com/luxfi/alto/block"
	"github.com/luxfi/alto/key"
	"github.com/luxfi/alto/logging"
	"github.com/luxfi/alto/metrics"
	"github.com/luxfi/ids"
	"go.uber.org/zap"
)

// --- Finalizer-orchestration client methods (called from the Finalizer's
// own goroutine; each round-trips through the syncer's select loop over
// the bounded orchCh, spec.md §4.7.2, §4.8). ---

func (s *Syncer) orchGet(ctx context.Context, next uint64) (*block.Block, bool) {
	reply := make(chan *block.Block, 1)
	select {
	case s.orchCh <- orchMsg{get: &orchGetMsg{Next: next, Reply: reply}}:
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

func (s *Syncer) orchProcessed(ctx context.Context, next uint64, digest ids.ID) {
	select {
	case s.orchCh <- orchMsg{processed: &orchProcessedMsg{Next: next, Digest: digest}}:
	case <-ctx.Done():
	}
}

func (s *Syncer) orchRepair(ctx context.Context, next uint64) bool {
	reply := make(chan bool, 1)
	select {
	case s.orchCh <- orchMsg{repair: &orchRepairMsg{Next: next, Reply: reply}}:
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

// Poke exposes the one-deep signal the syncer fires when new finalized
// content may have landed, for the Finalizer to wait on.
func (s *Syncer) Poke() <-chan struct{} { return s.pokeCh }

// --- The syncer-side handlers for those same messages ---

func (s *Syncer) handleOrch(ctx context.Context, m orchMsg) {
	switch {
	case m.get != nil:
		s.handleOrchGet(m.get)
	case m.processed != nil:
		s.handleOrchProcessed(m.processed)
	case m.repair != nil:
		s.handleOrchRepair(m.repair)
	}
}

func (s *Syncer) handleOrchGet(m *orchGetMsg) {
	raw, err := s.archives.Blocks.GetByIndex(m.Next)
	if err != nil {
		m.Reply <- nil
		return
	}
	blk, err := block.ParseBlock(raw)
	if err != nil {
		m.Reply <- nil
		return
	}
	m.Reply <- blk
}

func (s *Syncer) handleOrchProcessed(m *orchProcessedMsg) {
	s.resolver.Cancel(key.Finalized(m.Next))
	s.resolver.Cancel(key.Digest(m.Digest))

	if raw, err := s.archives.Finalized.GetByIndex(m.Next); err == nil {
		if f, err := block.ParseFinalization(raw); err == nil {
			s.lastViewProcessed = f.View()
		}
	}
	s.requestedBlocks.removeAtMost(m.Next)
	if s.metrics != nil {
		s.metrics.RequestedBlocks.Set(float64(s.requestedBlocks.len()))
	}
}

// handleOrchRepair attempts forward progress toward m.Next (spec.md
// §4.7.2): find the next populated height beyond the gap, try to recover
// its immediate parent from verified/notarized, or else fetch it and
// backfill the range up to cfg.MaxRepair heights wide.
func (s *Syncer) handleOrchRepair(m *orchRepairMsg) {
	_, startNext, ok := s.archives.Blocks.NextGap(m.Next)
	if !ok {
		m.Reply <- false
		return
	}
	if m.Next == 0 {
		m.Reply <- false
		return
	}

	gapped, err := s.archives.Blocks.GetByIndex(startNext)
	if err != nil {
		m.Reply <- false
		return
	}
	gappedBlk, err := block.ParseBlock(gapped)
	if err != nil {
		m.Reply <- false
		return
	}
	parentDigest := gappedBlk.Parent()

	if recovered, ok := s.recoverParent(parentDigest); ok {
		if err := s.archives.Blocks.PutSync(recovered.Height(), recovered.Digest(), recovered.Bytes()); err != nil {
			s.fatal("blocks.put_sync(repair)", err)
		}
		m.Reply <- true
		return
	}

	s.resolver.Fetch(key.Digest(parentDigest))

	end := startNext
	if limit := m.Next + uint64(s.cfg.MaxRepair); limit < end {
		end = limit
	}
	for h := m.Next; h < end; h++ {
		if s.requestedBlocks.has(h) {
			continue
		}
		s.requestedBlocks.add(h)
		s.resolver.Fetch(key.Finalized(h))
	}
	if s.metrics != nil {
		s.metrics.RequestedBlocks.Set(float64(s.requestedBlocks.len()))
	}
	m.Reply <- false
}

// recoverParent looks up digest in verified then notarized only (not the
// buffer or the blocks archive: a block reachable there wouldn't be
// gapped in the first place).
func (s *Syncer) recoverParent(digest ids.ID) (*block.Block, bool) {
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
	return nil, false
}

// Finalizer is the second long-lived task (spec.md §4.8): it walks
// contiguous heights from the durable cursor forward, asking the syncer
// for each block in turn and repairing gaps when one is missing.
type Finalizer struct {
	metadata *archive.Metadata
	syncer   *Syncer
	log      logging.Logger
	metrics  *metrics.Metrics
}

// NewFinalizer constructs a Finalizer bound to s's orchestration channel.
func NewFinalizer(metadata *archive.Metadata, s *Syncer, log logging.Logger, m *metrics.Metrics) *Finalizer {
	return &Finalizer{metadata: metadata, syncer: s, log: log, metrics: m}
}

// Run loads the durable cursor and advances it forever until ctx is
// canceled. The cursor for a height is written only after its block has
// been read back from the syncer (there is no application state-transition
// hook to run), and before orchProcessed reports it — the durability
// ordering invariant of spec.md §4.8.
func (fz *Finalizer) Run(ctx context.Context) {
	lastIndexed, err := fz.metadata.LastIndexedHeight()
	if err != nil {
		fz.log.Error("finalizer: failed to load cursor", zap.Error(err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		next := lastIndexed + 1
		blk, ok := fz.syncer.orchGet(ctx, next)
		if ok {
			// No application state-transition hook in this module
			// (spec.md §1 non-goals): blocks carry no executable state.
			if err := fz.metadata.SetLastIndexedHeight(next); err != nil {
				fz.log.Error("finalizer: failed to advance cursor", zap.Uint64("height", next), zap.Error(err))
				return
			}
			if fz.metrics != nil {
				fz.metrics.ContiguousHeight.Set(float64(next))
			}
			fz.syncer.orchProcessed(ctx, next, blk.Digest())
			lastIndexed = next
			continue
		}

		if fz.syncer.orchRepair(ctx, next) {
			continue
		}

		select {
		case <-fz.syncer.Poke():
		case <-ctx.Done():
			return
		}
	}
}
