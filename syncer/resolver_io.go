// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package syncer

import (
	"context"
	"errors"

	"github.com/luxfi/alto/archive"
	"github.com/luxfi/alto/block"
	"github.com/luxfi/alto/key"
	"golang.org/x/sync/errgroup"
)

// handleProduce answers a peer's request for j.key (spec.md §4.7.3),
// consulting produceCache first so a burst of identical backfill requests
// during a partition costs one archive read instead of one per requester.
func (s *Syncer) handleProduce(ctx context.Context, j produceJob) {
	if data, ok := s.produceCache.Get(j.key); ok {
		j.reply <- produceResult{data: data, ok: true}
		return
	}

	switch j.key.Kind() {
	case key.KindNotarized:
		data, err := s.archives.Notarized.Get(archive.ByIndex(j.key.View()))
		if err != nil {
			j.reply <- produceResult{ok: false}
			return
		}
		s.produceCache.Put(j.key, data)
		j.reply <- produceResult{data: data, ok: true}

	case key.KindFinalized:
		height := j.key.Height()
		proofRaw, err := s.archives.Finalized.GetByIndex(height)
		if err != nil {
			j.reply <- produceResult{ok: false}
			return
		}
		blockRaw, err := s.archives.Blocks.GetByIndex(height)
		if err != nil {
			j.reply <- produceResult{ok: false}
			return
		}
		proof, err := block.ParseFinalization(proofRaw)
		if err != nil {
			j.reply <- produceResult{ok: false}
			return
		}
		blk, err := block.ParseBlock(blockRaw)
		if err != nil {
			j.reply <- produceResult{ok: false}
			return
		}
		bundle := &block.Finalized{Proof: proof, Block: blk}
		data := bundle.Bytes()
		s.produceCache.Put(j.key, data)
		j.reply <- produceResult{data: data, ok: true}

	case key.KindDigest:
		blk, ok := s.findBlock(j.key.Digest())
		if !ok {
			j.reply <- produceResult{ok: false}
			return
		}
		data := blk.Bytes()
		s.produceCache.Put(j.key, data)
		j.reply <- produceResult{data: data, ok: true}

	default:
		j.reply <- produceResult{ok: false}
	}
}

// handleDeliver validates and stores a peer's response to our own fetch of
// j.key (spec.md §4.7.3).
func (s *Syncer) handleDeliver(ctx context.Context, j deliverJob) {
	switch j.key.Kind() {
	case key.KindNotarized:
		s.deliverNotarized(j)
	case key.KindFinalized:
		s.deliverFinalized(j)
	case key.KindDigest:
		s.deliverDigest(j)
	default:
		j.reply <- false
	}
}

func (s *Syncer) deliverNotarized(j deliverJob) {
	view := j.key.View()
	n, err := block.ParseNotarized(j.data)
	if err != nil {
		j.reply <- false
		return
	}
	if !n.Proof.Verify(s.identity) || n.Proof.View() != view {
		j.reply <- false
		return
	}
	j.reply <- true

	s.outstandingNotarize.remove(view)
	err = s.archives.Notarized.PutSync(view, n.Block.Digest(), j.data)
	if err != nil && !errors.Is(err, archive.ErrAlreadyPrunedTo) {
		s.fatal("notarized.put_sync(deliver)", err)
	}
}

func (s *Syncer) deliverFinalized(j deliverJob) {
	height := j.key.Height()
	f, err := block.ParseFinalized(j.data)
	if err != nil {
		j.reply <- false
		return
	}
	if !f.Proof.Verify(s.identity) || f.Block.Height() != height {
		j.reply <- false
		return
	}
	j.reply <- true

	s.spawn(func() {
		var g errgroup.Group
		g.Go(func() error {
			return s.archives.Finalized.PutSync(height, f.Block.Digest(), f.Proof.Bytes())
		})
		g.Go(func() error {
			return s.archives.Blocks.PutSync(height, f.Block.Digest(), f.Block.Bytes())
		})
		if err := g.Wait(); err != nil {
			s.fatal("finalized.put_sync(deliver)", err)
		}
		s.poke()
	})
}

func (s *Syncer) deliverDigest(j deliverJob) {
	d := j.key.Digest()
	blk, err := block.ParseBlock(j.data)
	if err != nil || blk.Digest() != d {
		j.reply <- false
		return
	}
	j.reply <- true

	s.spawn(func() {
		if err := s.archives.Blocks.PutSync(blk.Height(), blk.Digest(), j.data); err != nil {
			s.fatal("blocks.put_sync(deliver)", err)
		}
		s.poke()
	})
}
