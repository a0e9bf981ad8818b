// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package buffer implements the broadcast buffer: a per-peer bounded FIFO
// of recently gossiped block digests backing a single refcounted
// digest→block map, so a just-gossiped block can be served to Get queries
// before it is notarized without touching disk (spec.md §4.3).
//
// No library in the example corpus exposes a generic "bounded FIFO whose
// eviction decrements a separate refcount map" primitive, so this is built
// directly on container/list + map rather than forcing an LRU library's
// single-key eviction semantics onto a two-level data structure.
package buffer

import (
	"container/list"
	"sync"

	"github.com/luxfi/alto/block"
	"github.com/luxfi/ids"
)

// Buffer is the broadcast buffer. Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	cache    int // max entries per peer
	perPeer  map[ids.NodeID]*list.List // FIFO of digests, oldest at Back
	refcount map[ids.ID]int
	blocks   map[ids.ID]*block.Block
	waiters  map[ids.ID][]chan *block.Block
}

// New constructs a Buffer that retains up to cache digests per peer.
func New(cache int) *Buffer {
	return &Buffer{
		cache:    cache,
		perPeer:  make(map[ids.NodeID]*list.List),
		refcount: make(map[ids.ID]int),
		blocks:   make(map[ids.ID]*block.Block),
		waiters:  make(map[ids.ID][]chan *block.Block),
	}
}

// Add records that sender gossiped blk. If sender's queue is already at
// capacity, the oldest digest for that sender is evicted first (and its
// refcount decremented, possibly removing the block entirely).
func (b *Buffer) Add(sender ids.NodeID, blk *block.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.perPeer[sender]
	if !ok {
		q = list.New()
		b.perPeer[sender] = q
	}
	if q.Len() >= b.cache {
		oldest := q.Back()
		q.Remove(oldest)
		b.release(oldest.Value.(ids.ID))
	}

	digest := blk.Digest()
	q.PushFront(digest)
	b.refcount[digest]++
	if _, exists := b.blocks[digest]; !exists {
		b.blocks[digest] = blk
	}

	for _, ch := range b.waiters[digest] {
		ch <- blk
		close(ch)
	}
	delete(b.waiters, digest)
}

// release must be called with mu held.
func (b *Buffer) release(digest ids.ID) {
	b.refcount[digest]--
	if b.refcount[digest] <= 0 {
		delete(b.refcount, digest)
		delete(b.blocks, digest)
	}
}

// Get looks up a block by digest, O(1).
func (b *Buffer) Get(digest ids.ID) (*block.Block, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	blk, ok := b.blocks[digest]
	return blk, ok
}

// Await registers a one-shot channel that receives the block the next time
// digest is added to the buffer. It does not check whether digest is
// already present, so a block added before Await is called does not fire
// it (callers should Get first). Used by the syncer's Get handler to
// resolve a query once the block is gossiped.
func (b *Buffer) Await(digest ids.ID) <-chan *block.Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *block.Block, 1)
	b.waiters[digest] = append(b.waiters[digest], ch)
	return ch
}
