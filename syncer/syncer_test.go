// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package syncer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/alto/archive"
	"github.com/luxfi/alto/block"
	"github.com/luxfi/alto/buffer"
	"github.com/luxfi/alto/indexer"
	"github.com/luxfi/alto/key"
	"github.com/luxfi/alto/logging"
	"github.com/luxfi/alto/signer"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func zeroSignature() signer.Signature {
	var s signer.Signature
	return s
}

type fakeGossip struct {
	mu  sync.Mutex
	got []*block.Block
}

func (g *fakeGossip) Broadcast(ctx context.Context, blk *block.Block) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.got = append(g.got, blk)
}

type fakeResolver struct {
	mu      sync.Mutex
	fetched []key.Key
	cancels []key.Key
}

func (r *fakeResolver) Fetch(k key.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched = append(r.fetched, k)
}

func (r *fakeResolver) Cancel(k key.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels = append(r.cancels, k)
}

func (r *fakeResolver) hasFetched(k key.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.fetched {
		if got == k {
			return true
		}
	}
	return false
}

func peerNode(b byte) ids.NodeID {
	var id ids.NodeID
	id[0] = b
	return id
}

func openTestArchives(t *testing.T) Archives {
	t.Helper()
	dir := t.TempDir()

	verified, err := archive.OpenPrunable(filepath.Join(dir, "verified"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { verified.Close() })

	notarized, err := archive.OpenPrunable(filepath.Join(dir, "notarized"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { notarized.Close() })

	finalized, err := archive.OpenImmutable(filepath.Join(dir, "finalized"), archive.ImmutableConfig{ResizeFrequency: 1024, ResizeChunk: 1024})
	require.NoError(t, err)
	t.Cleanup(func() { finalized.Close() })

	blocks, err := archive.OpenImmutable(filepath.Join(dir, "blocks"), archive.ImmutableConfig{ResizeFrequency: 1024, ResizeChunk: 1024})
	require.NoError(t, err)
	t.Cleanup(func() { blocks.Close() })

	metadata, err := archive.OpenMetadata(filepath.Join(dir, "metadata"))
	require.NoError(t, err)
	t.Cleanup(func() { metadata.Close() })

	return Archives{Verified: verified, Notarized: notarized, Finalized: finalized, Blocks: blocks, Metadata: metadata}
}

type testHarness struct {
	syncer   *Syncer
	archives Archives
	buf      *buffer.Buffer
	resolver *fakeResolver
	gossip   *fakeGossip
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()
	archives := openTestArchives(t)
	buf := buffer.New(8)
	resolver := &fakeResolver{}
	gossip := &fakeGossip{}

	s := New(cfg, archives, buf, resolver, indexer.NoOp{}, gossip, nil, logging.NewNoOp(), nil, 8)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(cancel)

	return &testHarness{syncer: s, archives: archives, buf: buf, resolver: resolver, gossip: gossip, cancel: cancel}
}

func finalizationFor(blk *block.Block) *block.Finalization {
	return block.NewFinalization(blk.Height(), blk.Height(), blk.Digest(), zeroSignature(), zeroSignature())
}

func notarizationFor(view uint64, blk *block.Block) *block.Notarization {
	return block.NewNotarization(view, view, blk.Digest(), zeroSignature(), zeroSignature())
}

func TestHandleVerifiedPersistsBlockBytes(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 1, 100)

	h.syncer.Verified(1, blk)

	require.Eventually(t, func() bool {
		raw, err := h.archives.Verified.Get(archive.ByKey(blk.Digest()))
		return err == nil && len(raw) == len(blk.Bytes())
	}, time.Second, 5*time.Millisecond)
}

func TestHandleNotarizationWithKnownBlockPersistsBundle(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 1, 100)
	h.buf.Add(peerNode(1), blk)

	h.syncer.Notarization(notarizationFor(1, blk))

	require.Eventually(t, func() bool {
		_, err := h.archives.Notarized.Get(archive.ByIndex(1))
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestHandleNotarizationWithUnknownBlockFetchesAndTracks(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	var unknown ids.ID
	unknown[0] = 0xaa

	h.syncer.Notarization(block.NewNotarization(7, 6, unknown, zeroSignature(), zeroSignature()))

	require.Eventually(t, func() bool {
		return h.resolver.hasFetched(key.Notarized(7))
	}, time.Second, 5*time.Millisecond)
}

func TestHandleFinalizationPersistsBlockAndFinalization(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 1, 100)
	h.buf.Add(peerNode(1), blk)

	h.syncer.Finalization(finalizationFor(blk))

	require.Eventually(t, func() bool {
		_, errB := h.archives.Blocks.GetByIndex(blk.Height())
		_, errF := h.archives.Finalized.GetByIndex(blk.Height())
		return errB == nil && errF == nil
	}, time.Second, 5*time.Millisecond)
}

func TestHandleGetReturnsBlockOnceBuffered(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 5, 100)
	view := uint64(5)

	resultCh := make(chan *block.Block, 1)
	go func() {
		got, _ := h.syncer.Get(context.Background(), &view, blk.Digest())
		resultCh <- got
	}()

	require.Eventually(t, func() bool {
		return h.resolver.hasFetched(key.Notarized(5))
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond) // let handleGet register its Await before we fire it

	h.buf.Add(peerNode(1), blk)

	select {
	case got := <-resultCh:
		require.Equal(t, blk.Digest(), got.Digest())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Get to resolve")
	}
}

func TestProduceServesNotarizedFromArchiveAndCachesIt(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 2, 100)
	bundle := &block.Notarized{Proof: notarizationFor(2, blk), Block: blk}
	require.NoError(t, h.archives.Notarized.PutSync(2, blk.Digest(), bundle.Bytes()))

	data, ok := h.syncer.Produce(context.Background(), key.Notarized(2))
	require.True(t, ok)
	require.Equal(t, bundle.Bytes(), data)

	cached, ok := h.syncer.produceCache.Get(key.Notarized(2))
	require.True(t, ok)
	require.Equal(t, bundle.Bytes(), cached)
}

func TestProduceServesDigestFromBuffer(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 3, 100)
	h.buf.Add(peerNode(1), blk)

	data, ok := h.syncer.Produce(context.Background(), key.Digest(blk.Digest()))
	require.True(t, ok)
	require.Equal(t, blk.Bytes(), data)
}

func TestProduceMissingKeyReturnsNotOK(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	_, ok := h.syncer.Produce(context.Background(), key.Notarized(999))
	require.False(t, ok)
}

func TestDeliverDigestStoresBlockAsynchronously(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 4, 100)

	ok := h.syncer.Deliver(context.Background(), key.Digest(blk.Digest()), blk.Bytes())
	require.True(t, ok)

	require.Eventually(t, func() bool {
		raw, err := h.archives.Blocks.GetByKey(blk.Digest())
		return err == nil && len(raw) == len(blk.Bytes())
	}, time.Second, 5*time.Millisecond)
}

func TestDeliverDigestRejectsMismatchedPayload(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 4, 100)
	var other ids.ID
	other[0] = 0xcc

	ok := h.syncer.Deliver(context.Background(), key.Digest(other), blk.Bytes())
	require.False(t, ok)
}

func TestBroadcastGossipsViaGossipDependency(t *testing.T) {
	h := newHarness(t, Config{ActivityTimeout: 10, MaxRepair: 4})
	blk := block.New(block.Genesis().Digest(), 1, 100)

	h.syncer.Broadcast(blk)

	require.Eventually(t, func() bool {
		h.gossip.mu.Lock()
		defer h.gossip.mu.Unlock()
		return len(h.gossip.got) == 1
	}, time.Second, 5*time.Millisecond)
}
