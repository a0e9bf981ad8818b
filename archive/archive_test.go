// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package archive

import (
	"path/filepath"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func digestOf(b byte) ids.ID {
	var d ids.ID
	d[0] = b
	return d
}

func TestPrunablePutGetByIndexAndByKey(t *testing.T) {
	p, err := OpenPrunable(t.TempDir(), 4)
	require.NoError(t, err)
	defer p.Close()

	key := digestOf(1)
	require.NoError(t, p.PutSync(10, key, []byte("hello")))

	v, err := p.Get(ByIndex(10))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)

	v, err = p.Get(ByKey(key))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)
}

func TestPrunableGetMissingReturnsErrNotFound(t *testing.T) {
	p, err := OpenPrunable(t.TempDir(), 4)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Get(ByIndex(99))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPrunablePruneDropsSectionsBelowHorizon(t *testing.T) {
	p, err := OpenPrunable(t.TempDir(), 4)
	require.NoError(t, err)
	defer p.Close()

	for view := uint64(0); view < 12; view++ {
		require.NoError(t, p.PutSync(view, digestOf(byte(view)), []byte{byte(view)}))
	}

	require.NoError(t, p.Prune(8)) // section boundary at 4: cutoff = 8
	require.Equal(t, uint64(8), p.Horizon())

	_, err = p.Get(ByIndex(3))
	require.ErrorIs(t, err, ErrNotFound)

	v, err := p.Get(ByIndex(8))
	require.NoError(t, err)
	require.Equal(t, []byte{8}, v)
}

func TestPrunablePutBelowHorizonRejected(t *testing.T) {
	p, err := OpenPrunable(t.TempDir(), 4)
	require.NoError(t, err)
	defer p.Close()

	for view := uint64(0); view < 8; view++ {
		require.NoError(t, p.PutSync(view, digestOf(byte(view)), []byte{byte(view)}))
	}
	require.NoError(t, p.Prune(8))

	err = p.PutSync(1, digestOf(1), []byte("late"))
	require.ErrorIs(t, err, ErrAlreadyPrunedTo)
}

func TestImmutablePutSyncIdempotent(t *testing.T) {
	dir := t.TempDir()
	im, err := OpenImmutable(dir, ImmutableConfig{ResizeFrequency: 4, ResizeChunk: 16, JournalCompress: true})
	require.NoError(t, err)
	defer im.Close()

	key := digestOf(5)
	require.NoError(t, im.PutSync(1, key, []byte("finalized-record")))
	require.NoError(t, im.PutSync(1, key, []byte("finalized-record"))) // idempotent no-op

	v, err := im.GetByIndex(1)
	require.NoError(t, err)
	require.Equal(t, []byte("finalized-record"), v)

	v, err = im.GetByKey(key)
	require.NoError(t, err)
	require.Equal(t, []byte("finalized-record"), v)
}

func TestImmutableGetMissingReturnsErrNotFound(t *testing.T) {
	im, err := OpenImmutable(t.TempDir(), ImmutableConfig{ResizeFrequency: 4, ResizeChunk: 16})
	require.NoError(t, err)
	defer im.Close()

	_, err = im.GetByIndex(42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestImmutableNextGapFindsContiguousRunAndNextHeight(t *testing.T) {
	im, err := OpenImmutable(t.TempDir(), ImmutableConfig{ResizeFrequency: 4, ResizeChunk: 16})
	require.NoError(t, err)
	defer im.Close()

	for _, h := range []uint64{0, 1, 2, 5, 6} {
		require.NoError(t, im.PutSync(h, digestOf(byte(h)), []byte{byte(h)}))
	}

	lastContiguous, firstBeyondGap, ok := im.NextGap(0)
	require.True(t, ok)
	require.Equal(t, uint64(2), lastContiguous)
	require.Equal(t, uint64(5), firstBeyondGap)
}

func TestImmutableNextGapNoGapAtEnd(t *testing.T) {
	im, err := OpenImmutable(t.TempDir(), ImmutableConfig{ResizeFrequency: 4, ResizeChunk: 16})
	require.NoError(t, err)
	defer im.Close()

	for _, h := range []uint64{0, 1, 2} {
		require.NoError(t, im.PutSync(h, digestOf(byte(h)), []byte{byte(h)}))
	}

	lastContiguous, _, ok := im.NextGap(0)
	require.False(t, ok)
	require.Equal(t, uint64(2), lastContiguous)
}

func TestMetadataLastIndexedHeightDefaultsToZero(t *testing.T) {
	m, err := OpenMetadata(filepath.Join(t.TempDir(), "metadata"))
	require.NoError(t, err)
	defer m.Close()

	h, err := m.LastIndexedHeight()
	require.NoError(t, err)
	require.Equal(t, uint64(0), h)
}

func TestMetadataSetLastIndexedHeightPersists(t *testing.T) {
	m, err := OpenMetadata(filepath.Join(t.TempDir(), "metadata"))
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.SetLastIndexedHeight(17))
	h, err := m.LastIndexedHeight()
	require.NoError(t, err)
	require.Equal(t, uint64(17), h)
}
