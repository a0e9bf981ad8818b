// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package key

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestNotarizedFinalizedDigestRoundTrip(t *testing.T) {
	k1 := Notarized(42)
	require.Equal(t, KindNotarized, k1.Kind())
	require.Equal(t, uint64(42), k1.View())

	k2 := Finalized(7)
	require.Equal(t, KindFinalized, k2.Kind())
	require.Equal(t, uint64(7), k2.Height())

	var d ids.ID
	d[0] = 0xab
	k3 := Digest(d)
	require.Equal(t, KindDigest, k3.Kind())
	require.Equal(t, d, k3.Digest())
}

func TestKeyBytesParseRoundTrip(t *testing.T) {
	for _, k := range []Key{Notarized(1), Finalized(2), Digest(ids.ID{9, 9, 9})} {
		b := k.Bytes()
		require.Len(t, b, Len)
		parsed, err := Parse(b)
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}
}

func TestParseRejectsBadLength(t *testing.T) {
	_, err := Parse([]byte{0, 1, 2})
	require.Error(t, err)
}

func TestParseRejectsUnknownKind(t *testing.T) {
	b := Notarized(1).Bytes()
	b[0] = 0xff
	_, err := Parse(b)
	require.Error(t, err)
}

func TestKeyEquality(t *testing.T) {
	require.Equal(t, Notarized(5), Notarized(5))
	require.NotEqual(t, Notarized(5), Notarized(6))
	require.NotEqual(t, Notarized(5), Finalized(5))
}

func TestKeyLess(t *testing.T) {
	require.True(t, Notarized(1).Less(Finalized(0)))
	require.False(t, Finalized(0).Less(Notarized(1)))
	require.True(t, Notarized(1).Less(Notarized(2)))
	require.False(t, Notarized(2).Less(Notarized(1)))
}

func TestKeyAsMapKey(t *testing.T) {
	m := map[Key]int{}
	m[Notarized(1)] = 1
	m[Finalized(1)] = 2
	m[Digest(ids.ID{1})] = 3
	require.Len(t, m, 3)
	require.Equal(t, 1, m[Notarized(1)])
}

func TestKeyString(t *testing.T) {
	require.Contains(t, Notarized(3).String(), "notarized")
	require.Contains(t, Finalized(3).String(), "finalized")
	require.Contains(t, Digest(ids.ID{1}).String(), "digest")
}
