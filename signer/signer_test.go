// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignatureFromBytesRoundTrip(t *testing.T) {
	var want Signature
	for i := range want {
		want[i] = byte(i)
	}

	got, err := SignatureFromBytes(want.Bytes())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSignatureFromBytesRejectsWrongLength(t *testing.T) {
	_, err := SignatureFromBytes(make([]byte, len(Signature{})-1))
	require.Error(t, err)
}

func TestIdentityFromBytesRejectsMalformedKey(t *testing.T) {
	_, err := IdentityFromBytes([]byte("not a public key"))
	require.Error(t, err)
}

func TestNamespacesAreDistinctAndPrefixed(t *testing.T) {
	namespaces := [][]byte{SeedNamespace, NotarizeNamespace, NullifyNamespace, FinalizeNamespace}
	for _, ns := range namespaces {
		require.True(t, bytes.HasPrefix(ns, []byte(Namespace)))
	}
	for i := range namespaces {
		for j := range namespaces {
			if i == j {
				continue
			}
			require.False(t, bytes.Equal(namespaces[i], namespaces[j]))
		}
	}
}
