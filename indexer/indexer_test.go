// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luxfi/alto/block"
	"github.com/luxfi/alto/logging"
	"github.com/luxfi/alto/signer"
	"github.com/stretchr/testify/require"
)

func zeroSig() signer.Signature {
	var s signer.Signature
	return s
}

func TestNewHTTPClientReturnsNoOpForEmptyURL(t *testing.T) {
	c := NewHTTPClient("", logging.NewNoOp(), nil)
	_, ok := c.(NoOp)
	require.True(t, ok)
}

func TestNoOpUploadsNeverError(t *testing.T) {
	var c NoOp
	seed := block.NewSeed(1, zeroSig())
	require.NoError(t, c.UploadSeed(context.Background(), seed))
	require.NoError(t, c.UploadNotarized(context.Background(), nil))
	require.NoError(t, c.UploadFinalized(context.Background(), nil))
}

func TestHTTPClientUploadSeedSucceeds(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, logging.NewNoOp(), nil)
	seed := block.NewSeed(1, zeroSig())
	require.NoError(t, c.UploadSeed(context.Background(), seed))
	require.Equal(t, "/seeds", gotPath)
}

func TestHTTPClientUploadSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, logging.NewNoOp(), nil)
	seed := block.NewSeed(1, zeroSig())
	err := c.UploadSeed(context.Background(), seed)
	require.Error(t, err)
}
