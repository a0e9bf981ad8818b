// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package indexer uploads seeds, notarizations, and finalizations to an
// external indexing service over HTTP (spec.md §4.7.1/§4.7.3, §6). Uploads
// are fire-and-forget: a failure is warned and dropped, never allowed to
// block consensus (spec.md §4.10).
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/alto/block"
	"github.com/luxfi/alto/logging"
	"github.com/luxfi/alto/metrics"
	"go.uber.org/zap"
)

// Client is the narrow interface the syncer spawns uploads against.
type Client interface {
	UploadSeed(ctx context.Context, seed *block.Seed) error
	UploadNotarized(ctx context.Context, n *block.Notarized) error
	UploadFinalized(ctx context.Context, f *block.Finalized) error
}

// HTTPClient posts wire-encoded artifacts to an indexer's REST endpoints.
// There is no indexer-specific client library in the example corpus and
// this is a single best-effort POST per artifact with no retry loop
// (uploads are fire-and-forget by design, spec.md §4.10), so the teacher's
// heavier resolver-style retry machinery (cenkalti/backoff) would be
// over-engineering here; net/http's client is used directly.
type HTTPClient struct {
	base    string
	http    *http.Client
	log     logging.Logger
	metrics *metrics.Metrics
}

// NewHTTPClient constructs an indexer client posting to baseURL. An empty
// baseURL yields a NoOp client (the indexer is optional, spec.md §6).
func NewHTTPClient(baseURL string, log logging.Logger, m *metrics.Metrics) Client {
	if baseURL == "" {
		return NoOp{}
	}
	return &HTTPClient{
		base:    baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		log:     log,
		metrics: m,
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("indexer: %s returned status %d", path, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) UploadSeed(ctx context.Context, seed *block.Seed) error {
	if err := c.post(ctx, "/seeds", seed.Bytes()); err != nil {
		c.warn(err)
		return err
	}
	return nil
}

func (c *HTTPClient) UploadNotarized(ctx context.Context, n *block.Notarized) error {
	if err := c.post(ctx, "/notarized", n.Bytes()); err != nil {
		c.warn(err)
		return err
	}
	return nil
}

func (c *HTTPClient) UploadFinalized(ctx context.Context, f *block.Finalized) error {
	if err := c.post(ctx, "/finalized", f.Bytes()); err != nil {
		c.warn(err)
		return err
	}
	return nil
}

func (c *HTTPClient) warn(err error) {
	c.log.Warn("indexer upload failed", zap.Error(err))
	if c.metrics != nil {
		c.metrics.IndexerUploadErrors.Inc()
	}
}

// NoOp discards every upload, for when no indexer is configured.
type NoOp struct{}

func (NoOp) UploadSeed(context.Context, *block.Seed) error             { return nil }
func (NoOp) UploadNotarized(context.Context, *block.Notarized) error   { return nil }
func (NoOp) UploadFinalized(context.Context, *block.Finalized) error   { return nil }
