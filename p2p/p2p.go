// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package p2p is the seam where the real gossip/request transport plugs
// in: the marshal core depends only on syncer.Broadcaster,
// resolver.Sender, and resolver.PeerSource, and P2P networking itself is
// out of scope for this module (spec.md §1). NoOp satisfies all three
// without a network, in the teacher's sender-stub idiom
// (networking/sender/sendertest.TestSender, networking/router/stub.go):
// enough to let cmd/node wire and run the marshal core standalone until a
// transport is plugged in.
package p2p

import (
	"context"
	"errors"

	"github.com/luxfi/alto/block"
	"github.com/luxfi/alto/key"
	"github.com/luxfi/ids"
)

// ErrNoTransport is returned by NoOp.Send: there are no peers to ask.
var ErrNoTransport = errors.New("p2p: no transport configured")

// NoOp implements syncer.Broadcaster, resolver.Sender, and
// resolver.PeerSource with no network: Broadcast is a no-op, Send always
// fails (so the resolver's retry loop simply keeps circling until a real
// transport replaces this), and Peers returns the roster minus self.
type NoOp struct {
	Self   ids.NodeID
	Roster []ids.NodeID
}

// Broadcast drops blk: no peers are reachable without a real transport.
func (NoOp) Broadcast(ctx context.Context, blk *block.Block) {}

// Send always fails; the resolver backs off and retries against the next
// peer until the fetch is canceled, same as for a peer that never answers.
func (NoOp) Send(ctx context.Context, peer ids.NodeID, k key.Key) ([]byte, error) {
	return nil, ErrNoTransport
}

// Peers returns every roster member other than Self.
func (n NoOp) Peers() []ids.NodeID {
	out := make([]ids.NodeID, 0, len(n.Roster))
	for _, p := range n.Roster {
		if p != n.Self {
			out = append(out, p)
		}
	}
	return out
}
