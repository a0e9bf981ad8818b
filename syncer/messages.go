// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package syncer

import (
	"github.com/luxfi/alto/block"
	"github.com/luxfi/ids"
)

// BroadcastMsg asks the syncer to gossip a freshly built block
// (spec.md §4.7.1).
type BroadcastMsg struct {
	Block *block.Block
}

// VerifiedMsg reports that the application accepted blk as valid for view.
type VerifiedMsg struct {
	View  uint64
	Block *block.Block
}

// NotarizationMsg delivers a gathered notarization for processing.
type NotarizationMsg struct {
	N *block.Notarization
}

// FinalizationMsg delivers a gathered finalization for processing.
type FinalizationMsg struct {
	F *block.Finalization
}

// GetMsg asks the syncer to resolve payload to a block, optionally scoped
// to view (a hint for the resolver fetch if it's not found locally).
// Reply receives the block once resolved, possibly asynchronously.
type GetMsg struct {
	View    *uint64
	Payload ids.ID
	Reply   chan *block.Block
}

type consensusMsg struct {
	broadcast    *BroadcastMsg
	verified     *VerifiedMsg
	notarization *NotarizationMsg
	finalization *FinalizationMsg
	get          *GetMsg
}

// orchGetMsg is the finalizer asking for the block at height Next.
type orchGetMsg struct {
	Next  uint64
	Reply chan *block.Block
}

// orchProcessedMsg informs the syncer the finalizer durably advanced past
// Next, whose block digest is Digest.
type orchProcessedMsg struct {
	Next   uint64
	Digest ids.ID
}

// orchRepairMsg asks the syncer to attempt forward progress toward Next.
// Reply receives whether progress was made.
type orchRepairMsg struct {
	Next  uint64
	Reply chan bool
}

type orchMsg struct {
	get       *orchGetMsg
	processed *orchProcessedMsg
	repair    *orchRepairMsg
}
